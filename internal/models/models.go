package models

type EventType string

const (
	TypePageLoad   EventType = "page-load"
	TypeClick      EventType = "click"
	TypeTyping     EventType = "type"
	TypeCopy       EventType = "copy"
	TypePaste      EventType = "paste"
	TypeHighlight  EventType = "highlight"
	TypeTabSwitch  EventType = "tab-switch"
	TypeTabRemoval EventType = "tab-removal"
)

// EventTypes lists every type the capture pipeline produces.
var EventTypes = []EventType{
	TypePageLoad, TypeClick, TypeTyping, TypeCopy,
	TypePaste, TypeHighlight, TypeTabSwitch, TypeTabRemoval,
}

func (t EventType) Valid() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

type InteractionEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp int64          `json:"timestamp"` // ms since epoch
	TabID     *int           `json:"tabId,omitempty"`
	WindowID  *int           `json:"windowId,omitempty"`
	URL       string         `json:"url,omitempty"`
	Title     string         `json:"title,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"` // arbitrary JSON
}

// Origin describes the browser context a message was sent from.
type Origin struct {
	TabID    *int   `json:"tabId,omitempty"`
	WindowID *int   `json:"windowId,omitempty"`
	URL      string `json:"url,omitempty"`
	Title    string `json:"title,omitempty"`
}

// Batch is the export format handed to the HTTP sink.
type Batch struct {
	Events    []InteractionEvent `json:"events"`
	Timestamp int64              `json:"timestamp"`
}

type EventsResponse struct {
	Events []InteractionEvent `json:"events"`
}

// IntPtr is a helper for the optional tab/window identifiers.
func IntPtr(v int) *int {
	return &v
}
