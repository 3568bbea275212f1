package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/vincentbai/browsetrace-core/internal/models"
)

// Inbound message types.
const (
	MessageEvent       = "event"
	MessageQueryRecent = "query-recent"
	MessageQueryTab    = "query-tab"
	MessageFieldFocus  = "field-focus"
	MessageFieldBlur   = "field-blur"
)

var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrUnknownMessage   = errors.New("unknown message type")
)

type eventMessage struct {
	Payload models.InteractionEvent `json:"payload"`
	Sender  models.Origin           `json:"sender"`
}

type fieldMessage struct {
	TabID   *int   `json:"tabId"`
	FieldID string `json:"fieldId"`
	Value   string `json:"value"`
}

// HandleMessage dispatches one inbound adapter message. Messages that expect
// an answer return it; the others return nil.
func (e *Engine) HandleMessage(ctx context.Context, raw []byte) (any, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformedMessage)
	}

	messageType := gjson.GetBytes(raw, "type")
	switch messageType.String() {
	case MessageEvent:
		var message eventMessage
		if err := json.Unmarshal(raw, &message); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		e.Ingest(message.Payload, message.Sender)
		return nil, nil

	case MessageQueryRecent:
		limit := int(gjson.GetBytes(raw, "limit").Int())
		return models.EventsResponse{Events: e.Query(ctx, limit)}, nil

	case MessageQueryTab:
		tabID := gjson.GetBytes(raw, "tabId")
		if tabID.Type != gjson.Number {
			return nil, fmt.Errorf("%w: query-tab needs a numeric tabId", ErrMalformedMessage)
		}
		return models.EventsResponse{Events: e.TabEvents(int(tabID.Int()))}, nil

	case MessageFieldFocus, MessageFieldBlur:
		var message fieldMessage
		if err := json.Unmarshal(raw, &message); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		if message.FieldID == "" {
			return nil, fmt.Errorf("%w: %s needs a fieldId", ErrMalformedMessage, messageType.String())
		}
		if messageType.String() == MessageFieldFocus {
			e.FocusField(message.TabID, message.FieldID, message.Value)
		} else {
			e.BlurField(message.TabID, message.FieldID)
		}
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, messageType.String())
	}
}

// noTab keys fields of events that carry no tab context.
const noTab = -1

func fieldTab(tabID *int) int {
	if tabID == nil {
		return noTab
	}
	return *tabID
}

// FocusField starts tracking a form field with the value it had on focus.
func (e *Engine) FocusField(tabID *int, fieldID, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fields.Focus(fieldTab(tabID), fieldID, value)
}

func (e *Engine) BlurField(tabID *int, fieldID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fields.Blur(fieldTab(tabID), fieldID)
}

// trackField fills payload.previousValue of a typing event from the field's
// recorded value. Must be called with mu held and a cloned payload.
func (e *Engine) trackField(event *models.InteractionEvent) {
	if event.Type != models.TypeTyping || event.Payload == nil {
		return
	}
	fieldID, _ := event.Payload["fieldId"].(string)
	value, hasValue := event.Payload["value"].(string)
	if fieldID == "" || !hasValue {
		return
	}
	previous, ok := e.fields.Change(fieldTab(event.TabID), fieldID, value)
	if _, set := event.Payload["previousValue"]; ok && !set {
		event.Payload["previousValue"] = previous
	}
}
