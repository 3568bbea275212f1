// Package tabs tracks which tab is active in each window and keeps one event
// buffer per tab that has produced events.
package tabs

import (
	"container/list"

	"github.com/vincentbai/browsetrace-core/internal/browser"
	"github.com/vincentbai/browsetrace-core/internal/buffer"
	"github.com/vincentbai/browsetrace-core/internal/models"
)

// maxRemovedMarks bounds the set of tab ids remembered as removed. The oldest
// mark is evicted first.
const maxRemovedMarks = 4096

// Tracker is not safe for concurrent use; the engine serializes access.
type Tracker struct {
	capacity  int
	active    map[int]int // windowID -> tabID
	buffers   map[int]*buffer.RingBuffer[models.InteractionEvent]
	lastKnown map[int]browser.Tab
	removed   map[int]*list.Element
	order     *list.List // removed tab ids, oldest mark first
}

// NewTracker creates a tracker whose per-tab buffers hold capacity events each.
func NewTracker(capacity int) *Tracker {
	t := &Tracker{capacity: capacity}
	t.Reset()
	return t
}

// Push appends event to the tab's buffer, creating the buffer on first use.
func (t *Tracker) Push(tabID int, event models.InteractionEvent) {
	rb, ok := t.buffers[tabID]
	if !ok {
		rb = buffer.New[models.InteractionEvent](t.capacity)
		t.buffers[tabID] = rb
	}
	rb.Push(event)
}

// Events returns a copy of the tab's buffered events, oldest first.
func (t *Tracker) Events(tabID int) []models.InteractionEvent {
	rb, ok := t.buffers[tabID]
	if !ok {
		return []models.InteractionEvent{}
	}
	return rb.Snapshot()
}

func (t *Tracker) HasBuffer(tabID int) bool {
	_, ok := t.buffers[tabID]
	return ok
}

// TrackedTabs reports how many tabs currently own a buffer.
func (t *Tracker) TrackedTabs() int {
	return len(t.buffers)
}

// Activate records tabID as the active tab of windowID and returns the tab it
// replaced. ok is false on the window's first observed activation.
func (t *Tracker) Activate(windowID, tabID int) (previous int, ok bool) {
	previous, ok = t.active[windowID]
	t.active[windowID] = tabID
	return previous, ok
}

func (t *Tracker) ActiveTab(windowID int) (int, bool) {
	tabID, ok := t.active[windowID]
	return tabID, ok
}

// Remember stores the most recent known url/title/window of a tab, used when the
// live browser can no longer be asked.
func (t *Tracker) Remember(tab browser.Tab) {
	known := t.lastKnown[tab.ID]
	if tab.WindowID != nil {
		known.WindowID = tab.WindowID
	}
	if tab.URL != "" {
		known.URL = tab.URL
	}
	if tab.Title != "" {
		known.Title = tab.Title
	}
	known.ID = tab.ID
	t.lastKnown[tab.ID] = known
}

func (t *Tracker) LastKnown(tabID int) (browser.Tab, bool) {
	tab, ok := t.lastKnown[tabID]
	return tab, ok
}

// MarkRemoved flags tabID as removed and reports whether it was not already.
func (t *Tracker) MarkRemoved(tabID int) bool {
	if _, ok := t.removed[tabID]; ok {
		return false
	}
	if t.order.Len() >= maxRemovedMarks {
		oldest := t.order.Front()
		delete(t.removed, oldest.Value.(int))
		t.order.Remove(oldest)
	}
	t.removed[tabID] = t.order.PushBack(tabID)
	return true
}

// Revive clears the removed flag once the tab id shows up again.
func (t *Tracker) Revive(tabID int) {
	if mark, ok := t.removed[tabID]; ok {
		t.order.Remove(mark)
		delete(t.removed, tabID)
	}
}

func (t *Tracker) Removed(tabID int) bool {
	_, ok := t.removed[tabID]
	return ok
}

// Forget drops the tab's buffer and last known info.
func (t *Tracker) Forget(tabID int) {
	delete(t.buffers, tabID)
	delete(t.lastKnown, tabID)
}

// Reset discards all state, as after a restart of the host process.
func (t *Tracker) Reset() {
	t.active = make(map[int]int)
	t.buffers = make(map[int]*buffer.RingBuffer[models.InteractionEvent])
	t.lastKnown = make(map[int]browser.Tab)
	t.removed = make(map[int]*list.Element)
	t.order = list.New()
}
