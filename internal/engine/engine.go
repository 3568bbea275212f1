// Package engine is the ingestion and query core. It owns the global event
// buffer, the per-tab bookkeeping and the navigation state, feeds every event to
// the durable store, and answers queries by merging memory with storage.
//
// Notifications may arrive concurrently. A single mutex guards the in-memory
// state and is never held across a browser lookup, a sleep or a storage call, so
// a slow lookup delays only the notification that issued it.
package engine

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/vincentbai/browsetrace-core/internal/browser"
	"github.com/vincentbai/browsetrace-core/internal/buffer"
	"github.com/vincentbai/browsetrace-core/internal/inputs"
	"github.com/vincentbai/browsetrace-core/internal/models"
	"github.com/vincentbai/browsetrace-core/internal/navigation"
	"github.com/vincentbai/browsetrace-core/internal/tabs"
)

type Options struct {
	BufferCapacity int
	QueryLimit     int
	LookupTimeout  time.Duration
	ContentTimeout time.Duration
	GracePeriod    time.Duration
}

// Persister is the durable side of ingestion. *store.Store implements it.
type Persister interface {
	Persist(event models.InteractionEvent)
	LoadAll(ctx context.Context) ([]models.InteractionEvent, error)
}

type Engine struct {
	opts    Options
	store   Persister
	browser browser.Client
	logger  *log.Logger

	now   func() time.Time
	newID func() string
	sleep func(ctx context.Context, d time.Duration)

	mu     sync.Mutex
	global *buffer.RingBuffer[models.InteractionEvent]
	tabs   *tabs.Tracker
	nav    *navigation.Detector
	fields *inputs.Tracker
}

// New creates an engine. It panics if opts.BufferCapacity is not positive.
func New(opts Options, store Persister, client browser.Client, logger *log.Logger) *Engine {
	if client == nil {
		client = browser.Offline{}
	}
	return &Engine{
		opts:    opts,
		store:   store,
		browser: client,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
		sleep:   sleepContext,
		global:  buffer.New[models.InteractionEvent](opts.BufferCapacity),
		tabs:    tabs.NewTracker(opts.BufferCapacity),
		nav:     navigation.NewDetector(),
		fields:  inputs.NewTracker(),
	}
}

// Ingest records one event coming from a capture adapter. Tab, window, url and
// title missing from the event are taken from origin. Ingest never fails;
// persistence errors are only logged.
func (e *Engine) Ingest(event models.InteractionEvent, origin models.Origin) {
	event = e.enrich(event, origin)

	e.mu.Lock()
	if event.TabID != nil {
		e.tabs.Revive(*event.TabID)
	}
	e.trackField(&event)
	e.pushLocked(event)
	e.mu.Unlock()

	e.store.Persist(event)
}

// ingestSynthetic records an event the engine produced itself. A tab removed
// while the event was being assembled gets no per-tab state back.
func (e *Engine) ingestSynthetic(event models.InteractionEvent) {
	e.mu.Lock()
	if event.TabID != nil && e.tabs.Removed(*event.TabID) {
		e.global.Push(event)
	} else {
		e.pushLocked(event)
	}
	e.mu.Unlock()

	e.store.Persist(event)
}

func (e *Engine) pushLocked(event models.InteractionEvent) {
	e.global.Push(event)
	if event.TabID == nil {
		return
	}
	e.tabs.Push(*event.TabID, event)
	e.tabs.Remember(browser.Tab{ID: *event.TabID, WindowID: event.WindowID, URL: event.URL, Title: event.Title})
}

func (e *Engine) enrich(event models.InteractionEvent, origin models.Origin) models.InteractionEvent {
	if event.TabID == nil {
		event.TabID = origin.TabID
	}
	if event.WindowID == nil {
		event.WindowID = origin.WindowID
	}
	if event.URL == "" {
		event.URL = origin.URL
	}
	if event.Title == "" {
		event.Title = origin.Title
	}
	if event.ID == "" {
		event.ID = e.newID()
	}
	if event.Timestamp == 0 {
		event.Timestamp = e.now().UnixMilli()
	}
	event.Payload = maps.Clone(event.Payload)
	return event
}

// Query returns up to limit events, newest first, merged from durable storage
// and the global buffer with duplicates removed. limit <= 0 selects the
// configured default. If storage cannot be read the buffer alone answers.
func (e *Engine) Query(ctx context.Context, limit int) []models.InteractionEvent {
	if limit <= 0 {
		limit = e.opts.QueryLimit
	}

	persisted, err := e.store.LoadAll(ctx)
	if err != nil {
		e.logger.Warn("query without durable events", "err", err)
	}

	e.mu.Lock()
	buffered := e.global.Snapshot()
	e.mu.Unlock()

	return detach(mergeRecent(limit, buffered, persisted))
}

// detach gives each event its own payload map so callers cannot mutate
// buffered events.
func detach(events []models.InteractionEvent) []models.InteractionEvent {
	for i := range events {
		events[i].Payload = maps.Clone(events[i].Payload)
	}
	return events
}

// mergeRecent dedups by id, keeping the first copy seen, sorts by timestamp
// descending and truncates to limit.
func mergeRecent(limit int, sources ...[]models.InteractionEvent) []models.InteractionEvent {
	seen := make(map[string]struct{})
	merged := []models.InteractionEvent{}
	for _, source := range sources {
		for _, event := range source {
			if _, dup := seen[event.ID]; dup {
				continue
			}
			seen[event.ID] = struct{}{}
			merged = append(merged, event)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp > merged[j].Timestamp
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// TabEvents returns the buffered events of one tab, oldest first.
func (e *Engine) TabEvents(tabID int) []models.InteractionEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return detach(e.tabs.Events(tabID))
}

type Stats struct {
	Buffered    int `json:"buffered"`
	TrackedTabs int `json:"trackedTabs"`
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{Buffered: e.global.Len(), TrackedTabs: e.tabs.TrackedTabs()}
}

// Reset discards every piece of in-memory state, as a restart of the host
// process would. Durable storage is untouched.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.global.Clear()
	e.tabs.Reset()
	e.nav.Reset()
	e.fields.Reset()
}

func (e *Engine) newEvent(eventType models.EventType, tabID int, windowID *int, url, title string, payload map[string]any) models.InteractionEvent {
	return models.InteractionEvent{
		ID:        e.newID(),
		Type:      eventType,
		Timestamp: e.now().UnixMilli(),
		TabID:     models.IntPtr(tabID),
		WindowID:  windowID,
		URL:       url,
		Title:     title,
		Payload:   payload,
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
