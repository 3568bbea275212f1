// Package store persists interaction events so they survive restarts of the host process.
//
// Writes are fire-and-forget: Persist never blocks the caller and never reports a
// failure to it. A write that is still in flight when the process is torn down is lost.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/vincentbai/browsetrace-core/internal/models"
)

// KeyPrefix namespaces event entries in the key/value table.
const KeyPrefix = "event_"

const defaultWriteTimeout = 5 * time.Second

// KV is the durable key/value backend. *database.Database implements it.
type KV interface {
	Put(ctx context.Context, key string, value []byte) error
	ScanPrefix(ctx context.Context, prefix string) ([][]byte, error)
}

type Store struct {
	kv           KV
	logger       *log.Logger
	writeTimeout time.Duration
	inflight     sync.WaitGroup
}

func New(kv KV, logger *log.Logger) *Store {
	return &Store{kv: kv, logger: logger, writeTimeout: defaultWriteTimeout}
}

// Key returns the storage key of an event id.
func Key(id string) string {
	return KeyPrefix + id
}

// Persist writes event in the background.
func (s *Store) Persist(event models.InteractionEvent) {
	value, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("encode event", "id", event.ID, "err", err)
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
		defer cancel()
		if err := s.kv.Put(ctx, Key(event.ID), value); err != nil {
			s.logger.Error("persist event", "id", event.ID, "type", event.Type, "err", err)
		}
	}()
}

// LoadAll returns every persisted event in no particular order. Entries that no
// longer decode are logged and skipped.
func (s *Store) LoadAll(ctx context.Context) ([]models.InteractionEvent, error) {
	values, err := s.kv.ScanPrefix(ctx, KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	events := make([]models.InteractionEvent, 0, len(values))
	for _, value := range values {
		var event models.InteractionEvent
		if err := json.Unmarshal(value, &event); err != nil {
			s.logger.Warn("skip undecodable entry", "err", err)
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// Wait blocks until every write started so far has finished.
func (s *Store) Wait() {
	s.inflight.Wait()
}
