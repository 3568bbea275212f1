// Package buffer provides the fixed-capacity FIFO used for the global and per-tab event logs.
package buffer

import "fmt"

// RingBuffer holds at most Cap() entries. Pushing onto a full buffer overwrites the
// oldest entry. It is not safe for concurrent use; the owner serializes access.
type RingBuffer[T any] struct {
	entries  []T
	capacity int
	head     int // index of the oldest entry once the buffer is full
}

// New creates a ring buffer with the given capacity. It panics if capacity is not positive.
func New[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		panic(fmt.Sprintf("buffer: capacity must be positive, got %d", capacity))
	}
	return &RingBuffer[T]{
		entries:  make([]T, 0, capacity),
		capacity: capacity,
	}
}

// Push appends entry, evicting the oldest entry first when the buffer is full.
func (rb *RingBuffer[T]) Push(entry T) {
	if len(rb.entries) < rb.capacity {
		rb.entries = append(rb.entries, entry)
		return
	}
	rb.entries[rb.head] = entry
	rb.head = (rb.head + 1) % rb.capacity
}

// Snapshot returns a copy of the entries, oldest first. The copy is shallow:
// maps or pointers inside T are shared with the buffer.
func (rb *RingBuffer[T]) Snapshot() []T {
	out := make([]T, 0, len(rb.entries))
	out = append(out, rb.entries[rb.head:]...)
	out = append(out, rb.entries[:rb.head]...)
	return out
}

func (rb *RingBuffer[T]) Clear() {
	var zero T
	for i := range rb.entries {
		rb.entries[i] = zero
	}
	rb.entries = rb.entries[:0]
	rb.head = 0
}

func (rb *RingBuffer[T]) Len() int { return len(rb.entries) }

func (rb *RingBuffer[T]) Cap() int { return rb.capacity }
