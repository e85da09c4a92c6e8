package capture

import (
	"sync"

	"github.com/roach88/rapidtrace/internal/event"
)

// Buffer is the append-only trace of one instrumented run.
//
// Insertion order is capture order: a single total order over all threads.
// It is not a causal order; reconstructing happens-before is left to the
// offline analysis that consumes the encoded trace.
//
// Thread-safety: all methods are safe for concurrent use. Appends serialize
// on a single mutex.
type Buffer struct {
	mu     sync.Mutex
	events []event.Event
}

// NewBuffer creates an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{
		events: make([]event.Event, 0, 1024), // Pre-allocate for typical runs
	}
}

// Append adds e at the end of the trace.
func (b *Buffer) Append(e event.Event) {
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}

// Len returns the number of captured events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Snapshot returns a copy of the trace captured so far. The buffer keeps its
// contents.
func (b *Buffer) Snapshot() []event.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]event.Event, len(b.events))
	copy(out, b.events)
	return out
}

// Drain returns the trace captured so far and resets the buffer to empty.
func (b *Buffer) Drain() []event.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.events
	b.events = make([]event.Event, 0, cap(out))
	return out
}
