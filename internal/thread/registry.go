package thread

import "sync"

// Work is a one-shot callable parked in a Registry.
type Work func()

// Registry holds pending work under small integer ids.
//
// Ids are recycled: Insert reuses the most recently freed id before minting a
// new one, so the id space stays as small as the number of in-flight spawns.
// An id is valid from Insert until the single Take that removes it.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	pending map[uint32]Work
	free    []uint32 // LIFO
	next    uint32
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{pending: make(map[uint32]Work)}
}

var defaultRegistry = sync.OnceValue(NewRegistry)

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	return defaultRegistry()
}

// Insert parks fn and returns its id.
func (r *Registry) Insert(fn Work) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var id uint32
	if n := len(r.free); n > 0 {
		id = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		id = r.next
		r.next++
	}
	r.pending[id] = fn
	return id
}

// Take removes the work registered under id and frees the id.
// It returns false if id is not pending, including when it was already taken.
func (r *Registry) Take(id uint32) (Work, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fn, ok := r.pending[id]
	if !ok {
		return nil, false
	}
	delete(r.pending, id)
	r.free = append(r.free, id)
	return fn, true
}

// Len returns the number of pending entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
