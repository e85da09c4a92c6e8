package capture

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
)

// ErrAlreadyBound is returned by Bind when the calling goroutine already has
// a logical thread id.
var ErrAlreadyBound = errors.New("goroutine already has a thread id")

// Identities maps goroutines to logical thread ids.
//
// Ids come from a monotonic counter and are never reused, so two logical
// threads in one trace never share an id. The goroutine -> id table is keyed
// by runtime goroutine id (github.com/petermattis/goid), which is unique for
// the lifetime of the process.
//
// Thread-safety: all methods are safe for concurrent use.
type Identities struct {
	next atomic.Uint64

	mu          sync.Mutex
	byGoroutine map[int64]uint64
}

// NewIdentities creates an identity table whose first id is 0.
func NewIdentities() *Identities {
	return &Identities{byGoroutine: make(map[int64]uint64)}
}

// Allocate reserves a fresh thread id without binding it to any goroutine.
// The thread harness allocates the child's id in the parent so the Fork
// event can name it before the child runs.
func (ids *Identities) Allocate() uint64 {
	return ids.next.Add(1) - 1
}

// Current returns the calling goroutine's thread id, assigning the next free
// id on first use.
func (ids *Identities) Current() uint64 {
	gid := goid.Get()

	ids.mu.Lock()
	defer ids.mu.Unlock()

	if tid, ok := ids.byGoroutine[gid]; ok {
		return tid
	}
	tid := ids.Allocate()
	ids.byGoroutine[gid] = tid
	return tid
}

// Lookup returns the calling goroutine's thread id without assigning one.
func (ids *Identities) Lookup() (uint64, bool) {
	gid := goid.Get()

	ids.mu.Lock()
	defer ids.mu.Unlock()

	tid, ok := ids.byGoroutine[gid]
	return tid, ok
}

// Bind assigns tid to the calling goroutine. It fails if the goroutine has
// already recorded under another id.
func (ids *Identities) Bind(tid uint64) error {
	gid := goid.Get()

	ids.mu.Lock()
	defer ids.mu.Unlock()

	if old, ok := ids.byGoroutine[gid]; ok {
		return fmt.Errorf("bind T%d: %w (T%d)", tid, ErrAlreadyBound, old)
	}
	ids.byGoroutine[gid] = tid
	return nil
}

// Unbind forgets the calling goroutine's id. Workers call it on exit so the
// table does not grow with every finished goroutine. The id itself is not
// recycled.
func (ids *Identities) Unbind() {
	gid := goid.Get()

	ids.mu.Lock()
	delete(ids.byGoroutine, gid)
	ids.mu.Unlock()
}

// Issued returns how many ids have been handed out.
func (ids *Identities) Issued() uint64 {
	return ids.next.Load()
}
