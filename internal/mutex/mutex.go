// Package mutex provides a mutual-exclusion lock that reports its lock
// lifecycle to the trace.
//
// Lock records Request before blocking and Acquire once the lock is held.
// Unlock records Release after the lock is released. TryLock is not traced.
package mutex

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/roach88/rapidtrace/internal/capture"
	"github.com/roach88/rapidtrace/internal/event"
)

// Hooks observe a Mutex around its raw lock operations.
//
// For Lock the order is BeginLock, raw lock, FinishLock. For Unlock it is
// BeginUnlock, raw unlock, FinishUnlock.
type Hooks interface {
	BeginLock(lock uint64, loc event.Location)
	FinishLock(lock uint64, loc event.Location)
	BeginUnlock(lock uint64, loc event.Location)
	FinishUnlock(lock uint64, loc event.Location)
}

// TraceHooks record lock events into a Recorder.
type TraceHooks struct {
	Recorder *capture.Recorder
	Logger   *zap.Logger
}

// NewTraceHooks creates hooks that record into rec. A nil logger disables
// logging.
func NewTraceHooks(rec *capture.Recorder, logger *zap.Logger) *TraceHooks {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TraceHooks{Recorder: rec, Logger: logger}
}

// BeginLock records a Request event.
func (h *TraceHooks) BeginLock(lock uint64, loc event.Location) {
	tid := h.Recorder.CurrentThread()
	h.Logger.Debug("lock requested", zap.Uint64("thread", tid), zap.Uint64("lock", lock))
	h.Recorder.Request(lock, loc)
}

// FinishLock records an Acquire event.
func (h *TraceHooks) FinishLock(lock uint64, loc event.Location) {
	tid := h.Recorder.CurrentThread()
	h.Logger.Debug("lock acquired", zap.Uint64("thread", tid), zap.Uint64("lock", lock))
	h.Recorder.Acquire(lock, loc)
}

// BeginUnlock records nothing.
func (h *TraceHooks) BeginUnlock(lock uint64, _ event.Location) {
	h.Logger.Debug("lock releasing", zap.Uint64("thread", h.Recorder.CurrentThread()), zap.Uint64("lock", lock))
}

// FinishUnlock records a Release event.
func (h *TraceHooks) FinishUnlock(lock uint64, loc event.Location) {
	tid := h.Recorder.CurrentThread()
	h.Logger.Debug("lock released", zap.Uint64("thread", tid), zap.Uint64("lock", lock))
	h.Recorder.Release(lock, loc)
}

var (
	// nextID hands out lock ids process-wide. Zero means unassigned, so ids
	// start at 1 internally and are reported minus one.
	nextID atomic.Uint64

	defaultHooks = sync.OnceValue(func() Hooks {
		return NewTraceHooks(capture.Default(), nil)
	})
)

// Mutex is a traced mutual-exclusion lock.
//
// The zero value is an unlocked mutex that records into capture.Default().
// Its lock id is assigned on first Lock or Unlock. A Mutex must not be copied
// after first use.
type Mutex struct {
	raw   sync.Mutex
	id    atomic.Uint64 // id+1, or 0 before first use
	hooks Hooks
}

// New creates a mutex reporting to hooks. A nil hooks value selects the
// default recorder.
func New(hooks Hooks) *Mutex {
	return &Mutex{hooks: hooks}
}

// ID returns the mutex's lock id, assigning one if needed.
func (m *Mutex) ID() uint64 {
	if v := m.id.Load(); v != 0 {
		return v - 1
	}
	candidate := nextID.Add(1)
	if m.id.CompareAndSwap(0, candidate) {
		return candidate - 1
	}
	// Another goroutine won; the candidate id is skipped.
	return m.id.Load() - 1
}

func (m *Mutex) hooksOrDefault() Hooks {
	if m.hooks != nil {
		return m.hooks
	}
	return defaultHooks()
}

// Lock acquires the mutex.
func (m *Mutex) Lock() { m.LockAt(event.Location{}) }

// LockAt is Lock with the program location recorded on its events.
func (m *Mutex) LockAt(loc event.Location) {
	id, hooks := m.ID(), m.hooksOrDefault()
	hooks.BeginLock(id, loc)
	m.raw.Lock()
	hooks.FinishLock(id, loc)
}

// TryLock tries to acquire the mutex without blocking. It records no events.
func (m *Mutex) TryLock() bool {
	return m.raw.TryLock()
}

// Unlock releases the mutex.
func (m *Mutex) Unlock() { m.UnlockAt(event.Location{}) }

// UnlockAt is Unlock with the program location recorded on its events.
func (m *Mutex) UnlockAt(loc event.Location) {
	id, hooks := m.ID(), m.hooksOrDefault()
	hooks.BeginUnlock(id, loc)
	m.raw.Unlock()
	hooks.FinishUnlock(id, loc)
}
