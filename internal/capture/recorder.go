package capture

import (
	"sync"

	"github.com/roach88/rapidtrace/internal/event"
)

// Recorder is the capture API: it tags events with the caller's logical
// thread id and appends them to its Buffer.
type Recorder struct {
	buf *Buffer
	ids *Identities
}

// NewRecorder creates a recorder with its own buffer and identity table.
func NewRecorder() *Recorder {
	return &Recorder{
		buf: NewBuffer(),
		ids: NewIdentities(),
	}
}

var defaultRecorder = sync.OnceValue(NewRecorder)

// Default returns the process-wide recorder. It is created on first use and
// never torn down.
func Default() *Recorder {
	return defaultRecorder()
}

// Buffer returns the trace buffer the recorder appends to.
func (r *Recorder) Buffer() *Buffer { return r.buf }

// Identities returns the recorder's goroutine -> thread id table.
func (r *Recorder) Identities() *Identities { return r.ids }

// CurrentThread returns the calling goroutine's logical thread id.
func (r *Recorder) CurrentThread() uint64 { return r.ids.Current() }

func (r *Recorder) Read(addr, n uint64, loc event.Location) {
	r.buf.Append(event.Read(r.ids.Current(), addr, n, loc))
}

func (r *Recorder) Write(addr, n uint64, loc event.Location) {
	r.buf.Append(event.Write(r.ids.Current(), addr, n, loc))
}

func (r *Recorder) Acquire(lock uint64, loc event.Location) {
	r.buf.Append(event.Acquire(r.ids.Current(), lock, loc))
}

func (r *Recorder) Request(lock uint64, loc event.Location) {
	r.buf.Append(event.Request(r.ids.Current(), lock, loc))
}

func (r *Recorder) Release(lock uint64, loc event.Location) {
	r.buf.Append(event.Release(r.ids.Current(), lock, loc))
}

func (r *Recorder) Fork(child uint64, loc event.Location) {
	r.buf.Append(event.Fork(r.ids.Current(), child, loc))
}

func (r *Recorder) Join(child uint64, loc event.Location) {
	r.buf.Append(event.Join(r.ids.Current(), child, loc))
}

// Package-level entry points for instrumentation sites. They record into
// Default().

// Read records a read of n bytes at addr.
func Read(addr, n uint64, loc event.Location) { Default().Read(addr, n, loc) }

// Write records a write of n bytes at addr.
func Write(addr, n uint64, loc event.Location) { Default().Write(addr, n, loc) }

// Acquire records that lock was acquired.
func Acquire(lock uint64, loc event.Location) { Default().Acquire(lock, loc) }

// Request records that lock was requested and the caller may block.
func Request(lock uint64, loc event.Location) { Default().Request(lock, loc) }

// Release records that lock was released.
func Release(lock uint64, loc event.Location) { Default().Release(lock, loc) }

// Fork records that the caller spawned thread child.
func Fork(child uint64, loc event.Location) { Default().Fork(child, loc) }

// Join records that the caller joined thread child.
func Join(child uint64, loc event.Location) { Default().Join(child, loc) }
