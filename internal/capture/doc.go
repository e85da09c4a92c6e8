// Package capture records events from instrumented code into a trace buffer.
//
// The Recorder exposes the seven capture entry points (Read, Write, Acquire,
// Request, Release, Fork, Join). Each call resolves the logical thread id of
// the calling goroutine and appends exactly one event to the Recorder's
// Buffer. Events are never dropped.
//
// # Process-wide recorder
//
// Default returns the process-wide Recorder, created on first use and kept
// for the lifetime of the process. The package-level functions record into
// it. Tests and scenario runs create isolated Recorders with NewRecorder.
//
// # Thread identity
//
// Logical thread ids are small integers handed out in increasing order on
// first demand. The initial goroutine gets its id lazily the first time it
// records an event. Spawned workers receive a preallocated id from their
// spawner (so the Fork event can name the child) and Bind it on entry.
//
// # Extraction
//
// The buffer is read only through Snapshot or Drain. Both take the buffer
// lock, so the returned slice is a consistent prefix of the trace. Taking a
// snapshot while workers are still recording is allowed but races with them:
// events appended after the snapshot are not in it.
package capture
