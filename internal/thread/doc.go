// Package thread spawns and joins traced workers.
//
// A spawn crosses an execution-context boundary: the spawner cannot hand a
// closure to the worker directly, so it parks the closure in a Registry under
// a small integer id and starts the worker with only that id (a Bootstrap).
// The worker's entrypoint takes the closure back out of the registry and runs
// it. GoroutineHost models the worker as a goroutine with a message inbox,
// the same shape as a browser web worker.
//
// Every spawn records a Fork event naming the child's thread id before the
// child starts, and every successful Join records a Join event for it. The
// child binds its preallocated id on entry so its own events carry it.
//
// Completion is published through the JoinHandle state word with an atomic
// store; Join busy-polls it with atomic loads. That release/acquire pair is
// the only ordering edge between a worker and its joiner.
package thread
