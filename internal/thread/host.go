package thread

import (
	"fmt"
	"sync"
)

// Bootstrap is everything a worker receives when it starts: the id of its
// work and the registry holding it.
type Bootstrap struct {
	WorkID   uint32
	Registry *Registry
}

// Worker is a started execution context.
type Worker interface {
	// Terminate stops the worker once its work is done. It is idempotent.
	Terminate() error
}

// Host starts workers. Implementations must eventually call Entrypoint with
// the given Bootstrap on the new worker.
type Host interface {
	Start(b Bootstrap) (Worker, error)
}

// ProtocolError reports a worker started with a work id that is not pending.
// It is raised as a panic: the spawner and worker disagree about the
// registry, and nothing on the worker side can recover from that.
type ProtocolError struct {
	WorkID uint32
	Reason string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("worker protocol: work id %d: %s", e.WorkID, e.Reason)
}

// Entrypoint takes the work for b and runs it on the calling goroutine.
// It panics with *ProtocolError if the work id is unknown.
func Entrypoint(b Bootstrap) {
	if b.Registry == nil {
		panic(&ProtocolError{WorkID: b.WorkID, Reason: "no registry"})
	}
	work, ok := b.Registry.Take(b.WorkID)
	if !ok {
		panic(&ProtocolError{WorkID: b.WorkID, Reason: "not registered"})
	}
	work()
}

// Worker inbox messages.
type (
	initMsg  struct{ boot Bootstrap }
	closeMsg struct{}
)

// GoroutineHost runs each worker on its own goroutine, driven by an inbox
// that accepts an init message (run the work) and a close message (exit).
type GoroutineHost struct{}

// Start launches a worker goroutine and posts its init message.
func (GoroutineHost) Start(b Bootstrap) (Worker, error) {
	w := &GoroutineWorker{
		inbox: make(chan any, 2),
		done:  make(chan struct{}),
	}
	go w.loop()
	w.inbox <- initMsg{boot: b}
	return w, nil
}

// GoroutineWorker is a worker started by GoroutineHost.
type GoroutineWorker struct {
	inbox chan any
	done  chan struct{}
	once  sync.Once
}

func (w *GoroutineWorker) loop() {
	defer close(w.done)
	for msg := range w.inbox {
		switch m := msg.(type) {
		case initMsg:
			Entrypoint(m.boot)
		case closeMsg:
			return
		}
	}
}

// Terminate posts the close message. The worker exits after finishing any
// work it is running.
func (w *GoroutineWorker) Terminate() error {
	w.once.Do(func() { w.inbox <- closeMsg{} })
	return nil
}

// Done is closed when the worker goroutine has exited.
func (w *GoroutineWorker) Done() <-chan struct{} {
	return w.done
}
