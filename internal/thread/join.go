package thread

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/roach88/rapidtrace/internal/capture"
	"github.com/roach88/rapidtrace/internal/event"
)

// ErrAlreadyJoined is returned by a second Join on the same handle.
var ErrAlreadyJoined = errors.New("thread already joined")

// State is the lifecycle of a JoinHandle.
type State uint32

const (
	// StateRunning means the work has not completed.
	StateRunning State = iota
	// StateFinished means the outcome is published and waiting to be joined.
	StateFinished
	// StateJoined means the outcome was handed to a joiner.
	StateJoined
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	case StateJoined:
		return "joined"
	default:
		return fmt.Sprintf("state(%d)", uint32(s))
	}
}

// PanicError is the failure outcome of work that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("worker panicked: %v", e.Value)
}

// Unwrap returns the panic value if it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Harness spawns traced workers.
//
// It ties together the host that starts workers, the registry that carries
// work across the boundary, and the recorder that receives Fork and Join
// events. Scenario runs build an isolated Harness; instrumented programs use
// Default.
type Harness struct {
	host     Host
	registry *Registry
	recorder *capture.Recorder
	logger   *zap.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithHost sets the worker host. Defaults to GoroutineHost.
func WithHost(host Host) Option {
	return func(h *Harness) { h.host = host }
}

// WithRegistry sets the work registry. Defaults to DefaultRegistry().
func WithRegistry(r *Registry) Option {
	return func(h *Harness) { h.registry = r }
}

// WithRecorder sets the recorder for Fork and Join events and for thread
// identities. Defaults to capture.Default().
func WithRecorder(r *capture.Recorder) Option {
	return func(h *Harness) { h.recorder = r }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// New creates a Harness.
func New(opts ...Option) *Harness {
	h := &Harness{}
	for _, opt := range opts {
		opt(h)
	}
	if h.host == nil {
		h.host = GoroutineHost{}
	}
	if h.registry == nil {
		h.registry = DefaultRegistry()
	}
	if h.recorder == nil {
		h.recorder = capture.Default()
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	return h
}

var defaultHarness = sync.OnceValue(func() *Harness { return New() })

// Default returns the process-wide harness over the default registry and
// recorder.
func Default() *Harness {
	return defaultHarness()
}

// Recorder returns the recorder the harness traces into.
func (h *Harness) Recorder() *capture.Recorder { return h.recorder }

// JoinHandle is the spawner's handle on a running worker.
//
// The worker writes value and err, then stores StateFinished. Join observes
// StateFinished with an atomic load before reading them.
type JoinHandle[T any] struct {
	h      *Harness
	child  uint64
	worker Worker

	state atomic.Uint32
	value T
	err   error
}

// Spawn runs fn on a new worker and returns its handle.
func Spawn[T any](h *Harness, fn func() (T, error)) (*JoinHandle[T], error) {
	return SpawnAt(h, event.Location{}, fn)
}

// SpawnAt is Spawn with the program location recorded on the Fork event.
//
// The child's thread id is allocated here and the Fork event is recorded
// before the worker starts, so the Fork precedes every event of the child.
func SpawnAt[T any](h *Harness, loc event.Location, fn func() (T, error)) (*JoinHandle[T], error) {
	parent := h.recorder.CurrentThread()
	child := h.recorder.Identities().Allocate()

	jh := &JoinHandle[T]{h: h, child: child}
	id := h.registry.Insert(func() { jh.run(fn) })

	h.recorder.Fork(child, loc)
	w, err := h.host.Start(Bootstrap{WorkID: id, Registry: h.registry})
	if err != nil {
		h.registry.Take(id)
		return nil, fmt.Errorf("start worker for T%d: %w", child, err)
	}
	jh.worker = w

	h.logger.Debug("spawned worker",
		zap.Uint64("parent", parent),
		zap.Uint64("child", child),
		zap.Uint32("work_id", id),
	)
	return jh, nil
}

// run executes on the worker.
func (jh *JoinHandle[T]) run(fn func() (T, error)) {
	ids := jh.h.recorder.Identities()
	if err := ids.Bind(jh.child); err != nil {
		jh.publish(*new(T), err)
		return
	}

	value, err := invoke(fn)
	ids.Unbind()
	jh.publish(value, err)
}

func (jh *JoinHandle[T]) publish(value T, err error) {
	jh.value = value
	jh.err = err
	jh.state.Store(uint32(StateFinished))
}

func invoke[T any](fn func() (T, error)) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// Child returns the worker's logical thread id.
func (jh *JoinHandle[T]) Child() uint64 { return jh.child }

// State returns the current lifecycle state.
func (jh *JoinHandle[T]) State() State { return State(jh.state.Load()) }

// Worker returns the worker the host started.
func (jh *JoinHandle[T]) Worker() Worker { return jh.worker }

// Join waits for the worker and returns its outcome.
func (jh *JoinHandle[T]) Join() (T, error) {
	return jh.JoinAt(event.Location{})
}

// JoinAt is Join with the program location recorded on the Join event.
//
// Join spins with runtime.Gosched until the worker finishes; there is no
// timeout. The first Join terminates the worker and records the Join event.
// Later calls return ErrAlreadyJoined.
func (jh *JoinHandle[T]) JoinAt(loc event.Location) (T, error) {
	if !jh.await() {
		var zero T
		return zero, ErrAlreadyJoined
	}

	if err := jh.worker.Terminate(); err != nil {
		jh.h.logger.Warn("terminate worker", zap.Uint64("child", jh.child), zap.Error(err))
	}
	jh.h.recorder.Join(jh.child, loc)

	jh.h.logger.Debug("joined worker",
		zap.Uint64("child", jh.child),
		zap.Bool("failed", jh.err != nil),
	)
	return jh.value, jh.err
}

// await moves the handle from Finished to Joined. It returns false if the
// handle was already joined.
func (jh *JoinHandle[T]) await() bool {
	for {
		switch State(jh.state.Load()) {
		case StateJoined:
			return false
		case StateFinished:
			if jh.state.CompareAndSwap(uint32(StateFinished), uint32(StateJoined)) {
				return true
			}
			continue
		}
		runtime.Gosched()
	}
}
