package scenario

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/rapidtrace/internal/capture"
	"github.com/roach88/rapidtrace/internal/event"
	"github.com/roach88/rapidtrace/internal/mutex"
	"github.com/roach88/rapidtrace/internal/rapidbin"
	"github.com/roach88/rapidtrace/internal/thread"
)

// Result is the outcome of a scenario run.
type Result struct {
	// Name is the scenario name.
	Name string `json:"name"`

	// Pass is true if the run completed and every assertion held.
	Pass bool `json:"pass"`

	// Header holds the counts of the encoded trace.
	Header rapidbin.Header `json:"header"`

	// Lines is the text form of the decoded trace.
	Lines []string `json:"lines"`

	// Errors contains worker failures and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// Binary is the encoded trace.
	Binary []byte `json:"-"`

	// Trace is the decoded trace the assertions ran against.
	Trace *rapidbin.Trace `json:"-"`
}

// NewResult creates a new passing result.
func NewResult(name string) *Result {
	return &Result{
		Name:   name,
		Pass:   true,
		Lines:  []string{},
		Errors: []string{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// RunOption configures Run.
type RunOption func(*runner)

// WithLogger sets the logger used for the run, its harness and its locks.
func WithLogger(l *zap.Logger) RunOption {
	return func(r *runner) { r.logger = l }
}

type runner struct {
	scenario *Scenario
	logger   *zap.Logger
	recorder *capture.Recorder
	harness  *thread.Harness
	locks    map[string]*mutex.Mutex

	mainInstr uint64
}

// Run executes a scenario and returns the result.
//
// Each run uses a fresh recorder, registry and goroutine host. The calling
// goroutine is the main thread (T0 in the encoded trace).
//
// Execution flow:
//  1. Spawn the workers, joining each before the next (sequential) or all
//     at the end (concurrent)
//  2. Run the main steps
//  3. Encode and decode the captured trace
//  4. Evaluate assertions against the decoded trace
//
// An error is returned only if the scenario is invalid or the trace cannot be
// encoded or decoded. Worker failures and assertion failures are reported in
// the Result.
func Run(s *Scenario, opts ...RunOption) (*Result, error) {
	if err := validateScenario(s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	r := &runner{scenario: s}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	r.logger = r.logger.With(zap.String("scenario", s.Name))

	r.recorder = capture.NewRecorder()
	r.harness = thread.New(
		thread.WithRecorder(r.recorder),
		thread.WithRegistry(thread.NewRegistry()),
		thread.WithHost(thread.GoroutineHost{}),
		thread.WithLogger(r.logger),
	)

	hooks := mutex.NewTraceHooks(r.recorder, r.logger)
	r.locks = make(map[string]*mutex.Mutex)
	for _, name := range lockNames(s) {
		r.locks[name] = mutex.New(hooks)
	}

	result := NewResult(s.Name)
	r.execute(result)

	events := r.recorder.Buffer().Drain()
	data, err := rapidbin.Encode(events)
	if err != nil {
		return nil, fmt.Errorf("encode trace: %w", err)
	}
	tr, err := rapidbin.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode trace: %w", err)
	}

	result.Binary = data
	result.Trace = tr
	result.Header = tr.Header
	result.Lines = tr.Lines()

	for i, a := range s.Assertions {
		if err := evaluate(tr, result.Lines, a); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}

	r.logger.Debug("scenario finished",
		zap.Bool("pass", result.Pass),
		zap.Uint64("events", tr.Header.Events),
	)
	return result, nil
}

// execute spawns and joins the workers, then runs the main steps.
func (r *runner) execute(result *Result) {
	type spawned struct {
		name   string
		handle *thread.JoinHandle[struct{}]
	}

	join := func(sp spawned) {
		if _, err := sp.handle.JoinAt(r.nextMainLoc()); err != nil {
			result.AddError(fmt.Sprintf("worker %s: %v", sp.name, err))
		}
	}

	var pending []spawned
	for i, w := range r.scenario.Workers {
		fn := i + 1
		steps := w.Steps
		h, err := thread.SpawnAt(r.harness, r.nextMainLoc(), func() (struct{}, error) {
			r.runSteps(uint64(fn), steps)
			return struct{}{}, nil
		})
		if err != nil {
			result.AddError(fmt.Sprintf("worker %s: %v", w.Name, err))
			continue
		}

		sp := spawned{name: w.Name, handle: h}
		if r.scenario.Mode == ModeConcurrent {
			pending = append(pending, sp)
			continue
		}
		join(sp)
	}
	for _, sp := range pending {
		join(sp)
	}

	r.runMain(r.scenario.Main)
}

// runSteps executes worker steps. Instruction i is step i.
func (r *runner) runSteps(fn uint64, steps []Step) {
	for i, st := range steps {
		r.step(st, event.At(fn, uint64(i)))
	}
}

// runMain executes main-thread steps on the shared main instruction counter.
func (r *runner) runMain(steps []Step) {
	for _, st := range steps {
		r.step(st, r.nextMainLoc())
	}
}

func (r *runner) step(st Step, loc event.Location) {
	switch st.Op {
	case StepLock:
		r.locks[st.Lock].LockAt(loc)
	case StepUnlock:
		r.locks[st.Lock].UnlockAt(loc)
	case StepRead:
		r.recorder.Read(st.Addr, st.Len, loc)
	case StepWrite:
		r.recorder.Write(st.Addr, st.Len, loc)
	}
}

// nextMainLoc is only called from the main goroutine.
func (r *runner) nextMainLoc() event.Location {
	loc := event.At(0, r.mainInstr)
	r.mainInstr++
	return loc
}

// lockNames lists every lock a scenario references.
func lockNames(s *Scenario) []string {
	var names []string
	seen := make(map[string]bool)
	add := func(steps []Step) {
		for _, st := range steps {
			if st.Lock != "" && !seen[st.Lock] {
				seen[st.Lock] = true
				names = append(names, st.Lock)
			}
		}
	}
	for _, w := range s.Workers {
		add(w.Steps)
	}
	add(s.Main)
	return names
}
