package scenario

import (
	"fmt"
	"strings"

	"github.com/roach88/rapidtrace/internal/event"
	"github.com/roach88/rapidtrace/internal/rapidbin"
)

// AssertionError is returned when an assertion fails.
// It includes the full text trace to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Lines    []string // Full text trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, line := range e.Lines {
		fmt.Fprintf(&buf, "  [%d] %s\n", i, line)
	}

	return buf.String()
}

// evaluate dispatches one assertion.
func evaluate(tr *rapidbin.Trace, lines []string, a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(lines, a)
	case AssertTraceOrder:
		return assertTraceOrder(lines, a)
	case AssertEventCount:
		return assertEventCount(tr, lines, a)
	case AssertLockBracketing:
		return assertLockBracketing(tr, lines)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertTraceContains checks that the trace has the exact line.
func assertTraceContains(lines []string, a Assertion) error {
	for _, line := range lines {
		if line == a.Line {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("line %q", a.Line),
		Actual:   "not found in trace",
		Lines:    lines,
	}
}

// assertTraceOrder checks that the lines occur as a subsequence of the trace.
// Intervening lines are allowed.
func assertTraceOrder(lines []string, a Assertion) error {
	next := 0
	for _, line := range lines {
		if line == a.Lines[next] {
			next++
			if next == len(a.Lines) {
				return nil
			}
		}
	}

	actual := fmt.Sprintf("missing %q", a.Lines[next])
	if next > 0 {
		actual = fmt.Sprintf("matched %d of %d; no %q after %q",
			next, len(a.Lines), a.Lines[next], a.Lines[next-1])
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("lines in order: %q", a.Lines),
		Actual:   actual,
		Lines:    lines,
	}
}

// assertEventCount checks the number of events with the op, optionally on a
// single thread.
func assertEventCount(tr *rapidbin.Trace, lines []string, a Assertion) error {
	op, err := event.ParseOp(a.Op)
	if err != nil {
		return err
	}

	count := 0
	for _, r := range tr.Records {
		if r.Op != op {
			continue
		}
		if a.Thread != nil && r.Thread != *a.Thread {
			continue
		}
		count++
	}

	if count != a.Count {
		scope := "trace"
		if a.Thread != nil {
			scope = fmt.Sprintf("T%d", *a.Thread)
		}
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d %s events in %s", a.Count, op, scope),
			Actual:   fmt.Sprintf("%d events", count),
			Lines:    lines,
		}
	}
	return nil
}

type threadLock struct {
	thread uint16
	lock   uint64
}

// assertLockBracketing checks the per-thread lock protocol: request, then
// acquire, then release, on the same lock.
func assertLockBracketing(tr *rapidbin.Trace, lines []string) error {
	const (
		idle = iota
		requested
		held
	)
	state := make(map[threadLock]int)

	fail := func(i int, msg string) error {
		return &AssertionError{
			Type:     AssertLockBracketing,
			Expected: "request, acquire, release per thread and lock",
			Actual:   fmt.Sprintf("event %d (%s): %s", i, lines[i], msg),
			Lines:    lines,
		}
	}

	for i, r := range tr.Records {
		if !r.Op.IsLock() {
			continue
		}
		key := threadLock{thread: r.Thread, lock: r.Decoration}
		switch r.Op {
		case event.OpRequest:
			if state[key] != idle {
				return fail(i, "request while already requesting or holding")
			}
			state[key] = requested
		case event.OpAcquire:
			if state[key] != requested {
				return fail(i, "acquire without a preceding request")
			}
			state[key] = held
		case event.OpRelease:
			if state[key] != held {
				return fail(i, "release of a lock not held")
			}
			state[key] = idle
		}
	}

	for key, st := range state {
		if st != idle {
			return &AssertionError{
				Type:     AssertLockBracketing,
				Expected: "every lock released by the end",
				Actual:   fmt.Sprintf("T%d still has L%d outstanding", key.thread, key.lock),
				Lines:    lines,
			}
		}
	}
	return nil
}
