// Package scenario runs declarative multi-worker workloads through the
// tracing stack and checks the resulting trace.
//
// # Scenario Format
//
// Scenarios are YAML or CUE files with the following structure:
//
//	name: counter
//	description: "Two workers increment a shared counter under a lock"
//	mode: sequential        # or concurrent
//	workers:
//	  - name: inc-a
//	    steps:
//	      - { op: lock, lock: m }
//	      - { op: read, addr: 16, len: 8 }
//	      - { op: write, addr: 16, len: 8 }
//	      - { op: unlock, lock: m }
//	main:                   # steps the main thread runs after the workers
//	  - { op: lock, lock: m }
//	  - { op: unlock, lock: m }
//	assertions:
//	  - type: trace_contains
//	    line: "T1|acq(L0)|1"
//	  - type: event_count
//	    op: acq
//	    count: 3
//
// CUE files are unified with an embedded #Scenario schema before decoding,
// so type and enum errors carry file positions.
//
// # Execution
//
// Each worker is spawned through the thread harness and each named lock is an
// instrumented mutex. A run uses its own recorder and registry, so runs never
// share thread ids or events.
//
// Locations are synthetic: the main thread is function 0 and worker i is
// function i+1. The main thread numbers its forks, joins and steps in order;
// a worker step's instruction index is its position in the step list.
//
// In sequential mode every worker is joined before the next is spawned and
// the text trace is fully deterministic. Concurrent mode spawns every worker
// before joining any; only order-independent assertions are meaningful there.
//
// # Assertion Types
//
//   - trace_contains: a text line appears in the trace
//   - trace_order: text lines appear in the given relative order
//   - event_count: the number of events with an op (optionally on one thread)
//   - lock_bracketing: every acquire follows a request, every release follows
//     an acquire, by the same thread on the same lock
package scenario
