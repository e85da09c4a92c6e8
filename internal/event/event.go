package event

import "fmt"

// Op identifies the kind of a captured operation.
//
// The numeric values are the op codes written into the binary trace.
// Code 8 (Request) is deliberately outside the contiguous 0-5 range.
type Op uint8

const (
	OpAcquire Op = 0
	OpRelease Op = 1
	OpRead    Op = 2
	OpWrite   Op = 3
	OpFork    Op = 4
	OpJoin    Op = 5
	OpRequest Op = 8
)

// Ops lists every valid op in op-code order.
var Ops = []Op{OpAcquire, OpRelease, OpRead, OpWrite, OpFork, OpJoin, OpRequest}

// Valid reports whether o is one of the defined op codes.
func (o Op) Valid() bool {
	switch o {
	case OpAcquire, OpRelease, OpRead, OpWrite, OpFork, OpJoin, OpRequest:
		return true
	}
	return false
}

// String returns the short mnemonic used in text traces.
func (o Op) String() string {
	switch o {
	case OpAcquire:
		return "acq"
	case OpRelease:
		return "rel"
	case OpRead:
		return "r"
	case OpWrite:
		return "w"
	case OpFork:
		return "fork"
	case OpJoin:
		return "join"
	case OpRequest:
		return "req"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// ParseOp maps a mnemonic ("acq", "w", "fork", ...) back to its Op.
func ParseOp(s string) (Op, error) {
	for _, o := range Ops {
		if o.String() == s {
			return o, nil
		}
	}
	return 0, fmt.Errorf("unknown op %q", s)
}

// IsMemory reports whether the op carries a memory region.
func (o Op) IsMemory() bool { return o == OpRead || o == OpWrite }

// IsLock reports whether the op carries a lock id.
func (o Op) IsLock() bool { return o == OpAcquire || o == OpRequest || o == OpRelease }

// IsThread reports whether the op carries a child thread id.
func (o Op) IsThread() bool { return o == OpFork || o == OpJoin }

// Location is a program point: the function index and the instruction index
// within that function.
type Location struct {
	Func  uint64 `json:"func" yaml:"func"`
	Instr uint64 `json:"instr" yaml:"instr"`
}

// At is shorthand for Location{Func: fn, Instr: instr}.
func At(fn, instr uint64) Location {
	return Location{Func: fn, Instr: instr}
}

// String formats the location as "fn:instr".
func (l Location) String() string {
	return fmt.Sprintf("%d:%d", l.Func, l.Instr)
}

// Region is a contiguous memory range touched by a read or write.
type Region struct {
	Addr uint64 `json:"addr" yaml:"addr"`
	Len  uint64 `json:"len" yaml:"len"`
}

// Event is one captured operation. Events are plain values; once appended to
// a trace they are never modified.
//
// Only the operand matching Op is meaningful: Region for Read/Write, Lock for
// Acquire/Request/Release, Target for Fork/Join. Use the constructors to build
// events so the other operands stay zero.
type Event struct {
	Thread uint64
	Op     Op
	Region Region
	Lock   uint64
	Target uint64
	Loc    Location
}

// Read builds a read of [addr, addr+n) by thread t.
func Read(t, addr, n uint64, loc Location) Event {
	return Event{Thread: t, Op: OpRead, Region: Region{Addr: addr, Len: n}, Loc: loc}
}

// Write builds a write of [addr, addr+n) by thread t.
func Write(t, addr, n uint64, loc Location) Event {
	return Event{Thread: t, Op: OpWrite, Region: Region{Addr: addr, Len: n}, Loc: loc}
}

// Acquire builds a completed lock acquisition.
func Acquire(t, lock uint64, loc Location) Event {
	return Event{Thread: t, Op: OpAcquire, Lock: lock, Loc: loc}
}

// Request builds a lock request, recorded before the thread blocks.
func Request(t, lock uint64, loc Location) Event {
	return Event{Thread: t, Op: OpRequest, Lock: lock, Loc: loc}
}

// Release builds a completed lock release.
func Release(t, lock uint64, loc Location) Event {
	return Event{Thread: t, Op: OpRelease, Lock: lock, Loc: loc}
}

// Fork builds the spawn of child by thread t.
func Fork(t, child uint64, loc Location) Event {
	return Event{Thread: t, Op: OpFork, Target: child, Loc: loc}
}

// Join builds the join of child by thread t.
func Join(t, child uint64, loc Location) Event {
	return Event{Thread: t, Op: OpJoin, Target: child, Loc: loc}
}

// String renders the event with its raw (uninterned) operands, for logs and
// test failures. The canonical trace text lives in package rapidbin.
func (e Event) String() string {
	var operand string
	switch {
	case e.Op.IsMemory():
		operand = fmt.Sprintf("%#x+%d", e.Region.Addr, e.Region.Len)
	case e.Op.IsLock():
		operand = fmt.Sprintf("L%d", e.Lock)
	case e.Op.IsThread():
		operand = fmt.Sprintf("T%d", e.Target)
	}
	return fmt.Sprintf("T%d %s(%s) @%s", e.Thread, e.Op, operand, e.Loc)
}
