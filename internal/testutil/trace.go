package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/rapidtrace/internal/event"
	"github.com/roach88/rapidtrace/internal/rapidbin"
)

// LockedWrite is a two-thread trace: main forks T9, both take lock 55 around
// a write to the same region, and main joins T9.
//
// Its text form is:
//
//	T0|fork(T1)|0
//	T1|req(L0)|1
//	T1|acq(L0)|2
//	T1|w(V0)|3
//	T1|rel(L0)|4
//	T0|join(T1)|5
//	T0|req(L0)|6
//	T0|acq(L0)|7
//	T0|w(V0)|8
//	T0|rel(L0)|9
func LockedWrite() []event.Event {
	return []event.Event{
		event.Fork(0, 9, event.At(0, 1)),
		event.Request(9, 55, event.At(1, 0)),
		event.Acquire(9, 55, event.At(1, 1)),
		event.Write(9, 0x1000, 8, event.At(1, 2)),
		event.Release(9, 55, event.At(1, 3)),
		event.Join(0, 9, event.At(0, 2)),
		event.Request(0, 55, event.At(0, 3)),
		event.Acquire(0, 55, event.At(0, 4)),
		event.Write(0, 0x1000, 8, event.At(0, 5)),
		event.Release(0, 55, event.At(0, 6)),
	}
}

// Encode encodes events and fails the test on error.
func Encode(t testing.TB, events []event.Event) []byte {
	t.Helper()
	data, err := rapidbin.Encode(events)
	require.NoError(t, err)
	return data
}
