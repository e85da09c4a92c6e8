package rapidbin

import (
	"bytes"
	"encoding/binary"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rapidtrace/internal/event"
)

// sampleTrace exercises every op, shared regions, and a fork/join target that
// later executes events itself.
func sampleTrace() []event.Event {
	return []event.Event{
		event.Write(7, 100, 2, event.At(10, 75)),
		event.Request(7, 55, event.At(10, 76)),
		event.Acquire(7, 55, event.At(10, 77)),
		event.Fork(7, 9, event.At(10, 78)),
		event.Read(9, 100, 2, event.At(11, 0)),
		event.Write(9, 200, 4, event.At(11, 1)),
		event.Release(7, 55, event.At(10, 79)),
		event.Join(7, 9, event.At(10, 80)),
		event.Write(7, 100, 2, event.At(10, 75)),
	}
}

func TestEncode_ConcreteWord(t *testing.T) {
	enc := NewEncoder()
	require.NoError(t, enc.Push(event.Write(1, 100, 2, event.At(10, 75))))

	data, err := enc.Build()
	require.NoError(t, err)
	require.Len(t, data, HeaderSize+WordSize)

	word := binary.BigEndian.Uint64(data[HeaderSize:])
	assert.Equal(t, uint64(0<<0|3<<10|0<<14|0<<48), word)
	assert.Equal(t, uint64(3072), word)

	rec := Unpack(3072)
	assert.Equal(t, Record{Thread: 0, Op: event.OpWrite, Decoration: 0, Location: 0}, rec)
}

func TestEncode_HeaderBytes(t *testing.T) {
	data, err := Encode([]event.Event{event.Write(1, 100, 2, event.At(10, 75))})
	require.NoError(t, err)

	want := []byte{
		0x00, 0x01, // threads
		0x00, 0x00, 0x00, 0x00, // locks
		0x00, 0x00, 0x00, 0x01, // regions
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, // events
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x0C, 0x00, // 3072
	}
	assert.Equal(t, want, data)
}

func TestRoundTrip(t *testing.T) {
	data, err := Encode(sampleTrace())
	require.NoError(t, err)

	tr, err := Decode(data)
	require.NoError(t, err)

	want := []Record{
		{Thread: 0, Op: event.OpWrite, Decoration: 0, Location: 0},
		{Thread: 0, Op: event.OpRequest, Decoration: 0, Location: 1},
		{Thread: 0, Op: event.OpAcquire, Decoration: 0, Location: 2},
		{Thread: 0, Op: event.OpFork, Decoration: 1, Location: 3},
		{Thread: 1, Op: event.OpRead, Decoration: 0, Location: 4},
		{Thread: 1, Op: event.OpWrite, Decoration: 1, Location: 5},
		{Thread: 0, Op: event.OpRelease, Decoration: 0, Location: 6},
		{Thread: 0, Op: event.OpJoin, Decoration: 1, Location: 7},
		{Thread: 0, Op: event.OpWrite, Decoration: 0, Location: 0},
	}
	if diff := cmp.Diff(want, tr.Records); diff != "" {
		t.Errorf("decoded records mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTrip_HeaderAccuracy(t *testing.T) {
	data, err := Encode(sampleTrace())
	require.NoError(t, err)

	tr, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, Header{Threads: 2, Locks: 1, Regions: 2, Events: 9}, tr.Header)
}

func TestEncode_Deterministic(t *testing.T) {
	first, err := Encode(sampleTrace())
	require.NoError(t, err)
	second, err := Encode(sampleTrace())
	require.NoError(t, err)

	assert.True(t, bytes.Equal(first, second))
}

func TestRoundTrip_Random(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	events := make([]event.Event, 0, 2000)
	for i := 0; i < cap(events); i++ {
		tid := rng.Uint64N(40)
		loc := event.At(rng.Uint64N(20), rng.Uint64N(100))
		switch rng.IntN(7) {
		case 0:
			events = append(events, event.Read(tid, rng.Uint64N(500)*8, 8, loc))
		case 1:
			events = append(events, event.Write(tid, rng.Uint64N(500)*8, 8, loc))
		case 2:
			events = append(events, event.Acquire(tid, rng.Uint64N(30), loc))
		case 3:
			events = append(events, event.Request(tid, rng.Uint64N(30), loc))
		case 4:
			events = append(events, event.Release(tid, rng.Uint64N(30), loc))
		case 5:
			events = append(events, event.Fork(tid, rng.Uint64N(40), loc))
		default:
			events = append(events, event.Join(tid, rng.Uint64N(40), loc))
		}
	}

	data, err := Encode(events)
	require.NoError(t, err)
	tr, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, tr.Records, len(events))

	// Re-derive the expected slots with an independent first-seen numbering.
	threads := map[uint64]uint64{}
	locs := map[event.Location]uint64{}
	regions := map[event.Region]uint64{}
	locks := map[uint64]uint64{}
	slot := func(m map[uint64]uint64, k uint64) uint64 {
		if v, ok := m[k]; ok {
			return v
		}
		m[k] = uint64(len(m))
		return m[k]
	}

	for i, e := range events {
		thread := slot(threads, e.Thread)
		if _, ok := locs[e.Loc]; !ok {
			locs[e.Loc] = uint64(len(locs))
		}
		var decoration uint64
		switch {
		case e.Op.IsMemory():
			if _, ok := regions[e.Region]; !ok {
				regions[e.Region] = uint64(len(regions))
			}
			decoration = regions[e.Region]
		case e.Op.IsLock():
			decoration = slot(locks, e.Lock)
		default:
			decoration = slot(threads, e.Target)
		}

		want := Record{Thread: uint16(thread), Op: e.Op, Decoration: decoration, Location: uint16(locs[e.Loc])}
		require.Equal(t, want, tr.Records[i], "event %d: %s", i, e)
	}

	assert.Equal(t, uint16(len(threads)), tr.Header.Threads)
	assert.Equal(t, uint32(len(locks)), tr.Header.Locks)
	assert.Equal(t, uint32(len(regions)), tr.Header.Regions)
	assert.Equal(t, uint64(len(events)), tr.Header.Events)
}

func TestPackUnpack_Bounds(t *testing.T) {
	cases := []Record{
		{},
		{Thread: MaxThreads - 1, Op: MaxOps - 1, Decoration: MaxDecorations - 1, Location: MaxLocations - 1},
		{Thread: 512, Op: 8, Decoration: 1 << 33, Location: 1 << 14},
		{Thread: 1, Op: 15, Decoration: 0, Location: 32767},
	}
	for _, rec := range cases {
		w, err := Pack(rec)
		require.NoError(t, err)
		assert.Zero(t, w>>63, "reserved bit stays clear")
		assert.Equal(t, rec, Unpack(w))
	}

	rng := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 10000; i++ {
		rec := Record{
			Thread:     uint16(rng.IntN(MaxThreads)),
			Op:         event.Op(rng.IntN(MaxOps)),
			Decoration: rng.Uint64N(MaxDecorations),
			Location:   uint16(rng.IntN(MaxLocations)),
		}
		w, err := Pack(rec)
		require.NoError(t, err)
		require.Equal(t, rec, Unpack(w))
	}
}

func TestPack_RejectsOversizedFields(t *testing.T) {
	tests := []struct {
		name  string
		rec   Record
		field string
	}{
		{"thread", Record{Thread: MaxThreads}, "thread"},
		{"op", Record{Op: MaxOps}, "op"},
		{"decoration", Record{Decoration: MaxDecorations}, "decoration"},
		{"location", Record{Location: MaxLocations}, "location"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Pack(tt.rec)
			require.Error(t, err)
			assert.True(t, IsOverflow(err))

			var fe *FormatError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestEncode_ThreadOverflowFailsLoudly(t *testing.T) {
	enc := NewEncoder()
	for tid := uint64(0); tid < MaxThreads; tid++ {
		require.NoError(t, enc.Push(event.Acquire(tid, 0, event.Location{})))
	}

	err := enc.Push(event.Acquire(MaxThreads, 0, event.Location{}))
	require.Error(t, err)
	assert.True(t, IsOverflow(err))
	assert.Contains(t, err.Error(), "event 1024")
	assert.Contains(t, err.Error(), "thread id 1024")

	// Sticky: the encoder cannot produce a trace any more.
	assert.ErrorIs(t, enc.Push(event.Acquire(0, 0, event.Location{})), err)
	_, err = enc.Build()
	assert.True(t, IsOverflow(err))
}

func TestEncode_ForkTargetsShareThreadDomain(t *testing.T) {
	enc := NewEncoder()
	require.NoError(t, enc.Push(event.Fork(0, 1, event.Location{})))
	for child := uint64(2); child < MaxThreads; child++ {
		require.NoError(t, enc.Push(event.Fork(0, child, event.Location{})))
	}
	assert.Equal(t, uint16(MaxThreads), enc.Header().Threads)

	err := enc.Push(event.Join(0, MaxThreads, event.Location{}))
	assert.True(t, IsOverflow(err))
}

func TestEncode_LocationOverflowFailsLoudly(t *testing.T) {
	enc := NewEncoder()
	for i := uint64(0); i < MaxLocations; i++ {
		require.NoError(t, enc.Push(event.Read(0, 0, 1, event.At(0, i))))
	}

	err := enc.Push(event.Read(0, 0, 1, event.At(1, 0)))
	require.Error(t, err)
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ErrCodeDomainOverflow, fe.Code)
	assert.Equal(t, "location", fe.Field)
	assert.Equal(t, uint64(MaxLocations), fe.Expected)
}

func TestEncode_RejectsInvalidOp(t *testing.T) {
	_, err := Encode([]event.Event{{Op: event.Op(6)}})
	assert.True(t, IsUnknownOp(err))
}

func TestEncoder_SingleUse(t *testing.T) {
	enc := NewEncoder()
	require.NoError(t, enc.Push(event.Acquire(0, 0, event.Location{})))
	_, err := enc.Build()
	require.NoError(t, err)

	assert.ErrorIs(t, enc.Push(event.Release(0, 0, event.Location{})), ErrEncoderClosed)
	_, err = enc.Build()
	assert.ErrorIs(t, err, ErrEncoderClosed)
}

func TestEncode_Empty(t *testing.T) {
	data, err := Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, HeaderSize), data)

	tr, err := Decode(data)
	require.NoError(t, err)
	assert.Empty(t, tr.Records)
	assert.Equal(t, Header{}, tr.Header)
}

func TestDecode_TruncatedHeader(t *testing.T) {
	_, err := Decode([]byte{0x00, 0x01, 0x00})
	require.Error(t, err)
	assert.True(t, IsTruncated(err))

	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "header", fe.Field)
	assert.Equal(t, uint64(HeaderSize), fe.Expected)
	assert.Equal(t, uint64(3), fe.Actual)
	assert.Contains(t, err.Error(), "expected at least 18 bytes, got 3")
}

func TestDecode_TruncatedEvents(t *testing.T) {
	data, err := Encode(sampleTrace())
	require.NoError(t, err)

	// Drop the last word and half of the one before it.
	short := data[:len(data)-12]
	tr, err := Decode(short)
	require.Error(t, err)
	assert.Nil(t, tr, "no partial result")

	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ErrCodeTruncated, fe.Code)
	assert.Equal(t, int64(7), fe.Index)
	assert.Equal(t, uint64(len(data)), fe.Expected)
	assert.Equal(t, uint64(len(short)), fe.Actual)
}

func TestDecode_HugeEventCount(t *testing.T) {
	h := Header{Threads: 1, Events: eventCountMask}
	data := h.appendTo(nil)

	_, err := Decode(data)
	require.Error(t, err)
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ^uint64(0), fe.Expected, "expected size saturates")
	assert.Equal(t, uint64(HeaderSize), fe.Actual)
}

func TestDecode_UnknownOp(t *testing.T) {
	data := Header{Threads: 1, Events: 2}.appendTo(nil)
	data = binary.BigEndian.AppendUint64(data, 3072)  // valid write
	data = binary.BigEndian.AppendUint64(data, 7<<10) // op 7

	_, err := Decode(data)
	require.Error(t, err)
	assert.True(t, IsUnknownOp(err))
	assert.Contains(t, err.Error(), "event 1: op code 7")
}

func TestDecode_MasksReservedHeaderBits(t *testing.T) {
	var data []byte
	data = binary.BigEndian.AppendUint16(data, 0x8001)
	data = binary.BigEndian.AppendUint32(data, 0x80000002)
	data = binary.BigEndian.AppendUint32(data, 0x80000003)
	data = binary.BigEndian.AppendUint64(data, 0x8000000000000001)
	data = binary.BigEndian.AppendUint64(data, 3072)

	tr, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, Header{Threads: 1, Locks: 2, Regions: 3, Events: 1}, tr.Header)
	assert.Len(t, tr.Records, 1)
}

func TestDecode_IgnoresTrailingBytes(t *testing.T) {
	data, err := Encode(sampleTrace())
	require.NoError(t, err)

	tr, err := Decode(append(data, 0xFF, 0xFF, 0xFF))
	require.NoError(t, err)
	assert.Len(t, tr.Records, 9)
}

func TestReader_Streaming(t *testing.T) {
	data, err := Encode(sampleTrace())
	require.NoError(t, err)

	rd := NewReader(bytes.NewReader(data))
	tr, err := rd.ReadTrace()
	require.NoError(t, err)
	assert.Equal(t, uint64(9), tr.Header.Events)
}

func TestText_OpTable(t *testing.T) {
	tests := []struct {
		rec  Record
		want string
	}{
		{Record{Thread: 0, Op: event.OpRead, Decoration: 4, Location: 1}, "T0|r(V4)|1"},
		{Record{Thread: 1, Op: event.OpWrite, Decoration: 0, Location: 0}, "T1|w(V0)|0"},
		{Record{Thread: 2, Op: event.OpAcquire, Decoration: 3, Location: 9}, "T2|acq(L3)|9"},
		{Record{Thread: 2, Op: event.OpRequest, Decoration: 3, Location: 8}, "T2|req(L3)|8"},
		{Record{Thread: 2, Op: event.OpRelease, Decoration: 3, Location: 10}, "T2|rel(L3)|10"},
		{Record{Thread: 0, Op: event.OpFork, Decoration: 5, Location: 2}, "T0|fork(T5)|2"},
		{Record{Thread: 0, Op: event.OpJoin, Decoration: 5, Location: 3}, "T0|join(T5)|3"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.rec.String())
	}
}

func TestTrace_WriteText(t *testing.T) {
	data, err := Encode(sampleTrace())
	require.NoError(t, err)
	tr, err := Decode(data)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tr.WriteText(&buf))

	want := "T0|w(V0)|0\n" +
		"T0|req(L0)|1\n" +
		"T0|acq(L0)|2\n" +
		"T0|fork(T1)|3\n" +
		"T1|r(V0)|4\n" +
		"T1|w(V1)|5\n" +
		"T0|rel(L0)|6\n" +
		"T0|join(T1)|7\n" +
		"T0|w(V0)|0\n"
	assert.Equal(t, want, buf.String())
	assert.Equal(t, "T0|fork(T1)|3", tr.Lines()[3])
}

func TestHeader_Summary(t *testing.T) {
	s := Header{Threads: 2, Locks: 1, Regions: 3, Events: 9}.Summary()
	assert.Contains(t, s, "Number of Threads:\t2")
	assert.Contains(t, s, "Number of Events:\t9")
}
