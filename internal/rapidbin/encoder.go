package rapidbin

import (
	"encoding/binary"

	"github.com/roach88/rapidtrace/internal/event"
)

// Interning limits. Lock and region ids are bounded by their 31-bit header
// counts, which are tighter than the 34-bit decoration field.
const (
	maxInternedLocks   = lockCountMask
	maxInternedRegions = regionCountMask
)

// interner assigns dense ids to keys in first-seen order.
type interner[K comparable] struct {
	ids   map[K]uint64
	limit uint64
	field string
}

func newInterner[K comparable](field string, limit uint64) *interner[K] {
	return &interner[K]{ids: make(map[K]uint64), limit: limit, field: field}
}

// id returns the interned id of k, assigning the next one if k is new.
// A new key that would exceed the limit is rejected and not inserted.
func (in *interner[K]) id(k K, index int64) (uint64, error) {
	if id, ok := in.ids[k]; ok {
		return id, nil
	}
	next := uint64(len(in.ids))
	if next >= in.limit {
		return 0, overflow(in.field, index, in.limit, next)
	}
	in.ids[k] = next
	return next, nil
}

func (in *interner[K]) len() uint64 { return uint64(len(in.ids)) }

// Encoder builds one binary trace from a sequence of events.
//
// An Encoder is single-use: Push events in capture order, then call Build
// once. Interned ids depend only on the order events are pushed, so encoding
// the same sequence with two fresh encoders yields identical bytes.
//
// The first error (a domain overflow) is sticky: later Push calls and Build
// return it.
//
// Thread-safety: an Encoder is not safe for concurrent use.
type Encoder struct {
	threads   *interner[uint64]
	locations *interner[event.Location]
	regions   *interner[event.Region]
	locks     *interner[uint64]

	words []uint64
	err   error
	built bool
}

// NewEncoder creates an empty encoder.
func NewEncoder() *Encoder {
	return &Encoder{
		threads:   newInterner[uint64]("thread", MaxThreads),
		locations: newInterner[event.Location]("location", MaxLocations),
		regions:   newInterner[event.Region]("region", maxInternedRegions),
		locks:     newInterner[uint64]("lock", maxInternedLocks),
	}
}

// Push interns e's identifiers and appends its packed word.
func (enc *Encoder) Push(e event.Event) error {
	if enc.built {
		return ErrEncoderClosed
	}
	if enc.err != nil {
		return enc.err
	}

	w, err := enc.convert(e, int64(len(enc.words)))
	if err != nil {
		enc.err = err
		return err
	}
	enc.words = append(enc.words, w)
	return nil
}

// convert interns the event's operands and packs them.
func (enc *Encoder) convert(e event.Event, index int64) (uint64, error) {
	if !e.Op.Valid() {
		return 0, &FormatError{Code: ErrCodeUnknownOp, Field: "event", Index: index, Actual: uint64(e.Op)}
	}

	thread, err := enc.threads.id(e.Thread, index)
	if err != nil {
		return 0, err
	}
	loc, err := enc.locations.id(e.Loc, index)
	if err != nil {
		return 0, err
	}

	var decoration uint64
	switch {
	case e.Op.IsMemory():
		decoration, err = enc.regions.id(e.Region, index)
	case e.Op.IsLock():
		decoration, err = enc.locks.id(e.Lock, index)
	case e.Op.IsThread():
		decoration, err = enc.threads.id(e.Target, index)
	}
	if err != nil {
		return 0, err
	}

	w, err := Pack(Record{
		Thread:     uint16(thread),
		Op:         e.Op,
		Decoration: decoration,
		Location:   uint16(loc),
	})
	if err != nil {
		// Unreachable while the interner limits match the field widths;
		// keep the event index in the report anyway.
		if fe, ok := err.(*FormatError); ok {
			fe.Index = index
		}
		return 0, err
	}
	return w, nil
}

// Header returns the counts the trace would be built with.
func (enc *Encoder) Header() Header {
	return Header{
		Threads: uint16(enc.threads.len()),
		Locks:   uint32(enc.locks.len()),
		Regions: uint32(enc.regions.len()),
		Events:  uint64(len(enc.words)),
	}
}

// Build emits the header followed by every event word, big-endian. After
// Build the encoder accepts no more events.
func (enc *Encoder) Build() ([]byte, error) {
	if enc.built {
		return nil, ErrEncoderClosed
	}
	enc.built = true
	if enc.err != nil {
		return nil, enc.err
	}

	h := enc.Header()
	if uint64(h.Threads) > threadCountMask {
		return nil, overflow("thread count", -1, threadCountMask, uint64(h.Threads))
	}
	if h.Events > eventCountMask {
		return nil, overflow("event count", -1, eventCountMask, h.Events)
	}

	out := make([]byte, 0, HeaderSize+len(enc.words)*WordSize)
	out = h.appendTo(out)
	for _, w := range enc.words {
		out = binary.BigEndian.AppendUint64(out, w)
	}
	return out, nil
}

// Encode builds a binary trace from events with a fresh encoder.
func Encode(events []event.Event) ([]byte, error) {
	enc := NewEncoder()
	for _, e := range events {
		if err := enc.Push(e); err != nil {
			return nil, err
		}
	}
	return enc.Build()
}
