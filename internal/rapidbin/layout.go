package rapidbin

import (
	"encoding/binary"

	"github.com/roach88/rapidtrace/internal/event"
)

// Event word layout.
const (
	ThreadBits   = 10
	ThreadOffset = 0

	OpBits   = 4
	OpOffset = ThreadOffset + ThreadBits

	DecorationBits   = 34
	DecorationOffset = OpOffset + OpBits

	LocationBits   = 15
	LocationOffset = DecorationOffset + DecorationBits
)

// Field capacities: the number of distinct values each field can hold.
const (
	MaxThreads     = 1 << ThreadBits
	MaxOps         = 1 << OpBits
	MaxDecorations = 1 << DecorationBits
	MaxLocations   = 1 << LocationBits
)

const (
	threadMask     = MaxThreads - 1
	opMask         = MaxOps - 1
	decorationMask = MaxDecorations - 1
	locationMask   = MaxLocations - 1
)

// Header count masks. The top bit of every count is reserved.
const (
	threadCountMask = 0x7FFF
	lockCountMask   = 0x7FFFFFFF
	regionCountMask = 0x7FFFFFFF
	eventCountMask  = 0x7FFFFFFFFFFFFFFF
)

const (
	// HeaderSize is the encoded header length in bytes.
	HeaderSize = 2 + 4 + 4 + 8

	// WordSize is the encoded length of one event in bytes.
	WordSize = 8
)

// Header holds the counts that precede the event words.
type Header struct {
	Threads uint16 `json:"threads"`
	Locks   uint32 `json:"locks"`
	Regions uint32 `json:"regions"`
	Events  uint64 `json:"events"`
}

// appendTo encodes h big-endian onto b.
func (h Header) appendTo(b []byte) []byte {
	b = binary.BigEndian.AppendUint16(b, h.Threads)
	b = binary.BigEndian.AppendUint32(b, h.Locks)
	b = binary.BigEndian.AppendUint32(b, h.Regions)
	b = binary.BigEndian.AppendUint64(b, h.Events)
	return b
}

// parseHeader decodes a header from the first HeaderSize bytes of b,
// dropping the reserved bit of every count.
func parseHeader(b []byte) Header {
	return Header{
		Threads: binary.BigEndian.Uint16(b[0:2]) & threadCountMask,
		Locks:   binary.BigEndian.Uint32(b[2:6]) & lockCountMask,
		Regions: binary.BigEndian.Uint32(b[6:10]) & regionCountMask,
		Events:  binary.BigEndian.Uint64(b[10:18]) & eventCountMask,
	}
}

// Record is one event as it appears in a binary trace: compacted ids instead
// of raw operands.
type Record struct {
	Thread     uint16   `json:"thread"`
	Op         event.Op `json:"op"`
	Decoration uint64   `json:"decoration"`
	Location   uint16   `json:"location"`
}

// Pack combines the record into a single event word. Every field must fit
// its width; a value that does not is a DOMAIN_OVERFLOW error rather than a
// masked word.
func Pack(r Record) (uint64, error) {
	switch {
	case uint64(r.Thread) > threadMask:
		return 0, overflow("thread", -1, MaxThreads, uint64(r.Thread))
	case uint64(r.Op) > opMask:
		return 0, overflow("op", -1, MaxOps, uint64(r.Op))
	case r.Decoration > decorationMask:
		return 0, overflow("decoration", -1, MaxDecorations, r.Decoration)
	case uint64(r.Location) > locationMask:
		return 0, overflow("location", -1, MaxLocations, uint64(r.Location))
	}
	return uint64(r.Thread)<<ThreadOffset |
		uint64(r.Op)<<OpOffset |
		r.Decoration<<DecorationOffset |
		uint64(r.Location)<<LocationOffset, nil
}

// Unpack splits an event word into its fields. The reserved top bit is
// ignored. Unpack does not validate the op code.
func Unpack(w uint64) Record {
	return Record{
		Thread:     uint16((w >> ThreadOffset) & threadMask),
		Op:         event.Op((w >> OpOffset) & opMask),
		Decoration: (w >> DecorationOffset) & decorationMask,
		Location:   uint16((w >> LocationOffset) & locationMask),
	}
}
