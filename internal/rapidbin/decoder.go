package rapidbin

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// maxPrealloc bounds how many records are allocated up front from an
// untrusted event count.
const maxPrealloc = 1 << 16

// Trace is a decoded binary trace.
type Trace struct {
	Header  Header   `json:"header"`
	Records []Record `json:"records"`
}

// Reader decodes a binary trace from a byte stream.
type Reader struct {
	r    io.Reader
	read uint64 // bytes consumed so far
	buf  [HeaderSize]byte
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Decode decodes a complete binary trace held in memory.
func Decode(data []byte) (*Trace, error) {
	return NewReader(bytes.NewReader(data)).ReadTrace()
}

// ReadHeader reads the fixed-size header.
func (rd *Reader) ReadHeader() (Header, error) {
	n, err := io.ReadFull(rd.r, rd.buf[:HeaderSize])
	rd.read += uint64(n)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Header{}, truncated("header", -1, HeaderSize, rd.read)
		}
		return Header{}, fmt.Errorf("read header: %w", err)
	}
	return parseHeader(rd.buf[:HeaderSize]), nil
}

// ReadTrace reads the header and exactly the number of events it declares.
// Any failure returns no records: a truncated trace is corrupt, not
// partially recoverable. Bytes after the last declared event are not read.
func (rd *Reader) ReadTrace() (*Trace, error) {
	h, err := rd.ReadHeader()
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, min(h.Events, maxPrealloc))
	word := rd.buf[:WordSize]
	for i := uint64(0); i < h.Events; i++ {
		n, err := io.ReadFull(rd.r, word)
		rd.read += uint64(n)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, truncated("events", int64(i), expectedSize(h), rd.read)
			}
			return nil, fmt.Errorf("read event %d: %w", i, err)
		}

		rec := Unpack(binary.BigEndian.Uint64(word))
		if !rec.Op.Valid() {
			return nil, &FormatError{Code: ErrCodeUnknownOp, Field: "event", Index: int64(i), Actual: uint64(rec.Op)}
		}
		records = append(records, rec)
	}

	return &Trace{Header: h, Records: records}, nil
}

// expectedSize is the total byte length h declares, saturating on overflow.
func expectedSize(h Header) uint64 {
	const maxWords = (^uint64(0) - HeaderSize) / WordSize
	if h.Events > maxWords {
		return ^uint64(0)
	}
	return HeaderSize + h.Events*WordSize
}
