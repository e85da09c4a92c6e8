package rapidbin

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/roach88/rapidtrace/internal/event"
)

// opText renders the op together with its decoration, e.g. "w(V3)".
func opText(op event.Op, decoration uint64) string {
	id := strconv.FormatUint(decoration, 10)
	switch op {
	case event.OpRead:
		return "r(V" + id + ")"
	case event.OpWrite:
		return "w(V" + id + ")"
	case event.OpAcquire:
		return "acq(L" + id + ")"
	case event.OpRequest:
		return "req(L" + id + ")"
	case event.OpRelease:
		return "rel(L" + id + ")"
	case event.OpFork:
		return "fork(T" + id + ")"
	case event.OpJoin:
		return "join(T" + id + ")"
	default:
		return fmt.Sprintf("%s(%s)", op, id)
	}
}

// String renders the record in the canonical text form
// "T<thread>|<op-text>|<location>".
func (r Record) String() string {
	var b strings.Builder
	b.WriteByte('T')
	b.WriteString(strconv.FormatUint(uint64(r.Thread), 10))
	b.WriteByte('|')
	b.WriteString(opText(r.Op, r.Decoration))
	b.WriteByte('|')
	b.WriteString(strconv.FormatUint(uint64(r.Location), 10))
	return b.String()
}

// Lines returns the text form of every record, in trace order.
func (t *Trace) Lines() []string {
	lines := make([]string, len(t.Records))
	for i, r := range t.Records {
		lines[i] = r.String()
	}
	return lines
}

// WriteText writes one text line per record to w.
func (t *Trace) WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, r := range t.Records {
		if _, err := bw.WriteString(r.String()); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Summary describes the header counts, one per line.
func (h Header) Summary() string {
	return fmt.Sprintf("Number of Threads:\t%d\nNumber of Locks:\t%d\nNumber of Variables:\t%d\nNumber of Events:\t%d\n",
		h.Threads, h.Locks, h.Regions, h.Events)
}
