package rapidbin

import (
	"errors"
	"fmt"
)

// ErrEncoderClosed is returned by Encoder.Push after Build.
var ErrEncoderClosed = errors.New("rapidbin: encoder already built")

// ErrorCode categorizes format errors.
type ErrorCode string

const (
	// ErrCodeTruncated indicates the input ends before the data its header
	// declares.
	ErrCodeTruncated ErrorCode = "TRUNCATED"

	// ErrCodeUnknownOp indicates an event word with an undefined op code.
	ErrCodeUnknownOp ErrorCode = "UNKNOWN_OP"

	// ErrCodeDomainOverflow indicates an interned id or count that does not
	// fit its bit field.
	ErrCodeDomainOverflow ErrorCode = "DOMAIN_OVERFLOW"
)

// FormatError reports a trace that cannot be encoded or decoded.
//
// Format errors are deterministic: retrying the same input fails the same
// way.
type FormatError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Field names the header field or event sub-field involved
	// ("header", "event", "thread", "location", "lock", "region", ...).
	Field string

	// Index is the event index, or -1 when the error is in the header.
	Index int64

	// Expected and Actual are byte counts for TRUNCATED, and limit and
	// offending value for DOMAIN_OVERFLOW. UNKNOWN_OP sets Actual to the op.
	Expected uint64
	Actual   uint64
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	switch e.Code {
	case ErrCodeTruncated:
		return fmt.Sprintf("%s: %s: expected at least %d bytes, got %d",
			e.Code, e.Field, e.Expected, e.Actual)
	case ErrCodeUnknownOp:
		return fmt.Sprintf("%s: event %d: op code %d", e.Code, e.Index, e.Actual)
	case ErrCodeDomainOverflow:
		if e.Index >= 0 {
			return fmt.Sprintf("%s: event %d: %s id %d does not fit (limit %d)",
				e.Code, e.Index, e.Field, e.Actual, e.Expected)
		}
		return fmt.Sprintf("%s: %s %d does not fit (limit %d)",
			e.Code, e.Field, e.Actual, e.Expected)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Field)
	}
}

func truncated(field string, index int64, expected, actual uint64) *FormatError {
	return &FormatError{Code: ErrCodeTruncated, Field: field, Index: index, Expected: expected, Actual: actual}
}

func overflow(field string, index int64, limit, value uint64) *FormatError {
	return &FormatError{Code: ErrCodeDomainOverflow, Field: field, Index: index, Expected: limit, Actual: value}
}

func hasCode(err error, code ErrorCode) bool {
	var fe *FormatError
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}

// IsTruncated reports whether err is a truncated-trace error.
func IsTruncated(err error) bool { return hasCode(err, ErrCodeTruncated) }

// IsUnknownOp reports whether err is an unknown-op error.
func IsUnknownOp(err error) bool { return hasCode(err, ErrCodeUnknownOp) }

// IsOverflow reports whether err is a domain-overflow error.
func IsOverflow(err error) bool { return hasCode(err, ErrCodeDomainOverflow) }
