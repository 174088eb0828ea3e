package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingColumn is returned when a record has fewer than HeaderFields fields.
	ErrMissingColumn = errors.New("missing column")
	// ErrUnknownTypeTag is returned for a type tag outside the dispatch table.
	ErrUnknownTypeTag = errors.New("unrecognized type tag")
	// ErrInvalidData is returned for a TX record with an unrecognised sub-tag pair.
	ErrInvalidData = errors.New("invalid data")
	// ErrFieldParse is returned when a field cannot be converted to its declared kind.
	ErrFieldParse = errors.New("field parse error")
)

// DecodeError ties a record-level failure to the raw record that caused it.
type DecodeError struct {
	Line   int // 1-based source line, 0 when unknown
	Record []string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %v, record: %q", e.Line, e.Err, e.Record)
	}
	return fmt.Sprintf("%v, record: %q", e.Err, e.Record)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Reason returns a short label for err suitable for metrics, keyed on the
// sentinel it wraps.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingColumn):
		return "missing_column"
	case errors.Is(err, ErrUnknownTypeTag):
		return "unknown_type_tag"
	case errors.Is(err, ErrInvalidData):
		return "invalid_data"
	case errors.Is(err, ErrFieldParse):
		return "field_parse"
	default:
		return "other"
	}
}
