package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// toNumbers converts every field with parse. A single bad field fails the
// whole conversion; no partial result is returned.
func toNumbers[T any](fields []string, parse func(string) (T, error)) ([]T, error) {
	out := make([]T, 0, len(fields))
	for i, f := range fields {
		v, err := parse(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("%w: payload field %d %q: %v", ErrFieldParse, i, f, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseFloat32(s string) (float32, error) {
	v, err := strconv.ParseFloat(s, 32)
	return float32(v), err
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	return uint32(v), err
}

func parseInt32(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	return int32(v), err
}

func toFloats(fields []string) ([]float32, error) {
	return toNumbers(fields, parseFloat32)
}

func toUints(fields []string) ([]uint32, error) {
	return toNumbers(fields, parseUint32)
}

func toInts(fields []string) ([]int32, error) {
	return toNumbers(fields, parseInt32)
}

// toStrings copies fields verbatim.
func toStrings(fields []string) []string {
	out := make([]string, len(fields))
	copy(out, fields)
	return out
}

// toText rejoins fields split on embedded commas.
func toText(fields []string) string {
	return strings.Join(fields, ",")
}

func formatFloat32(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}

func formatFloat64(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}
