package timesync

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// hostTimeLayout is the whole-second part of a TL sent-time,
// e.g. 2021-04-23_15-32-57 in 2021-04-23_15-32-57-483219.
const hostTimeLayout = "2006-01-02_15-04-05"

// ParseHostTimestamp converts a TL sent-time into epoch seconds. The text is
// split at its last '-' (or '_') separator: the head is a local date-time in
// loc and the tail digits are a fraction of a second, scaled by their count.
func ParseHostTimestamp(text string, loc *time.Location) (float64, error) {
	i := strings.LastIndexAny(text, "-_")
	if i < 0 {
		return 0, fmt.Errorf("%w: %q has no fractional separator", ErrHostTimestamp, text)
	}
	head, digits := text[:i], text[i+1:]

	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(hostTimeLayout, head, loc)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrHostTimestamp, text, err)
	}

	frac, err := parseFraction(digits)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrHostTimestamp, text, err)
	}

	return float64(t.Unix()) + frac, nil
}

func parseFraction(digits string) (float64, error) {
	if digits == "" {
		return 0, fmt.Errorf("empty fractional part")
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("fractional part %q is not a digit string", digits)
		}
	}
	v, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, err
	}
	return v / math.Pow10(len(digits)), nil
}
