package timesync

import (
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats"

	"github.com/skypro1111/emotibit-sync/internal/protocol"
)

// FormatVersion tags every SyncMap with the decoder that produced it.
const FormatVersion = "emotibit-sync.1.0.0"

const quartiles = 4

// anchorPairs is the quartile pair preference order. The first pair whose
// candidates both exist is used.
// TODO: fall back to two samples from the same quartile when only one
// quartile has a candidate.
var anchorPairs = [...][2]int{
	{0, 3},
	{1, 3},
	{1, 2},
	{0, 1},
	{2, 3},
}

// SyncMapHeader is the CSV header matching SyncMap.Row.
var SyncMapHeader = []string{
	"TE0",
	"TE1",
	"TL0",
	"TL1",
	"TimeSyncsReceived",
	"EmotiBitStartTime",
	"EmotiBitEndTime",
	"DataParserVersion",
}

// SyncMap is a two-point linear mapping from device time (ms) to host epoch
// seconds.
type SyncMap struct {
	TE0, TE1      float64 // device anchors
	TL0, TL1      float64 // host anchors
	SamplesUsed   int     // handshakes found in the stream
	DeviceTimeMin float64
	DeviceTimeMax float64
	FormatVersion string
}

// Validate checks that the mapping is well-posed.
func (m SyncMap) Validate() error {
	if m.TE0 == m.TE1 {
		return fmt.Errorf("%w: both anchors at device time %v", ErrDegenerateAnchors, m.TE0)
	}
	return nil
}

// Row returns the CSV projection of m.
func (m SyncMap) Row() []string {
	return []string{
		formatFloat(m.TE0),
		formatFloat(m.TE1),
		formatFloat(m.TL0),
		formatFloat(m.TL1),
		strconv.Itoa(m.SamplesUsed),
		formatFloat(m.DeviceTimeMin),
		formatFloat(m.DeviceTimeMax),
		m.FormatVersion,
	}
}

// GenerateSyncMap uses a default Builder.
func GenerateSyncMap(results []protocol.Result) (SyncMap, error) {
	return NewBuilder(Options{}).GenerateSyncMap(results)
}

// GenerateSyncMap derives the clock mapping for one decoded batch.
func (b *Builder) GenerateSyncMap(results []protocol.Result) (SyncMap, error) {
	stamps := make([]float64, 0, len(results))
	for _, r := range results {
		if r.OK() {
			stamps = append(stamps, r.Packet.DeviceTimestamp)
		}
	}
	if len(stamps) == 0 {
		return SyncMap{}, ErrNoPackets
	}

	triples, err := b.FindSyncs(results)
	if err != nil {
		return SyncMap{}, err
	}

	first, second, ok := chooseAnchors(quartileCandidates(triples))
	if !ok {
		return SyncMap{}, fmt.Errorf("%w: %d samples: %+v", ErrCannotGenerateSyncMap, len(triples), triples)
	}

	tl0, te0, err := b.anchor(first)
	if err != nil {
		return SyncMap{}, err
	}
	tl1, te1, err := b.anchor(second)
	if err != nil {
		return SyncMap{}, err
	}

	m := SyncMap{
		TE0:           te0,
		TE1:           te1,
		TL0:           tl0,
		TL1:           tl1,
		SamplesUsed:   len(triples),
		DeviceTimeMin: floats.Min(stamps),
		DeviceTimeMax: floats.Max(stamps),
		FormatVersion: FormatVersion,
	}
	if err := m.Validate(); err != nil {
		return SyncMap{}, err
	}
	return m, nil
}

// anchor returns the (host, device) coordinates of t. Half the round trip is
// added to the host time as the one-way latency estimate.
func (b *Builder) anchor(t Triple) (host, device float64, err error) {
	sent, err := ParseHostTimestamp(t.HostSent, b.location)
	if err != nil {
		return 0, 0, err
	}
	return sent + t.RoundTrip/2/1000, t.ReplyReceived, nil
}

// quartileCandidates splits triples into four contiguous chunks of
// ceil(n/4) and picks the shortest round trip in each. Trailing chunks may
// be empty, leaving a nil candidate.
func quartileCandidates(triples []Triple) [quartiles]*Triple {
	var out [quartiles]*Triple
	n := len(triples)
	if n == 0 {
		return out
	}

	size := (n + quartiles - 1) / quartiles
	for q := 0; q < quartiles; q++ {
		start := q * size
		if start >= n {
			break
		}
		end := min(start+size, n)
		out[q] = shortestRoundTrip(triples[start:end])
	}
	return out
}

// shortestRoundTrip returns the first triple with the smallest non-negative
// round trip, or nil when there is none. NaN round trips never qualify.
func shortestRoundTrip(chunk []Triple) *Triple {
	var best *Triple
	for i := range chunk {
		if chunk[i].RoundTrip < 0 || math.IsNaN(chunk[i].RoundTrip) {
			continue
		}
		if best == nil || chunk[i].RoundTrip < best.RoundTrip {
			best = &chunk[i]
		}
	}
	return best
}

func chooseAnchors(candidates [quartiles]*Triple) (Triple, Triple, bool) {
	for _, pair := range anchorPairs {
		a, b := candidates[pair[0]], candidates[pair[1]]
		if a != nil && b != nil {
			return *a, *b, true
		}
	}
	return Triple{}, Triple{}, false
}
