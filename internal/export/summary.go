package export

import (
	"sort"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/skypro1111/emotibit-sync/internal/protocol"
	"github.com/skypro1111/emotibit-sync/internal/timesync"
)

// Summary describes one export run.
type Summary struct {
	RunID        uuid.UUID
	Source       string
	Records      int
	Packets      int
	Errors       int
	PacketsByTag map[protocol.TypeTag]int

	Triples int
	SyncMap *timesync.SyncMap
	SyncErr error

	HeartRateSamples int
	MeanHeartRate    float64 // bpm, 0 without samples

	Files   []string
	Archive string
}

// Synced reports whether host timestamps were injected.
func (s Summary) Synced() bool {
	return s.SyncMap != nil
}

// Tags returns the type tags present, sorted.
func (s Summary) Tags() []protocol.TypeTag {
	tags := make([]protocol.TypeTag, 0, len(s.PacketsByTag))
	for t := range s.PacketsByTag {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// Summarize counts results by outcome and tag and averages the heart rate.
// Each HR packet contributes its first value.
func Summarize(source string, results []protocol.Result) Summary {
	s := Summary{
		RunID:        uuid.New(),
		Source:       source,
		Records:      len(results),
		PacketsByTag: make(map[protocol.TypeTag]int),
	}

	var rates []float64
	for _, r := range results {
		if !r.OK() {
			s.Errors++
			continue
		}
		s.Packets++
		s.PacketsByTag[r.Packet.TypeTag()]++

		if hr, ok := r.Packet.Payload.(protocol.Ints); ok && hr.Tag == protocol.TagHeartRate && len(hr.Values) > 0 {
			rates = append(rates, float64(hr.Values[0]))
		}
	}

	s.HeartRateSamples = len(rates)
	if len(rates) > 0 {
		s.MeanHeartRate = stat.Mean(rates, nil)
	}
	return s
}
