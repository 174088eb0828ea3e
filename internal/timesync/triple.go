package timesync

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/skypro1111/emotibit-sync/internal/protocol"
)

// DefaultMinSyncPackets is the smallest number of RD/TL/AK packets worth
// scanning for handshakes.
const DefaultMinSyncPackets = 3

var (
	// ErrNotEnoughSyncData is returned when too few handshake packets were decoded.
	ErrNotEnoughSyncData = errors.New("not enough sync data")
	// ErrNoPackets is returned when no record in the batch decoded.
	ErrNoPackets = errors.New("no decoded packets")
	// ErrCannotGenerateSyncMap is returned when no anchor pair can be formed.
	ErrCannotGenerateSyncMap = errors.New("cannot generate a time sync map")
	// ErrHostTimestamp is returned for an unparseable TL sent-time.
	ErrHostTimestamp = errors.New("invalid host timestamp")
	// ErrDegenerateAnchors is returned when both anchors share a device time.
	ErrDegenerateAnchors = errors.New("degenerate sync anchors")
)

// TripleHeader is the CSV header matching Triple.Row.
var TripleHeader = []string{"RD", "TS_received", "TS_sent", "AK", "RoundTrip"}

// Triple is one completed RD -> TL -> AK clock exchange.
type Triple struct {
	RequestSent   float64 // RD device time
	ReplyReceived float64 // TL device time
	HostSent      string  // TL payload, host time the reply was issued
	AckSent       float64 // AK device time
	RoundTrip     float64 // ReplyReceived - RequestSent, ms
}

// Row returns the CSV projection of t.
func (t Triple) Row() []string {
	return []string{
		formatFloat(t.RequestSent),
		formatFloat(t.ReplyReceived),
		t.HostSent,
		formatFloat(t.AckSent),
		formatFloat(t.RoundTrip),
	}
}

// Options tunes a Builder. Zero fields take their defaults.
type Options struct {
	MinSyncPackets int
	// Location is the zone TL sent-times are written in. Defaults to time.Local.
	Location *time.Location
}

// Builder extracts handshakes and derives sync maps.
type Builder struct {
	minSyncPackets int
	location       *time.Location
}

// NewBuilder creates a Builder from opts.
func NewBuilder(opts Options) *Builder {
	b := &Builder{
		minSyncPackets: opts.MinSyncPackets,
		location:       opts.Location,
	}
	if b.minSyncPackets <= 0 {
		b.minSyncPackets = DefaultMinSyncPackets
	}
	if b.location == nil {
		b.location = time.Local
	}
	return b
}

// FindSyncs uses a default Builder.
func FindSyncs(results []protocol.Result) ([]Triple, error) {
	return NewBuilder(Options{}).FindSyncs(results)
}

// FindSyncs filters the decoded packets down to RD, TL and AK and returns a
// Triple for every window of three consecutive ones in exactly that order.
// Windows in any other order are skipped.
func (b *Builder) FindSyncs(results []protocol.Result) ([]Triple, error) {
	syncs := make([]protocol.Packet, 0)
	for _, r := range results {
		if !r.OK() {
			continue
		}
		switch r.Packet.TypeTag() {
		case protocol.TagRequestData, protocol.TagTimeLocal, protocol.TagAck:
			syncs = append(syncs, r.Packet)
		}
	}

	if len(syncs) < b.minSyncPackets {
		return nil, fmt.Errorf("%w: found %d RD/TL/AK packets, need at least %d",
			ErrNotEnoughSyncData, len(syncs), b.minSyncPackets)
	}

	triples := make([]Triple, 0, len(syncs)/3)
	for i := 0; i+2 < len(syncs); i++ {
		rd, tl, ak := syncs[i], syncs[i+1], syncs[i+2]
		if rd.TypeTag() != protocol.TagRequestData ||
			tl.TypeTag() != protocol.TagTimeLocal ||
			ak.TypeTag() != protocol.TagAck {
			continue
		}
		sent, ok := tl.Payload.(protocol.Text)
		if !ok {
			continue
		}
		triples = append(triples, Triple{
			RequestSent:   rd.DeviceTimestamp,
			ReplyReceived: tl.DeviceTimestamp,
			HostSent:      sent.Value,
			AckSent:       ak.DeviceTimestamp,
			RoundTrip:     tl.DeviceTimestamp - rd.DeviceTimestamp,
		})
	}

	return triples, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
