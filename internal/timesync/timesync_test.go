package timesync

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/emotibit-sync/internal/protocol"
)

func ok(p protocol.Packet) protocol.Result {
	return protocol.Result{Packet: p}
}

func rd(ts float64) protocol.Result {
	return ok(protocol.Packet{DeviceTimestamp: ts, Payload: protocol.Strings{Tag: protocol.TagRequestData, Values: []string{"TL"}}})
}

func tl(ts float64, sent string) protocol.Result {
	return ok(protocol.Packet{DeviceTimestamp: ts, Payload: protocol.Text{Tag: protocol.TagTimeLocal, Value: sent}})
}

func ak(ts float64) protocol.Result {
	return ok(protocol.Packet{DeviceTimestamp: ts, Payload: protocol.Strings{Tag: protocol.TagAck, Values: []string{}}})
}

func hr(ts float64) protocol.Result {
	return ok(protocol.Packet{DeviceTimestamp: ts, Payload: protocol.Ints{Tag: protocol.TagHeartRate, Values: []int32{70}}})
}

func failed() protocol.Result {
	return protocol.Result{Err: protocol.ErrMissingColumn}
}

// handshake returns an RD/TL/AK sequence starting at start with the given
// round trip, whose TL was sent at the given second offset after base.
func handshake(start, roundTrip float64, sentSecond int) []protocol.Result {
	sent := fmt.Sprintf("2023-05-01_10-00-%02d-000", sentSecond)
	return []protocol.Result{rd(start), tl(start+roundTrip, sent), ak(start + roundTrip + 1)}
}

func TestFindSyncsSingleWindow(t *testing.T) {
	results := []protocol.Result{
		hr(1),
		rd(100),
		failed(),
		tl(120, "2023-05-01_10-00-00-1234"),
		hr(121),
		ak(125),
	}

	triples, err := FindSyncs(results)
	require.NoError(t, err)
	require.Len(t, triples, 1)

	want := Triple{
		RequestSent:   100,
		ReplyReceived: 120,
		HostSent:      "2023-05-01_10-00-00-1234",
		AckSent:       125,
		RoundTrip:     20,
	}
	if diff := cmp.Diff(want, triples[0]); diff != "" {
		t.Errorf("triple mismatch (-want +got):\n%s", diff)
	}
}

func TestFindSyncsSkipsMisorderedWindows(t *testing.T) {
	results := []protocol.Result{
		tl(1, "x"), rd(2), ak(3), // wrong order
		rd(10), tl(12, "a-1"), ak(13),
		ak(14), rd(15), // stray
		rd(20), tl(25, "b-2"), ak(26),
	}

	triples, err := FindSyncs(results)
	require.NoError(t, err)
	require.Len(t, triples, 2)
	assert.Equal(t, 10.0, triples[0].RequestSent)
	assert.Equal(t, 2.0, triples[0].RoundTrip)
	assert.Equal(t, 20.0, triples[1].RequestSent)
	assert.Equal(t, 5.0, triples[1].RoundTrip)
}

func TestFindSyncsNotEnoughData(t *testing.T) {
	tests := []struct {
		name    string
		results []protocol.Result
	}{
		{name: "empty", results: nil},
		{name: "only data packets", results: []protocol.Result{hr(1), hr(2), hr(3), hr(4)}},
		{name: "two handshake packets", results: []protocol.Result{rd(1), tl(2, "x-1")}},
		{name: "failures do not count", results: []protocol.Result{rd(1), failed(), tl(2, "x-1"), failed()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FindSyncs(tt.results)
			assert.ErrorIs(t, err, ErrNotEnoughSyncData)
		})
	}
}

func TestFindSyncsMinimumIsConfigurable(t *testing.T) {
	results := handshake(0, 5, 0)

	_, err := NewBuilder(Options{MinSyncPackets: 6}).FindSyncs(results)
	assert.ErrorIs(t, err, ErrNotEnoughSyncData)

	triples, err := NewBuilder(Options{MinSyncPackets: 3}).FindSyncs(results)
	require.NoError(t, err)
	assert.Len(t, triples, 1)
}

func TestQuartileCandidates(t *testing.T) {
	roundTrips := []float64{1, 5, 2, 6, 3, 7, 4, 8}
	triples := make([]Triple, len(roundTrips))
	for i, rt := range roundTrips {
		triples[i] = Triple{RequestSent: float64(i), RoundTrip: rt}
	}

	candidates := quartileCandidates(triples)
	got := make([]float64, 0, quartiles)
	for _, c := range candidates {
		require.NotNil(t, c)
		got = append(got, c.RoundTrip)
	}
	assert.Equal(t, []float64{1, 2, 3, 4}, got)

	first, second, found := chooseAnchors(candidates)
	require.True(t, found)
	assert.Equal(t, 1.0, first.RoundTrip)
	assert.Equal(t, 4.0, second.RoundTrip)
}

func TestQuartileCandidatesTiesAndGaps(t *testing.T) {
	t.Run("ties keep first occurrence", func(t *testing.T) {
		triples := []Triple{
			{RequestSent: 0, RoundTrip: 3},
			{RequestSent: 1, RoundTrip: 3},
		}
		c := quartileCandidates(triples)
		require.NotNil(t, c[0])
		assert.Equal(t, 0.0, c[0].RequestSent)
		assert.Equal(t, 1.0, c[1].RequestSent)
		assert.Nil(t, c[2])
		assert.Nil(t, c[3])
	})

	t.Run("five samples leave the last quartile empty", func(t *testing.T) {
		triples := make([]Triple, 5)
		for i := range triples {
			triples[i] = Triple{RequestSent: float64(i), RoundTrip: 1}
		}
		c := quartileCandidates(triples)
		assert.NotNil(t, c[0])
		assert.NotNil(t, c[1])
		assert.NotNil(t, c[2])
		assert.Nil(t, c[3])
	})

	t.Run("negative round trips are never candidates", func(t *testing.T) {
		triples := []Triple{
			{RequestSent: 0, RoundTrip: -2},
			{RequestSent: 1, RoundTrip: 4},
			{RequestSent: 2, RoundTrip: -1},
			{RequestSent: 3, RoundTrip: -1},
		}
		c := quartileCandidates(triples)
		assert.Nil(t, c[0])
		require.NotNil(t, c[1])
		assert.Equal(t, 4.0, c[1].RoundTrip)
		assert.Nil(t, c[2])
		assert.Nil(t, c[3])
	})

	t.Run("NaN round trips are never candidates", func(t *testing.T) {
		nan := math.NaN()
		roundTrips := []float64{nan, 5, 2, nan, nan, nan, 4, 3}
		triples := make([]Triple, len(roundTrips))
		for i, rt := range roundTrips {
			triples[i] = Triple{RequestSent: float64(i), RoundTrip: rt}
		}
		c := quartileCandidates(triples)
		require.NotNil(t, c[0])
		assert.Equal(t, 5.0, c[0].RoundTrip)
		require.NotNil(t, c[1])
		assert.Equal(t, 2.0, c[1].RoundTrip)
		assert.Nil(t, c[2])
		require.NotNil(t, c[3])
		assert.Equal(t, 3.0, c[3].RoundTrip)
	})

	t.Run("NaN device time from a decoded record", func(t *testing.T) {
		p, err := protocol.DecodeLine("NaN,1,1,RD,1,100,TL")
		require.NoError(t, err)
		results := []protocol.Result{ok(p), tl(10, "2023-05-01_10-00-00-000"), ak(11)}
		triples, err := FindSyncs(results)
		require.NoError(t, err)
		require.Len(t, triples, 1)
		assert.True(t, math.IsNaN(triples[0].RoundTrip))
		assert.Nil(t, quartileCandidates(triples)[0])
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Equal(t, [quartiles]*Triple{}, quartileCandidates(nil))
	})
}

func TestChooseAnchorsPreferenceOrder(t *testing.T) {
	q := func(id float64) *Triple { return &Triple{RequestSent: id} }

	tests := []struct {
		name       string
		candidates [quartiles]*Triple
		want       [2]float64
		found      bool
	}{
		{name: "first and last", candidates: [quartiles]*Triple{q(0), q(1), q(2), q(3)}, want: [2]float64{0, 3}, found: true},
		{name: "second and last", candidates: [quartiles]*Triple{nil, q(1), q(2), q(3)}, want: [2]float64{1, 3}, found: true},
		{name: "middle pair", candidates: [quartiles]*Triple{q(0), q(1), q(2), nil}, want: [2]float64{1, 2}, found: true},
		{name: "first two", candidates: [quartiles]*Triple{q(0), q(1), nil, nil}, want: [2]float64{0, 1}, found: true},
		{name: "last two", candidates: [quartiles]*Triple{nil, nil, q(2), q(3)}, want: [2]float64{2, 3}, found: true},
		{name: "first and third only", candidates: [quartiles]*Triple{q(0), nil, q(2), nil}, found: false},
		{name: "single candidate", candidates: [quartiles]*Triple{q(0), nil, nil, nil}, found: false},
		{name: "none", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b, found := chooseAnchors(tt.candidates)
			require.Equal(t, tt.found, found)
			if found {
				assert.Equal(t, tt.want, [2]float64{a.RequestSent, b.RequestSent})
			}
		})
	}
}

func TestParseHostTimestamp(t *testing.T) {
	base := time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC).Unix()

	tests := []struct {
		name     string
		text     string
		expected float64
		wantErr  bool
	}{
		{name: "dash fraction", text: "2023-05-01_10-00-00-1234", expected: float64(base) + 0.1234},
		{name: "underscore fraction", text: "2023-05-01_10-00-00_1234", expected: float64(base) + 0.1234},
		{name: "microseconds", text: "2023-05-01_10-00-07-483219", expected: float64(base) + 7.483219},
		{name: "single digit", text: "2023-05-01_10-00-00-5", expected: float64(base) + 0.5},
		{name: "leading zeros", text: "2023-05-01_10-00-00-0005", expected: float64(base) + 0.0005},
		{name: "no separator", text: "20230501100000", wantErr: true},
		{name: "no fraction", text: "2023-05-01_10-00-00", wantErr: true},
		{name: "empty fraction", text: "2023-05-01_10-00-00-", wantErr: true},
		{name: "non-digit fraction", text: "2023-05-01_10-00-00-12a", wantErr: true},
		{name: "bad date", text: "2023-13-01_10-00-00-1", wantErr: true},
		{name: "empty", text: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHostTimestamp(tt.text, time.UTC)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrHostTimestamp)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 1e-6)
		})
	}
}

func TestGenerateSyncMapHostAnchorUsesLocalTime(t *testing.T) {
	results := []protocol.Result{
		rd(1000), tl(1020, "2023-05-01_10-00-00_1234"), ak(1021),
		rd(5000), tl(5020, "2023-05-01_10-00-04_1234"), ak(5021),
	}

	m, err := GenerateSyncMap(results)
	require.NoError(t, err)

	epoch := float64(time.Date(2023, 5, 1, 10, 0, 0, 0, time.Local).Unix())
	assert.InDelta(t, epoch+0.1234+0.010, m.TL0, 1e-6)
	assert.InDelta(t, epoch+4+0.1234+0.010, m.TL1, 1e-6)
	assert.Equal(t, 1020.0, m.TE0)
	assert.Equal(t, 5020.0, m.TE1)
}

func TestGenerateSyncMap(t *testing.T) {
	var results []protocol.Result
	results = append(results, hr(50))
	// Eight handshakes one second apart; round trips alternate so each
	// quartile has a clear winner.
	roundTrips := []float64{10, 40, 20, 50, 30, 60, 15, 70}
	for i, rtt := range roundTrips {
		start := float64(1000 * (i + 1))
		results = append(results, handshake(start, rtt, i)...)
		results = append(results, hr(start+500), failed())
	}
	results = append(results, hr(9999))

	b := NewBuilder(Options{Location: time.UTC})
	m, err := b.GenerateSyncMap(results)
	require.NoError(t, err)

	base := float64(time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC).Unix())
	assert.Equal(t, 8, m.SamplesUsed)
	assert.Equal(t, 50.0, m.DeviceTimeMin)
	assert.Equal(t, 9999.0, m.DeviceTimeMax)
	assert.Equal(t, FormatVersion, m.FormatVersion)

	// quartile 0 winner: handshake 0 (rtt 10); quartile 3 winner: handshake 6 (rtt 15)
	assert.Equal(t, 1010.0, m.TE0)
	assert.Equal(t, 7015.0, m.TE1)
	assert.InDelta(t, base+0+0.005, m.TL0, 1e-6)
	assert.InDelta(t, base+6+0.0075, m.TL1, 1e-6)
}

func TestGenerateSyncMapErrors(t *testing.T) {
	t.Run("no packets", func(t *testing.T) {
		_, err := GenerateSyncMap([]protocol.Result{failed(), failed()})
		assert.ErrorIs(t, err, ErrNoPackets)
	})

	t.Run("not enough sync data propagates", func(t *testing.T) {
		_, err := GenerateSyncMap([]protocol.Result{hr(1), rd(2)})
		assert.ErrorIs(t, err, ErrNotEnoughSyncData)
	})

	t.Run("no ordered handshakes", func(t *testing.T) {
		_, err := GenerateSyncMap([]protocol.Result{ak(1), tl(2, "x-1"), rd(3)})
		assert.ErrorIs(t, err, ErrCannotGenerateSyncMap)
	})

	t.Run("single handshake cannot form a pair", func(t *testing.T) {
		_, err := GenerateSyncMap(handshake(0, 5, 0))
		assert.ErrorIs(t, err, ErrCannotGenerateSyncMap)
	})

	t.Run("unparseable sent time", func(t *testing.T) {
		results := []protocol.Result{
			rd(0), tl(5, "yesterday"), ak(6),
			rd(10), tl(15, "2023-05-01_10-00-00-1"), ak(16),
		}
		_, err := GenerateSyncMap(results)
		assert.ErrorIs(t, err, ErrHostTimestamp)
	})

	t.Run("identical device anchors", func(t *testing.T) {
		results := []protocol.Result{
			rd(0), tl(5, "2023-05-01_10-00-00-1"), ak(6),
			rd(0), tl(5, "2023-05-01_10-00-01-1"), ak(6),
		}
		_, err := GenerateSyncMap(results)
		require.ErrorIs(t, err, ErrDegenerateAnchors)
	})
}

func TestHostTimeIsLinear(t *testing.T) {
	m := SyncMap{TE0: 1000, TE1: 5000, TL0: 1682935200.25, TL1: 1682935204.25}

	assert.InDelta(t, m.TL0, m.HostTime(m.TE0), 1e-6)
	assert.InDelta(t, m.TL1, m.HostTime(m.TE1), 1e-6)
	assert.InDelta(t, (m.TL0+m.TL1)/2, m.HostTime((m.TE0+m.TE1)/2), 1e-6)

	// extrapolation on both sides
	assert.InDelta(t, m.TL0-1, m.HostTime(0), 1e-6)
	assert.InDelta(t, m.TL1+1, m.HostTime(6000), 1e-6)
}

func TestInjectHostTimestamp(t *testing.T) {
	m := SyncMap{TE0: 0, TE1: 1000, TL0: 100, TL1: 101}
	p := hr(500).Packet

	got := InjectHostTimestamp(p, m)
	require.NotNil(t, got.HostTimestamp)
	assert.InDelta(t, 100.5, *got.HostTimestamp, 1e-9)
	assert.Nil(t, p.HostTimestamp)
}

func TestProject(t *testing.T) {
	m := SyncMap{TE0: 0, TE1: 1000, TL0: 100, TL1: 101}
	results := []protocol.Result{hr(0), failed(), hr(1000)}

	projected := Project(results, &m)
	require.Len(t, projected, 2)
	assert.InDelta(t, 100.0, *projected[0].HostTimestamp, 1e-9)
	assert.InDelta(t, 101.0, *projected[1].HostTimestamp, 1e-9)

	raw := Project(results, nil)
	require.Len(t, raw, 2)
	assert.Nil(t, raw[0].HostTimestamp)
}

func TestRows(t *testing.T) {
	tr := Triple{RequestSent: 100, ReplyReceived: 120.5, HostSent: "2023-05-01_10-00-00-1", AckSent: 121, RoundTrip: 20.5}
	assert.Equal(t, []string{"100", "120.5", "2023-05-01_10-00-00-1", "121", "20.5"}, tr.Row())
	assert.Len(t, TripleHeader, len(tr.Row()))

	m := SyncMap{TE0: 1, TE1: 2, TL0: 3.5, TL1: 4.5, SamplesUsed: 7, DeviceTimeMin: 0, DeviceTimeMax: 9, FormatVersion: FormatVersion}
	assert.Equal(t, []string{"1", "2", "3.5", "4.5", "7", "0", "9", FormatVersion}, m.Row())
	assert.Len(t, SyncMapHeader, len(m.Row()))
}
