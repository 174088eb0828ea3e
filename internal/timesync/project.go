package timesync

import "github.com/skypro1111/emotibit-sync/internal/protocol"

// HostTime maps a device timestamp onto host time by linear interpolation
// through the two anchors. Values outside the anchors are extrapolated.
func (m SyncMap) HostTime(device float64) float64 {
	return m.TL0 + (m.TL1-m.TL0)*(device-m.TE0)/(m.TE1-m.TE0)
}

// InjectHostTimestamp returns a copy of p with its host timestamp set from m.
func InjectHostTimestamp(p protocol.Packet, m SyncMap) protocol.Packet {
	return p.WithHostTimestamp(m.HostTime(p.DeviceTimestamp))
}

// Project returns the decoded packets of results in order, with host
// timestamps injected when m is non-nil.
func Project(results []protocol.Result, m *SyncMap) []protocol.Packet {
	packets := make([]protocol.Packet, 0, len(results))
	for _, r := range results {
		if !r.OK() {
			continue
		}
		p := r.Packet
		if m != nil {
			p = InjectHostTimestamp(p, *m)
		}
		packets = append(packets, p)
	}
	return packets
}
