package protocol

// NotANumber is written in place of an absent host timestamp.
const NotANumber = "NaN"

var packetHeader = []string{
	"LocalTimestamp",
	"EmotiBitTimestamp",
	"PacketNumber",
	"DataLength",
	"TypeTag",
	"ProtocolVersion",
	"DataReliability",
}

// Header returns the CSV header for rows of the given tag. The payload
// column is named after the tag.
func Header(tag TypeTag) []string {
	h := make([]string, 0, len(packetHeader)+1)
	h = append(h, packetHeader...)
	return append(h, string(tag))
}

// Rows flattens p into CSV rows: one per payload element for series, one
// combined row for refined TX payloads, and one row with an empty payload
// field when there is no data.
func (p Packet) Rows() [][]string {
	host := NotANumber
	if p.HostTimestamp != nil {
		host = formatFloat64(*p.HostTimestamp)
	}

	row := func(field string) []string {
		return []string{
			host,
			formatFloat64(p.DeviceTimestamp),
			formatUint(uint64(p.SequenceID)),
			formatUint(uint64(p.DeclaredLength)),
			string(p.TypeTag()),
			formatUint(uint64(p.ProtocolVersion)),
			formatUint(uint64(p.Reliability)),
			field,
		}
	}

	switch pl := p.Payload.(type) {
	case TxLinkLatency, TxTimeLink:
		f := pl.Fields()
		return [][]string{row(f[0] + "," + f[1])}
	case Empty:
		return [][]string{row("")}
	case nil:
		return nil
	default:
		fields := pl.Fields()
		rows := make([][]string, 0, len(fields))
		for _, f := range fields {
			rows = append(rows, row(f))
		}
		return rows
	}
}
