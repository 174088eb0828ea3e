package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Record layout: TIMESTAMP,PACKET#,#DATAPOINTS,TYPETAG,VERSION,RELIABILITY,PAYLOAD...
const (
	FieldDeviceTimestamp = 0
	FieldSequenceID      = 1
	FieldDeclaredLength  = 2
	FieldTypeTag         = 3
	FieldProtocolVersion = 4
	FieldReliability     = 5

	// HeaderFields is the number of positional header fields.
	HeaderFields = 6
	// PayloadOffset is the index of the first payload field.
	PayloadOffset = HeaderFields
)

// TX sub-tags recognised by the refinement step.
const (
	subTagLinkCheck   = "LC"
	subTagLinkMeasure = "LM"
	subTagTimeLocal   = "TL"
)

// Packet is one decoded record.
type Packet struct {
	HostTimestamp   *float64 // nil until projected onto host time
	DeviceTimestamp float64  // ms since device boot
	SequenceID      uint32
	DeclaredLength  uint8
	ProtocolVersion uint8
	Reliability     uint8 // 0-100
	Payload         Payload
}

// TypeTag returns the payload's type tag.
func (p Packet) TypeTag() TypeTag {
	if p.Payload == nil {
		return ""
	}
	return p.Payload.TypeTag()
}

// WithHostTimestamp returns a copy of p carrying ts.
func (p Packet) WithHostTimestamp(ts float64) Packet {
	p.HostTimestamp = &ts
	return p
}

// Result is the outcome of decoding one source record. Exactly one of Packet
// and Err is meaningful.
type Result struct {
	Line   int
	Packet Packet
	Err    error
}

// OK reports whether the record decoded.
func (r Result) OK() bool {
	return r.Err == nil
}

// DecodeRecord decodes one record and applies the TX refinement. Errors are
// returned as *DecodeError.
func DecodeRecord(record []string) (Packet, error) {
	p, err := decodeRecord(record)
	if err != nil {
		return Packet{}, &DecodeError{Record: record, Err: err}
	}
	return p, nil
}

// DecodeRecordAt decodes a record read from the given 1-based line.
func DecodeRecordAt(line int, record []string) Result {
	p, err := decodeRecord(record)
	if err != nil {
		return Result{Line: line, Err: &DecodeError{Line: line, Record: record, Err: err}}
	}
	return Result{Line: line, Packet: p}
}

// DecodeRecords decodes every record in order. One malformed record never
// prevents the others from decoding.
func DecodeRecords(records [][]string) []Result {
	results := make([]Result, len(records))
	for i, r := range records {
		results[i] = DecodeRecordAt(i+1, r)
	}
	return results
}

// DecodeLine decodes a single unquoted comma-separated line, as sent in a
// datagram.
func DecodeLine(line string) (Packet, error) {
	return DecodeRecord(strings.Split(strings.TrimSpace(line), ","))
}

func decodeRecord(record []string) (Packet, error) {
	if len(record) < HeaderFields {
		return Packet{}, fmt.Errorf("%w: got %d fields, need at least %d", ErrMissingColumn, len(record), HeaderFields)
	}

	ts, err := strconv.ParseFloat(record[FieldDeviceTimestamp], 64)
	if err != nil {
		return Packet{}, headerError("device timestamp", record[FieldDeviceTimestamp], err)
	}
	seq, err := strconv.ParseUint(record[FieldSequenceID], 10, 32)
	if err != nil {
		return Packet{}, headerError("sequence id", record[FieldSequenceID], err)
	}
	length, err := strconv.ParseUint(record[FieldDeclaredLength], 10, 8)
	if err != nil {
		return Packet{}, headerError("declared length", record[FieldDeclaredLength], err)
	}
	version, err := strconv.ParseUint(record[FieldProtocolVersion], 10, 8)
	if err != nil {
		return Packet{}, headerError("protocol version", record[FieldProtocolVersion], err)
	}
	reliability, err := strconv.ParseUint(record[FieldReliability], 10, 8)
	if err != nil {
		return Packet{}, headerError("reliability", record[FieldReliability], err)
	}

	payload, err := DecodePayload(TypeTag(record[FieldTypeTag]), record[PayloadOffset:])
	if err != nil {
		return Packet{}, err
	}

	return refineTransmit(Packet{
		DeviceTimestamp: ts,
		SequenceID:      uint32(seq),
		DeclaredLength:  uint8(length),
		ProtocolVersion: uint8(version),
		Reliability:     uint8(reliability),
		Payload:         payload,
	})
}

func headerError(field, value string, err error) error {
	return fmt.Errorf("%w: %s %q: %v", ErrFieldParse, field, value, err)
}

// refineTransmit re-interprets a TX packet with at least four entries by its
// sub-tags at entries 0 and 2. Shorter TX packets are kept as they are.
func refineTransmit(p Packet) (Packet, error) {
	tx, ok := p.Payload.(Strings)
	if !ok || tx.Tag != TagTransmit || len(tx.Values) < 4 {
		return p, nil
	}

	tag1, val1, tag2, val2 := tx.Values[0], tx.Values[1], tx.Values[2], tx.Values[3]

	switch {
	case tag1 == subTagLinkCheck && tag2 == subTagLinkMeasure:
		v, err := toFloats([]string{val1, val2})
		if err != nil {
			return Packet{}, fmt.Errorf("TX %s/%s: %w", tag1, tag2, err)
		}
		p.Payload = TxLinkLatency{Values: [2]float32{v[0], v[1]}}
	case tag1 == subTagTimeLocal && tag2 == subTagLinkCheck:
		v, err := toFloats([]string{val2})
		if err != nil {
			return Packet{}, fmt.Errorf("TX %s/%s: %w", tag1, tag2, err)
		}
		p.Payload = TxTimeLink{Time: val1, Value: v[0]}
	default:
		return Packet{}, fmt.Errorf("%w: TX sub-tags %q/%q", ErrInvalidData, tag1, tag2)
	}

	p.HostTimestamp = nil
	return p, nil
}
