package binlog

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/skypro1111/emotibit-sync/internal/protocol"
)

// Message field numbers. Numbers are never reused.
const (
	fieldHostTimestamp   protowire.Number = 1
	fieldDeviceTimestamp protowire.Number = 2
	fieldSequenceID      protowire.Number = 3
	fieldDeclaredLength  protowire.Number = 4
	fieldProtocolVersion protowire.Number = 5
	fieldReliability     protowire.Number = 6
	fieldTypeTag         protowire.Number = 7
	fieldKind            protowire.Number = 8
	fieldFloats          protowire.Number = 10
	fieldUints           protowire.Number = 11
	fieldInts            protowire.Number = 12
	fieldStrings         protowire.Number = 13
	fieldText            protowire.Number = 14
	fieldValue           protowire.Number = 15
)

type kind uint64

const (
	kindEmpty kind = iota
	kindFloats
	kindUints
	kindInts
	kindStrings
	kindText
	kindTxLinkLatency
	kindTxTimeLink
)

// ErrMalformed is returned for a message that is not a valid packet
// encoding.
var ErrMalformed = errors.New("malformed packet message")

// Encode returns the wire encoding of p.
func Encode(p protocol.Packet) ([]byte, error) {
	var b []byte

	if p.HostTimestamp != nil {
		b = appendDouble(b, fieldHostTimestamp, *p.HostTimestamp)
	}
	b = appendDouble(b, fieldDeviceTimestamp, p.DeviceTimestamp)
	b = appendVarint(b, fieldSequenceID, uint64(p.SequenceID))
	b = appendVarint(b, fieldDeclaredLength, uint64(p.DeclaredLength))
	b = appendVarint(b, fieldProtocolVersion, uint64(p.ProtocolVersion))
	b = appendVarint(b, fieldReliability, uint64(p.Reliability))
	b = protowire.AppendTag(b, fieldTypeTag, protowire.BytesType)
	b = protowire.AppendString(b, string(p.TypeTag()))

	switch pl := p.Payload.(type) {
	case protocol.Floats:
		b = appendVarint(b, fieldKind, uint64(kindFloats))
		b = appendFloats(b, pl.Values)
	case protocol.Uints:
		b = appendVarint(b, fieldKind, uint64(kindUints))
		var packed []byte
		for _, v := range pl.Values {
			packed = protowire.AppendVarint(packed, uint64(v))
		}
		b = appendPacked(b, fieldUints, packed)
	case protocol.Ints:
		b = appendVarint(b, fieldKind, uint64(kindInts))
		var packed []byte
		for _, v := range pl.Values {
			packed = protowire.AppendVarint(packed, protowire.EncodeZigZag(int64(v)))
		}
		b = appendPacked(b, fieldInts, packed)
	case protocol.Strings:
		b = appendVarint(b, fieldKind, uint64(kindStrings))
		for _, v := range pl.Values {
			b = protowire.AppendTag(b, fieldStrings, protowire.BytesType)
			b = protowire.AppendString(b, v)
		}
	case protocol.Text:
		b = appendVarint(b, fieldKind, uint64(kindText))
		b = appendText(b, pl.Value)
	case protocol.Empty:
		b = appendVarint(b, fieldKind, uint64(kindEmpty))
	case protocol.TxLinkLatency:
		b = appendVarint(b, fieldKind, uint64(kindTxLinkLatency))
		b = appendFloats(b, pl.Values[:])
	case protocol.TxTimeLink:
		b = appendVarint(b, fieldKind, uint64(kindTxTimeLink))
		b = appendText(b, pl.Time)
		b = protowire.AppendTag(b, fieldValue, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(pl.Value))
	default:
		return nil, fmt.Errorf("cannot encode payload %T", p.Payload)
	}

	return b, nil
}

// message collects the raw fields of one packet before the payload is
// assembled.
type message struct {
	packet  protocol.Packet
	tag     protocol.TypeTag
	kind    kind
	floats  []float32
	uints   []uint32
	ints    []int32
	strings []string
	text    string
	value   float32
}

// Decode parses a message produced by Encode. Unknown fields are skipped.
func Decode(b []byte) (protocol.Packet, error) {
	m := message{
		floats:  []float32{},
		uints:   []uint32{},
		ints:    []int32{},
		strings: []string{},
	}

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protocol.Packet{}, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		n, err := m.consume(num, typ, b)
		if err != nil {
			return protocol.Packet{}, err
		}
		b = b[n:]
	}

	return m.build()
}

func (m *message) consume(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch {
	case typ == protowire.Fixed64Type && (num == fieldHostTimestamp || num == fieldDeviceTimestamp):
		v, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return 0, parseError(num, n)
		}
		f := math.Float64frombits(v)
		if num == fieldHostTimestamp {
			m.packet.HostTimestamp = &f
		} else {
			m.packet.DeviceTimestamp = f
		}
		return n, nil

	case typ == protowire.VarintType && num >= fieldSequenceID && num <= fieldReliability,
		typ == protowire.VarintType && num == fieldKind:
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return 0, parseError(num, n)
		}
		switch num {
		case fieldSequenceID:
			m.packet.SequenceID = uint32(v)
		case fieldDeclaredLength:
			m.packet.DeclaredLength = uint8(v)
		case fieldProtocolVersion:
			m.packet.ProtocolVersion = uint8(v)
		case fieldReliability:
			m.packet.Reliability = uint8(v)
		case fieldKind:
			m.kind = kind(v)
		}
		return n, nil

	case typ == protowire.BytesType && (num == fieldTypeTag || num == fieldStrings || num == fieldText):
		v, n := protowire.ConsumeString(b)
		if n < 0 {
			return 0, parseError(num, n)
		}
		switch num {
		case fieldTypeTag:
			m.tag = protocol.TypeTag(v)
		case fieldStrings:
			m.strings = append(m.strings, v)
		case fieldText:
			m.text = v
		}
		return n, nil

	case typ == protowire.BytesType && (num == fieldFloats || num == fieldUints || num == fieldInts):
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return 0, parseError(num, n)
		}
		if err := m.unpack(num, packed); err != nil {
			return 0, err
		}
		return n, nil

	case typ == protowire.Fixed32Type && num == fieldValue:
		v, n := protowire.ConsumeFixed32(b)
		if n < 0 {
			return 0, parseError(num, n)
		}
		m.value = math.Float32frombits(v)
		return n, nil

	default:
		n := protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return 0, parseError(num, n)
		}
		return n, nil
	}
}

func (m *message) unpack(num protowire.Number, packed []byte) error {
	for len(packed) > 0 {
		var n int
		switch num {
		case fieldFloats:
			var v uint32
			v, n = protowire.ConsumeFixed32(packed)
			m.floats = append(m.floats, math.Float32frombits(v))
		case fieldUints:
			var v uint64
			v, n = protowire.ConsumeVarint(packed)
			m.uints = append(m.uints, uint32(v))
		case fieldInts:
			var v uint64
			v, n = protowire.ConsumeVarint(packed)
			m.ints = append(m.ints, int32(protowire.DecodeZigZag(v)))
		}
		if n < 0 {
			return parseError(num, n)
		}
		packed = packed[n:]
	}
	return nil
}

func (m *message) build() (protocol.Packet, error) {
	p := m.packet

	switch m.kind {
	case kindEmpty:
		p.Payload = protocol.Empty{Tag: m.tag}
	case kindFloats:
		p.Payload = protocol.Floats{Tag: m.tag, Values: m.floats}
	case kindUints:
		p.Payload = protocol.Uints{Tag: m.tag, Values: m.uints}
	case kindInts:
		p.Payload = protocol.Ints{Tag: m.tag, Values: m.ints}
	case kindStrings:
		p.Payload = protocol.Strings{Tag: m.tag, Values: m.strings}
	case kindText:
		p.Payload = protocol.Text{Tag: m.tag, Value: m.text}
	case kindTxLinkLatency:
		if len(m.floats) != 2 {
			return protocol.Packet{}, fmt.Errorf("%w: %s carries %d values, want 2", ErrMalformed, m.tag, len(m.floats))
		}
		p.Payload = protocol.TxLinkLatency{Values: [2]float32{m.floats[0], m.floats[1]}}
	case kindTxTimeLink:
		p.Payload = protocol.TxTimeLink{Time: m.text, Value: m.value}
	default:
		return protocol.Packet{}, fmt.Errorf("%w: unknown payload kind %d", ErrMalformed, m.kind)
	}

	if p.TypeTag() != m.tag {
		return protocol.Packet{}, fmt.Errorf("%w: type tag %q does not match payload kind", ErrMalformed, m.tag)
	}
	return p, nil
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendPacked(b []byte, num protowire.Number, packed []byte) []byte {
	if len(packed) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func appendFloats(b []byte, values []float32) []byte {
	var packed []byte
	for _, v := range values {
		packed = protowire.AppendFixed32(packed, math.Float32bits(v))
	}
	return appendPacked(b, fieldFloats, packed)
}

func appendText(b []byte, s string) []byte {
	b = protowire.AppendTag(b, fieldText, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func parseError(num protowire.Number, n int) error {
	return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
}
