package protocol

import (
	"fmt"
	"strconv"
)

// Payload is the closed set of decoded payload shapes. The concrete types are
// Floats, Uints, Ints, Strings, Text, Empty, TxLinkLatency and TxTimeLink.
type Payload interface {
	// TypeTag returns the tag the payload was decoded (or refined) as.
	TypeTag() TypeTag
	// Fields returns the payload elements in their textual form.
	Fields() []string

	isPayload()
}

// Floats is a float32 series, e.g. EDA or accelerometer samples.
type Floats struct {
	Tag    TypeTag
	Values []float32
}

// Uints is a uint32 series, e.g. PPG samples or battery percent.
type Uints struct {
	Tag    TypeTag
	Values []uint32
}

// Ints is an int32 series, e.g. magnetometer or heart rate.
type Ints struct {
	Tag    TypeTag
	Values []int32
}

// Strings is a series of verbatim fields (RD, AK, TX, UN, EM).
type Strings struct {
	Tag    TypeTag
	Values []string
}

// Text is a single string that may itself contain commas (TL, RB).
type Text struct {
	Tag   TypeTag
	Value string
}

// Empty carries no data.
type Empty struct {
	Tag TypeTag
}

// TxLinkLatency is a TX record refined from the LC/LM sub-tags.
type TxLinkLatency struct {
	Values [2]float32
}

// TxTimeLink is a TX record refined from the TL/LC sub-tags.
type TxTimeLink struct {
	Time  string
	Value float32
}

func (p Floats) TypeTag() TypeTag { return p.Tag }
func (p Uints) TypeTag() TypeTag { return p.Tag }
func (p Ints) TypeTag() TypeTag { return p.Tag }
func (p Strings) TypeTag() TypeTag { return p.Tag }
func (p Text) TypeTag() TypeTag { return p.Tag }
func (p Empty) TypeTag() TypeTag { return p.Tag }
func (TxLinkLatency) TypeTag() TypeTag { return TagTxLinkLatency }
func (TxTimeLink) TypeTag() TypeTag { return TagTxTimeLink }

func (Floats) isPayload() {}
func (Uints) isPayload() {}
func (Ints) isPayload() {}
func (Strings) isPayload() {}
func (Text) isPayload() {}
func (Empty) isPayload() {}
func (TxLinkLatency) isPayload() {}
func (TxTimeLink) isPayload() {}

func (p Floats) Fields() []string {
	out := make([]string, len(p.Values))
	for i, v := range p.Values {
		out[i] = formatFloat32(v)
	}
	return out
}

func (p Uints) Fields() []string {
	out := make([]string, len(p.Values))
	for i, v := range p.Values {
		out[i] = formatUint(uint64(v))
	}
	return out
}

func (p Ints) Fields() []string {
	out := make([]string, len(p.Values))
	for i, v := range p.Values {
		out[i] = strconv.FormatInt(int64(v), 10)
	}
	return out
}

func (p Strings) Fields() []string {
	return toStrings(p.Values)
}

func (p Text) Fields() []string {
	return []string{p.Value}
}

func (Empty) Fields() []string {
	return []string{}
}

func (p TxLinkLatency) Fields() []string {
	return []string{formatFloat32(p.Values[0]), formatFloat32(p.Values[1])}
}

func (p TxTimeLink) Fields() []string {
	return []string{p.Time, formatFloat32(p.Value)}
}

// DecodePayload decodes the payload fields of a record (everything from
// PayloadOffset onward) according to tag.
func DecodePayload(tag TypeTag, fields []string) (Payload, error) {
	s, ok := shapes[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTypeTag, string(tag))
	}

	switch s {
	case shapeFloats:
		v, err := toFloats(fields)
		if err != nil {
			return nil, fmt.Errorf("%s payload: %w", tag, err)
		}
		return Floats{Tag: tag, Values: v}, nil
	case shapeUints:
		v, err := toUints(fields)
		if err != nil {
			return nil, fmt.Errorf("%s payload: %w", tag, err)
		}
		return Uints{Tag: tag, Values: v}, nil
	case shapeInts:
		v, err := toInts(fields)
		if err != nil {
			return nil, fmt.Errorf("%s payload: %w", tag, err)
		}
		return Ints{Tag: tag, Values: v}, nil
	case shapeStrings:
		return Strings{Tag: tag, Values: toStrings(fields)}, nil
	case shapeText:
		return Text{Tag: tag, Value: toText(fields)}, nil
	case shapeEmpty:
		return Empty{Tag: tag}, nil
	default:
		return nil, fmt.Errorf("%w: %q has no payload shape", ErrUnknownTypeTag, string(tag))
	}
}
