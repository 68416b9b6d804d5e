package protocol

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/danmuck/rfsensor/internal/protocol/frame"
	"github.com/danmuck/rfsensor/internal/protocol/schema"
	"github.com/danmuck/rfsensor/internal/protocol/tlv"
)

// Unmarshal decodes one frame into a complete packet. Fields unknown to the
// specification are skipped.
func Unmarshal(data []byte) (*Packet, error) {
	f, err := frame.ReadFrame(bytes.NewReader(data), frame.DefaultLimits())
	if err != nil {
		if errors.Is(err, frame.ErrShortHeader) {
			return nil, ErrTruncated
		}
		return nil, err
	}
	spec, ok := schema.LookupID(f.Header.Specification)
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownSpecification, f.Header.Specification)
	}
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	if err := schema.Validate(spec, fields); err != nil {
		return nil, err
	}

	p := New()
	p.spec = spec
	p.Sequence = f.Header.Sequence
	for _, field := range fields {
		fs, known := schema.Known(spec, field.ID)
		if !known {
			continue
		}
		v, err := decodeValue(fs, field.Value)
		if err != nil {
			return nil, fmt.Errorf("protocol: decode %s.%s: %w", spec.Name, fs.Name, err)
		}
		p.values[fs.Name] = v
	}
	return p, nil
}

func decodeValue(fs schema.FieldSpec, b []byte) (any, error) {
	switch fs.Kind {
	case schema.KindInt:
		return tlv.IntFromBytes(b)
	case schema.KindFloat:
		return tlv.FloatFromBytes(b)
	case schema.KindBool:
		return tlv.BoolFromBytes(b)
	case schema.KindEnum:
		return tlv.EnumFromBytes(b)
	default:
		return string(b), nil
	}
}
