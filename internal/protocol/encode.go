package protocol

import (
	"bytes"
	"fmt"

	"github.com/danmuck/rfsensor/internal/protocol/frame"
	"github.com/danmuck/rfsensor/internal/protocol/schema"
	"github.com/danmuck/rfsensor/internal/protocol/tlv"
)

// Marshal encodes a complete packet as one frame.
func Marshal(p *Packet) ([]byte, error) {
	all, err := p.GetAll()
	if err != nil {
		return nil, err
	}
	fields := make([]tlv.Field, 0, len(all))
	for _, fv := range all {
		fs, _ := p.spec.Field(fv.Name)
		fields = append(fields, encodeValue(fs, fv.Value))
	}
	payload, err := tlv.EncodeFields(fields)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", p.spec.Name, err)
	}

	h := frame.Header{
		Sequence:      p.Sequence,
		Specification: p.spec.ID,
	}
	if p.spec.Private {
		h.Flags |= frame.FlagPrivate
	}
	var buf bytes.Buffer
	if err := frame.WriteFrame(&buf, frame.Frame{Header: h, Payload: payload}, frame.DefaultLimits()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(fs schema.FieldSpec, v any) tlv.Field {
	switch fs.Kind {
	case schema.KindInt:
		return tlv.PutInt(fs.ID, v.(int))
	case schema.KindFloat:
		return tlv.PutFloat(fs.ID, v.(float64))
	case schema.KindBool:
		return tlv.PutBool(fs.ID, v.(bool))
	case schema.KindEnum:
		return tlv.PutEnum(fs.ID, v.(uint8))
	default:
		return tlv.PutString(fs.ID, v.(string))
	}
}
