package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// HeaderLen is id(2) + type(1) + length(2). Radio frames never carry values
// longer than 64KiB.
const HeaderLen = 5

var (
	ErrShortFieldHeader = errors.New("tlv: short field header")
	ErrShortFieldValue  = errors.New("tlv: short field value")
	ErrValueTooLarge    = errors.New("tlv: value too large")
)

// Type IDs from tlv contract.
const (
	TypeInt    uint8 = 1
	TypeFloat  uint8 = 2
	TypeBool   uint8 = 3
	TypeString uint8 = 4
	TypeEnum   uint8 = 5
)

// Field is one decoded TLV field.
type Field struct {
	ID    uint16
	Type  uint8
	Value []byte
}

func EncodeField(f Field) ([]byte, error) {
	if len(f.Value) > math.MaxUint16 {
		return nil, ErrValueTooLarge
	}
	buf := make([]byte, HeaderLen+len(f.Value))
	binary.BigEndian.PutUint16(buf[0:2], f.ID)
	buf[2] = f.Type
	binary.BigEndian.PutUint16(buf[3:5], uint16(len(f.Value)))
	copy(buf[HeaderLen:], f.Value)
	return buf, nil
}

func DecodeFields(payload []byte) ([]Field, error) {
	fields := make([]Field, 0)
	i := 0
	for i < len(payload) {
		if len(payload)-i < HeaderLen {
			return nil, ErrShortFieldHeader
		}
		id := binary.BigEndian.Uint16(payload[i : i+2])
		typeID := payload[i+2]
		l := int(binary.BigEndian.Uint16(payload[i+3 : i+5]))
		i += HeaderLen
		if len(payload)-i < l {
			return nil, ErrShortFieldValue
		}
		val := make([]byte, l)
		copy(val, payload[i:i+l])
		i += l
		fields = append(fields, Field{ID: id, Type: typeID, Value: val})
	}
	return fields, nil
}

func EncodeFields(fields []Field) ([]byte, error) {
	out := make([]byte, 0)
	for _, f := range fields {
		b, err := EncodeField(f)
		if err != nil {
			return nil, fmt.Errorf("tlv: field %d: %w", f.ID, err)
		}
		out = append(out, b...)
	}
	return out, nil
}

func GetField(fields []Field, id uint16) (Field, bool) {
	for _, f := range fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

func MustType(f Field, expected uint8) error {
	if f.Type != expected {
		return fmt.Errorf("tlv: field %d type mismatch: got %d want %d", f.ID, f.Type, expected)
	}
	return nil
}

// Int values are carried as signed 64-bit big endian.
func PutInt(id uint16, v int) Field {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(int64(v)))
	return Field{ID: id, Type: TypeInt, Value: buf}
}

func PutFloat(id uint16, v float64) Field {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(v))
	return Field{ID: id, Type: TypeFloat, Value: buf}
}

func PutBool(id uint16, v bool) Field {
	b := byte(0)
	if v {
		b = 1
	}
	return Field{ID: id, Type: TypeBool, Value: []byte{b}}
}

func PutString(id uint16, v string) Field {
	return Field{ID: id, Type: TypeString, Value: []byte(v)}
}

func PutEnum(id uint16, v uint8) Field {
	return Field{ID: id, Type: TypeEnum, Value: []byte{v}}
}

func IntFromBytes(b []byte) (int, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("tlv: invalid int length: %d", len(b))
	}
	return int(int64(binary.BigEndian.Uint64(b))), nil
}

func FloatFromBytes(b []byte) (float64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("tlv: invalid float length: %d", len(b))
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

func BoolFromBytes(b []byte) (bool, error) {
	if len(b) != 1 {
		return false, fmt.Errorf("tlv: invalid bool length: %d", len(b))
	}
	switch b[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("tlv: invalid bool value: %d", b[0])
	}
}

func EnumFromBytes(b []byte) (uint8, error) {
	if len(b) != 1 {
		return 0, fmt.Errorf("tlv: invalid enum length: %d", len(b))
	}
	return b[0], nil
}
