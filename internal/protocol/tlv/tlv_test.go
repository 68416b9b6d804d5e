package tlv

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeFieldsRoundTripPreservesUnknown(t *testing.T) {
	in := []Field{
		PutInt(1, -7),
		{ID: 9999, Type: TypeString, Value: []byte{0xAA, 0xBB}}, // unknown field id
	}
	b, err := EncodeFields(in)
	if err != nil {
		t.Fatalf("encode fields: %v", err)
	}
	out, err := DecodeFields(b)
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(out))
	}
	if out[1].ID != 9999 || out[1].Type != TypeString || !bytes.Equal(out[1].Value, []byte{0xAA, 0xBB}) {
		t.Fatalf("unknown field not preserved: %+v", out[1])
	}
	v, err := IntFromBytes(out[0].Value)
	if err != nil || v != -7 {
		t.Fatalf("int mismatch: v=%d err=%v", v, err)
	}
}

func TestScalarHelpers(t *testing.T) {
	f, err := FloatFromBytes(PutFloat(1, 51.5).Value)
	if err != nil || f != 51.5 {
		t.Fatalf("float mismatch: f=%v err=%v", f, err)
	}
	b, err := BoolFromBytes(PutBool(2, true).Value)
	if err != nil || !b {
		t.Fatalf("bool mismatch: b=%v err=%v", b, err)
	}
	e, err := EnumFromBytes(PutEnum(3, 2).Value)
	if err != nil || e != 2 {
		t.Fatalf("enum mismatch: e=%v err=%v", e, err)
	}
	if _, err := BoolFromBytes([]byte{7}); err == nil {
		t.Fatalf("expected invalid bool error")
	}
}

func TestDecodeFieldsMalformedHeaderIsDeterministic(t *testing.T) {
	_, err := DecodeFields([]byte{1, 2, 3})
	if !errors.Is(err, ErrShortFieldHeader) {
		t.Fatalf("expected ErrShortFieldHeader, got %v", err)
	}
}

func TestDecodeFieldsMalformedLengthIsDeterministic(t *testing.T) {
	// id=1, type=string, len=5, value only 2 bytes
	payload := []byte{0, 1, TypeString, 0, 5, 'a', 'b'}
	_, err := DecodeFields(payload)
	if !errors.Is(err, ErrShortFieldValue) {
		t.Fatalf("expected ErrShortFieldValue, got %v", err)
	}
}
