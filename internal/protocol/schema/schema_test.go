package schema

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/rfsensor/internal/protocol/tlv"
	"github.com/danmuck/rfsensor/internal/testutil/testlog"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func ackFields() []tlv.Field {
	return []tlv.Field{
		tlv.PutInt(fieldIDs[NextIndex], 3),
		tlv.PutInt(fieldIDs[SensorID], 1),
	}
}

func TestRegistryPrivateSpecifications(t *testing.T) {
	testlog.Start(t)
	for _, name := range Names() {
		spec, ok := Lookup(name)
		if !ok {
			t.Fatalf("lookup %q failed", name)
		}
		want := name == RSSIBroadcast || name == RSSIGroundStation
		if spec.Private != want {
			t.Fatalf("specification %q private=%v want %v", name, spec.Private, want)
		}
		byWire, ok := LookupID(spec.ID)
		if !ok || byWire != spec {
			t.Fatalf("lookup by id %d mismatch", spec.ID)
		}
	}
	if len(Names()) != 6 {
		t.Fatalf("expected 6 specifications, got %v", Names())
	}
}

func TestRegistryFieldKinds(t *testing.T) {
	testlog.Start(t)
	add, _ := Lookup(WaypointAdd)
	f, ok := add.Field(Type)
	if !ok || f.Kind != KindEnum {
		t.Fatalf("waypoint_add type field: %+v ok=%v", f, ok)
	}
	if _, ok := add.Field(Valid); ok {
		t.Fatalf("waypoint_add must not declare valid")
	}
	gs, _ := Lookup(RSSIGroundStation)
	if f, ok := gs.Field(RSSI); !ok || f.Kind != KindInt {
		t.Fatalf("rssi_ground_station rssi field: %+v ok=%v", f, ok)
	}
}

func TestValidateAck(t *testing.T) {
	testlog.Start(t)
	spec, _ := Lookup(WaypointAck)
	if err := Validate(spec, ackFields()); err != nil {
		t.Fatalf("validate ack: %v", err)
	}
}

func TestValidateUnknownFieldsIgnored(t *testing.T) {
	testlog.Start(t)
	spec, _ := Lookup(WaypointAck)
	fields := append(ackFields(), tlv.Field{ID: 9999, Type: tlv.TypeString, Value: []byte{0x01}})
	if err := Validate(spec, fields); err != nil {
		t.Fatalf("validate with unknown field: %v", err)
	}
}

func TestValidateMissingRequiredDeterministic(t *testing.T) {
	testlog.Start(t)
	spec, _ := Lookup(WaypointAck)
	err := Validate(spec, ackFields()[:1])
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.FieldID != fieldIDs[SensorID] || ve.Reason != "missing required field" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateTypeMismatchDeterministic(t *testing.T) {
	testlog.Start(t)
	spec, _ := Lookup(WaypointAck)
	fields := []tlv.Field{
		tlv.PutInt(fieldIDs[NextIndex], 3),
		tlv.PutFloat(fieldIDs[SensorID], 1),
	}
	err := Validate(spec, fields)
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.FieldID != fieldIDs[SensorID] || ve.Reason != "type mismatch" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateRejectionsStayBelowInfo(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf).Level(zerolog.InfoLevel)
	defer func() { log.Logger = prev }()

	spec, _ := Lookup(WaypointAck)
	if err := Validate(spec, nil); err == nil {
		t.Fatalf("expected missing field error")
	}
	mismatch := []tlv.Field{tlv.PutFloat(fieldIDs[NextIndex], 3)}
	if err := Validate(spec, mismatch); err == nil {
		t.Fatalf("expected type mismatch error")
	}
	if buf.Len() != 0 {
		t.Fatalf("rejected frames logged at info or above: %s", buf.String())
	}
}
