package schema

import (
	"fmt"
	"sort"

	"github.com/danmuck/rfsensor/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Kind is the value kind of a declared field. Kinds share their numbering
// with the tlv type ids so a decoded field can be checked directly.
type Kind uint8

const (
	KindInt    Kind = Kind(tlv.TypeInt)
	KindFloat  Kind = Kind(tlv.TypeFloat)
	KindBool   Kind = Kind(tlv.TypeBool)
	KindString Kind = Kind(tlv.TypeString)
	KindEnum   Kind = Kind(tlv.TypeEnum)
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindEnum:
		return "enum"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Specification names.
const (
	RSSIBroadcast     = "rssi_broadcast"
	RSSIGroundStation = "rssi_ground_station"
	WaypointClear     = "waypoint_clear"
	WaypointAdd       = "waypoint_add"
	WaypointDone      = "waypoint_done"
	WaypointAck       = "waypoint_ack"
)

// Field names.
const (
	Latitude      = "latitude"
	Longitude     = "longitude"
	Altitude      = "altitude"
	Valid         = "valid"
	ValidPair     = "valid_pair"
	WaypointIndex = "waypoint_index"
	SensorID      = "sensor_id"
	Timestamp     = "timestamp"
	FromLatitude  = "from_latitude"
	FromLongitude = "from_longitude"
	FromValid     = "from_valid"
	ToLatitude    = "to_latitude"
	ToLongitude   = "to_longitude"
	ToValid       = "to_valid"
	RSSI          = "rssi"
	ToID          = "to_id"
	Index         = "index"
	Type          = "type"
	WaitID        = "wait_id"
	WaitCount     = "wait_count"
	WaitWaypoint  = "wait_waypoint"
	NextIndex     = "next_index"
)

// Wire ids for fields. Ids are global so a field keeps its id across
// specifications.
var fieldIDs = map[string]uint16{
	Latitude:      1,
	Longitude:     2,
	Altitude:      3,
	Valid:         4,
	ValidPair:     5,
	WaypointIndex: 6,
	SensorID:      7,
	Timestamp:     8,
	FromLatitude:  9,
	FromLongitude: 10,
	FromValid:     11,
	ToLatitude:    12,
	ToLongitude:   13,
	ToValid:       14,
	RSSI:          15,
	ToID:          16,
	Index:         17,
	Type:          18,
	WaitID:        19,
	WaitCount:     20,
	WaitWaypoint:  21,
	NextIndex:     22,
}

// FieldSpec declares one field of a specification.
type FieldSpec struct {
	ID   uint16
	Name string
	Kind Kind
}

// Specification is one registry entry.
type Specification struct {
	ID      uint8
	Name    string
	Private bool
	Fields  []FieldSpec
}

// Field looks up a declared field by name.
func (s *Specification) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

func (s *Specification) fieldByID(id uint16) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return FieldSpec{}, false
}

type ValidationError struct {
	Specification string
	FieldID       uint16
	Reason        string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: specification=%s: %s", e.Specification, e.Reason)
	}
	return fmt.Sprintf("schema: specification=%s field=%d: %s", e.Specification, e.FieldID, e.Reason)
}

func field(name string, kind Kind) FieldSpec {
	id, ok := fieldIDs[name]
	if !ok {
		panic("schema: field without wire id: " + name)
	}
	return FieldSpec{ID: id, Name: name, Kind: kind}
}

var (
	byName = map[string]*Specification{}
	byID   = map[uint8]*Specification{}
)

func register(s *Specification) {
	if _, dup := byName[s.Name]; dup {
		panic("schema: duplicate specification " + s.Name)
	}
	if _, dup := byID[s.ID]; dup {
		panic(fmt.Sprintf("schema: duplicate specification id %d", s.ID))
	}
	byName[s.Name] = s
	byID[s.ID] = s
}

func init() {
	register(&Specification{ID: 1, Name: RSSIBroadcast, Private: true, Fields: []FieldSpec{
		field(Latitude, KindFloat),
		field(Longitude, KindFloat),
		field(Valid, KindBool),
		field(ValidPair, KindBool),
		field(WaypointIndex, KindInt),
		field(SensorID, KindInt),
		field(Timestamp, KindFloat),
	}})
	register(&Specification{ID: 2, Name: RSSIGroundStation, Private: true, Fields: []FieldSpec{
		field(SensorID, KindInt),
		field(FromLatitude, KindFloat),
		field(FromLongitude, KindFloat),
		field(FromValid, KindBool),
		field(ToLatitude, KindFloat),
		field(ToLongitude, KindFloat),
		field(ToValid, KindBool),
		field(RSSI, KindInt),
	}})
	register(&Specification{ID: 3, Name: WaypointClear, Fields: []FieldSpec{
		field(ToID, KindInt),
	}})
	register(&Specification{ID: 4, Name: WaypointAdd, Fields: []FieldSpec{
		field(ToID, KindInt),
		field(Index, KindInt),
		field(Latitude, KindFloat),
		field(Longitude, KindFloat),
		field(Altitude, KindFloat),
		field(Type, KindEnum),
		field(WaitID, KindInt),
		field(WaitCount, KindInt),
		field(WaitWaypoint, KindInt),
	}})
	register(&Specification{ID: 5, Name: WaypointDone, Fields: []FieldSpec{
		field(ToID, KindInt),
	}})
	register(&Specification{ID: 6, Name: WaypointAck, Fields: []FieldSpec{
		field(NextIndex, KindInt),
		field(SensorID, KindInt),
	}})
}

// Lookup returns the specification registered under name.
func Lookup(name string) (*Specification, bool) {
	s, ok := byName[name]
	return s, ok
}

// LookupID returns the specification carrying the given wire id.
func LookupID(id uint8) (*Specification, bool) {
	s, ok := byID[id]
	return s, ok
}

// Names lists every registered specification in wire id order.
func Names() []string {
	ids := make([]int, 0, len(byID))
	for id := range byID {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, byID[uint8(id)].Name)
	}
	return names
}

// Validate enforces required fields and required field types for a decoded
// payload. Unknown fields are ignored so newer peers can extend a payload.
// Rejections are logged at debug.
func Validate(spec *Specification, fields []tlv.Field) error {
	for _, req := range spec.Fields {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			log.Debug().
				Str("specification", spec.Name).
				Uint16("field_id", req.ID).
				Msg("schema.Validate missing field")
			return ValidationError{Specification: spec.Name, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != uint8(req.Kind) {
			log.Debug().
				Str("specification", spec.Name).
				Uint16("field_id", req.ID).
				Uint8("got", f.Type).
				Uint8("want", uint8(req.Kind)).
				Msg("schema.Validate type mismatch")
			return ValidationError{Specification: spec.Name, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	return nil
}

// Known reports whether a decoded field id is declared by spec.
func Known(spec *Specification, id uint16) (FieldSpec, bool) {
	return spec.fieldByID(id)
}
