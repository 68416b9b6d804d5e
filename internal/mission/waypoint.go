package mission

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/rfsensor/internal/protocol"
	"github.com/danmuck/rfsensor/internal/protocol/schema"
)

// WaypointType is the type tag carried in waypoint_add.
type WaypointType uint8

const (
	WaypointPass WaypointType = iota
	WaypointWait
	WaypointHome
)

func (t WaypointType) String() string {
	switch t {
	case WaypointPass:
		return "pass"
	case WaypointWait:
		return "wait"
	case WaypointHome:
		return "home"
	default:
		return fmt.Sprintf("waypoint_type(%d)", uint8(t))
	}
}

func (t WaypointType) Valid() bool {
	return t <= WaypointHome
}

// ParseWaypointType accepts a type name or its numeric value.
func ParseWaypointType(raw string) (WaypointType, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	for _, t := range []WaypointType{WaypointPass, WaypointWait, WaypointHome} {
		if raw == t.String() {
			return t, nil
		}
	}
	n, err := strconv.ParseUint(raw, 10, 8)
	if err == nil && WaypointType(n).Valid() {
		return WaypointType(n), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidWaypointType, raw)
}

func (t *WaypointType) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := ParseWaypointType(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t WaypointType) MarshalYAML() (any, error) {
	return t.String(), nil
}

// Point is one coordinate triple.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

// Record is the full field set of one waypoint_add. The dump file is a JSON
// array of records in acceptance order.
type Record struct {
	ToID         int          `json:"to_id"`
	Index        int          `json:"index"`
	Latitude     float64      `json:"latitude"`
	Longitude    float64      `json:"longitude"`
	Altitude     float64      `json:"altitude"`
	Type         WaypointType `json:"type"`
	WaitID       int          `json:"wait_id"`
	WaitCount    int          `json:"wait_count"`
	WaitWaypoint int          `json:"wait_waypoint"`
}

func (r Record) Point() Point {
	return Point{Latitude: r.Latitude, Longitude: r.Longitude, Altitude: r.Altitude}
}

// Packet builds the waypoint_add for vehicle to.
func (r Record) Packet(to int) *protocol.Packet {
	return protocol.MustPacket(schema.WaypointAdd).
		MustSet(schema.ToID, to).
		MustSet(schema.Index, r.Index).
		MustSet(schema.Latitude, r.Latitude).
		MustSet(schema.Longitude, r.Longitude).
		MustSet(schema.Altitude, r.Altitude).
		MustSet(schema.Type, uint8(r.Type)).
		MustSet(schema.WaitID, r.WaitID).
		MustSet(schema.WaitCount, r.WaitCount).
		MustSet(schema.WaitWaypoint, r.WaitWaypoint)
}

// RecordFromPacket decodes a complete waypoint_add.
func RecordFromPacket(p *protocol.Packet) (Record, error) {
	if p.Specification() != schema.WaypointAdd {
		return Record{}, fmt.Errorf("mission: expected %s, got %q", schema.WaypointAdd, p.Specification())
	}
	if _, err := p.GetAll(); err != nil {
		return Record{}, err
	}
	m := p.Map()
	r := Record{
		ToID:         m[schema.ToID].(int),
		Index:        m[schema.Index].(int),
		Latitude:     m[schema.Latitude].(float64),
		Longitude:    m[schema.Longitude].(float64),
		Altitude:     m[schema.Altitude].(float64),
		Type:         WaypointType(m[schema.Type].(uint8)),
		WaitID:       m[schema.WaitID].(int),
		WaitCount:    m[schema.WaitCount].(int),
		WaitWaypoint: m[schema.WaitWaypoint].(int),
	}
	if !r.Type.Valid() {
		return Record{}, fmt.Errorf("%w: %d", ErrInvalidWaypointType, uint8(r.Type))
	}
	return r, nil
}

// command is one vehicle point produced by a record, with its rendezvous
// metadata.
type command struct {
	point Point
	wait  bool
	// required is nil for every other vehicle.
	required  []int
	peerIndex int
}

// commands expands r into vehicle points. PASS gives one point. WAIT gives
// max(1, wait_count) gated points; wait_id selects the peer (> 0), every
// other vehicle (0) or no gate (< 0). HOME gives none.
func (r Record) commands() []command {
	switch r.Type {
	case WaypointHome:
		return nil
	case WaypointWait:
		count := r.WaitCount
		if count < 1 {
			count = 1
		}
		out := make([]command, 0, count)
		for i := 0; i < count; i++ {
			c := command{point: r.Point(), wait: r.WaitID >= 0, peerIndex: -1}
			if r.WaitID > 0 {
				c.required = []int{r.WaitID}
			}
			if c.wait && r.WaitWaypoint >= 0 {
				c.peerIndex = r.WaitWaypoint + i
			}
			out = append(out, c)
		}
		return out
	default:
		return []command{{point: r.Point(), peerIndex: -1}}
	}
}
