package sensor

import (
	"time"

	"github.com/danmuck/rfsensor/internal/protocol"
	"github.com/danmuck/rfsensor/internal/protocol/schema"
)

func secondsFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromSeconds(s float64) time.Time {
	return time.Unix(0, int64(s*1e9))
}

// createBroadcastPacket builds the complete rssi_broadcast addressed to toID.
func (n *Node) createBroadcastPacket(toID int) *protocol.Packet {
	loc, index := n.cb.Location()
	valid, validPair := n.cb.Valid(ValidityRequest{Broadcast: true, OtherID: toID})

	p := protocol.MustPacket(schema.RSSIBroadcast)
	p.MustSet(schema.Latitude, loc.Latitude).
		MustSet(schema.Longitude, loc.Longitude).
		MustSet(schema.Valid, valid).
		MustSet(schema.ValidPair, validPair).
		MustSet(schema.WaypointIndex, index).
		MustSet(schema.SensorID, n.cfg.ID).
		MustSet(schema.Timestamp, secondsFromTime(n.cfg.Now()))
	return p
}

// createGroundStationPacket repackages a peer broadcast with our own location
// for the ground station. The result is complete except for rssi.
func (n *Node) createGroundStationPacket(b *protocol.Packet) (*protocol.Packet, error) {
	fromID, err := b.Int(schema.SensorID)
	if err != nil {
		return nil, err
	}
	fromLat, err := b.Float(schema.Latitude)
	if err != nil {
		return nil, err
	}
	fromLon, err := b.Float(schema.Longitude)
	if err != nil {
		return nil, err
	}
	fromValid, err := b.Bool(schema.Valid)
	if err != nil {
		return nil, err
	}
	fromValidPair, err := b.Bool(schema.ValidPair)
	if err != nil {
		return nil, err
	}
	fromIndex, err := b.Int(schema.WaypointIndex)
	if err != nil {
		return nil, err
	}

	loc, _ := n.cb.Location()
	toValid, _ := n.cb.Valid(ValidityRequest{
		OtherID:        fromID,
		OtherValid:     fromValid,
		OtherValidPair: fromValidPair,
		OtherIndex:     fromIndex,
	})

	p := protocol.MustPacket(schema.RSSIGroundStation)
	p.MustSet(schema.SensorID, n.cfg.ID).
		MustSet(schema.FromLatitude, fromLat).
		MustSet(schema.FromLongitude, fromLon).
		MustSet(schema.FromValid, fromValid).
		MustSet(schema.ToLatitude, loc.Latitude).
		MustSet(schema.ToLongitude, loc.Longitude).
		MustSet(schema.ToValid, toValid)
	return p, nil
}
