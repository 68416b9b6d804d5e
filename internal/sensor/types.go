package sensor

import (
	"context"

	"github.com/danmuck/rfsensor/internal/protocol"
)

// Location is a planar coordinate reported by the vehicle.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LocationFunc reports the current location and the index of the waypoint the
// vehicle is heading to.
type LocationFunc func() (Location, int)

// ReceiveFunc observes every public inbound packet.
type ReceiveFunc func(*protocol.Packet)

// ValidityRequest describes one validity query. Broadcast is true while
// building an rssi_broadcast for OtherID, false while building the ground
// station packet for a broadcast received from OtherID.
type ValidityRequest struct {
	Broadcast      bool
	OtherID        int
	OtherValid     bool
	OtherValidPair bool
	OtherIndex     int
}

// ValidFunc reports whether our location is valid and, for broadcasts,
// whether the pair with OtherID is valid on both ends.
type ValidFunc func(ValidityRequest) (valid bool, validPair bool)

// MeasurementFunc receives rssi_ground_station packets at the ground station.
type MeasurementFunc func(*protocol.Packet)

// HandlerFunc handles one public specification.
type HandlerFunc func(*protocol.Packet)

// Callbacks is the collaborator contract of a node. Location, Receive and
// Valid are required.
type Callbacks struct {
	Location    LocationFunc
	Receive     ReceiveFunc
	Valid       ValidFunc
	Measurement MeasurementFunc
}

// Datagram is one frame as delivered by a transport.
type Datagram struct {
	From int
	Data []byte
	RSSI int
}

// Transport is the byte link under a node. Receive blocks until a datagram
// arrives, ctx ends or the transport is closed; after Close every call
// returns ErrTransportClosed.
type Transport interface {
	Open() error
	Send(to int, data []byte) error
	Receive(ctx context.Context) (Datagram, error)
	Close() error
}

// Identity is a discovered peer.
type Identity struct {
	ID      int    `json:"id"`
	Address string `json:"address"`
}

// Discoverer is implemented by transports that can probe for peers.
type Discoverer interface {
	Discover(ctx context.Context, required []int, fn func(Identity)) error
}

// Supervisor receives faults that ended a node's workers.
type Supervisor interface {
	Interrupt(name string, err error)
}

// SupervisorFunc adapts a function to Supervisor.
type SupervisorFunc func(name string, err error)

func (f SupervisorFunc) Interrupt(name string, err error) { f(name, err) }
