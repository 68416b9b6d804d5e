package sensor_test

import (
	"context"
	"testing"
	"time"

	"github.com/danmuck/rfsensor/internal/protocol"
	"github.com/danmuck/rfsensor/internal/protocol/schema"
	"github.com/danmuck/rfsensor/internal/sensor"
	"github.com/danmuck/rfsensor/internal/sensor/air"
	"github.com/danmuck/rfsensor/internal/testutil/testlog"
)

func simNode(t *testing.T, m *air.Medium, id, vehicles int, measure sensor.MeasurementFunc) *sensor.Node {
	t.Helper()
	cfg := sensor.DefaultConfig()
	cfg.ID = id
	cfg.Vehicles = vehicles
	cfg.LoopDelay = time.Millisecond
	cfg.SlotDuration = 20 * time.Millisecond
	n, err := sensor.NewNode(cfg, m.Port(id), sensor.Callbacks{
		Location:    func() (sensor.Location, int) { return sensor.Location{Latitude: float64(id)}, 0 },
		Receive:     func(*protocol.Packet) {},
		Valid:       func(sensor.ValidityRequest) (bool, bool) { return true, true },
		Measurement: measure,
	})
	if err != nil {
		t.Fatalf("node %d: %v", id, err)
	}
	if err := n.Activate(context.Background()); err != nil {
		t.Fatalf("activate %d: %v", id, err)
	}
	t.Cleanup(func() {
		_ = n.Deactivate()
		<-n.Done()
	})
	return n
}

func TestGroundStationCollectsRelayedMeasurements(t *testing.T) {
	testlog.Start(t)
	m := air.NewMedium(air.Config{RSSI: func(from, to int) int { return -50 }})
	measurements := make(chan *protocol.Packet, 64)

	simNode(t, m, 0, 2, func(p *protocol.Packet) {
		select {
		case measurements <- p:
		default:
		}
	})
	simNode(t, m, 1, 2, nil).Start()
	simNode(t, m, 2, 2, nil).Start()

	select {
	case p := <-measurements:
		id, _ := p.Int(schema.SensorID)
		rssi, _ := p.Int(schema.RSSI)
		if id != 1 && id != 2 {
			t.Fatalf("unexpected relaying sensor %d", id)
		}
		if rssi != -50 {
			t.Fatalf("unexpected rssi %d", rssi)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("ground station received no measurement")
	}
}

func TestStoppedVehicleDeliversQueuedMissionPacket(t *testing.T) {
	testlog.Start(t)
	m := air.NewMedium(air.Config{})
	ground := simNode(t, m, 0, 1, nil)
	vehicle := simNode(t, m, 1, 1, nil)

	got := make(chan int, 1)
	if err := vehicle.Handle(schema.WaypointClear, func(p *protocol.Packet) {
		to, _ := p.Int(schema.ToID)
		got <- to
	}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	packet := protocol.MustPacket(schema.WaypointClear).MustSet(schema.ToID, 1)
	if err := ground.Enqueue(packet, 1); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case to := <-got:
		if to != 1 {
			t.Fatalf("unexpected to_id %d", to)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("vehicle did not receive the queued packet")
	}
}
