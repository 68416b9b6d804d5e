package udp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/rfsensor/internal/sensor"
	"github.com/danmuck/rfsensor/internal/testutil/testlog"
)

const basePort = 27400

func openTransport(t *testing.T, id int) *Transport {
	t.Helper()
	tr := New(Config{ID: id, IP: "127.0.0.1", Port: basePort})
	if err := tr.Open(); err != nil {
		t.Skipf("udp unavailable: %v", err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestSendReceiveMapsPortToID(t *testing.T) {
	testlog.Start(t)
	a := openTransport(t, 1)
	b := openTransport(t, 2)

	if err := a.Send(2, []byte("frame")); err != nil {
		t.Fatalf("send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	dg, err := b.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if string(dg.Data) != "frame" || dg.From != 1 {
		t.Fatalf("unexpected datagram: %+v", dg)
	}
	if dg.RSSI > -30 || dg.RSSI < -70 {
		t.Fatalf("rssi out of range: %d", dg.RSSI)
	}
}

func TestReceiveHonorsContext(t *testing.T) {
	testlog.Start(t)
	a := openTransport(t, 3)
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if _, err := a.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestClosedTransport(t *testing.T) {
	testlog.Start(t)
	a := openTransport(t, 4)
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := a.Send(1, []byte{1}); !errors.Is(err, sensor.ErrTransportClosed) {
		t.Fatalf("send after close: %v", err)
	}
	if _, err := a.Receive(context.Background()); !errors.Is(err, sensor.ErrTransportClosed) {
		t.Fatalf("receive after close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestDiscoverBoundPorts(t *testing.T) {
	testlog.Start(t)
	ground := openTransport(t, 0)
	openTransport(t, 5)

	var found []int
	if err := ground.Discover(context.Background(), []int{5, 6}, func(id sensor.Identity) {
		found = append(found, id.ID)
	}); err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(found) != 1 || found[0] != 5 {
		t.Fatalf("unexpected discovery: %v", found)
	}
}
