package air

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/rfsensor/internal/sensor"
	"github.com/danmuck/rfsensor/internal/testutil/testlog"
)

func openPort(t *testing.T, m *Medium, id int) *Port {
	t.Helper()
	p := m.Port(id)
	if err := p.Open(); err != nil {
		t.Fatalf("open port %d: %v", id, err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func receiveWithin(t *testing.T, p *Port, d time.Duration) (sensor.Datagram, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return p.Receive(ctx)
}

func TestDeliverToAddressedPort(t *testing.T) {
	testlog.Start(t)
	m := NewMedium(Config{RSSI: func(from, to int) int { return -40 - from - to }})
	a := openPort(t, m, 1)
	b := openPort(t, m, 2)

	if err := a.Send(2, []byte("hello")); err != nil {
		t.Fatalf("send: %v", err)
	}
	dg, err := receiveWithin(t, b, time.Second)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if string(dg.Data) != "hello" || dg.From != 1 || dg.RSSI != -43 {
		t.Fatalf("unexpected datagram: %+v", dg)
	}
	if _, err := receiveWithin(t, a, 20*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("sender must not hear its own frame, got %v", err)
	}
}

func TestLossDropsEverything(t *testing.T) {
	testlog.Start(t)
	m := NewMedium(Config{Loss: 1})
	a := openPort(t, m, 1)
	b := openPort(t, m, 2)
	for i := 0; i < 10; i++ {
		_ = a.Send(2, []byte{byte(i)})
	}
	if _, err := receiveWithin(t, b, 20*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected no delivery, got %v", err)
	}
}

func TestDuplicateDeliversTwice(t *testing.T) {
	testlog.Start(t)
	m := NewMedium(Config{Duplicate: 1})
	a := openPort(t, m, 1)
	b := openPort(t, m, 2)
	_ = a.Send(2, []byte{7})
	for i := 0; i < 2; i++ {
		if _, err := receiveWithin(t, b, time.Second); err != nil {
			t.Fatalf("copy %d: %v", i, err)
		}
	}
}

func TestClosedPortReportsTransportClosed(t *testing.T) {
	testlog.Start(t)
	m := NewMedium(Config{})
	p := m.Port(1)
	if err := p.Send(2, nil); !errors.Is(err, sensor.ErrTransportClosed) {
		t.Fatalf("send before open: %v", err)
	}
	if err := p.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Receive(context.Background())
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case err := <-errCh:
		if !errors.Is(err, sensor.ErrTransportClosed) {
			t.Fatalf("expected ErrTransportClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("receive did not observe close")
	}

	// reopen after close attaches again
	if err := p.Open(); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = p.Close()
}

func TestDuplicateIDRejected(t *testing.T) {
	testlog.Start(t)
	m := NewMedium(Config{})
	openPort(t, m, 1)
	if err := m.Port(1).Open(); err == nil {
		t.Fatalf("expected attach error for duplicate id")
	}
}

func TestDiscoverOpenPorts(t *testing.T) {
	testlog.Start(t)
	m := NewMedium(Config{})
	ground := openPort(t, m, 0)
	openPort(t, m, 2)

	var found []int
	err := ground.Discover(context.Background(), []int{1, 2, 3}, func(id sensor.Identity) {
		found = append(found, id.ID)
	})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(found) != 1 || found[0] != 2 {
		t.Fatalf("unexpected discovery: %v", found)
	}
}
