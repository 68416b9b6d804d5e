// Package udp carries node frames over UDP on one host or LAN: node id binds
// port+id, so a destination id maps directly to a port.
package udp

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/danmuck/rfsensor/internal/sensor"
	"github.com/rs/zerolog/log"
)

const pollInterval = 100 * time.Millisecond

type Config struct {
	ID         int
	IP         string
	Port       int
	BufferSize int
}

func DefaultConfig() Config {
	return Config{
		IP:         "127.0.0.1",
		Port:       10100,
		BufferSize: 1500,
	}
}

// Transport is a sensor.Transport over one UDP socket. UDP has no signal
// strength, so received datagrams carry a simulated -30..-70 dBm value.
type Transport struct {
	cfg Config

	mu   sync.Mutex
	conn *net.UDPConn
	rng  *rand.Rand
}

var _ sensor.Transport = (*Transport)(nil)
var _ sensor.Discoverer = (*Transport)(nil)

func New(cfg Config) *Transport {
	def := DefaultConfig()
	if cfg.IP == "" {
		cfg.IP = def.IP
	}
	if cfg.Port <= 0 {
		cfg.Port = def.Port
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	return &Transport{cfg: cfg, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (t *Transport) addr(id int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP(t.cfg.IP), Port: t.cfg.Port + id}
}

// Address is the local listen address of this node.
func (t *Transport) Address() string {
	return t.addr(t.cfg.ID).String()
}

func (t *Transport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return nil
	}
	conn, err := net.ListenUDP("udp", t.addr(t.cfg.ID))
	if err != nil {
		return fmt.Errorf("udp: listen %s: %w", t.addr(t.cfg.ID), err)
	}
	t.conn = conn
	log.Debug().Int("sensor_id", t.cfg.ID).Str("addr", conn.LocalAddr().String()).Msg("udp.Transport.Open")
	return nil
}

func (t *Transport) current() *net.UDPConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

func (t *Transport) Send(to int, data []byte) error {
	conn := t.current()
	if conn == nil {
		return sensor.ErrTransportClosed
	}
	if _, err := conn.WriteToUDP(data, t.addr(to)); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return sensor.ErrTransportClosed
		}
		return err
	}
	return nil
}

// Receive polls the socket with a short read deadline so ctx cancellation is
// observed promptly.
func (t *Transport) Receive(ctx context.Context) (sensor.Datagram, error) {
	buf := make([]byte, t.cfg.BufferSize)
	for {
		conn := t.current()
		if conn == nil {
			return sensor.Datagram{}, sensor.ErrTransportClosed
		}
		if err := ctx.Err(); err != nil {
			return sensor.Datagram{}, err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pollInterval))
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			switch {
			case errors.As(err, &ne) && ne.Timeout():
				continue
			case errors.Is(err, net.ErrClosed):
				return sensor.Datagram{}, sensor.ErrTransportClosed
			case errors.Is(err, syscall.ECONNREFUSED):
				continue
			default:
				return sensor.Datagram{}, err
			}
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		return sensor.Datagram{From: from.Port - t.cfg.Port, Data: data, RSSI: t.signal()}, nil
	}
}

func (t *Transport) signal() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return -(30 + t.rng.Intn(41))
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// Discover reports required ids whose port is already bound by another
// process, which is how a live node shows up on this transport.
func (t *Transport) Discover(ctx context.Context, required []int, fn func(sensor.Identity)) error {
	for _, id := range required {
		if err := ctx.Err(); err != nil {
			return err
		}
		if id == t.cfg.ID {
			continue
		}
		probe, err := net.ListenUDP("udp", t.addr(id))
		if err == nil {
			_ = probe.Close()
			continue
		}
		if errors.Is(err, syscall.EADDRINUSE) {
			fn(sensor.Identity{ID: id, Address: t.addr(id).String()})
		}
	}
	return nil
}
