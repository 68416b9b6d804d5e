// Package air is an in-process radio medium. Every node gets a Port; a send
// is delivered to the addressed port unless the medium loses it, and may be
// duplicated. It backs the sim command and node tests.
package air

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/danmuck/rfsensor/internal/sensor"
)

// Config tunes link quality.
type Config struct {
	// Loss and Duplicate are probabilities in [0, 1].
	Loss      float64
	Duplicate float64
	// Buffer is the per-port inbox size; overflow is dropped like a busy radio.
	Buffer int
	Seed   int64
	// RSSI reports the signal strength of a delivery. Nil uses a uniform
	// -30..-70 dBm draw.
	RSSI func(from, to int) int
}

// Medium is the shared channel.
type Medium struct {
	cfg   Config
	mu    sync.Mutex
	rng   *rand.Rand
	ports map[int]*Port
}

func NewMedium(cfg Config) *Medium {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	return &Medium{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		ports: make(map[int]*Port),
	}
}

// Port returns the transport endpoint of node id.
func (m *Medium) Port(id int) *Port {
	return &Port{medium: m, id: id}
}

func (m *Medium) attach(p *Port) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if other, ok := m.ports[p.id]; ok && other != p {
		return fmt.Errorf("air: id %d already attached", p.id)
	}
	m.ports[p.id] = p
	return nil
}

func (m *Medium) detach(p *Port) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ports[p.id] == p {
		delete(m.ports, p.id)
	}
}

func (m *Medium) roll() float64 {
	return m.rng.Float64()
}

func (m *Medium) rssi(from, to int) int {
	if m.cfg.RSSI != nil {
		return m.cfg.RSSI(from, to)
	}
	return -(30 + m.rng.Intn(41))
}

func (m *Medium) deliver(from, to int, data []byte) {
	m.mu.Lock()
	dst, ok := m.ports[to]
	if !ok || m.roll() < m.cfg.Loss {
		m.mu.Unlock()
		return
	}
	copies := 1
	if m.roll() < m.cfg.Duplicate {
		copies = 2
	}
	strength := m.rssi(from, to)
	m.mu.Unlock()

	for i := 0; i < copies; i++ {
		buf := make([]byte, len(data))
		copy(buf, data)
		dst.offer(sensor.Datagram{From: from, Data: buf, RSSI: strength})
	}
}

// Port is one node's attachment to the medium.
type Port struct {
	medium *Medium
	id     int

	mu     sync.Mutex
	inbox  chan sensor.Datagram
	closed chan struct{}
	open   bool
}

var _ sensor.Transport = (*Port)(nil)
var _ sensor.Discoverer = (*Port)(nil)

func (p *Port) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open {
		return nil
	}
	if err := p.medium.attach(p); err != nil {
		return err
	}
	p.inbox = make(chan sensor.Datagram, p.medium.cfg.Buffer)
	p.closed = make(chan struct{})
	p.open = true
	return nil
}

func (p *Port) Send(to int, data []byte) error {
	p.mu.Lock()
	open := p.open
	p.mu.Unlock()
	if !open {
		return sensor.ErrTransportClosed
	}
	p.medium.deliver(p.id, to, data)
	return nil
}

func (p *Port) offer(dg sensor.Datagram) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return
	}
	select {
	case p.inbox <- dg:
	default:
	}
}

func (p *Port) Receive(ctx context.Context) (sensor.Datagram, error) {
	p.mu.Lock()
	inbox, closed, open := p.inbox, p.closed, p.open
	p.mu.Unlock()
	if !open {
		return sensor.Datagram{}, sensor.ErrTransportClosed
	}
	select {
	case dg := <-inbox:
		return dg, nil
	case <-closed:
		return sensor.Datagram{}, sensor.ErrTransportClosed
	case <-ctx.Done():
		return sensor.Datagram{}, ctx.Err()
	}
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return nil
	}
	p.open = false
	close(p.closed)
	p.medium.detach(p)
	return nil
}

// Discover reports every required id that currently has an open port.
func (p *Port) Discover(ctx context.Context, required []int, fn func(sensor.Identity)) error {
	for _, id := range required {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.medium.mu.Lock()
		_, ok := p.medium.ports[id]
		p.medium.mu.Unlock()
		if ok {
			fn(sensor.Identity{ID: id, Address: fmt.Sprintf("air:%d", id)})
		}
	}
	return nil
}
