package sensor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/rfsensor/internal/observability"
	"github.com/danmuck/rfsensor/internal/protocol"
)

func (n *Node) loop(ctx context.Context) error {
	timer := time.NewTimer(n.cfg.LoopDelay)
	defer timer.Stop()
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := n.tick(); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		timer.Reset(n.cfg.LoopDelay)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}

// tick runs one iteration of the send arbitration: queued packets while
// stopped, telemetry in our own window while started.
func (n *Node) tick() error {
	if !n.started.Load() {
		return n.sendCustomPackets()
	}
	if n.cfg.ID > 0 && n.sched.InSlot(n.cfg.Now()) {
		if err := n.sendSlot(); err != nil {
			return err
		}
		n.sched.Update(n.cfg.Now())
		observability.RecordSlot(n.name)
	}
	return nil
}

func (n *Node) sendCustomPackets() error {
	for {
		item, ok := n.popCustom()
		if !ok {
			return nil
		}
		if err := n.send(item.packet, item.to); err != nil {
			return err
		}
	}
}

// sendSlot broadcasts telemetry to every other vehicle and then relays
// buffered measurements to the ground station, for as long as the window
// stays open.
func (n *Node) sendSlot() error {
	for to := 1; to <= n.cfg.Vehicles; to++ {
		if !n.sched.InSlot(n.cfg.Now()) {
			return nil
		}
		if to == n.cfg.ID {
			continue
		}
		if err := n.send(n.createBroadcastPacket(to), to); err != nil {
			return err
		}
	}
	for n.sched.InSlot(n.cfg.Now()) {
		p, ok := n.popRelay()
		if !ok {
			return nil
		}
		if err := n.send(p, 0); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) send(p *protocol.Packet, to int) error {
	p.Sequence = n.seq.Add(1)
	data, err := protocol.Marshal(p)
	if err != nil {
		return fmt.Errorf("sensor: marshal %s: %w", p.Specification(), err)
	}
	if err := n.transport.Send(to, data); err != nil {
		if errors.Is(err, ErrTransportClosed) {
			return ErrTransportClosed
		}
		return fmt.Errorf("sensor: send %s to %d: %w", p.Specification(), to, err)
	}
	n.sent.Add(1)
	observability.RecordPacketSent(n.name, p.Specification())
	return nil
}
