package sensor

import (
	"fmt"

	"github.com/danmuck/rfsensor/internal/observability"
	"github.com/danmuck/rfsensor/internal/protocol"
)

// Enqueue queues a complete public packet for sending while the node is
// stopped. Without a destination one copy is queued for every other vehicle.
func (n *Node) Enqueue(p *protocol.Packet, to ...int) error {
	if p == nil {
		return ErrNilPacket
	}
	if p.IsPrivate() {
		return fmt.Errorf("%w: %s", ErrPrivatePacket, p.Specification())
	}
	if _, err := p.GetAll(); err != nil {
		return err
	}

	if len(to) == 0 {
		for id := 1; id <= n.cfg.Vehicles; id++ {
			if id == n.cfg.ID {
				continue
			}
			if err := n.push(outbound{packet: p.Clone(), to: id}); err != nil {
				return err
			}
		}
		return nil
	}
	for _, id := range to {
		if id < 0 || id > n.cfg.Vehicles {
			return fmt.Errorf("%w: %d", ErrInvalidDestination, id)
		}
	}
	for i, id := range to {
		item := outbound{packet: p, to: id}
		if i > 0 {
			item.packet = p.Clone()
		}
		if err := n.push(item); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) push(item outbound) error {
	select {
	case n.custom <- item:
		n.logger.Debug().
			Str("specification", item.packet.Specification()).
			Int("to", item.to).
			Msg("sensor.Node.Enqueue")
		return nil
	default:
		observability.RecordPacketDropped(n.name, "custom_full")
		n.dropped.Add(1)
		return ErrQueueFull
	}
}

// pushRelay buffers a ground station packet, dropping the oldest entry when
// the buffer is full.
func (n *Node) pushRelay(p *protocol.Packet) {
	for {
		select {
		case n.relay <- p:
			return
		default:
		}
		select {
		case <-n.relay:
			observability.RecordPacketDropped(n.name, "relay_full")
			n.dropped.Add(1)
		default:
		}
	}
}

func (n *Node) popCustom() (outbound, bool) {
	select {
	case item := <-n.custom:
		return item, true
	default:
		return outbound{}, false
	}
}

func (n *Node) popRelay() (*protocol.Packet, bool) {
	select {
	case p := <-n.relay:
		return p, true
	default:
		return nil, false
	}
}

func (n *Node) clearRelay() {
	for {
		if _, ok := n.popRelay(); !ok {
			return
		}
	}
}
