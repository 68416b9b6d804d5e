package sensor

import (
	"context"
	"errors"

	"github.com/danmuck/rfsensor/internal/observability"
	"github.com/danmuck/rfsensor/internal/protocol"
	"github.com/danmuck/rfsensor/internal/protocol/schema"
)

func (n *Node) receiveLoop(ctx context.Context) error {
	for {
		dg, err := n.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, ErrTransportClosed) {
				return ErrTransportClosed
			}
			return err
		}
		n.process(dg)
	}
}

func (n *Node) process(dg Datagram) {
	p, err := protocol.Unmarshal(dg.Data)
	if err != nil {
		n.logger.Debug().Err(err).Int("from", dg.From).Msg("sensor.Node.process decode failed")
		observability.RecordPacketDropped(n.name, "decode")
		n.dropped.Add(1)
		return
	}
	n.received.Add(1)
	observability.RecordPacketReceived(n.name, p.Specification())

	switch p.Specification() {
	case schema.RSSIBroadcast:
		n.processBroadcast(p, dg.RSSI)
	case schema.RSSIGroundStation:
		if n.cfg.ID == 0 && n.cb.Measurement != nil {
			n.cb.Measurement(p)
		}
	default:
		n.cb.Receive(p)
		if fn, ok := n.handler(p.Specification()); ok {
			fn(p)
		}
	}
}

// processBroadcast resynchronizes the scheduler on a peer's telemetry and
// buffers the measurement for relay to the ground station.
func (n *Node) processBroadcast(p *protocol.Packet, rssi int) {
	if n.cfg.ID <= 0 {
		return
	}
	if n.started.Load() {
		from, err := p.Int(schema.SensorID)
		if err == nil {
			ts, _ := p.Float(schema.Timestamp)
			now := n.cfg.Now()
			next := n.sched.Synchronize(from, timeFromSeconds(ts), now)
			observability.RecordSync(n.name, next.Sub(now))
		}
	}
	gs, err := n.createGroundStationPacket(p)
	if err != nil {
		n.logger.Warn().Err(err).Msg("sensor.Node.processBroadcast")
		return
	}
	gs.MustSet(schema.RSSI, rssi)
	n.pushRelay(gs)
}
