package mission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/rfsensor/internal/observability"
	"github.com/danmuck/rfsensor/internal/protocol"
	"github.com/danmuck/rfsensor/internal/protocol/schema"
	"github.com/rs/zerolog/log"
)

// Sync is the rf_sensor mission: its waypoints arrive from the ground
// station one waypoint_add at a time, strictly in index order.
type Sync struct {
	base
	node  Node
	store DumpStore

	mu        sync.Mutex
	records   []Record
	complete  bool
	nextIndex int
}

// Progress is a snapshot of the sync state.
type Progress struct {
	NextIndex int  `json:"next_index"`
	Complete  bool `json:"complete"`
	Waypoints int  `json:"waypoints"`
}

func NewSync(deps Deps) (*Sync, error) {
	if deps.Node == nil {
		return nil, fmt.Errorf("%w: node", ErrMissingDependency)
	}
	if deps.Vehicle == nil {
		return nil, fmt.Errorf("%w: vehicle", ErrMissingDependency)
	}
	cfg := deps.Config.withDefaults()
	store := deps.Store
	if store == nil {
		if cfg.DumpFile == "" {
			return nil, fmt.Errorf("%w: dump store", ErrMissingDependency)
		}
		store = NewFileStore(cfg.DumpFile)
	}
	return &Sync{
		base:  base{cfg: cfg, vehicle: deps.Vehicle, gate: deps.Gate},
		node:  deps.Node,
		store: store,
	}, nil
}

// Setup registers the packet handlers and restores a saved mission.
func (s *Sync) Setup(ctx context.Context) error {
	handlers := []struct {
		spec string
		fn   func(*protocol.Packet)
	}{
		{schema.WaypointClear, s.handleClear},
		{schema.WaypointAdd, s.handleAdd},
		{schema.WaypointDone, s.handleDone},
	}
	for _, h := range handlers {
		if err := s.node.Handle(h.spec, h.fn); err != nil {
			return fmt.Errorf("mission: register %s: %w", h.spec, err)
		}
	}
	s.Reset()
	s.load()
	return ctx.Err()
}

// Reset clears the in-memory mission. The dump is left alone.
func (s *Sync) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Sync) resetLocked() {
	s.records = nil
	s.complete = false
	s.nextIndex = 0
}

// load restores the dump, which makes the mission complete. Any failure
// leaves the empty state.
func (s *Sync) load() {
	records, err := s.store.Load()
	if err != nil {
		ev := log.Warn()
		if errors.Is(err, ErrNoDump) {
			ev = log.Debug()
		}
		ev.Err(err).Int("sensor_id", s.node.ID()).Msg("mission.Sync.load starting empty")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetCommands()
	for _, r := range records {
		s.addLocked(r)
	}
	s.complete = true
	log.Info().
		Int("sensor_id", s.node.ID()).
		Int("next_index", s.nextIndex).
		Msg("mission.Sync.load restored dump")
}

func (s *Sync) addLocked(r Record) {
	s.records = append(s.records, r)
	s.apply(r)
	s.nextIndex++
}

func (s *Sync) addressed(p *protocol.Packet) bool {
	to, err := p.Int(schema.ToID)
	return err == nil && to == s.node.ID()
}

func (s *Sync) handleClear(p *protocol.Packet) {
	if !s.addressed(p) {
		return
	}
	s.mu.Lock()
	if err := s.store.Remove(); err != nil {
		log.Warn().Err(err).Msg("mission.Sync.handleClear")
	}
	s.resetCommands()
	s.resetLocked()
	next := s.nextIndex
	s.mu.Unlock()

	log.Info().Int("sensor_id", s.node.ID()).Msg("mission.Sync.handleClear")
	s.ack(next, true)
}

func (s *Sync) handleAdd(p *protocol.Packet) {
	if !s.addressed(p) {
		return
	}
	s.mu.Lock()
	index, err := p.Int(schema.Index)
	if err != nil || index != s.nextIndex {
		next := s.nextIndex
		s.mu.Unlock()
		log.Debug().Int("index", index).Int("next_index", next).Msg("mission.Sync.handleAdd out of order")
		s.ack(next, false)
		return
	}
	r, err := RecordFromPacket(p)
	if err != nil {
		next := s.nextIndex
		s.mu.Unlock()
		log.Warn().Err(err).Int("index", index).Msg("mission.Sync.handleAdd rejected")
		s.ack(next, false)
		return
	}
	s.addLocked(r)
	next := s.nextIndex
	s.mu.Unlock()

	log.Debug().Int("index", index).Str("type", r.Type.String()).Msg("mission.Sync.handleAdd accepted")
	s.ack(next, true)
}

func (s *Sync) handleDone(p *protocol.Packet) {
	if !s.addressed(p) {
		return
	}
	s.mu.Lock()
	s.complete = true
	s.nextIndex = len(s.records)
	records := append([]Record(nil), s.records...)
	next := s.nextIndex
	if err := s.store.Save(records); err != nil {
		log.Error().Err(err).Msg("mission.Sync.handleDone dump failed")
	}
	s.mu.Unlock()

	log.Info().Int("sensor_id", s.node.ID()).Int("next_index", next).Msg("mission.Sync.handleDone waypoints complete")
	s.ack(next, true)
}

func (s *Sync) ack(next int, accepted bool) {
	p := protocol.MustPacket(schema.WaypointAck).
		MustSet(schema.NextIndex, next).
		MustSet(schema.SensorID, s.node.ID())
	observability.RecordMissionAck(s.node.Name(), next, accepted)
	if err := s.node.Enqueue(p, 0); err != nil {
		log.Warn().Err(err).Int("next_index", next).Msg("mission.Sync.ack enqueue failed")
	}
}

func (s *Sync) NextIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextIndex
}

func (s *Sync) Complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.complete
}

// Waypoints returns a copy of the accepted records.
func (s *Sync) Waypoints() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

func (s *Sync) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Progress{NextIndex: s.nextIndex, Complete: s.complete, Waypoints: len(s.records)}
}

func (s *Sync) Start() error {
	s.armGate()
	return s.vehicle.Start()
}

func (s *Sync) CheckWaypoint(ctx context.Context) (bool, error) {
	return s.checkWaypoint(ctx)
}

// GetPoints is empty: every point arrives over the network.
func (s *Sync) GetPoints() []Point {
	return nil
}

func (s *Sync) AddCommands() error {
	log.Error().Msg("mission.Sync.AddCommands called directly")
	return ErrCommandsNotSupported
}

// ArmAndTakeoff waits for waypoint_done before arming.
func (s *Sync) ArmAndTakeoff(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for !s.Complete() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	log.Info().Int("sensor_id", s.node.ID()).Msg("mission.Sync.ArmAndTakeoff mission complete")
	return s.vehicle.ArmAndTakeoff(ctx, s.takeoffAltitude())
}
