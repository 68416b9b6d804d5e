package ground

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/rfsensor/internal/mission"
	"github.com/danmuck/rfsensor/internal/observability"
	"github.com/danmuck/rfsensor/internal/protocol"
	"github.com/danmuck/rfsensor/internal/protocol/schema"
	"github.com/danmuck/rfsensor/internal/protocol/session"
	"github.com/danmuck/rfsensor/internal/sensor"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
)

var (
	ErrRetriesExhausted = errors.New("ground: upload retries exhausted")
	ErrUploadRunning    = errors.New("ground: upload already running")
)

// Node is the ground station radio node as used by the uploader.
type Node interface {
	Handle(specification string, fn sensor.HandlerFunc) error
	Enqueue(p *protocol.Packet, to ...int) error
}

type UploaderConfig struct {
	Session session.Config
	// Tick paces retransmission checks.
	Tick time.Duration
	Now  func() time.Time
}

func DefaultUploaderConfig() UploaderConfig {
	return UploaderConfig{
		Session: session.DefaultConfig(),
		Tick:    20 * time.Millisecond,
		Now:     time.Now,
	}
}

type ack struct {
	vehicle   int
	nextIndex int
	at        time.Time
}

// VehicleProgress is the upload state of one vehicle.
type VehicleProgress struct {
	Vehicle  int          `json:"vehicle"`
	Step     session.Step `json:"step,omitempty"`
	Index    int          `json:"index"`
	Total    int          `json:"total"`
	Attempts int          `json:"attempts"`
	Complete bool         `json:"complete"`
	Error    string       `json:"error,omitempty"`
}

// Uploader sends per-vehicle missions as clear, add(next_index)..., done,
// advancing on waypoint_ack and retransmitting on ack timeout.
type Uploader struct {
	node Node
	cfg  UploaderConfig
	rng  *rand.Rand
	acks chan ack

	mu       sync.Mutex
	running  bool
	runID    string
	outbox   *session.UploadOutbox
	plans    map[int][]mission.Record
	started  map[int]time.Time
	progress map[int]VehicleProgress
}

// NewUploader registers the waypoint_ack handler on node.
func NewUploader(node Node, cfg UploaderConfig) (*Uploader, error) {
	def := DefaultUploaderConfig()
	cfg.Session = cfg.Session.WithDefaults()
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	u := &Uploader{
		node:     node,
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		acks:     make(chan ack, 256),
		outbox:   session.NewUploadOutbox(),
		progress: make(map[int]VehicleProgress),
	}
	if err := node.Handle(schema.WaypointAck, u.onAck); err != nil {
		return nil, err
	}
	observability.RegisterMetrics()
	return u, nil
}

func (u *Uploader) onAck(p *protocol.Packet) {
	vehicle, err := p.Int(schema.SensorID)
	if err != nil {
		return
	}
	next, err := p.Int(schema.NextIndex)
	if err != nil {
		return
	}
	select {
	case u.acks <- ack{vehicle: vehicle, nextIndex: next, at: u.cfg.Now()}:
	default:
		log.Warn().Int("sensor_id", vehicle).Msg("ground.Uploader.onAck backlog full")
	}
}

// Upload runs one upload of plans (vehicle id -> records) and blocks until
// every vehicle acknowledged done, a step exhausts its retries, or ctx ends.
func (u *Uploader) Upload(ctx context.Context, plans map[int][]mission.Record) error {
	u.mu.Lock()
	if u.running {
		u.mu.Unlock()
		return ErrUploadRunning
	}
	u.running = true
	u.runID = xid.New().String()
	u.outbox = session.NewUploadOutbox()
	u.plans = make(map[int][]mission.Record, len(plans))
	u.started = make(map[int]time.Time, len(plans))
	u.progress = make(map[int]VehicleProgress, len(plans))
	now := u.cfg.Now()
	for id, records := range plans {
		u.plans[id] = records
		u.started[id] = now
		u.outbox.Upsert(session.PendingStep{Vehicle: id, Step: session.StepClear, QueuedAt: now})
		u.progress[id] = VehicleProgress{Vehicle: id, Step: session.StepClear, Total: len(records)}
	}
	runID := u.runID
	u.mu.Unlock()
	defer func() {
		u.mu.Lock()
		u.running = false
		u.mu.Unlock()
	}()

	// drop acks left over from an earlier run
	for len(u.acks) > 0 {
		<-u.acks
	}
	log.Info().Str("run_id", runID).Int("vehicles", len(plans)).Msg("ground.Uploader.Upload start")

	ticker := time.NewTicker(u.cfg.Tick)
	defer ticker.Stop()
	if err := u.sendDue(); err != nil {
		return err
	}
	for u.outbox.Len() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a := <-u.acks:
			u.handleAck(a)
		case <-ticker.C:
			if err := u.sendDue(); err != nil {
				return err
			}
		}
	}
	log.Info().Str("run_id", runID).Msg("ground.Uploader.Upload complete")
	return nil
}

func (u *Uploader) handleAck(a ack) {
	pending, ok := u.outbox.Get(a.vehicle)
	if !ok {
		return
	}
	records := u.records(a.vehicle)
	switch pending.Step {
	case session.StepClear:
		if a.nextIndex == 0 {
			u.advance(a.vehicle, 0, len(records))
		}
	case session.StepAdd:
		// Acks at or below the pending index are stale: the vehicle has not
		// taken the pending add yet, and the ack timeout resends it.
		if a.nextIndex > pending.Index {
			u.advance(a.vehicle, a.nextIndex, len(records))
		}
	case session.StepDone:
		if a.nextIndex == len(records) && pending.Attempts > 0 && !a.at.Before(pending.LastAttemptAt) {
			u.complete(a.vehicle)
		}
	}
}

func (u *Uploader) advance(vehicle, next, total int) {
	step := session.PendingStep{Vehicle: vehicle, Step: session.StepAdd, Index: next, QueuedAt: u.cfg.Now()}
	if next >= total {
		step.Step = session.StepDone
		step.Index = total
	}
	u.outbox.Upsert(step)
	u.setProgress(step, false, "")
	log.Debug().Int("sensor_id", vehicle).Str("step", string(step.Step)).Int("index", step.Index).Msg("ground.Uploader.advance")
	// send right away instead of waiting for the next tick
	if item, ok := u.outbox.Get(vehicle); ok && item.Attempts == 0 {
		u.send(item)
	}
}

func (u *Uploader) complete(vehicle int) {
	u.outbox.Remove(vehicle)
	u.mu.Lock()
	started := u.started[vehicle]
	p := u.progress[vehicle]
	p.Step = ""
	p.Index = p.Total
	p.Complete = true
	u.progress[vehicle] = p
	u.mu.Unlock()
	observability.RecordUpload(vehicle, u.cfg.Now().Sub(started), true)
	log.Info().Int("sensor_id", vehicle).Int("waypoints", p.Total).Msg("ground.Uploader vehicle complete")
}

func (u *Uploader) sendDue() error {
	for _, item := range u.outbox.Due(u.cfg.Now()) {
		if item.Attempts > u.cfg.Session.MaxRetries {
			err := fmt.Errorf("%w: vehicle %d step %s index %d", ErrRetriesExhausted, item.Vehicle, item.Step, item.Index)
			u.setProgress(item, false, err.Error())
			u.mu.Lock()
			started := u.started[item.Vehicle]
			u.mu.Unlock()
			observability.RecordUpload(item.Vehicle, u.cfg.Now().Sub(started), false)
			log.Error().Err(err).Msg("ground.Uploader.sendDue")
			return err
		}
		if item.Attempts > 0 {
			observability.RecordUploadRetry(item.Vehicle, string(item.Step))
		}
		u.send(item)
	}
	return nil
}

func (u *Uploader) send(item session.PendingStep) {
	var p *protocol.Packet
	switch item.Step {
	case session.StepClear:
		p = protocol.MustPacket(schema.WaypointClear).MustSet(schema.ToID, item.Vehicle)
	case session.StepDone:
		p = protocol.MustPacket(schema.WaypointDone).MustSet(schema.ToID, item.Vehicle)
	default:
		r := u.records(item.Vehicle)[item.Index]
		r.Index = item.Index
		p = r.Packet(item.Vehicle)
	}

	now := u.cfg.Now()
	wait := u.cfg.Session.AckTimeout
	if item.Attempts > 0 {
		wait += session.NextBackoffDelay(u.cfg.Session.Backoff, item.Attempts, u.rng)
	}
	lastErr := ""
	if err := u.node.Enqueue(p, item.Vehicle); err != nil {
		lastErr = err.Error()
		log.Warn().Err(err).Int("sensor_id", item.Vehicle).Msg("ground.Uploader.send")
	}
	if marked, ok := u.outbox.MarkAttempt(item.Vehicle, now, now.Add(wait), lastErr); ok {
		u.setProgress(marked, false, lastErr)
	}
}

func (u *Uploader) records(vehicle int) []mission.Record {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.plans[vehicle]
}

func (u *Uploader) setProgress(item session.PendingStep, complete bool, errText string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	p := u.progress[item.Vehicle]
	p.Vehicle = item.Vehicle
	p.Step = item.Step
	p.Index = item.Index
	p.Attempts = item.Attempts
	p.Complete = complete
	p.Error = errText
	u.progress[item.Vehicle] = p
}

// RunID identifies the current or last upload.
func (u *Uploader) RunID() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.runID
}

// Progress returns per-vehicle upload state sorted by vehicle id.
func (u *Uploader) Progress() []VehicleProgress {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]VehicleProgress, 0, len(u.progress))
	for _, p := range u.progress {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Vehicle < out[j].Vehicle })
	return out
}
