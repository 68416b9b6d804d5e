package mission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/rfsensor/internal/protocol"
	"github.com/danmuck/rfsensor/internal/sensor"
	"github.com/rs/zerolog/log"
)

const (
	KindRFSensor = "rf_sensor"
	KindPlan     = "plan"
)

// Mission is the behavior a vehicle runs.
type Mission interface {
	Setup(ctx context.Context) error
	// Start sets the vehicle moving along its commands.
	Start() error
	// CheckWaypoint handles the waypoint the vehicle is at and reports
	// whether commands remain.
	CheckWaypoint(ctx context.Context) (bool, error)
	AddCommands() error
	ArmAndTakeoff(ctx context.Context) error
	GetPoints() []Point
}

// Vehicle is the autopilot collaborator. Waypoint indices count points only;
// the takeoff command is not indexed.
type Vehicle interface {
	ClearMission()
	// AddTakeoff reports false for vehicles that do not take off.
	AddTakeoff(altitude float64) bool
	AddWaypoint(p Point, wait bool)
	SetHome(p Point)
	NextWaypoint() int
	SetNextWaypoint(index int)
	CountWaypoints() int
	// IsWaiting reports whether the vehicle holds at a wait point.
	IsWaiting() bool
	ArmAndTakeoff(ctx context.Context, altitude float64) error
	Start() error
}

// Node is the radio node as used by missions.
type Node interface {
	ID() int
	Name() string
	Handle(specification string, fn sensor.HandlerFunc) error
	Enqueue(p *protocol.Packet, to ...int) error
}

// Gate decides whether a WAIT point may be left.
type Gate interface {
	Invalidate(required []int)
	Satisfied(index, peerIndex int) bool
}

type Config struct {
	// Altitude is the operating altitude used for takeoff.
	Altitude float64
	// PollInterval paces ArmAndTakeoff and Run.
	PollInterval time.Duration
	// MeasurementDelay is held at a satisfied WAIT point before moving on.
	MeasurementDelay time.Duration
	DumpFile         string
}

func DefaultConfig() Config {
	return Config{
		Altitude:     0,
		PollInterval: 250 * time.Millisecond,
		DumpFile:     "mission_dump.json",
	}
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultConfig().PollInterval
	}
	return c
}

// Deps are the collaborators a mission is built from.
type Deps struct {
	Config  Config
	Node    Node
	Vehicle Vehicle
	Gate    Gate
	Store   DumpStore
	Plan    *PlanFile
	// ID selects the plan entry for the plan mission when Node is nil.
	ID int
}

// New builds the mission variant named by kind.
func New(kind string, deps Deps) (Mission, error) {
	switch kind {
	case KindRFSensor, "":
		return NewSync(deps)
	case KindPlan:
		return NewPlan(deps)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Run polls CheckWaypoint until the commands are exhausted or ctx ends.
func Run(ctx context.Context, m Mission, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultConfig().PollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		more, err := m.CheckWaypoint(ctx)
		if err != nil {
			return err
		}
		if !more {
			log.Info().Msg("mission.Run commands complete")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// base holds the vehicle command bookkeeping shared by mission variants.
type base struct {
	cfg     Config
	vehicle Vehicle
	gate    Gate

	cmu      sync.Mutex
	commands []command
	altitude float64
}

// resetCommands clears the vehicle and re-inserts the launch entry.
func (b *base) resetCommands() {
	b.vehicle.ClearMission()
	altitude := b.cfg.Altitude
	if !b.vehicle.AddTakeoff(altitude) {
		altitude = 0
	}
	b.cmu.Lock()
	b.commands = nil
	b.altitude = altitude
	b.cmu.Unlock()
}

func (b *base) takeoffAltitude() float64 {
	b.cmu.Lock()
	defer b.cmu.Unlock()
	return b.altitude
}

func (b *base) apply(r Record) {
	if r.Type == WaypointHome {
		b.vehicle.SetHome(r.Point())
		return
	}
	for _, c := range r.commands() {
		b.vehicle.AddWaypoint(c.point, c.wait)
		b.cmu.Lock()
		b.commands = append(b.commands, c)
		b.cmu.Unlock()
	}
}

func (b *base) command(index int) (command, bool) {
	b.cmu.Lock()
	defer b.cmu.Unlock()
	if index < 0 || index >= len(b.commands) {
		return command{}, false
	}
	return b.commands[index], true
}

// armGate points the gate at the first command's required peers.
func (b *base) armGate() {
	if b.gate == nil {
		return
	}
	first, _ := b.command(0)
	b.gate.Invalidate(first.required)
}

// checkWaypoint releases the vehicle from a wait point once the gate is
// satisfied, then reinvalidates the gate for the next point.
func (b *base) checkWaypoint(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	v := b.vehicle
	if v.IsWaiting() {
		index := v.NextWaypoint()
		c, _ := b.command(index)
		if b.gate != nil && c.wait && !b.gate.Satisfied(index, c.peerIndex) {
			return true, nil
		}
		if err := sleepContext(ctx, b.cfg.MeasurementDelay); err != nil {
			return false, err
		}
		v.SetNextWaypoint(index + 1)
		if b.gate != nil {
			next, _ := b.command(index + 1)
			b.gate.Invalidate(next.required)
		}
		log.Info().Int("waypoint", index).Msg("mission.checkWaypoint rendezvous complete")
	}
	return v.NextWaypoint() < v.CountWaypoints(), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
