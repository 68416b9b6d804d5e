// Package vehicle provides a simulated ground vehicle that follows mission
// commands on a plane. It stands in for the autopilot in the sim command and
// in tests.
package vehicle

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/danmuck/rfsensor/internal/mission"
	"github.com/danmuck/rfsensor/internal/sensor"
	"github.com/rs/zerolog/log"
)

var ErrNotArmed = errors.New("vehicle: not armed")

type Config struct {
	ID int
	// Speed is in coordinate units per second.
	Speed float64
	// Closeness is the distance at which a point counts as reached.
	Closeness float64
	// Flying vehicles accept a takeoff command.
	Flying bool
	Start  sensor.Location
}

func DefaultConfig() Config {
	return Config{Speed: 5, Closeness: 0.1}
}

type command struct {
	point mission.Point
	wait  bool
}

// Sim is a point vehicle. It moves towards its next command on Step and holds
// at wait points until SetNextWaypoint releases it.
type Sim struct {
	cfg Config

	mu       sync.Mutex
	location sensor.Location
	altitude float64
	home     mission.Point
	takeoff  bool
	commands []command
	next     int
	armed    bool
	running  bool
}

var _ mission.Vehicle = (*Sim)(nil)

func NewSim(cfg Config) *Sim {
	def := DefaultConfig()
	if cfg.Speed <= 0 {
		cfg.Speed = def.Speed
	}
	if cfg.Closeness <= 0 {
		cfg.Closeness = def.Closeness
	}
	return &Sim{
		cfg:      cfg,
		location: cfg.Start,
		home:     mission.Point{Latitude: cfg.Start.Latitude, Longitude: cfg.Start.Longitude},
	}
}

func (s *Sim) ClearMission() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = nil
	s.takeoff = false
	s.next = 0
}

func (s *Sim) AddTakeoff(altitude float64) bool {
	if !s.cfg.Flying {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.takeoff = true
	s.altitude = altitude
	return true
}

func (s *Sim) AddWaypoint(p mission.Point, wait bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, command{point: p, wait: wait})
}

func (s *Sim) SetHome(p mission.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.home = p
}

func (s *Sim) Home() mission.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.home
}

func (s *Sim) NextWaypoint() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

func (s *Sim) SetNextWaypoint(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = index
}

func (s *Sim) CountWaypoints() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.commands)
}

func (s *Sim) reachedLocked() bool {
	if s.next >= len(s.commands) {
		return false
	}
	return s.distanceLocked(s.commands[s.next].point) <= s.cfg.Closeness
}

func (s *Sim) distanceLocked(p mission.Point) float64 {
	return math.Hypot(p.Latitude-s.location.Latitude, p.Longitude-s.location.Longitude)
}

func (s *Sim) IsWaiting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && s.reachedLocked() && s.commands[s.next].wait
}

// LocationValid reports whether the vehicle is parked on its current point,
// which is when a measurement taken there is meaningful.
func (s *Sim) LocationValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && s.reachedLocked()
}

// Location implements sensor.LocationFunc.
func (s *Sim) Location() (sensor.Location, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.location, s.next
}

func (s *Sim) ArmAndTakeoff(ctx context.Context, altitude float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = true
	if s.takeoff {
		s.altitude = altitude
	}
	log.Info().Int("sensor_id", s.cfg.ID).Float64("altitude", s.altitude).Msg("vehicle.Sim.ArmAndTakeoff")
	return nil
}

func (s *Sim) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.armed {
		return ErrNotArmed
	}
	s.running = true
	return nil
}

// Step advances the simulation by dt. Pass points are left as soon as they
// are reached.
func (s *Sim) Step(dt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.next >= len(s.commands) {
		return
	}
	target := s.commands[s.next]
	dist := s.distanceLocked(target.point)
	move := s.cfg.Speed * dt.Seconds()
	if dist <= move || dist <= s.cfg.Closeness {
		s.location = sensor.Location{Latitude: target.point.Latitude, Longitude: target.point.Longitude}
		if !target.wait {
			s.next++
		}
		return
	}
	f := move / dist
	s.location.Latitude += (target.point.Latitude - s.location.Latitude) * f
	s.location.Longitude += (target.point.Longitude - s.location.Longitude) * f
}

// Run steps the simulation every tick until ctx ends.
func (s *Sim) Run(ctx context.Context, tick time.Duration) error {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Step(tick)
		}
	}
}
