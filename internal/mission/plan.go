package mission

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v2"
)

// PlanFile is a per-vehicle waypoint list, used by the ground uploader and
// by the plan mission.
//
//	vehicles:
//	  1:
//	    - {latitude: 0, longitude: 0}
//	    - {latitude: 10, longitude: 0, type: wait, wait_id: 2, wait_waypoint: 1}
type PlanFile struct {
	Vehicles map[int][]Record
}

type planEntry struct {
	Latitude     float64      `yaml:"latitude"`
	Longitude    float64      `yaml:"longitude"`
	Altitude     float64      `yaml:"altitude"`
	Type         WaypointType `yaml:"type"`
	WaitID       *int         `yaml:"wait_id"`
	WaitCount    int          `yaml:"wait_count"`
	WaitWaypoint *int         `yaml:"wait_waypoint"`
}

type planDocument struct {
	Vehicles map[int][]planEntry `yaml:"vehicles"`
}

// ParsePlan decodes a plan document. Omitted wait_id means every other
// vehicle; omitted wait_waypoint holds peers to the same index.
func ParsePlan(data []byte) (*PlanFile, error) {
	var doc planDocument
	if err := yaml.UnmarshalStrict(data, &doc); err != nil {
		return nil, fmt.Errorf("mission: parse plan: %w", err)
	}
	plan := &PlanFile{Vehicles: make(map[int][]Record, len(doc.Vehicles))}
	for id, entries := range doc.Vehicles {
		if id < 1 {
			return nil, fmt.Errorf("mission: plan vehicle id %d must be >= 1", id)
		}
		records := make([]Record, 0, len(entries))
		for i, e := range entries {
			r := Record{
				ToID:         id,
				Index:        i,
				Latitude:     e.Latitude,
				Longitude:    e.Longitude,
				Altitude:     e.Altitude,
				Type:         e.Type,
				WaitCount:    e.WaitCount,
				WaitWaypoint: -1,
			}
			if e.WaitID != nil {
				r.WaitID = *e.WaitID
			}
			if e.WaitWaypoint != nil {
				r.WaitWaypoint = *e.WaitWaypoint
			}
			records = append(records, r)
		}
		plan.Vehicles[id] = records
	}
	return plan, nil
}

func LoadPlan(path string) (*PlanFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mission: read plan: %w", err)
	}
	plan, err := ParsePlan(data)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("path", path).Ints("vehicles", plan.IDs()).Msg("mission.LoadPlan")
	return plan, nil
}

// IDs lists the planned vehicles in ascending order.
func (p *PlanFile) IDs() []int {
	ids := make([]int, 0, len(p.Vehicles))
	for id := range p.Vehicles {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Plan is the fixed mission variant: its points come from a plan file and
// are added to the vehicle in one go.
type Plan struct {
	base
	id      int
	records []Record
}

func NewPlan(deps Deps) (*Plan, error) {
	if deps.Vehicle == nil {
		return nil, fmt.Errorf("%w: vehicle", ErrMissingDependency)
	}
	if deps.Plan == nil {
		return nil, fmt.Errorf("%w: plan", ErrMissingDependency)
	}
	id := deps.ID
	if deps.Node != nil {
		id = deps.Node.ID()
	}
	records, ok := deps.Plan.Vehicles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoPlan, id)
	}
	return &Plan{
		base:    base{cfg: deps.Config.withDefaults(), vehicle: deps.Vehicle, gate: deps.Gate},
		id:      id,
		records: records,
	}, nil
}

func (p *Plan) Setup(ctx context.Context) error {
	return ctx.Err()
}

func (p *Plan) GetPoints() []Point {
	var points []Point
	for _, r := range p.records {
		for _, c := range r.commands() {
			points = append(points, c.point)
		}
	}
	return points
}

// AddCommands replaces the vehicle commands with takeoff and the plan.
func (p *Plan) AddCommands() error {
	p.resetCommands()
	for _, r := range p.records {
		p.apply(r)
	}
	log.Info().Int("sensor_id", p.id).Int("points", p.vehicle.CountWaypoints()).Msg("mission.Plan.AddCommands")
	return nil
}

func (p *Plan) ArmAndTakeoff(ctx context.Context) error {
	if err := p.AddCommands(); err != nil {
		return err
	}
	return p.vehicle.ArmAndTakeoff(ctx, p.takeoffAltitude())
}

func (p *Plan) Start() error {
	p.armGate()
	return p.vehicle.Start()
}

func (p *Plan) CheckWaypoint(ctx context.Context) (bool, error) {
	return p.checkWaypoint(ctx)
}
