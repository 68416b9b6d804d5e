package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/danmuck/rfsensor/internal/config"
	"github.com/danmuck/rfsensor/internal/mission"
	"github.com/danmuck/rfsensor/internal/sensor"
	"github.com/danmuck/rfsensor/internal/sensor/air"
	"github.com/danmuck/rfsensor/internal/vehicle"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type simOptions struct {
	Vehicles   int
	PlanPath   string
	Duration   time.Duration
	Slot       time.Duration
	Loss       float64
	Duplicate  float64
	Seed       int64
	Speed      float64
	Dir        string
	StatusAddr string
	LogLevel   string
}

func simCmd() *cobra.Command {
	opts := simOptions{}
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Run a ground station and N vehicles on an in-process radio medium",
		RunE: func(cmd *cobra.Command, args []string) error {
			configureLogging(opts.LogLevel, "")
			return runSim(cmd.Context(), opts)
		},
	}
	f := cmd.Flags()
	f.IntVarP(&opts.Vehicles, "vehicles", "n", 2, "number of vehicles")
	f.StringVarP(&opts.PlanPath, "plan", "p", "", "YAML mission plan; a rendezvous plan is generated when empty")
	f.DurationVarP(&opts.Duration, "duration", "d", 30*time.Second, "how long to run")
	f.DurationVar(&opts.Slot, "slot", 50*time.Millisecond, "TDMA slot duration")
	f.Float64Var(&opts.Loss, "loss", 0, "packet loss probability")
	f.Float64Var(&opts.Duplicate, "duplicate", 0, "packet duplication probability")
	f.Int64Var(&opts.Seed, "seed", 1, "medium random seed")
	f.Float64Var(&opts.Speed, "speed", 2, "vehicle speed in units per second")
	f.StringVar(&opts.Dir, "dir", "", "directory for dumps and the measurement db (temp dir when empty)")
	f.StringVar(&opts.StatusAddr, "status", "", "serve ground station status on this address")
	f.StringVar(&opts.LogLevel, "log-level", "info", "log level")
	return cmd
}

// rendezvousPlan sends every vehicle along its own lane with one WAIT point
// that holds until all vehicles reported it valid.
func rendezvousPlan(vehicles int) *mission.PlanFile {
	plan := &mission.PlanFile{Vehicles: make(map[int][]mission.Record, vehicles)}
	for id := 1; id <= vehicles; id++ {
		lane := float64(id)
		plan.Vehicles[id] = []mission.Record{
			{ToID: id, Index: 0, Latitude: lane, Longitude: 0, Type: mission.WaypointPass, WaitWaypoint: -1},
			{ToID: id, Index: 1, Latitude: lane, Longitude: 4, Type: mission.WaypointWait, WaitCount: 1, WaitWaypoint: -1},
			{ToID: id, Index: 2, Latitude: lane, Longitude: 8, Type: mission.WaypointPass, WaitWaypoint: -1},
		}
	}
	return plan
}

func runSim(ctx context.Context, opts simOptions) error {
	if opts.Vehicles < 1 {
		return fmt.Errorf("sim needs at least one vehicle")
	}
	plan := rendezvousPlan(opts.Vehicles)
	if opts.PlanPath != "" {
		loaded, err := mission.LoadPlan(opts.PlanPath)
		if err != nil {
			return err
		}
		plan = loaded
	}
	dir := opts.Dir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "rfsensor-sim-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Duration)
	defer cancel()
	medium := air.NewMedium(air.Config{Loss: opts.Loss, Duplicate: opts.Duplicate, Seed: opts.Seed})

	base := defaultRuntimeConfig()
	base.Transport = config.TransportAir
	base.Sensor.Vehicles = opts.Vehicles
	base.Sensor.SlotDuration = opts.Slot
	base.Mission.PollInterval = opts.Slot

	g, gctx := errgroup.WithContext(ctx)

	groundCfg := base
	groundCfg.Sensor.ID = 0
	groundCfg.RecordDB = filepath.Join(dir, "measurements.db")
	if opts.StatusAddr != "" {
		groundCfg.StatusEnabled = true
		groundCfg.Status.Addr = opts.StatusAddr
	}
	uploaded := make(chan error, 1)
	g.Go(func() error {
		return runGroundWith(gctx, groundCfg, medium.Port(0), plan, uploaded)
	})

	for id := 1; id <= opts.Vehicles; id++ {
		cfg := base
		cfg.Sensor.ID = id
		cfg.Mission.DumpFile = filepath.Join(dir, fmt.Sprintf("vehicle-%d.json", id))
		v := vehicle.NewSim(vehicle.Config{
			ID:    id,
			Speed: opts.Speed,
			Start: sensor.Location{Latitude: float64(id)},
		})
		var port sensor.Transport = medium.Port(id)
		g.Go(func() error { return runVehicle(gctx, cfg, port, v, nil) })
	}

	go func() {
		select {
		case err := <-uploaded:
			if err != nil {
				log.Error().Err(err).Msg("rfsensorctl sim upload")
				return
			}
			log.Info().Int("vehicles", len(plan.Vehicles)).Msg("rfsensorctl sim upload complete")
		case <-ctx.Done():
		}
	}()

	err := ignoreCanceled(g.Wait())
	log.Info().Str("dir", dir).Msg("rfsensorctl sim finished")
	return err
}
