package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/rfsensor/internal/ground"
	"github.com/danmuck/rfsensor/internal/mission"
	"github.com/danmuck/rfsensor/internal/protocol"
	"github.com/danmuck/rfsensor/internal/rendezvous"
	"github.com/danmuck/rfsensor/internal/sensor"
	"github.com/danmuck/rfsensor/internal/sensor/udp"
	"github.com/danmuck/rfsensor/internal/server"
	"github.com/danmuck/rfsensor/internal/vehicle"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const vehicleTick = 50 * time.Millisecond

func newUDP(cfg runtimeConfig) sensor.Transport {
	c := cfg.UDP
	c.ID = cfg.Sensor.ID
	return udp.New(c)
}

func newSimVehicle(cfg runtimeConfig, speed float64) *vehicle.Sim {
	return vehicle.NewSim(vehicle.Config{
		ID:     cfg.Sensor.ID,
		Speed:  speed,
		Flying: cfg.Mission.Altitude > 0,
	})
}

func loadPlan(path string) (*mission.PlanFile, error) {
	if path == "" {
		return nil, nil
	}
	return mission.LoadPlan(path)
}

func loadPlanFor(cfg runtimeConfig) (*mission.PlanFile, error) {
	if cfg.MissionKind != mission.KindPlan {
		return nil, nil
	}
	if cfg.PlanFile == "" {
		return nil, fmt.Errorf("%w: plan file", mission.ErrMissingDependency)
	}
	return mission.LoadPlan(cfg.PlanFile)
}

// supervise turns node faults into a group error.
func supervise(ctx context.Context, g *errgroup.Group, node *sensor.Node) {
	faults := make(chan error, 1)
	node.SetSupervisor(sensor.SupervisorFunc(func(name string, err error) {
		select {
		case faults <- fmt.Errorf("%s: %w", name, err):
		default:
		}
	}))
	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case err := <-faults:
			return err
		case <-node.Done():
			if err := node.Err(); err != nil && ctx.Err() == nil {
				return fmt.Errorf("%s stopped: %w", node.Name(), err)
			}
			return nil
		}
	})
}

func runVehicle(ctx context.Context, cfg runtimeConfig, transport sensor.Transport, v *vehicle.Sim, plan *mission.PlanFile) error {
	tracker := rendezvous.NewTracker(cfg.Sensor.ID, cfg.Sensor.Vehicles, v)
	node, err := sensor.NewNode(cfg.Sensor, transport, sensor.Callbacks{
		Location: v.Location,
		Receive:  func(*protocol.Packet) {},
		Valid:    tracker.Valid,
	})
	if err != nil {
		return err
	}
	m, err := mission.New(cfg.MissionKind, mission.Deps{
		Config:  cfg.Mission,
		Node:    node,
		Vehicle: v,
		Gate:    tracker,
		Store:   mission.NewFileStore(cfg.Mission.DumpFile),
		Plan:    plan,
	})
	if err != nil {
		return err
	}
	if err := m.Setup(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if err := node.Activate(gctx); err != nil {
		return err
	}
	defer func() { _ = node.Deactivate() }()
	supervise(gctx, g, node)

	g.Go(func() error { return v.Run(gctx, vehicleTick) })
	g.Go(func() error {
		if err := m.ArmAndTakeoff(gctx); err != nil {
			return ignoreCanceled(err)
		}
		node.Start()
		if err := m.Start(); err != nil {
			return err
		}
		log.Info().Int("sensor_id", node.ID()).Msg("rfsensorctl vehicle mission started")
		if err := mission.Run(gctx, m, cfg.Mission.PollInterval); err != nil {
			return ignoreCanceled(err)
		}
		// keep measuring at the final point until shutdown
		<-gctx.Done()
		return nil
	})

	if cfg.StatusEnabled {
		src := server.Sources{Node: node.Status}
		if s, ok := m.(*mission.Sync); ok {
			src.Mission = s.Progress
		}
		srv := server.New(node.Name(), cfg.Status, src)
		g.Go(func() error { return srv.Serve(gctx) })
	}
	return ignoreCanceled(g.Wait())
}

// runGround uploads plan (when given) and records measurements until ctx ends.
func runGround(ctx context.Context, cfg runtimeConfig, transport sensor.Transport, plan *mission.PlanFile) error {
	return runGroundWith(ctx, cfg, transport, plan, nil)
}

// runGroundWith is runGround reporting the upload result on uploaded, which
// may be nil.
func runGroundWith(ctx context.Context, cfg runtimeConfig, transport sensor.Transport, plan *mission.PlanFile, uploaded chan<- error) error {
	recorder, err := ground.OpenRecorder(cfg.RecordDB)
	if err != nil {
		return err
	}
	defer recorder.Close()

	node, err := sensor.NewNode(cfg.Sensor, transport, sensor.Callbacks{
		Location:    func() (sensor.Location, int) { return sensor.Location{}, 0 },
		Receive:     func(*protocol.Packet) {},
		Valid:       func(sensor.ValidityRequest) (bool, bool) { return false, false },
		Measurement: recorder.MeasurementFunc(),
	})
	if err != nil {
		return err
	}
	uploader, err := ground.NewUploader(node, cfg.Upload)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if err := node.Activate(gctx); err != nil {
		return err
	}
	defer func() { _ = node.Deactivate() }()
	supervise(gctx, g, node)

	if plan != nil {
		g.Go(func() error {
			err := uploader.Upload(gctx, plan.Vehicles)
			if uploaded != nil {
				uploaded <- err
				close(uploaded)
			}
			if err != nil {
				return ignoreCanceled(err)
			}
			log.Info().Str("run_id", uploader.RunID()).Msg("rfsensorctl ground upload complete")
			return nil
		})
	}

	if cfg.StatusEnabled {
		srv := server.New(node.Name(), cfg.Status, server.Sources{
			Node:         node.Status,
			Uploads:      uploader.Progress,
			Measurements: recorder.List,
		})
		g.Go(func() error { return srv.Serve(gctx) })
	}

	err = ignoreCanceled(g.Wait())
	countCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if n, cerr := recorder.Count(countCtx); cerr == nil {
		log.Info().Int("measurements", n).Str("run_id", recorder.RunID()).Msg("rfsensorctl ground recorder")
	}
	if errors.Is(err, ground.ErrRetriesExhausted) {
		return fmt.Errorf("mission upload failed: %w", err)
	}
	return err
}
