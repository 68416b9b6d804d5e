package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/rfsensor/internal/config"
	"github.com/danmuck/rfsensor/internal/ground"
	"github.com/danmuck/rfsensor/internal/mission"
	"github.com/danmuck/rfsensor/internal/sensor"
	"github.com/danmuck/rfsensor/internal/sensor/udp"
	"github.com/danmuck/rfsensor/internal/server"
)

// runtimeConfig is rfsensor.toml resolved onto package defaults.
type runtimeConfig struct {
	Sensor        sensor.Config
	Transport     string
	UDP           udp.Config
	MissionKind   string
	Mission       mission.Config
	PlanFile      string
	Upload        ground.UploaderConfig
	RecordDB      string
	StatusEnabled bool
	Status        server.Config
	LogLevel      string
	LogFile       string
}

func defaultRuntimeConfig() runtimeConfig {
	return runtimeConfig{
		Sensor:      sensor.DefaultConfig(),
		Transport:   config.TransportUDP,
		UDP:         udp.DefaultConfig(),
		MissionKind: mission.KindRFSensor,
		Mission:     mission.DefaultConfig(),
		Upload:      ground.DefaultUploaderConfig(),
		RecordDB:    "measurements.db",
		Status:      server.DefaultConfig(),
		LogLevel:    "info",
	}
}

func loadRuntimeConfig(path string) (runtimeConfig, error) {
	cfg := defaultRuntimeConfig()

	var raw config.File
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return runtimeConfig{}, fmt.Errorf("load rfsensor config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return runtimeConfig{}, fmt.Errorf("%w: unknown keys %v", config.ErrInvalid, undecoded)
	}
	if err := config.Validate(raw); err != nil {
		return runtimeConfig{}, err
	}

	s := raw.Sensor
	if meta.IsDefined("sensor", "id") {
		cfg.Sensor.ID = s.ID
	}
	if meta.IsDefined("sensor", "vehicles") {
		cfg.Sensor.Vehicles = s.Vehicles
	}
	if cfg.Sensor.LoopDelay, err = config.Duration("sensor.loop_delay", s.LoopDelay, cfg.Sensor.LoopDelay); err != nil {
		return runtimeConfig{}, err
	}
	if cfg.Sensor.SlotDuration, err = config.Duration("sensor.slot_duration", s.SlotDuration, cfg.Sensor.SlotDuration); err != nil {
		return runtimeConfig{}, err
	}
	if meta.IsDefined("sensor", "custom_queue") {
		cfg.Sensor.CustomQueue = s.CustomQueue
	}
	if meta.IsDefined("sensor", "relay_queue") {
		cfg.Sensor.RelayQueue = s.RelayQueue
	}

	t := raw.Transport
	if meta.IsDefined("transport", "kind") {
		cfg.Transport = strings.TrimSpace(t.Kind)
	}
	if meta.IsDefined("transport", "ip") {
		cfg.UDP.IP = strings.TrimSpace(t.IP)
	}
	if meta.IsDefined("transport", "port") {
		cfg.UDP.Port = t.Port
	}
	if meta.IsDefined("transport", "buffer_size") {
		cfg.UDP.BufferSize = t.BufferSize
	}
	cfg.UDP.ID = cfg.Sensor.ID

	m := raw.Mission
	if meta.IsDefined("mission", "kind") {
		cfg.MissionKind = strings.TrimSpace(m.Kind)
	}
	if meta.IsDefined("mission", "dump_file") {
		cfg.Mission.DumpFile = strings.TrimSpace(m.DumpFile)
	}
	if meta.IsDefined("mission", "plan_file") {
		cfg.PlanFile = strings.TrimSpace(m.PlanFile)
	}
	if meta.IsDefined("mission", "altitude") {
		cfg.Mission.Altitude = m.Altitude
	}
	if cfg.Mission.PollInterval, err = config.Duration("mission.poll_interval", m.PollInterval, cfg.Mission.PollInterval); err != nil {
		return runtimeConfig{}, err
	}
	if cfg.Mission.MeasurementDelay, err = config.Duration("mission.measurement_delay", m.MeasurementDelay, cfg.Mission.MeasurementDelay); err != nil {
		return runtimeConfig{}, err
	}

	if cfg.Upload.Session, err = raw.Ground.Session(); err != nil {
		return runtimeConfig{}, err
	}
	if meta.IsDefined("ground", "backoff", "jitter") {
		cfg.Upload.Session.Backoff.Jitter = raw.Ground.Backoff.Jitter
	}
	if meta.IsDefined("ground", "record_db") {
		cfg.RecordDB = strings.TrimSpace(raw.Ground.RecordDB)
	}

	if meta.IsDefined("status", "enabled") {
		cfg.StatusEnabled = raw.Status.Enabled
	}
	if meta.IsDefined("status", "addr") {
		cfg.Status.Addr = strings.TrimSpace(raw.Status.Addr)
	}
	if meta.IsDefined("status", "cors_origins") {
		cfg.Status.CORSOrigins = raw.Status.CorsOrigins
	}

	if meta.IsDefined("log", "level") {
		cfg.LogLevel = raw.Log.Level
	}
	if meta.IsDefined("log", "file") {
		cfg.LogFile = strings.TrimSpace(raw.Log.File)
	}
	return cfg, nil
}
