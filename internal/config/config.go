package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// File is the on-disk layout of rfsensor.toml. Durations are Go duration
// strings ("100ms").
type File struct {
	Sensor    SensorSection    `toml:"sensor"`
	Transport TransportSection `toml:"transport"`
	Mission   MissionSection   `toml:"mission"`
	Ground    GroundSection    `toml:"ground"`
	Status    StatusSection    `toml:"status"`
	Log       LogSection       `toml:"log"`
}

type SensorSection struct {
	ID           int    `toml:"id"`
	Vehicles     int    `toml:"vehicles"`
	LoopDelay    string `toml:"loop_delay"`
	SlotDuration string `toml:"slot_duration"`
	CustomQueue  int    `toml:"custom_queue"`
	RelayQueue   int    `toml:"relay_queue"`
}

type TransportSection struct {
	Kind       string `toml:"kind"`
	IP         string `toml:"ip"`
	Port       int    `toml:"port"`
	BufferSize int    `toml:"buffer_size"`
}

type MissionSection struct {
	Kind             string  `toml:"kind"`
	DumpFile         string  `toml:"dump_file"`
	PlanFile         string  `toml:"plan_file"`
	Altitude         float64 `toml:"altitude"`
	PollInterval     string  `toml:"poll_interval"`
	MeasurementDelay string  `toml:"measurement_delay"`
}

type GroundSection struct {
	MaxRetries int            `toml:"max_retries"`
	AckTimeout string         `toml:"ack_timeout"`
	RecordDB   string         `toml:"record_db"`
	Backoff    BackoffSection `toml:"backoff"`
}

type BackoffSection struct {
	InitialDelay string  `toml:"initial_delay"`
	Multiplier   float64 `toml:"multiplier"`
	MaxDelay     string  `toml:"max_delay"`
	Jitter       bool    `toml:"jitter"`
}

type StatusSection struct {
	Enabled     bool     `toml:"enabled"`
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
}

type LogSection struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

var ErrInvalid = errors.New("config: invalid")

// Load strictly decodes path; unknown keys are errors.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (File, error) {
	var cfg File
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return File{}, fmt.Errorf("%w: %s", ErrInvalid, strict.String())
		}
		return File{}, fmt.Errorf("config parse failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that are present. Zero values mean "use the
// default" and pass.
func Validate(cfg File) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if cfg.Sensor.Vehicles < 0 {
		add("sensor.vehicles must be >= 1")
	}
	if cfg.Sensor.ID < 0 || (cfg.Sensor.Vehicles > 0 && cfg.Sensor.ID > cfg.Sensor.Vehicles) {
		add("sensor.id must be in 0..vehicles")
	}
	if cfg.Sensor.CustomQueue < 0 || cfg.Sensor.RelayQueue < 0 {
		add("sensor queue sizes must be positive")
	}
	checkDuration(add, "sensor.loop_delay", cfg.Sensor.LoopDelay)
	checkDuration(add, "sensor.slot_duration", cfg.Sensor.SlotDuration)

	switch strings.TrimSpace(cfg.Transport.Kind) {
	case "", TransportUDP, TransportAir:
	default:
		add("transport.kind must be %q or %q", TransportUDP, TransportAir)
	}
	if cfg.Transport.Port < 0 || cfg.Transport.Port > 65535 {
		add("transport.port out of range")
	}
	if cfg.Transport.BufferSize < 0 {
		add("transport.buffer_size must be positive")
	}

	switch strings.TrimSpace(cfg.Mission.Kind) {
	case "", "rf_sensor":
	case "plan":
		if strings.TrimSpace(cfg.Mission.PlanFile) == "" {
			add("mission.plan_file is required for kind \"plan\"")
		}
	default:
		add("mission.kind must be \"rf_sensor\" or \"plan\"")
	}
	if cfg.Mission.Altitude < 0 {
		add("mission.altitude must be >= 0")
	}
	checkDuration(add, "mission.poll_interval", cfg.Mission.PollInterval)
	checkDuration(add, "mission.measurement_delay", cfg.Mission.MeasurementDelay)

	if cfg.Ground.MaxRetries < 0 {
		add("ground.max_retries must be >= 0")
	}
	checkDuration(add, "ground.ack_timeout", cfg.Ground.AckTimeout)
	checkDuration(add, "ground.backoff.initial_delay", cfg.Ground.Backoff.InitialDelay)
	checkDuration(add, "ground.backoff.max_delay", cfg.Ground.Backoff.MaxDelay)
	if cfg.Ground.Backoff.Multiplier != 0 && cfg.Ground.Backoff.Multiplier < 1 {
		add("ground.backoff.multiplier must be >= 1")
	}

	if cfg.Status.Enabled && strings.TrimSpace(cfg.Status.Addr) == "" {
		add("status.addr is required when status is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// ValidateFile loads and validates path.
func ValidateFile(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	return Validate(cfg)
}

const (
	TransportUDP = "udp"
	TransportAir = "air"
)
