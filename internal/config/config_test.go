package config

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/rfsensor/internal/testutil/testlog"
)

func TestTemplatesValidate(t *testing.T) {
	testlog.Start(t)
	for _, kind := range []string{"vehicle", "ground"} {
		path := filepath.Join(t.TempDir(), kind+".toml")
		if err := WriteTemplate(path, kind, false); err != nil {
			t.Fatalf("write %s template: %v", kind, err)
		}
		if err := ValidateFile(path); err != nil {
			t.Fatalf("%s template invalid: %v", kind, err)
		}
		if err := WriteTemplate(path, kind, false); err == nil {
			t.Fatalf("expected refusal to overwrite %s", path)
		}
		if err := WriteTemplate(path, kind, true); err != nil {
			t.Fatalf("overwrite: %v", err)
		}
	}
	if _, err := Template("relay"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	testlog.Start(t)
	_, err := Parse([]byte("[sensor]\nid = 1\nslots = 4\n"))
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if !strings.Contains(err.Error(), "slots") {
		t.Fatalf("error should name the unknown key: %v", err)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	testlog.Start(t)
	cfg := File{
		Sensor:    SensorSection{ID: 5, Vehicles: 2, SlotDuration: "fast"},
		Transport: TransportSection{Kind: "serial"},
		Mission:   MissionSection{Kind: "plan"},
		Ground:    GroundSection{Backoff: BackoffSection{Multiplier: 0.5}},
		Status:    StatusSection{Enabled: true},
	}
	err := Validate(cfg)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	for _, want := range []string{
		"sensor.id", "sensor.slot_duration", "transport.kind",
		"mission.plan_file", "ground.backoff.multiplier", "status.addr",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %q in %v", want, err)
		}
	}
	if err := Validate(File{}); err != nil {
		t.Fatalf("empty config must fall back to defaults: %v", err)
	}
}

func TestGroundSessionKeepsDefaults(t *testing.T) {
	testlog.Start(t)
	cfg, err := GroundSection{MaxRetries: 4, AckTimeout: "250ms"}.Session()
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if cfg.MaxRetries != 4 || cfg.AckTimeout != 250*time.Millisecond {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Backoff.InitialDelay != 100*time.Millisecond || cfg.Backoff.Multiplier != 2 {
		t.Fatalf("defaults lost: %+v", cfg.Backoff)
	}
	if _, err := (GroundSection{AckTimeout: "-1s"}).Session(); err == nil {
		t.Fatalf("expected negative duration error")
	}
}
