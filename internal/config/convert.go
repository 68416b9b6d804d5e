package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/rfsensor/internal/protocol/session"
)

// Duration parses a config duration; "" yields fallback.
func Duration(field, raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("parse %s: negative duration %s", field, raw)
	}
	return d, nil
}

func checkDuration(add func(string, ...any), field, raw string) {
	if _, err := Duration(field, raw, 0); err != nil {
		add("%v", err)
	}
}

// Session converts the [ground] section into upload reliability settings,
// keeping defaults for anything unset.
func (g GroundSection) Session() (session.Config, error) {
	def := session.DefaultConfig()
	out := def
	if g.MaxRetries > 0 {
		out.MaxRetries = g.MaxRetries
	}
	var err error
	if out.AckTimeout, err = Duration("ground.ack_timeout", g.AckTimeout, def.AckTimeout); err != nil {
		return session.Config{}, err
	}
	if out.Backoff.InitialDelay, err = Duration("ground.backoff.initial_delay", g.Backoff.InitialDelay, def.Backoff.InitialDelay); err != nil {
		return session.Config{}, err
	}
	if out.Backoff.MaxDelay, err = Duration("ground.backoff.max_delay", g.Backoff.MaxDelay, def.Backoff.MaxDelay); err != nil {
		return session.Config{}, err
	}
	if g.Backoff.Multiplier >= 1 {
		out.Backoff.Multiplier = g.Backoff.Multiplier
	}
	return out, nil
}
