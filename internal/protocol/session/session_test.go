package session

import (
	"math/rand"
	"testing"
	"time"

	"github.com/danmuck/rfsensor/internal/testutil/testlog"
)

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestNextBackoffDelayJitterRange(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
	}
	rng := rand.New(rand.NewSource(7))
	got := NextBackoffDelay(cfg, 2, rng)
	if got < 250*time.Millisecond || got > 750*time.Millisecond {
		t.Fatalf("jitter out of range: %v", got)
	}
}

func TestConfigWithDefaults(t *testing.T) {
	testlog.Start(t)
	cfg := Config{MaxRetries: 3}.WithDefaults()
	if cfg.MaxRetries != 3 {
		t.Fatalf("explicit max retries overwritten: %d", cfg.MaxRetries)
	}
	if cfg.AckTimeout != DefaultConfig().AckTimeout || cfg.Backoff.InitialDelay <= 0 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestUploadOutboxLifecycle(t *testing.T) {
	testlog.Start(t)
	o := NewUploadOutbox()
	now := time.Unix(1700000000, 0)
	o.Upsert(PendingStep{Vehicle: 2, Step: StepAdd, Index: 0, QueuedAt: now})
	o.Upsert(PendingStep{Vehicle: 1, Step: StepClear, QueuedAt: now})

	due := o.Due(now)
	if len(due) != 2 || due[0].Vehicle != 1 || due[1].Vehicle != 2 {
		t.Fatalf("unattempted steps must be due in vehicle order: %+v", due)
	}

	item, ok := o.MarkAttempt(2, now, now.Add(time.Second), "timeout")
	if !ok || item.Attempts != 1 || item.LastError != "timeout" {
		t.Fatalf("unexpected attempt: %+v ok=%v", item, ok)
	}
	if due := o.Due(now.Add(500 * time.Millisecond)); len(due) != 1 || due[0].Vehicle != 1 {
		t.Fatalf("in-flight step must not be due before deadline: %+v", due)
	}
	if due := o.Due(now.Add(time.Second)); len(due) != 2 {
		t.Fatalf("expired step must be due: %+v", due)
	}

	// same step keeps its attempts, a new index starts over
	o.Upsert(PendingStep{Vehicle: 2, Step: StepAdd, Index: 0, QueuedAt: now})
	if item, _ := o.Get(2); item.Attempts != 1 {
		t.Fatalf("attempts reset on same step: %+v", item)
	}
	o.Upsert(PendingStep{Vehicle: 2, Step: StepAdd, Index: 1, QueuedAt: now})
	if item, _ := o.Get(2); item.Attempts != 0 {
		t.Fatalf("attempts kept across index: %+v", item)
	}

	o.Remove(2)
	if _, ok := o.Get(2); ok || o.Len() != 1 {
		t.Fatalf("step should be removed")
	}
	if list := o.List(); len(list) != 1 || list[0].Step != StepClear {
		t.Fatalf("unexpected list: %+v", list)
	}
}
