package session

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Step is one phase of a per-vehicle mission upload.
type Step string

const (
	StepClear Step = "clear"
	StepAdd   Step = "add"
	StepDone  Step = "done"
)

// PendingStep tracks one upload step awaiting waypoint_ack.
type PendingStep struct {
	Vehicle       int
	Step          Step
	Index         int
	Attempts      int
	QueuedAt      time.Time
	LastAttemptAt time.Time
	AckDeadlineAt time.Time
	LastError     string
}

// UploadOutbox stores the outstanding step of every vehicle being uploaded.
// A vehicle has at most one step in flight.
type UploadOutbox struct {
	mu    sync.RWMutex
	items map[int]PendingStep
}

func NewUploadOutbox() *UploadOutbox {
	return &UploadOutbox{
		items: make(map[int]PendingStep),
	}
}

// Upsert replaces the vehicle's pending step. Moving to a different step or
// index resets the attempt counter.
func (o *UploadOutbox) Upsert(item PendingStep) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if prev, ok := o.items[item.Vehicle]; ok && prev.Step == item.Step && prev.Index == item.Index {
		item.Attempts = prev.Attempts
	}
	o.items[item.Vehicle] = item
}

func (o *UploadOutbox) MarkAttempt(vehicle int, at, deadline time.Time, lastErr string) (PendingStep, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	item, ok := o.items[vehicle]
	if !ok {
		return PendingStep{}, false
	}
	item.Attempts++
	item.LastAttemptAt = at
	item.AckDeadlineAt = deadline
	item.LastError = strings.TrimSpace(lastErr)
	o.items[vehicle] = item
	return item, true
}

func (o *UploadOutbox) Remove(vehicle int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.items, vehicle)
}

func (o *UploadOutbox) Get(vehicle int) (PendingStep, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	item, ok := o.items[vehicle]
	return item, ok
}

// Due lists steps whose ack deadline has passed at now, or that were never
// attempted.
func (o *UploadOutbox) Due(now time.Time) []PendingStep {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]PendingStep, 0)
	for _, item := range o.items {
		if item.Attempts == 0 || !now.Before(item.AckDeadlineAt) {
			out = append(out, item)
		}
	}
	sortSteps(out)
	return out
}

func (o *UploadOutbox) List() []PendingStep {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]PendingStep, 0, len(o.items))
	for _, item := range o.items {
		out = append(out, item)
	}
	sortSteps(out)
	return out
}

func (o *UploadOutbox) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.items)
}

func sortSteps(items []PendingStep) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].Vehicle < items[j].Vehicle
	})
}
