// Package rendezvous tracks which vehicles hold a valid location measurement
// at which waypoint, and gates WAIT waypoints on that record.
package rendezvous

import (
	"sync"

	"github.com/danmuck/rfsensor/internal/sensor"
	"github.com/rs/zerolog/log"
)

// Position is the local vehicle as seen by the tracker.
type Position interface {
	LocationValid() bool
	NextWaypoint() int
}

// Tracker records measurement progress per sensor id. Progress k means the
// sensor held a valid location at waypoint k, so every waypoint <= k is
// settled for it. Progress is cleared by Invalidate.
type Tracker struct {
	self     int
	vehicles int
	pos      Position

	mu       sync.Mutex
	progress map[int]int
	pairs    map[int]bool
	required []int
}

func NewTracker(self, vehicles int, pos Position) *Tracker {
	t := &Tracker{self: self, vehicles: vehicles, pos: pos}
	t.Invalidate(nil)
	return t
}

// Valid implements sensor.ValidFunc.
func (t *Tracker) Valid(req sensor.ValidityRequest) (bool, bool) {
	valid := t.pos.LocationValid()
	index := t.pos.NextWaypoint()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.recordLocked(t.self, index, valid)
	if req.Broadcast {
		peer, ok := t.progress[req.OtherID]
		return valid, valid && ok && peer >= index
	}
	if req.OtherID > 0 && req.OtherID != t.self {
		t.recordLocked(req.OtherID, req.OtherIndex, req.OtherValid)
		t.pairs[req.OtherID] = req.OtherValidPair
	}
	return valid, false
}

// recordLocked raises progress for id. A sensor heading to index without a
// valid location has still settled every waypoint before it.
func (t *Tracker) recordLocked(id, index int, valid bool) {
	if !valid {
		index--
	}
	if index < 0 {
		return
	}
	if prev, ok := t.progress[id]; ok && prev >= index {
		return
	}
	t.progress[id] = index
}

// Invalidate forgets all progress and sets the sensors the next Satisfied
// check needs. Nil means every vehicle. The local vehicle is always required.
func (t *Tracker) Invalidate(required []int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress = make(map[int]int)
	t.pairs = make(map[int]bool)
	if required == nil {
		required = make([]int, 0, t.vehicles)
		for id := 1; id <= t.vehicles; id++ {
			required = append(required, id)
		}
	}
	t.required = t.required[:0]
	for _, id := range required {
		if id != t.self && id >= 1 && id <= t.vehicles {
			t.required = append(t.required, id)
		}
	}
	log.Debug().Int("sensor_id", t.self).Ints("required", t.required).Msg("rendezvous.Tracker.Invalidate")
}

// Satisfied reports whether the local vehicle is valid at index and every
// required peer has settled peerIndex. A negative peerIndex means peers are
// held to index as well.
func (t *Tracker) Satisfied(index, peerIndex int) bool {
	if peerIndex < 0 {
		peerIndex = index
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if own, ok := t.progress[t.self]; !ok || own < index {
		return false
	}
	for _, id := range t.required {
		if p, ok := t.progress[id]; !ok || p < peerIndex {
			return false
		}
	}
	return true
}

// Progress returns the recorded progress of id, or -1.
func (t *Tracker) Progress(id int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.progress[id]; ok {
		return p
	}
	return -1
}

// Required returns the sensors the gate currently waits for.
func (t *Tracker) Required() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int(nil), t.required...)
}

// Pair reports the last valid_pair flag relayed about id.
func (t *Tracker) Pair(id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pairs[id]
}
