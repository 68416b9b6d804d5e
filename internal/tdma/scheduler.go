package tdma

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrInvalidConfig = errors.New("tdma: invalid config")

// Config sizes one TDMA frame: Vehicles+1 slots of SlotDuration, one per
// node id including the ground station at id 0.
type Config struct {
	ID           int
	Vehicles     int
	SlotDuration time.Duration
}

func (c Config) Validate() error {
	if c.Vehicles < 1 {
		return fmt.Errorf("%w: vehicles must be >= 1, got %d", ErrInvalidConfig, c.Vehicles)
	}
	if c.ID < 0 || c.ID > c.Vehicles {
		return fmt.Errorf("%w: id %d outside 0..%d", ErrInvalidConfig, c.ID, c.Vehicles)
	}
	if c.SlotDuration <= 0 {
		return fmt.Errorf("%w: slot duration must be > 0", ErrInvalidConfig)
	}
	return nil
}

// Scheduler tracks the local estimate of the shared frame epoch.
//
// A scheduler without an epoch never reports being in slot. Begin gives it a
// provisional epoch at the local start time, so nodes started together open
// their windows id slots apart. The first peer timestamp replaces a
// provisional epoch outright; later ones only nudge it.
type Scheduler struct {
	lock sync.Mutex

	cfg         Config
	frameStart  time.Time
	synced      bool
	provisional bool

	// Frame index of the last own-slot send; valid when sent is true.
	lastFrame int64
	sent      bool
}

func New(cfg Config) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{cfg: cfg}, nil
}

func (s *Scheduler) Config() Config {
	return s.cfg
}

func (s *Scheduler) slots() int64 {
	return int64(s.cfg.Vehicles + 1)
}

func (s *Scheduler) frameLen() time.Duration {
	return s.cfg.SlotDuration * time.Duration(s.slots())
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int64) int64 {
	return a - floorDiv(a, b)*b
}

// slotIndex is the absolute slot count since frameStart.
func (s *Scheduler) slotIndex(now time.Time) int64 {
	return floorDiv(int64(now.Sub(s.frameStart)), int64(s.cfg.SlotDuration))
}

func (s *Scheduler) position(now time.Time) (frame int64, owner int) {
	idx := s.slotIndex(now)
	return floorDiv(idx, s.slots()), int(floorMod(idx, s.slots()))
}

// Owner returns the id whose window contains now, or -1 without an epoch.
func (s *Scheduler) Owner(now time.Time) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.synced {
		return -1
	}
	_, owner := s.position(now)
	return owner
}

// InSlot reports whether this node may send at now.
func (s *Scheduler) InSlot(now time.Time) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.inSlot(now)
}

func (s *Scheduler) inSlot(now time.Time) bool {
	if !s.synced {
		return false
	}
	frame, owner := s.position(now)
	if owner != s.cfg.ID {
		return false
	}
	return !s.sent || s.lastFrame != frame
}

// Update records a completed send at now. Repeated calls within one window
// have no further effect.
func (s *Scheduler) Update(now time.Time) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.synced {
		s.frameStart = now.Add(-time.Duration(s.cfg.ID) * s.cfg.SlotDuration)
		s.synced = true
		s.provisional = true
		log.Debug().
			Int("sensor_id", s.cfg.ID).
			Time("frame_start", s.frameStart).
			Msg("tdma.Scheduler.Update anchored epoch")
	}
	frame, _ := s.position(now)
	s.lastFrame = frame
	s.sent = true
}

// Synchronize folds a peer's send timestamp into the local epoch and returns
// when this node should next attempt its own send.
//
// The peer is assumed to send inside its own window, so its epoch estimate
// is peerTimestamp - from*slot. The signed offset to the local epoch is
// wrapped into half a frame, halved, and clamped to half a slot.
func (s *Scheduler) Synchronize(from int, peerTimestamp, now time.Time) time.Time {
	s.lock.Lock()
	defer s.lock.Unlock()

	if from < 0 || from > s.cfg.Vehicles || from == s.cfg.ID {
		return s.nextSlot(now)
	}
	peerStart := peerTimestamp.Add(-time.Duration(from) * s.cfg.SlotDuration)
	if !s.synced || s.provisional {
		s.frameStart = peerStart
		s.synced = true
		s.provisional = false
		s.sent = false
		log.Debug().
			Int("sensor_id", s.cfg.ID).
			Int("from", from).
			Time("frame_start", s.frameStart).
			Msg("tdma.Scheduler.Synchronize adopted peer epoch")
		return s.nextSlot(now)
	}

	frame := int64(s.frameLen())
	offset := int64(peerStart.Sub(s.frameStart))
	offset = floorMod(offset+frame/2, frame) - frame/2

	correction := offset / 2
	limit := int64(s.cfg.SlotDuration / 2)
	if correction > limit {
		correction = limit
	} else if correction < -limit {
		correction = -limit
	}
	s.shift(time.Duration(correction))
	return s.nextSlot(now)
}

// NextSlot returns the earliest instant at or after now at which InSlot
// would report true.
func (s *Scheduler) NextSlot(now time.Time) time.Time {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.nextSlot(now)
}

func (s *Scheduler) nextSlot(now time.Time) time.Time {
	if !s.synced || s.inSlot(now) {
		return now
	}
	frame, _ := s.position(now)
	own := s.frameStart.Add(time.Duration(frame*s.slots()+int64(s.cfg.ID)) * s.cfg.SlotDuration)
	if !own.After(now) {
		own = own.Add(s.frameLen())
	}
	return own
}

// Shift moves the epoch by d.
func (s *Scheduler) Shift(d time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.shift(d)
}

func (s *Scheduler) shift(d time.Duration) {
	s.frameStart = s.frameStart.Add(d)
}

// Anchor sets the epoch explicitly and marks the scheduler synchronized.
func (s *Scheduler) Anchor(frameStart time.Time) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.frameStart = frameStart
	s.synced = true
	s.provisional = false
	s.sent = false
}

// Begin sets a provisional epoch at now: this node's window opens id slots
// later. A peer timestamp received afterwards replaces it.
func (s *Scheduler) Begin(now time.Time) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.frameStart = now
	s.synced = true
	s.provisional = true
	s.sent = false
	s.lastFrame = 0
}

// Reset forgets the epoch so the next start resynchronizes from scratch.
func (s *Scheduler) Reset() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.frameStart = time.Time{}
	s.synced = false
	s.provisional = false
	s.sent = false
	s.lastFrame = 0
}

func (s *Scheduler) FrameStart() time.Time {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.frameStart
}

// Synchronized reports whether the scheduler has an epoch, provisional or not.
func (s *Scheduler) Synchronized() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.synced
}

// Provisional reports whether the epoch is still the locally chosen one.
func (s *Scheduler) Provisional() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.synced && s.provisional
}
