package sensor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/rfsensor/internal/observability"
	"github.com/danmuck/rfsensor/internal/protocol"
	"github.com/danmuck/rfsensor/internal/protocol/schema"
	"github.com/danmuck/rfsensor/internal/tdma"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// State is the node lifecycle state.
type State string

const (
	StateInactive    State = "inactive"
	StateActivated   State = "activated"
	StateStarted     State = "started"
	StateStopped     State = "stopped"
	StateDeactivated State = "deactivated"
	// StateDisabled means the transport went away under a running node.
	StateDisabled State = "disabled"
	// StateInterrupted means the workers ended on an unexpected fault.
	StateInterrupted State = "interrupted"
)

// Config configures one node.
type Config struct {
	ID           int
	Vehicles     int
	LoopDelay    time.Duration
	SlotDuration time.Duration
	CustomQueue  int
	RelayQueue   int
	// Now is the clock used for scheduling and timestamps.
	Now func() time.Time
}

func DefaultConfig() Config {
	return Config{
		ID:           0,
		Vehicles:     2,
		LoopDelay:    10 * time.Millisecond,
		SlotDuration: 100 * time.Millisecond,
		CustomQueue:  256,
		RelayQueue:   64,
		Now:          time.Now,
	}
}

type outbound struct {
	packet *protocol.Packet
	to     int
}

// Node is one radio participant.
type Node struct {
	cfg       Config
	name      string
	transport Transport
	sched     *tdma.Scheduler
	cb        Callbacks
	logger    zerolog.Logger

	mu         sync.Mutex
	state      State
	activated  bool
	open       bool
	cancel     context.CancelFunc
	done       chan struct{}
	err        error
	supervisor Supervisor

	started atomic.Bool
	custom  chan outbound
	relay   chan *protocol.Packet

	hmu      sync.RWMutex
	handlers map[string]HandlerFunc

	seq      atomic.Uint32
	sent     atomic.Uint64
	received atomic.Uint64
	dropped  atomic.Uint64
}

func NewNode(cfg Config, transport Transport, cb Callbacks) (*Node, error) {
	def := DefaultConfig()
	if cfg.LoopDelay <= 0 {
		cfg.LoopDelay = def.LoopDelay
	}
	if cfg.SlotDuration <= 0 {
		cfg.SlotDuration = def.SlotDuration
	}
	if cfg.CustomQueue <= 0 {
		cfg.CustomQueue = def.CustomQueue
	}
	if cfg.RelayQueue <= 0 {
		cfg.RelayQueue = def.RelayQueue
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if transport == nil {
		return nil, errors.New("sensor: nil transport")
	}
	switch {
	case cb.Location == nil:
		return nil, fmt.Errorf("%w: location", ErrMissingCallback)
	case cb.Receive == nil:
		return nil, fmt.Errorf("%w: receive", ErrMissingCallback)
	case cb.Valid == nil:
		return nil, fmt.Errorf("%w: valid", ErrMissingCallback)
	}
	sched, err := tdma.New(tdma.Config{ID: cfg.ID, Vehicles: cfg.Vehicles, SlotDuration: cfg.SlotDuration})
	if err != nil {
		return nil, err
	}
	observability.RegisterMetrics()
	return &Node{
		cfg:       cfg,
		name:      observability.NodeName(cfg.ID),
		transport: transport,
		sched:     sched,
		cb:        cb,
		logger:    observability.NodeLogger(cfg.ID),
		state:     StateInactive,
		custom:    make(chan outbound, cfg.CustomQueue),
		relay:     make(chan *protocol.Packet, cfg.RelayQueue),
		handlers:  make(map[string]HandlerFunc),
	}, nil
}

func (n *Node) ID() int { return n.cfg.ID }

func (n *Node) Vehicles() int { return n.cfg.Vehicles }

func (n *Node) Name() string { return n.name }

func (n *Node) Scheduler() *tdma.Scheduler { return n.sched }

func (n *Node) SetSupervisor(s Supervisor) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.supervisor = s
}

// Handle registers fn for a public specification.
func (n *Node) Handle(specification string, fn HandlerFunc) error {
	spec, ok := schema.Lookup(specification)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSpecification, specification)
	}
	if spec.Private {
		return fmt.Errorf("%w: %q", ErrPrivateHandler, specification)
	}
	n.hmu.Lock()
	defer n.hmu.Unlock()
	if _, dup := n.handlers[specification]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateHandler, specification)
	}
	n.handlers[specification] = fn
	return nil
}

func (n *Node) handler(specification string) (HandlerFunc, bool) {
	n.hmu.RLock()
	defer n.hmu.RUnlock()
	fn, ok := n.handlers[specification]
	return fn, ok
}

// Activate opens the transport if needed and spawns the loop and receiver.
// It is a no-op on an activated node.
func (n *Node) Activate(ctx context.Context) error {
	n.mu.Lock()
	if n.activated {
		n.mu.Unlock()
		return nil
	}
	prev := n.done
	n.mu.Unlock()
	if prev != nil {
		<-prev
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.activated {
		return nil
	}
	if !n.open {
		if err := n.transport.Open(); err != nil {
			n.logger.Error().Err(err).Msg("sensor.Node.Activate open failed")
			return err
		}
		n.open = true
	}

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return n.guard("loop", func() error { return n.loop(gctx) }) })
	g.Go(func() error { return n.guard("receive", func() error { return n.receiveLoop(gctx) }) })

	done := make(chan struct{})
	n.cancel = cancel
	n.done = done
	n.err = nil
	n.activated = true
	n.setStateLocked()
	go func() {
		err := g.Wait()
		cancel()
		n.finish(err)
		close(done)
	}()
	n.logger.Info().Str("state", string(n.state)).Msg("sensor.Node.Activate")
	return nil
}

// Deactivate stops the workers and closes the transport. It is safe to call
// at any time, including on a node that was never activated.
func (n *Node) Deactivate() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	wasActive := n.activated
	n.activated = false
	if n.cancel != nil {
		n.cancel()
		n.cancel = nil
	}
	var err error
	if n.open {
		err = n.transport.Close()
		n.open = false
	}
	if wasActive || n.state != StateInactive {
		n.state = StateDeactivated
	}
	n.logger.Info().Bool("was_active", wasActive).Msg("sensor.Node.Deactivate")
	return err
}

// Start enables scheduled telemetry and suppresses queued packet sending.
// The slot epoch restarts provisionally at the current time until a peer's
// telemetry is heard.
func (n *Node) Start() {
	n.sched.Begin(n.cfg.Now())
	n.clearRelay()
	n.started.Store(true)
	n.mu.Lock()
	n.setStateLocked()
	n.mu.Unlock()
	n.logger.Info().Msg("sensor.Node.Start")
}

// Stop disables scheduled telemetry and forgets the slot epoch.
func (n *Node) Stop() {
	n.started.Store(false)
	n.sched.Reset()
	n.mu.Lock()
	n.setStateLocked()
	n.mu.Unlock()
	n.logger.Info().Msg("sensor.Node.Stop")
}

func (n *Node) Started() bool { return n.started.Load() }

func (n *Node) setStateLocked() {
	if !n.activated {
		return
	}
	switch {
	case n.started.Load():
		n.state = StateStarted
	case n.state == StateStarted:
		n.state = StateStopped
	case n.state != StateStopped:
		n.state = StateActivated
	}
}

func (n *Node) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Done is closed when the current run's workers have exited.
func (n *Node) Done() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return n.done
}

// Err reports why the last run ended: nil after Deactivate or a cancelled
// activation context, ErrTransportClosed on transport loss, or an
// *InterruptError.
func (n *Node) Err() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.err
}

func (n *Node) finish(err error) {
	n.mu.Lock()
	deactivating := !n.activated
	supervisor := n.supervisor
	switch {
	case deactivating:
		n.err = nil
	case err == nil:
		// the activation context ended without Deactivate
		n.err = nil
		n.activated = false
		if n.open {
			if cerr := n.transport.Close(); cerr != nil {
				n.logger.Warn().Err(cerr).Msg("sensor.Node.finish close transport")
			}
			n.open = false
		}
		n.state = StateDeactivated
	case errors.Is(err, ErrTransportClosed):
		n.err = ErrTransportClosed
		n.activated = false
		n.open = false
		n.state = StateDisabled
	default:
		var ie *InterruptError
		if !errors.As(err, &ie) {
			ie = &InterruptError{Node: n.name, Err: err}
		}
		n.err = ie
		n.activated = false
		n.state = StateInterrupted
	}
	result := n.err
	n.mu.Unlock()

	switch {
	case result == nil:
		n.logger.Debug().Msg("sensor.Node.finish workers stopped")
	case errors.Is(result, ErrTransportClosed):
		n.logger.Warn().Msg("sensor.Node.finish transport closed, node disabled")
	default:
		n.logger.Error().Err(result).Msg("sensor.Node.finish interrupted")
		if supervisor != nil {
			supervisor.Interrupt(n.name, result)
		}
	}
}

// guard turns a panic in a worker into an InterruptError.
func (n *Node) guard(worker string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &InterruptError{Node: n.name, Err: fmt.Errorf("%s panic: %v", worker, r)}
		}
	}()
	return fn()
}

// Discover validates required (vehicle ids only) and probes the transport
// for peers, calling fn for each identity observed.
func (n *Node) Discover(ctx context.Context, fn func(Identity), required []int) error {
	if fn == nil {
		return fmt.Errorf("%w: discovery", ErrMissingCallback)
	}
	for _, id := range required {
		if id < 1 || id > n.cfg.Vehicles {
			return fmt.Errorf("%w: %d", ErrInvalidRequiredSensors, id)
		}
	}
	d, ok := n.transport.(Discoverer)
	if !ok {
		return ErrDiscoveryUnsupported
	}
	if required == nil {
		required = make([]int, 0, n.cfg.Vehicles)
		for id := 1; id <= n.cfg.Vehicles; id++ {
			required = append(required, id)
		}
	}
	return d.Discover(ctx, required, fn)
}
