package heartbeat

import (
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/shared/clock"
)

// Scheduler runs a task after a delay. runloop.Loop satisfies it.
type Scheduler interface {
	PostDelayed(d time.Duration, task func()) (cancel func() bool)
}

// Transport delivers acknowledgements to the watchdog. Delivery failures are
// the transport's to log; the emitter never retries.
type Transport interface {
	SendAck(sessionID int32, eventID int64)
}

// NoEvent is the tracked id before any event has been handled.
const NoEvent int64 = -1

// State is the emitter's position in the IDLE/PENDING cycle.
type State int

const (
	Idle State = iota
	Pending
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	default:
		return "unknown"
	}
}

// Config tunes heartbeat timing.
type Config struct {
	// AnrTimeoutMs must match the watchdog's timeout.
	AnrTimeoutMs int64
	// MinDelayMs: a remaining budget below this is acknowledged at once.
	MinDelayMs int64
	// MaxDelayMs caps how long a heartbeat may be held back.
	MaxDelayMs int64
	// MarginMs is subtracted from the budget to absorb transport latency.
	MarginMs int64
}

// DefaultConfig returns timing that suits the default watchdog timeout.
func DefaultConfig() Config {
	return Config{
		AnrTimeoutMs: 5000,
		MinDelayMs:   100,
		MaxDelayMs:   4000,
		MarginMs:     500,
	}
}

// Emitter batches acknowledgements for one session channel.
type Emitter struct {
	cfg       Config
	sessionID int32
	clock     clock.Clock
	scheduler Scheduler
	transport Transport
	logger    *logging.Logger

	state         State
	lastProcessed int64
	lastReported  int64
	generation    uint64
	cancel        func() bool
}

// NewEmitter creates an idle emitter for sessionID.
func NewEmitter(cfg Config, sessionID int32, clk clock.Clock, scheduler Scheduler, transport Transport, logger *logging.Logger) *Emitter {
	def := DefaultConfig()
	if cfg.AnrTimeoutMs <= 0 {
		cfg.AnrTimeoutMs = def.AnrTimeoutMs
	}
	if cfg.MaxDelayMs <= 0 {
		cfg.MaxDelayMs = def.MaxDelayMs
	}
	if cfg.MinDelayMs < 0 {
		cfg.MinDelayMs = 0
	}
	if cfg.MarginMs < 0 {
		cfg.MarginMs = 0
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Emitter{
		cfg:       cfg,
		sessionID: sessionID,
		clock:     clk,
		scheduler: scheduler,
		transport: transport,
		logger:    logger.Named("heartbeat").With(logging.Session(sessionID)),

		lastProcessed: NoEvent,
		lastReported:  NoEvent,
	}
}

// NoteEventHandled records that eventID, dispatched at dispatchTime, has
// been handled. Duplicate and out-of-order ids are ignored.
func (e *Emitter) NoteEventHandled(eventID int64, dispatchTime int64) {
	if eventID <= e.lastProcessed {
		e.logger.Debug("ignoring stale event", logging.Event(eventID),
			zap.Int64("last_processed", e.lastProcessed))
		return
	}
	e.lastProcessed = eventID

	if e.state == Pending {
		return
	}

	delay := e.delayFor(dispatchTime)
	e.state = Pending
	gen := e.generation
	e.cancel = e.scheduler.PostDelayed(delay, func() { e.fire(gen) })

	e.logger.Debug("heartbeat scheduled", logging.Event(eventID), zap.Duration("delay", delay))
}

func (e *Emitter) delayFor(dispatchTime int64) time.Duration {
	elapsed := e.clock.NowMs() - dispatchTime
	remaining := e.cfg.AnrTimeoutMs - elapsed - e.cfg.MarginMs
	if remaining < e.cfg.MinDelayMs {
		return 0
	}
	return time.Duration(min(remaining, e.cfg.MaxDelayMs)) * time.Millisecond
}

func (e *Emitter) fire(gen uint64) {
	if gen != e.generation {
		return
	}
	e.state = Idle
	e.cancel = nil

	if e.lastProcessed <= e.lastReported {
		return
	}
	e.lastReported = e.lastProcessed
	e.transport.SendAck(e.sessionID, e.lastReported)
}

// Flush sends any unreported acknowledgement now and cancels the pending
// heartbeat.
func (e *Emitter) Flush() {
	if e.state != Pending {
		return
	}
	if e.cancel != nil {
		e.cancel()
	}
	// The cancelled task may already be queued; a new generation disarms it.
	e.generation++
	e.fire(e.generation)
}

// Reset forgets both tracked ids and returns to idle. A heartbeat already
// scheduled is cancelled and, should it still run, does nothing.
func (e *Emitter) Reset() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.generation++
	e.state = Idle
	e.lastProcessed = NoEvent
	e.lastReported = NoEvent
}

// State returns the current state.
func (e *Emitter) State() State { return e.state }

// LastProcessed returns the newest handled event id.
func (e *Emitter) LastProcessed() int64 { return e.lastProcessed }

// LastReported returns the newest acknowledged event id.
func (e *Emitter) LastReported() int64 { return e.lastReported }
