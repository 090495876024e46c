package timer

import (
	"errors"
	"math"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/shared/clock"
)

// None is the sentinel id returned when a timer could not be added.
const None = -1

// RepeatForever makes a timer fire until it is removed.
const RepeatForever = 0

// Config bounds the engine.
type Config struct {
	MinIntervalMs int64
	MaxIntervalMs int64
	Slots         int
}

// DefaultConfig returns the limits used by the watchdog.
func DefaultConfig() Config {
	return Config{
		MinIntervalMs: 50,
		MaxIntervalMs: 10000,
		Slots:         64,
	}
}

// Timer is a single armed deadline. Only the Engine mutates it.
type Timer struct {
	id            int
	intervalMs    int64
	repeatCount   int
	callbackCount int
	nextFireAt    int64
	callback      func()
}

// Engine is an ordered collection of deadlines.
type Engine struct {
	cfg    Config
	clock  clock.Clock
	logger *logging.Logger

	timers []*Timer // ascending by nextFireAt
	inUse  []bool
}

// NewEngine creates an empty engine.
func NewEngine(cfg Config, clk clock.Clock, logger *logging.Logger) *Engine {
	if cfg.Slots <= 0 {
		cfg.Slots = DefaultConfig().Slots
	}
	if cfg.MinIntervalMs <= 0 {
		cfg.MinIntervalMs = DefaultConfig().MinIntervalMs
	}
	if cfg.MaxIntervalMs < cfg.MinIntervalMs {
		cfg.MaxIntervalMs = cfg.MinIntervalMs
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Engine{
		cfg:    cfg,
		clock:  clk,
		logger: logger.Named("timer"),
		timers: make([]*Timer, 0, cfg.Slots),
		inUse:  make([]bool, cfg.Slots),
	}
}

// AddTimer arms a timer that fires every intervalMs (clamped to the
// configured range). repeatCount of RepeatForever fires until removed; N >= 1
// retires the timer after its Nth firing. Returns None if the id pool is
// exhausted, the callback is nil or the first deadline cannot be represented.
func (e *Engine) AddTimer(intervalMs int64, repeatCount int, callback func()) int {
	if callback == nil {
		e.logger.Warn("rejecting timer without callback")
		return None
	}
	if repeatCount < 0 {
		repeatCount = RepeatForever
	}

	interval := e.clamp(intervalMs)
	now := e.clock.NowMs()
	if now > math.MaxInt64-interval {
		e.logger.Error("rejecting timer", zap.Error(ErrOverflow), zap.Int64("now_ms", now), zap.Int64("interval_ms", interval))
		return None
	}

	timerID := e.allocate()
	if timerID == None {
		e.logger.Warn("timer slots exhausted", zap.Int("slots", e.cfg.Slots))
		return None
	}

	e.insert(&Timer{
		id:          timerID,
		intervalMs:  interval,
		repeatCount: repeatCount,
		nextFireAt:  now + interval,
		callback:    callback,
	})
	return timerID
}

// RemoveTimer cancels a timer. Returns false if the id is not armed.
func (e *Engine) RemoveTimer(timerID int) bool {
	i := e.indexOf(timerID)
	if i < 0 {
		return false
	}
	e.timers = slices.Delete(e.timers, i, i+1)
	e.release(timerID)
	return true
}

// ResetTimer re-anchors a timer's deadline to now and clears its firing
// count. Returns false if the id is not armed.
func (e *Engine) ResetTimer(timerID int) bool {
	i := e.indexOf(timerID)
	if i < 0 {
		return false
	}
	t := e.timers[i]
	e.timers = slices.Delete(e.timers, i, i+1)

	t.callbackCount = 0
	t.nextFireAt = e.clock.NowMs() + t.intervalMs
	e.insert(t)
	return true
}

// IsExist reports whether timerID is currently armed.
func (e *Engine) IsExist(timerID int) bool {
	return e.indexOf(timerID) >= 0
}

// Len returns the number of armed timers.
func (e *Engine) Len() int {
	return len(e.timers)
}

// NextWakeDelay returns how long until the earliest deadline. It is zero if
// that deadline already passed. ok is false when nothing is armed.
func (e *Engine) NextWakeDelay() (delay time.Duration, ok bool) {
	if len(e.timers) == 0 {
		return 0, false
	}
	remaining := e.timers[0].nextFireAt - e.clock.NowMs()
	if remaining <= 0 {
		return 0, true
	}
	return time.Duration(remaining) * time.Millisecond, true
}

// ProcessDue fires every timer whose deadline has passed, earliest first.
//
// A timer on its final firing is removed before its callback runs. A
// repeating timer is rescheduled and re-inserted before its callback runs,
// so callbacks may freely add or remove timers. A timer whose next deadline
// would overflow is dropped; the returned error joins one OverflowError per
// dropped timer.
func (e *Engine) ProcessDue() error {
	var errs []error

	for len(e.timers) > 0 {
		t := e.timers[0]
		if t.nextFireAt > e.clock.NowMs() {
			break
		}
		e.timers = slices.Delete(e.timers, 0, 1)
		t.callbackCount++

		if t.repeatCount >= 1 && t.callbackCount >= t.repeatCount {
			e.release(t.id)
			callback := t.callback
			t.callback = nil
			callback()
			continue
		}

		if t.nextFireAt > math.MaxInt64-t.intervalMs {
			e.release(t.id)
			err := &OverflowError{TimerID: t.id, NextFireAt: t.nextFireAt, IntervalMs: t.intervalMs}
			e.logger.Error("dropping timer", zap.Error(err))
			errs = append(errs, err)
			continue
		}

		t.nextFireAt += t.intervalMs
		e.insert(t)
		t.callback()
	}

	return errors.Join(errs...)
}

// insert places t before the first timer with a later deadline, so timers
// sharing a deadline fire in insertion order.
func (e *Engine) insert(t *Timer) {
	i := 0
	for i < len(e.timers) && e.timers[i].nextFireAt <= t.nextFireAt {
		i++
	}
	e.timers = slices.Insert(e.timers, i, t)
}

func (e *Engine) indexOf(timerID int) int {
	for i, t := range e.timers {
		if t.id == timerID {
			return i
		}
	}
	return -1
}

func (e *Engine) allocate() int {
	for i, used := range e.inUse {
		if !used {
			e.inUse[i] = true
			return i
		}
	}
	return None
}

func (e *Engine) release(timerID int) {
	if timerID >= 0 && timerID < len(e.inUse) {
		e.inUse[timerID] = false
	}
}

func (e *Engine) clamp(intervalMs int64) int64 {
	return min(max(intervalMs, e.cfg.MinIntervalMs), e.cfg.MaxIntervalMs)
}
