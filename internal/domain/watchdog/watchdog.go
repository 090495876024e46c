package watchdog

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/anrd/internal/domain/ledger"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/domain/timer"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/shared/clock"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/shared/id"
)

// Watchdog detects sessions that stop acknowledging dispatched events.
type Watchdog struct {
	mu sync.Mutex

	cfg    Config
	clock  clock.Clock
	engine *timer.Engine
	ledger *ledger.Ledger

	apps        map[SessionID]AppInfo
	outstanding int
	observer    FrozenObserver
	recovered   func(SessionID)
	wake        func()
	reports     []FrozenReport // produced by timer callbacks, delivered after unlock

	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// New creates a watchdog. Zero-valued config fields fall back to defaults.
func New(cfg Config, clk clock.Clock, logger *logging.Logger) *Watchdog {
	def := DefaultConfig()
	if cfg.AnrTimeoutMs <= 0 {
		cfg.AnrTimeoutMs = def.AnrTimeoutMs
	}
	if cfg.MaxOutstandingTimers <= 0 {
		cfg.MaxOutstandingTimers = def.MaxOutstandingTimers
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Watchdog{
		cfg:    cfg,
		clock:  clk,
		engine: timer.NewEngine(cfg.Timer, clk, logger),
		ledger: ledger.New(clk, cfg.AnrTimeoutMs),
		apps:   make(map[SessionID]AppInfo),
		logger: logger.Named("watchdog"),
	}
}

// WithMetrics attaches a metrics collector.
func (w *Watchdog) WithMetrics(metrics *monitoring.Metrics) *Watchdog {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.metrics = metrics
	return w
}

// Init subscribes to session deaths so their timers and registry entries
// are cleaned up through OnSessionLost.
func (w *Watchdog) Init(lifecycle SessionLifecycle) {
	if lifecycle == nil {
		return
	}
	lifecycle.SubscribeSessionLost(w.OnSessionLost)
}

// SetFrozenObserver registers the sink for frozen reports, replacing any
// previous one. A nil observer disables reporting.
func (w *Watchdog) SetFrozenObserver(observer FrozenObserver) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.observer = observer
}

// SetRecoveredObserver registers a function called, outside the watchdog
// lock, when a frozen session stops being frozen because its events were
// acknowledged or the session was lost.
func (w *Watchdog) SetRecoveredObserver(fn func(SessionID)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.recovered = fn
}

// SetWakeHook registers a function called after every armed timer, outside
// the watchdog lock. The Driver uses it to re-evaluate its sleep.
func (w *Watchdog) SetWakeHook(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.wake = fn
}

// AddTimer arms the ANR deadline for one dispatched event. It returns false
// when the event is not tracked: the outstanding cap is reached, the engine
// has no free slot, or eventID is older than the session's newest event.
func (w *Watchdog) AddTimer(eventID EventID, dispatchTime int64, sessionID SessionID) bool {
	w.mu.Lock()
	tracked := w.addTimerLocked(eventID, dispatchTime, sessionID)
	wake := w.wake
	w.mu.Unlock()

	if tracked && wake != nil {
		wake()
	}
	return tracked
}

func (w *Watchdog) addTimerLocked(eventID EventID, dispatchTime int64, sessionID SessionID) bool {
	if w.outstanding >= w.cfg.MaxOutstandingTimers {
		w.logger.Warn("outstanding timer cap reached, event not tracked",
			logging.Session(sessionID), logging.Event(eventID),
			zap.Int("outstanding", w.outstanding))
		w.metrics.IncEventsDropped(monitoring.DropOutstandingCap)
		return false
	}

	var timerID int
	timerID = w.engine.AddTimer(w.cfg.AnrTimeoutMs, 1, func() {
		w.onTimeoutLocked(sessionID, eventID, timerID)
	})
	if timerID == timer.None {
		w.metrics.IncEventsDropped(monitoring.DropSlotsExhausted)
		return false
	}

	w.ledger.Open(sessionID)
	if !w.ledger.RecordEvent(sessionID, eventID, dispatchTime, timerID) {
		w.engine.RemoveTimer(timerID)
		w.logger.Warn("event older than newest tracked event, not tracked",
			logging.Session(sessionID), logging.Event(eventID))
		w.metrics.IncEventsDropped(monitoring.DropOutOfOrder)
		return false
	}

	w.outstanding++
	w.metrics.IncEventsTracked()
	w.metrics.SetTimersArmed(w.outstanding)
	return true
}

// onTimeoutLocked runs inside ProcessDue with the lock held.
func (w *Watchdog) onTimeoutLocked(sessionID SessionID, eventID EventID, timerID int) {
	w.outstanding--

	wasFrozen := w.ledger.IsFrozen(sessionID)
	w.ledger.SetFrozen(sessionID, true)

	// The session is flagged already; its other deadlines add nothing.
	w.removeTimersLocked(sessionID)

	if wasFrozen {
		w.logger.Debug("deadline elapsed on frozen session",
			logging.Session(sessionID), logging.Event(eventID), logging.Timer(timerID))
		return
	}

	info, ok := w.apps[sessionID]
	if !ok {
		w.logger.Warn("frozen session has no app info", logging.Session(sessionID))
	}
	report := FrozenReport{
		ID:            id.NewReportID(),
		SessionID:     sessionID,
		PID:           info.PID,
		BundleName:    info.BundleName,
		EventID:       eventID,
		DetectedAtMs:  w.clock.NowMs(),
		PendingEvents: len(w.ledger.Pending(sessionID)),
	}
	w.reports = append(w.reports, report)

	w.logger.Warn("session not responding",
		logging.Session(sessionID), logging.Event(eventID),
		zap.Int32("pid", info.PID), zap.String("bundle", info.BundleName),
		zap.String("report_id", report.ID.String()))
	w.metrics.IncFrozenReports()
}

// MarkProcessed acknowledges every event of sessionID up to eventID and
// cancels their deadlines.
func (w *Watchdog) MarkProcessed(eventID EventID, sessionID SessionID) {
	w.mu.Lock()
	wasFrozen := w.markProcessedLocked(eventID, sessionID)
	recovered := w.recovered
	cleared := wasFrozen && !w.ledger.IsFrozen(sessionID)
	w.mu.Unlock()

	if cleared && recovered != nil {
		recovered(sessionID)
	}
}

func (w *Watchdog) markProcessedLocked(eventID EventID, sessionID SessionID) (wasFrozen bool) {
	wasFrozen = w.ledger.IsFrozen(sessionID)

	latency := time.Duration(-1)
	if oldest, ok := w.ledger.Oldest(sessionID); ok && oldest.EventID <= eventID {
		latency = time.Duration(w.clock.NowMs()-oldest.DispatchTime) * time.Millisecond
	}

	removed := 0
	for _, timerID := range w.ledger.Acknowledge(sessionID, eventID) {
		if w.engine.RemoveTimer(timerID) {
			w.outstanding--
			removed++
		}
	}

	w.logger.Debug("events processed",
		logging.Session(sessionID), logging.Event(eventID), zap.Int("timers_removed", removed))
	w.metrics.RecordAck(latency)
	w.metrics.SetTimersArmed(w.outstanding)
	w.metrics.SetFrozenSessions(w.ledger.FrozenCount())
	return wasFrozen
}

// IsTriggered reports whether sessionID is currently flagged frozen.
func (w *Watchdog) IsTriggered(sessionID SessionID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ledger.IsFrozen(sessionID)
}

// RemoveTimers cancels every armed deadline of sessionID. Its events stay in
// the ledger until acknowledged or the session is lost.
func (w *Watchdog) RemoveTimers(sessionID SessionID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.removeTimersLocked(sessionID)
	w.metrics.SetTimersArmed(w.outstanding)
}

// OnSessionLost tears a session down: its timers, ledger entry and app info.
func (w *Watchdog) OnSessionLost(sessionID SessionID) {
	w.mu.Lock()
	wasFrozen := w.ledger.IsFrozen(sessionID)
	w.removeTimersLocked(sessionID)
	w.ledger.Drop(sessionID)
	delete(w.apps, sessionID)

	w.logger.Info("session lost", logging.Session(sessionID))
	w.metrics.IncSessionsLost()
	w.metrics.SetTimersArmed(w.outstanding)
	w.metrics.SetFrozenSessions(w.ledger.FrozenCount())
	recovered := w.recovered
	w.mu.Unlock()

	if wasFrozen && recovered != nil {
		recovered(sessionID)
	}
}

func (w *Watchdog) removeTimersLocked(sessionID SessionID) {
	for _, timerID := range w.ledger.TimerIdsFor(sessionID) {
		if w.engine.RemoveTimer(timerID) {
			w.outstanding--
		}
	}
}

// SetApplicationInfo registers the process behind a session.
func (w *Watchdog) SetApplicationInfo(sessionID SessionID, pid int32, bundleName string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.apps[sessionID] = AppInfo{PID: pid, BundleName: bundleName}
}

// GetAppInfo returns the registered process info, or the zero AppInfo.
func (w *Watchdog) GetAppInfo(sessionID SessionID) AppInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.apps[sessionID]
}

// ProcessDue fires every elapsed deadline and then delivers the resulting
// frozen reports to the observer. The returned error reports timers the
// engine had to drop.
func (w *Watchdog) ProcessDue() error {
	w.mu.Lock()
	err := w.engine.ProcessDue()
	reports := w.reports
	w.reports = nil
	observer := w.observer
	w.metrics.SetTimersArmed(w.outstanding)
	w.metrics.SetFrozenSessions(w.ledger.FrozenCount())
	w.mu.Unlock()

	if observer != nil {
		for _, report := range reports {
			observer(report)
		}
	}
	return err
}

// NextWakeDelay returns how long until the next deadline; ok is false when
// no deadline is armed.
func (w *Watchdog) NextWakeDelay() (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.engine.NextWakeDelay()
}

// Session returns a snapshot of one session.
func (w *Watchdog) Session(sessionID SessionID) SessionStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return SessionStatus{
		SessionID:     sessionID,
		Frozen:        w.ledger.IsFrozen(sessionID),
		PendingEvents: len(w.ledger.Pending(sessionID)),
		AppInfo:       w.apps[sessionID],
	}
}

// Stats returns a snapshot of the watchdog.
func (w *Watchdog) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		OutstandingTimers:    w.outstanding,
		MaxOutstandingTimers: w.cfg.MaxOutstandingTimers,
		Sessions:             w.ledger.Sessions(),
		FrozenSessions:       w.ledger.FrozenCount(),
		RegisteredApps:       len(w.apps),
	}
}
