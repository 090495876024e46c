package watchdog

import (
	"github.com/GriffinCanCode/AgentOS/anrd/internal/domain/ledger"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/domain/timer"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/shared/id"
)

// SessionID is the opaque persistent id of an input-consuming session.
type SessionID = ledger.SessionID

// EventID is a per-session dispatched event sequence number.
type EventID = ledger.EventID

// Config holds the watchdog tunables.
type Config struct {
	// AnrTimeoutMs is how long an event may stay unacknowledged.
	AnrTimeoutMs int64
	// MaxOutstandingTimers caps armed watchdog timers across all sessions.
	MaxOutstandingTimers int
	// Timer bounds the underlying engine.
	Timer timer.Config
}

// DefaultConfig returns the stock tunables. MaxOutstandingTimers is 50 and
// is deliberately lower than the engine's 64 slots, so the cap is always
// hit before the slot pool runs dry.
func DefaultConfig() Config {
	return Config{
		AnrTimeoutMs:         5000,
		MaxOutstandingTimers: 50,
		Timer:                timer.DefaultConfig(),
	}
}

// AppInfo is the reporting metadata registered for a session.
type AppInfo struct {
	PID        int32  `json:"pid"`
	BundleName string `json:"bundle_name"`
}

// FrozenReport is handed to the frozen observer when a session transitions
// into the frozen state.
type FrozenReport struct {
	ID            id.ReportID `json:"id"`
	SessionID     SessionID   `json:"session_id"`
	PID           int32       `json:"pid"`
	BundleName    string      `json:"bundle_name"`
	EventID       EventID     `json:"event_id"`
	DetectedAtMs  int64       `json:"detected_at_ms"`
	PendingEvents int         `json:"pending_events"`
}

// FrozenObserver receives frozen reports.
type FrozenObserver func(FrozenReport)

// SessionLifecycle is implemented by whatever owns session processes. It
// lets the watchdog learn about sessions whose process died.
type SessionLifecycle interface {
	SubscribeSessionLost(fn func(SessionID))
}

// SessionStatus is a point-in-time view of one session.
type SessionStatus struct {
	SessionID     SessionID `json:"session_id"`
	Frozen        bool      `json:"frozen"`
	PendingEvents int       `json:"pending_events"`
	AppInfo
}

// Stats is a point-in-time view of the whole watchdog.
type Stats struct {
	OutstandingTimers    int `json:"outstanding_timers"`
	MaxOutstandingTimers int `json:"max_outstanding_timers"`
	Sessions             int `json:"sessions"`
	FrozenSessions       int `json:"frozen_sessions"`
	RegisteredApps       int `json:"registered_apps"`
}
