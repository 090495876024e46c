package ledger

import (
	"slices"

	"github.com/GriffinCanCode/AgentOS/anrd/internal/shared/clock"
)

// NoTimer marks an event whose guarding timer has been handed out already.
const NoTimer = -1

// SessionID is the opaque persistent id of an input-consuming session.
type SessionID = int32

// EventID is a per-session, monotonically increasing event sequence number.
type EventID = int64

// PendingEvent is one unacknowledged dispatched event.
type PendingEvent struct {
	EventID      EventID
	DispatchTime int64
	TimerID      int
}

// Ledger is the per-session record of unacknowledged events.
type Ledger struct {
	clock        clock.Clock
	anrTimeoutMs int64

	events map[SessionID][]PendingEvent
	frozen map[SessionID]bool
}

// New creates an empty ledger. anrTimeoutMs is used by Acknowledge to decide
// whether the oldest remaining event is already past its deadline.
func New(clk clock.Clock, anrTimeoutMs int64) *Ledger {
	return &Ledger{
		clock:        clk,
		anrTimeoutMs: anrTimeoutMs,
		events:       make(map[SessionID][]PendingEvent),
		frozen:       make(map[SessionID]bool),
	}
}

// Open creates an empty entry for sessionID if it has none.
func (l *Ledger) Open(sessionID SessionID) {
	if _, ok := l.events[sessionID]; !ok {
		l.events[sessionID] = []PendingEvent{}
	}
}

// Has reports whether sessionID has an entry.
func (l *Ledger) Has(sessionID SessionID) bool {
	_, ok := l.events[sessionID]
	return ok
}

// Drop forgets a session entirely, including its frozen flag.
func (l *Ledger) Drop(sessionID SessionID) {
	delete(l.events, sessionID)
	delete(l.frozen, sessionID)
}

// SetFrozen sets the session's frozen flag.
func (l *Ledger) SetFrozen(sessionID SessionID, frozen bool) {
	if frozen {
		l.frozen[sessionID] = true
		return
	}
	delete(l.frozen, sessionID)
}

// IsFrozen reports the session's frozen flag. Unknown sessions are not frozen.
func (l *Ledger) IsFrozen(sessionID SessionID) bool {
	return l.frozen[sessionID]
}

// RecordEvent appends an event to an opened session. It returns false
// without recording when the session was never opened, or when eventID is
// lower than the newest recorded id.
func (l *Ledger) RecordEvent(sessionID SessionID, eventID EventID, dispatchTime int64, timerID int) bool {
	pending, ok := l.events[sessionID]
	if !ok {
		return false
	}
	if n := len(pending); n > 0 && pending[n-1].EventID > eventID {
		return false
	}
	l.events[sessionID] = append(pending, PendingEvent{
		EventID:      eventID,
		DispatchTime: dispatchTime,
		TimerID:      timerID,
	})
	return true
}

// TimerIdsFor returns the guarding timer of every tracked event and marks
// each one consumed, so a second call returns only timers recorded since.
func (l *Ledger) TimerIdsFor(sessionID SessionID) []int {
	pending := l.events[sessionID]
	var timerIDs []int
	for i := range pending {
		if pending[i].TimerID == NoTimer {
			continue
		}
		timerIDs = append(timerIDs, pending[i].TimerID)
		pending[i].TimerID = NoTimer
	}
	return timerIDs
}

// Acknowledge removes every event with an id <= uptoEventID and returns the
// timers that guarded them.
//
// The frozen flag is cleared when the session has no events left, or when
// the new oldest event is still inside its deadline. If the oldest remaining
// event is already overdue the flag is left as it was.
func (l *Ledger) Acknowledge(sessionID SessionID, uptoEventID EventID) []int {
	pending, ok := l.events[sessionID]
	if !ok {
		return nil
	}

	cut := slices.IndexFunc(pending, func(e PendingEvent) bool {
		return e.EventID > uptoEventID
	})
	if cut < 0 {
		cut = len(pending)
	}

	var timerIDs []int
	for _, e := range pending[:cut] {
		if e.TimerID != NoTimer {
			timerIDs = append(timerIDs, e.TimerID)
		}
	}
	pending = slices.Delete(pending, 0, cut)
	l.events[sessionID] = pending

	if len(pending) == 0 {
		l.SetFrozen(sessionID, false)
		return timerIDs
	}
	if l.clock.NowMs() < pending[0].DispatchTime+l.anrTimeoutMs {
		l.SetFrozen(sessionID, false)
	}
	return timerIDs
}

// Oldest returns the oldest unacknowledged event of a session.
func (l *Ledger) Oldest(sessionID SessionID) (PendingEvent, bool) {
	pending := l.events[sessionID]
	if len(pending) == 0 {
		return PendingEvent{}, false
	}
	return pending[0], true
}

// Pending returns a copy of a session's unacknowledged events, oldest first.
func (l *Ledger) Pending(sessionID SessionID) []PendingEvent {
	return slices.Clone(l.events[sessionID])
}

// Sessions returns the number of opened sessions.
func (l *Ledger) Sessions() int {
	return len(l.events)
}

// FrozenCount returns the number of sessions currently flagged frozen.
func (l *Ledger) FrozenCount() int {
	return len(l.frozen)
}
