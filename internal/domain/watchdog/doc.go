// Package watchdog implements the application-not-responding (ANR) watchdog.
//
// The Watchdog binds a timer.Engine and a ledger.Ledger into one protocol:
//
//  1. The dispatch layer calls AddTimer for every event it sends to a
//     session. The watchdog arms a one-shot deadline and records the event.
//  2. The consuming side eventually acknowledges "processed up to N" through
//     MarkProcessed, which trims the ledger and cancels the matching timers.
//  3. If a deadline elapses first, the session is flagged frozen, reported
//     once through the frozen observer, and every other pending timer of
//     that session is cancelled since the verdict is already in.
//
// The number of armed watchdog timers is capped (MaxOutstandingTimers).
// Events arriving at the cap are not tracked at all; this bounds memory
// under pathological load at the cost of missing detection for them.
//
// Every public method takes a single mutex for its whole duration. Timer
// callbacks run inside ProcessDue while that mutex is held; the observer is
// invoked after it is released so sinks may call back into the watchdog.
//
// Driver runs ProcessDue on a runloop.Loop, sleeping for NextWakeDelay
// between passes and waking early whenever a new timer is armed.
package watchdog
