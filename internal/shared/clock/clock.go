// Package clock provides the monotonic millisecond clock used by the
// watchdog, the timer engine and the heartbeat emitter.
//
// All timestamps are milliseconds on a single monotonic axis. They are only
// comparable with other timestamps produced by the same Clock.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock returns the current monotonic time in milliseconds.
type Clock interface {
	NowMs() int64
}

// System is a Clock backed by the runtime monotonic clock.
// Time zero is the moment the System clock was created.
type System struct {
	origin time.Time
}

// NewSystem creates a system clock anchored at the current instant.
func NewSystem() *System {
	return &System{origin: time.Now()}
}

// NowMs returns milliseconds elapsed since the clock was created.
func (s *System) NowMs() int64 {
	return time.Since(s.origin).Milliseconds()
}

// Manual is a Clock that only moves when told to. Safe for concurrent use.
type Manual struct {
	now atomic.Int64
}

// NewManual creates a manual clock reading start.
func NewManual(start int64) *Manual {
	m := &Manual{}
	m.now.Store(start)
	return m
}

// NowMs returns the current reading.
func (m *Manual) NowMs() int64 {
	return m.now.Load()
}

// Set moves the clock to ms. Moving backwards is allowed for tests that
// need it, but production code never relies on it.
func (m *Manual) Set(ms int64) {
	m.now.Store(ms)
}

// Advance moves the clock forward by d and returns the new reading.
func (m *Manual) Advance(d time.Duration) int64 {
	return m.now.Add(d.Milliseconds())
}
