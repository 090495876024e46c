package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDelivery = errors.New("delivery failed")

type fakeTime struct {
	now time.Time
}

func (f *fakeTime) Now() time.Time { return f.now }

func (f *fakeTime) Advance(d time.Duration) { f.now = f.now.Add(d) }

func newTestBreaker(settings Settings) (*Breaker, *fakeTime) {
	ft := &fakeTime{now: time.Unix(1_700_000_000, 0)}
	settings.Now = ft.Now
	return New("webhook", settings), ft
}

func tripAfter(n uint32) func(Counts) bool {
	return func(counts Counts) bool {
		return counts.ConsecutiveFailures >= n
	}
}

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		settings      Settings
		requests      []bool // true = success, false = failure
		expectedState State
	}{
		{
			name:          "stays closed on successes",
			settings:      Settings{},
			requests:      []bool{true, true, true},
			expectedState: StateClosed,
		},
		{
			name:          "opens after consecutive failures",
			settings:      Settings{ReadyToTrip: tripAfter(3)},
			requests:      []bool{false, false, false},
			expectedState: StateOpen,
		},
		{
			name:          "success resets the failure streak",
			settings:      Settings{ReadyToTrip: tripAfter(3)},
			requests:      []bool{false, false, true, false, false},
			expectedState: StateClosed,
		},
		{
			name:          "default trips after five",
			settings:      Settings{},
			requests:      []bool{false, false, false, false, false},
			expectedState: StateOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breaker, _ := newTestBreaker(tt.settings)

			for _, success := range tt.requests {
				_ = breaker.Do(func() error {
					if success {
						return nil
					}
					return errDelivery
				})
			}

			assert.Equal(t, tt.expectedState, breaker.State())
		})
	}
}

func TestBreakerCounts(t *testing.T) {
	breaker, _ := newTestBreaker(Settings{})

	require.NoError(t, breaker.Do(func() error { return nil }))

	counts := breaker.Counts()
	assert.Equal(t, uint32(1), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalSuccesses)
	assert.Equal(t, uint32(1), counts.ConsecutiveSuccesses)
	assert.Equal(t, uint32(0), counts.TotalFailures)

	assert.ErrorIs(t, breaker.Do(func() error { return errDelivery }), errDelivery)

	counts = breaker.Counts()
	assert.Equal(t, uint32(2), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalFailures)
	assert.Equal(t, uint32(1), counts.ConsecutiveFailures)
	assert.Equal(t, uint32(0), counts.ConsecutiveSuccesses)
}

func TestBreakerCountsClearAfterInterval(t *testing.T) {
	breaker, ft := newTestBreaker(Settings{Interval: time.Second, ReadyToTrip: tripAfter(2)})

	_ = breaker.Do(func() error { return errDelivery })
	ft.Advance(2 * time.Second)
	_ = breaker.Do(func() error { return errDelivery })

	assert.Equal(t, StateClosed, breaker.State())
	assert.Equal(t, uint32(1), breaker.Counts().ConsecutiveFailures)
}

func TestBreakerOpenFailsFast(t *testing.T) {
	breaker, _ := newTestBreaker(Settings{ReadyToTrip: tripAfter(2)})

	for i := 0; i < 2; i++ {
		_ = breaker.Do(func() error { return errDelivery })
	}
	require.Equal(t, StateOpen, breaker.State())

	called := false
	err := breaker.Do(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	breaker, ft := newTestBreaker(Settings{
		MaxRequests: 2,
		Timeout:     30 * time.Second,
		ReadyToTrip: tripAfter(2),
	})

	for i := 0; i < 2; i++ {
		_ = breaker.Do(func() error { return errDelivery })
	}
	require.Equal(t, StateOpen, breaker.State())

	ft.Advance(30 * time.Second)
	assert.Equal(t, StateHalfOpen, breaker.State())

	first, err := breaker.Allow()
	require.NoError(t, err)
	second, err := breaker.Allow()
	require.NoError(t, err)
	_, err = breaker.Allow()
	assert.ErrorIs(t, err, ErrTooManyRequests)

	first(true)
	assert.Equal(t, StateHalfOpen, breaker.State())
	second(true)
	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	breaker, ft := newTestBreaker(Settings{Timeout: time.Second, ReadyToTrip: tripAfter(1)})

	_ = breaker.Do(func() error { return errDelivery })
	ft.Advance(time.Second)
	require.Equal(t, StateHalfOpen, breaker.State())

	_ = breaker.Do(func() error { return errDelivery })
	assert.Equal(t, StateOpen, breaker.State())
}

func TestBreakerIgnoresOutcomeFromOldGeneration(t *testing.T) {
	breaker, ft := newTestBreaker(Settings{Timeout: time.Second, ReadyToTrip: tripAfter(1)})

	stale, err := breaker.Allow()
	require.NoError(t, err)

	_ = breaker.Do(func() error { return errDelivery })
	require.Equal(t, StateOpen, breaker.State())
	ft.Advance(time.Second)

	stale(false)
	assert.Equal(t, StateHalfOpen, breaker.State())
}

func TestBreakerDoRecordsPanicAsFailure(t *testing.T) {
	breaker, _ := newTestBreaker(Settings{ReadyToTrip: tripAfter(1)})

	assert.Panics(t, func() {
		_ = breaker.Do(func() error { panic("boom") })
	})
	assert.Equal(t, StateOpen, breaker.State())
}

func TestBreakerCallbacks(t *testing.T) {
	var transitions []string

	breaker, ft := newTestBreaker(Settings{
		Timeout:     10 * time.Second,
		ReadyToTrip: tripAfter(2),
		OnStateChange: func(name string, from State, to State) {
			assert.Equal(t, "webhook", name)
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	for i := 0; i < 2; i++ {
		_ = breaker.Do(func() error { return errDelivery })
	}
	ft.Advance(10 * time.Second)
	require.Equal(t, StateHalfOpen, breaker.State())
	require.NoError(t, breaker.Do(func() error { return nil }))

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}
