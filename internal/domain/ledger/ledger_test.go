package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/anrd/internal/shared/clock"
)

const timeout = 5000

func eventIDs(events []PendingEvent) []EventID {
	ids := make([]EventID, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.EventID)
	}
	return ids
}

func TestRecordEventRequiresOpenedSession(t *testing.T) {
	l := New(clock.NewManual(0), timeout)

	assert.False(t, l.RecordEvent(1, 10, 0, 0), "first event of an unopened session is not tracked")
	assert.False(t, l.Has(1))
	assert.Empty(t, l.Pending(1))

	l.Open(1)
	assert.True(t, l.RecordEvent(1, 11, 0, 1))
	assert.Equal(t, []EventID{11}, eventIDs(l.Pending(1)))
}

func TestOpenKeepsExistingEvents(t *testing.T) {
	l := New(clock.NewManual(0), timeout)
	l.Open(1)
	require.True(t, l.RecordEvent(1, 1, 0, 0))

	l.Open(1)
	assert.Len(t, l.Pending(1), 1)
}

func TestRecordEventRejectsDecreasingIDs(t *testing.T) {
	l := New(clock.NewManual(0), timeout)
	l.Open(1)

	require.True(t, l.RecordEvent(1, 5, 0, 0))
	assert.True(t, l.RecordEvent(1, 5, 0, 1), "equal ids keep the order non-decreasing")
	assert.False(t, l.RecordEvent(1, 4, 0, 2))
	assert.Equal(t, []EventID{5, 5}, eventIDs(l.Pending(1)))
}

func TestAcknowledgePrefixTrim(t *testing.T) {
	const n = 8
	for k := EventID(0); k <= n+1; k++ {
		l := New(clock.NewManual(0), timeout)
		l.Open(3)
		for i := EventID(1); i <= n; i++ {
			require.True(t, l.RecordEvent(3, i, 0, int(i)))
		}

		timerIDs := l.Acknowledge(3, k)

		var wantRemaining []EventID
		var wantTimers []int
		for i := EventID(1); i <= n; i++ {
			if i > k {
				wantRemaining = append(wantRemaining, i)
			} else {
				wantTimers = append(wantTimers, int(i))
			}
		}
		if wantRemaining == nil {
			wantRemaining = []EventID{}
		}
		assert.Equal(t, wantRemaining, eventIDs(l.Pending(3)), "upto=%d", k)
		assert.Equal(t, wantTimers, timerIDs, "upto=%d", k)
	}
}

func TestAcknowledgeClearsFrozenWhenEmpty(t *testing.T) {
	clk := clock.NewManual(0)
	l := New(clk, timeout)
	l.Open(1)
	require.True(t, l.RecordEvent(1, 1, 0, 0))
	l.SetFrozen(1, true)

	clk.Set(100000)
	l.Acknowledge(1, 1)
	assert.False(t, l.IsFrozen(1))
}

func TestAcknowledgeFrozenPolicy(t *testing.T) {
	tests := []struct {
		name       string
		now        int64
		wantFrozen bool
	}{
		{"oldest remaining still inside deadline", 5999, false},
		{"oldest remaining exactly at deadline", 6000, true},
		{"oldest remaining overdue stays frozen", 9000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := clock.NewManual(0)
			l := New(clk, timeout)
			l.Open(1)
			require.True(t, l.RecordEvent(1, 1, 0, 0))
			require.True(t, l.RecordEvent(1, 2, 1000, 1))
			l.SetFrozen(1, true)

			clk.Set(tt.now)
			assert.Equal(t, []int{0}, l.Acknowledge(1, 1))
			assert.Equal(t, tt.wantFrozen, l.IsFrozen(1))
		})
	}
}

func TestAcknowledgeUnknownSession(t *testing.T) {
	l := New(clock.NewManual(0), timeout)
	assert.Nil(t, l.Acknowledge(9, 100))
}

func TestTimerIdsForConsumesOnce(t *testing.T) {
	l := New(clock.NewManual(0), timeout)
	l.Open(1)
	require.True(t, l.RecordEvent(1, 1, 0, 4))
	require.True(t, l.RecordEvent(1, 2, 0, 5))

	assert.Equal(t, []int{4, 5}, l.TimerIdsFor(1))
	assert.Empty(t, l.TimerIdsFor(1))

	require.True(t, l.RecordEvent(1, 3, 0, 6))
	assert.Equal(t, []int{6}, l.TimerIdsFor(1))

	// consumed events stay tracked until acknowledged
	assert.Len(t, l.Pending(1), 3)
	assert.Empty(t, l.Acknowledge(1, 2))
}

func TestFrozenFlag(t *testing.T) {
	l := New(clock.NewManual(0), timeout)
	assert.False(t, l.IsFrozen(42))

	l.SetFrozen(42, true)
	l.SetFrozen(42, true)
	assert.True(t, l.IsFrozen(42))
	assert.Equal(t, 1, l.FrozenCount())

	l.SetFrozen(42, false)
	assert.False(t, l.IsFrozen(42))
}

func TestDrop(t *testing.T) {
	l := New(clock.NewManual(0), timeout)
	l.Open(1)
	require.True(t, l.RecordEvent(1, 1, 0, 0))
	l.SetFrozen(1, true)

	l.Drop(1)
	assert.False(t, l.Has(1))
	assert.False(t, l.IsFrozen(1))
	assert.Zero(t, l.Sessions())
}

func TestOldest(t *testing.T) {
	l := New(clock.NewManual(0), timeout)
	_, ok := l.Oldest(1)
	assert.False(t, ok)

	l.Open(1)
	require.True(t, l.RecordEvent(1, 7, 123, 0))
	require.True(t, l.RecordEvent(1, 8, 456, 1))

	oldest, ok := l.Oldest(1)
	require.True(t, ok)
	assert.Equal(t, PendingEvent{EventID: 7, DispatchTime: 123, TimerID: 0}, oldest)
}
