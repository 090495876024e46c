package watchdog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/anrd/internal/runloop"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/shared/clock"
)

func TestDriverFiresDeadlines(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AnrTimeoutMs = 60

	clk := clock.NewSystem()
	wd := New(cfg, clk, nil)
	rec := &reportRecorder{}
	wd.SetFrozenObserver(rec.observe)

	loop := runloop.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)
	defer loop.Close()

	NewDriver(wd, loop, nil)

	require.True(t, wd.AddTimer(1, clk.NowMs(), 1))
	require.True(t, wd.AddTimer(1, clk.NowMs(), 2))
	wd.MarkProcessed(1, 2)

	require.Eventually(t, func() bool {
		return wd.IsTriggered(1)
	}, 2*time.Second, 5*time.Millisecond)

	assert.False(t, wd.IsTriggered(2))
	reports := rec.all()
	require.Len(t, reports, 1)
	assert.Equal(t, SessionID(1), reports[0].SessionID)
}
