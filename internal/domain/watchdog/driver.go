package watchdog

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/runloop"
)

// Driver runs a Watchdog's deadline processing on a run loop.
type Driver struct {
	wd     *Watchdog
	loop   *runloop.Loop
	logger *logging.Logger

	kicked atomic.Bool
	cancel func() bool // loop goroutine only
}

// NewDriver binds wd to loop and installs the watchdog wake hook.
func NewDriver(wd *Watchdog, loop *runloop.Loop, logger *logging.Logger) *Driver {
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Driver{
		wd:     wd,
		loop:   loop,
		logger: logger.Named("driver"),
	}
	wd.SetWakeHook(d.Kick)
	return d
}

// Kick asks the loop to process due deadlines and re-evaluate its sleep.
// Kicks arriving before the previous one ran are coalesced.
func (d *Driver) Kick() {
	if d.kicked.CompareAndSwap(false, true) {
		if !d.loop.Post(d.rearm) {
			d.kicked.Store(false)
		}
	}
}

func (d *Driver) rearm() {
	d.kicked.Store(false)
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}

	if err := d.wd.ProcessDue(); err != nil {
		d.logger.Error("deadline processing dropped timers", zap.Error(err))
	}

	delay, ok := d.wd.NextWakeDelay()
	if !ok {
		return
	}
	d.cancel = d.loop.PostDelayed(delay, d.rearm)
}
