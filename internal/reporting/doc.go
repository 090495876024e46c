/*
Package reporting delivers frozen-session reports produced by the watchdog.

The watchdog accepts a single observer; Fanout turns any number of Sinks
into that observer:

	fanout := reporting.NewFanout(logger, metrics,
		reporting.NewLogSink(logger),
		bridge,
		webhook,
	)
	wd.SetFrozenObserver(fanout.Observe)
	wd.SetRecoveredObserver(bridge.Recovered)

Sinks run on the goroutine that processed the deadline, so they must not
block. WebhookSink queues reports and posts them from its own goroutine.
Nothing in this package retries a failed delivery.
*/
package reporting
