/*
Package resilience provides the circuit breaker that guards outbound fault
report deliveries.

A report sink that keeps failing must not stall or flood the process that
detected the fault. The breaker fails fast while the downstream endpoint is
unhealthy and lets a few probes through once its timeout has passed:

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open

Callers either wrap a call with Do, or use the two-step Allow when the
outcome is only known later:

	done, err := breaker.Allow()
	if err != nil {
		return err // open, drop the delivery
	}
	err = deliver()
	done(err == nil)

The breaker never retries anything itself.
*/
package resilience
