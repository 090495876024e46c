// Package monitoring provides Prometheus metrics for the watchdog daemon.
//
// Every Metrics value owns its own registry, so several watchdogs (or
// several tests) can live in one process without duplicate registration
// panics. All Record/Set methods are safe on a nil *Metrics, which lets
// components treat metrics as optional.
//
// Metrics exported:
//   - anrd_timers_armed: watchdog timers currently armed
//   - anrd_events_tracked_total / anrd_events_dropped_total{reason}
//   - anrd_frozen_reports_total, anrd_frozen_sessions
//   - anrd_acks_total, anrd_ack_latency_seconds
//   - anrd_http_* and anrd_ws_* transport metrics
//
// Ack latency is additionally kept in a bounded LatencyWindow so the stats
// endpoint can report quantiles over the recent past.
package monitoring
