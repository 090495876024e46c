package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons for anrd_events_dropped_total.
const (
	DropOutstandingCap = "outstanding_cap"
	DropSlotsExhausted = "slots_exhausted"
	DropOutOfOrder     = "out_of_order"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Watchdog metrics
	TimersArmed    prometheus.Gauge
	EventsTracked  prometheus.Counter
	EventsDropped  *prometheus.CounterVec
	FrozenReports  prometheus.Counter
	FrozenSessions prometheus.Gauge
	Acks           prometheus.Counter
	AckLatency     prometheus.Histogram
	SessionsLost   prometheus.Counter

	// Sink metrics
	SinkDeliveries *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	latency *LatencyWindow
}

// NewMetrics creates a metrics collector with its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)
	start := time.Now()

	m := &Metrics{
		registry: reg,
		latency:  NewLatencyWindow(1024),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anrd_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "anrd_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path"},
		),

		TimersArmed: factory.NewGauge(prometheus.GaugeOpts{
			Name: "anrd_timers_armed",
			Help: "Watchdog timers currently armed",
		}),
		EventsTracked: factory.NewCounter(prometheus.CounterOpts{
			Name: "anrd_events_tracked_total",
			Help: "Dispatched events armed with an ANR deadline",
		}),
		EventsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anrd_events_dropped_total",
				Help: "Dispatched events not tracked, by reason",
			},
			[]string{"reason"},
		),
		FrozenReports: factory.NewCounter(prometheus.CounterOpts{
			Name: "anrd_frozen_reports_total",
			Help: "Sessions reported as not responding",
		}),
		FrozenSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "anrd_frozen_sessions",
			Help: "Sessions currently flagged frozen",
		}),
		Acks: factory.NewCounter(prometheus.CounterOpts{
			Name: "anrd_acks_total",
			Help: "Processed-up-to acknowledgements received",
		}),
		AckLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "anrd_ack_latency_seconds",
			Help:    "Time from dispatch of the oldest acknowledged event to its acknowledgement",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 3, 4, 5, 7.5, 10},
		}),
		SessionsLost: factory.NewCounter(prometheus.CounterOpts{
			Name: "anrd_sessions_lost_total",
			Help: "Sessions torn down because their process died",
		}),

		SinkDeliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anrd_sink_deliveries_total",
				Help: "Frozen report deliveries by sink and outcome",
			},
			[]string{"sink", "outcome"},
		),

		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "anrd_ws_connections",
			Help: "Number of active WebSocket connections",
		}),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anrd_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "anrd_uptime_seconds",
		Help: "Daemon uptime in seconds",
	}, func() float64 {
		return time.Since(start).Seconds()
	})

	return m
}

// Registry returns the registry backing these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SetTimersArmed sets the armed timer gauge.
func (m *Metrics) SetTimersArmed(n int) {
	if m == nil {
		return
	}
	m.TimersArmed.Set(float64(n))
}

// IncEventsTracked counts an event armed with a deadline.
func (m *Metrics) IncEventsTracked() {
	if m == nil {
		return
	}
	m.EventsTracked.Inc()
}

// IncEventsDropped counts an event that could not be tracked.
func (m *Metrics) IncEventsDropped(reason string) {
	if m == nil {
		return
	}
	m.EventsDropped.WithLabelValues(reason).Inc()
}

// IncFrozenReports counts a frozen transition.
func (m *Metrics) IncFrozenReports() {
	if m == nil {
		return
	}
	m.FrozenReports.Inc()
}

// SetFrozenSessions sets the number of frozen sessions.
func (m *Metrics) SetFrozenSessions(n int) {
	if m == nil {
		return
	}
	m.FrozenSessions.Set(float64(n))
}

// RecordAck counts an acknowledgement. latency < 0 means no event was
// removed by it and only the counter moves.
func (m *Metrics) RecordAck(latency time.Duration) {
	if m == nil {
		return
	}
	m.Acks.Inc()
	if latency < 0 {
		return
	}
	m.AckLatency.Observe(latency.Seconds())
	m.latency.Observe(latency)
}

// IncSessionsLost counts a session teardown caused by process death.
func (m *Metrics) IncSessionsLost() {
	if m == nil {
		return
	}
	m.SessionsLost.Inc()
}

// RecordSinkDelivery counts a report delivery attempt.
func (m *Metrics) RecordSinkDelivery(sink, outcome string) {
	if m == nil {
		return
	}
	m.SinkDeliveries.WithLabelValues(sink, outcome).Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// AckLatencySummary summarizes the recent ack latency window.
func (m *Metrics) AckLatencySummary() LatencySummary {
	if m == nil {
		return LatencySummary{}
	}
	return m.latency.Summary()
}
