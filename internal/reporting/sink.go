package reporting

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/anrd/internal/domain/watchdog"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/monitoring"
)

// Sink receives frozen reports.
type Sink interface {
	Name() string
	Report(ctx context.Context, report watchdog.FrozenReport) error
}

// Delivery outcomes recorded per sink.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomePanicked = "panicked"
)

// Fanout hands every report to each of its sinks in order. A failing or
// panicking sink does not stop the others.
type Fanout struct {
	sinks   []Sink
	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// NewFanout creates a fanout over sinks. metrics may be nil.
func NewFanout(logger *logging.Logger, metrics *monitoring.Metrics, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Fanout{
		sinks:   sinks,
		logger:  logger.Named("reporting"),
		metrics: metrics,
	}
}

// Observe satisfies watchdog.FrozenObserver.
func (f *Fanout) Observe(report watchdog.FrozenReport) {
	ctx := context.Background()
	for _, sink := range f.sinks {
		outcome := f.deliver(ctx, sink, report)
		f.metrics.RecordSinkDelivery(sink.Name(), outcome)
	}
}

func (f *Fanout) deliver(ctx context.Context, sink Sink, report watchdog.FrozenReport) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("report sink panicked",
				zap.String("sink", sink.Name()),
				zap.String("report_id", report.ID.String()),
				zap.Any("panic", r))
			outcome = OutcomePanicked
		}
	}()

	if err := sink.Report(ctx, report); err != nil {
		f.logger.Warn("report sink rejected report",
			zap.String("sink", sink.Name()),
			zap.String("report_id", report.ID.String()),
			zap.Error(err))
		return OutcomeRejected
	}
	return OutcomeAccepted
}

// LogSink writes each report to the log at Error level.
type LogSink struct {
	logger *logging.Logger
}

// NewLogSink creates a log sink.
func NewLogSink(logger *logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LogSink{logger: logger.Named("anr")}
}

// Name implements Sink.
func (s *LogSink) Name() string { return "log" }

// Report implements Sink.
func (s *LogSink) Report(_ context.Context, report watchdog.FrozenReport) error {
	s.logger.Error("application not responding",
		zap.String("report_id", report.ID.String()),
		logging.Session(report.SessionID),
		logging.Event(report.EventID),
		zap.Int32("pid", report.PID),
		zap.String("bundle", report.BundleName),
		zap.Int64("detected_at_ms", report.DetectedAtMs),
		zap.Int("pending_events", report.PendingEvents),
	)
	return nil
}

// SinkFunc adapts a function to a Sink.
type SinkFunc struct {
	SinkName string
	Fn       func(ctx context.Context, report watchdog.FrozenReport) error
}

// Name implements Sink.
func (s SinkFunc) Name() string { return s.SinkName }

// Report implements Sink.
func (s SinkFunc) Report(ctx context.Context, report watchdog.FrozenReport) error {
	if s.Fn == nil {
		return fmt.Errorf("sink %s has no function", s.SinkName)
	}
	return s.Fn(ctx, report)
}
