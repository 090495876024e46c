package reporting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/anrd/internal/domain/watchdog"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/tracing"
)

var (
	ErrQueueFull     = errors.New("report queue full")
	ErrWebhookClosed = errors.New("webhook sink closed")
)

// Webhook delivery outcomes.
const (
	OutcomeSent        = "sent"
	OutcomeFailed      = "failed"
	OutcomeCircuitOpen = "circuit_open"
)

const webhookSinkName = "webhook"

// WebhookConfig configures a WebhookSink.
type WebhookConfig struct {
	URL       string
	Timeout   time.Duration
	QueueSize int
	Breaker   resilience.Settings
}

// WebhookSink posts reports as JSON to an HTTP endpoint from a background
// goroutine. Reports are dropped, never retried, when the queue is full or
// the breaker is open.
type WebhookSink struct {
	cfg     WebhookConfig
	client  *resty.Client
	breaker *resilience.Breaker
	tracer  *tracing.Tracer
	logger  *logging.Logger
	metrics *monitoring.Metrics

	queue     chan watchdog.FrozenReport
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewWebhookSink creates the sink and starts its delivery goroutine.
// tracer and metrics may be nil.
func NewWebhookSink(cfg WebhookConfig, tracer *tracing.Tracer, logger *logging.Logger, metrics *monitoring.Metrics) *WebhookSink {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("webhook")

	settings := cfg.Breaker
	userHook := settings.OnStateChange
	settings.OnStateChange = func(name string, from, to resilience.State) {
		logger.Warn("webhook breaker state changed",
			zap.String("from", from.String()), zap.String("to", to.String()))
		if userHook != nil {
			userHook(name, from, to)
		}
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "anrd-webhook")

	s := &WebhookSink{
		cfg:     cfg,
		client:  client,
		breaker: resilience.New(webhookSinkName, settings),
		tracer:  tracer,
		logger:  logger,
		metrics: metrics,
		queue:   make(chan watchdog.FrozenReport, cfg.QueueSize),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Name implements Sink.
func (s *WebhookSink) Name() string { return webhookSinkName }

// Report implements Sink by queueing the report.
func (s *WebhookSink) Report(_ context.Context, report watchdog.FrozenReport) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrWebhookClosed
	}
	select {
	case s.queue <- report:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting reports and waits for queued ones to be attempted
// or for ctx to expire.
func (s *WebhookSink) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
	})

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Breaker exposes the sink's circuit breaker state.
func (s *WebhookSink) Breaker() *resilience.Breaker {
	return s.breaker
}

func (s *WebhookSink) run() {
	defer close(s.done)
	for report := range s.queue {
		outcome := s.deliver(report)
		s.metrics.RecordSinkDelivery(webhookSinkName, outcome)
	}
}

func (s *WebhookSink) deliver(report watchdog.FrozenReport) string {
	fields := []zap.Field{
		zap.String("report_id", report.ID.String()),
		logging.Session(report.SessionID),
	}

	done, err := s.breaker.Allow()
	if err != nil {
		s.logger.Warn("dropping report, webhook unavailable", append(fields, zap.Error(err))...)
		return OutcomeCircuitOpen
	}

	err = s.post(report)
	done(err == nil)
	if err != nil {
		s.logger.Warn("report delivery failed", append(fields, zap.Error(err))...)
		return OutcomeFailed
	}
	s.logger.Debug("report delivered", fields...)
	return OutcomeSent
}

func (s *WebhookSink) post(report watchdog.FrozenReport) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	req := s.client.R().SetBody(report)
	if s.tracer != nil {
		var span *tracing.Span
		span, ctx = s.tracer.StartSpan(ctx, "webhook.deliver")
		span.SetTag("report_id", report.ID.String())
		tracing.Inject(ctx, func(key, value string) { req.SetHeader(key, value) })
		defer func() {
			if err != nil {
				span.SetError(err)
			}
			span.Finish()
			s.tracer.Submit(span)
		}()
	}

	resp, err := req.SetContext(ctx).Post(s.cfg.URL)
	if err != nil {
		return err
	}
	return statusError(resp)
}

func statusError(resp *resty.Response) error {
	if resp.IsError() {
		return fmt.Errorf("webhook responded %s", resp.Status())
	}
	return nil
}
