package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	apihttp "github.com/GriffinCanCode/AgentOS/anrd/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/api/ws"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/domain/watchdog"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/reporting"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/runloop"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/shared/clock"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/transport"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP and gRPC listeners and the watchdog behind them.
type Server struct {
	config  *config.Config
	logger  *logging.Logger
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer

	watchdog *watchdog.Watchdog
	loop     *runloop.Loop
	hub      *ws.Hub
	health   *reporting.HealthBridge
	webhook  *reporting.WebhookSink

	router     *gin.Engine
	httpServer *http.Server
	grpcServer *grpc.Server
}

// Option customizes a server.
type Option func(*serverOptions)

type serverOptions struct {
	clock clock.Clock
	sinks []reporting.Sink
}

// WithClock replaces the system clock.
func WithClock(clk clock.Clock) Option {
	return func(o *serverOptions) { o.clock = clk }
}

// WithSinks adds report sinks after the built-in ones.
func WithSinks(sinks ...reporting.Sink) Option {
	return func(o *serverOptions) { o.sinks = append(o.sinks, sinks...) }
}

// New creates a server instance. logger may be nil, in which case one is
// built from cfg.
func New(cfg *config.Config, logger *logging.Logger, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.clock == nil {
		options.clock = clock.NewSystem()
	}

	if logger == nil {
		var err error
		logger, err = logging.New(cfg.LoggerSettings())
		if err != nil {
			logger = logging.NewDefault()
			logger.Warn("Falling back to default logger", zap.Error(err))
		}
	}

	logger.Info("Initializing anrd",
		zap.String("port", cfg.Server.Port),
		zap.String("grpc_port", cfg.Server.GRPCPort),
		zap.Int64("anr_timeout_ms", cfg.Watchdog.TimeoutMs),
		zap.Int("max_outstanding_timers", cfg.Watchdog.MaxOutstandingTimers),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("anrd", logger)

	wd := watchdog.New(cfg.WatchdogSettings(), options.clock, logger).WithMetrics(metrics)
	loop := runloop.New(logger)
	watchdog.NewDriver(wd, loop, logger)

	s := &Server{
		config:   cfg,
		logger:   logger,
		metrics:  metrics,
		tracer:   tracer,
		watchdog: wd,
		loop:     loop,
		hub:      ws.NewHub(logger, metrics),
		health:   reporting.NewHealthBridge(),
	}

	sinks := []reporting.Sink{reporting.NewLogSink(logger), s.health}
	if cfg.Report.WebhookURL != "" {
		s.webhook = reporting.NewWebhookSink(reporting.WebhookConfig{
			URL:       cfg.Report.WebhookURL,
			Timeout:   cfg.Report.WebhookTimeout.Duration,
			QueueSize: cfg.Report.QueueSize,
			Breaker:   resilience.Settings{Timeout: 30 * time.Second},
		}, tracer, logger, metrics)
		sinks = append(sinks, s.webhook)
		logger.Info("Webhook reporting enabled", zap.String("url", cfg.Report.WebhookURL))
	}
	sinks = append(sinks, options.sinks...)

	// A consumer that disconnects without a replacement takes its session with it.
	wd.Init(s.hub)

	fanout := reporting.NewFanout(logger, metrics, sinks...)
	wd.SetFrozenObserver(fanout.Observe)
	wd.SetRecoveredObserver(s.health.Recovered)

	s.router = s.newRouter(options.clock)
	s.grpcServer = s.newGRPCServer()

	logger.Info("Server initialized successfully")
	return s, nil
}

func (s *Server) newRouter(clk clock.Clock) *gin.Engine {
	if !s.config.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(s.tracer))
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if s.config.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", s.config.RateLimit.RequestsPerSecond),
			zap.Int("burst", s.config.RateLimit.Burst),
		)
		limits := middleware.DefaultRateLimitConfig()
		limits.RequestsPerSecond = s.config.RateLimit.RequestsPerSecond
		limits.Burst = s.config.RateLimit.Burst
		router.Use(middleware.RateLimit(limits))
	}

	handlers := apihttp.NewHandlers(s.watchdog, s.hub, clk, s.metrics, s.logger)
	handlers.Register(router)

	router.GET(transport.StreamPath, ws.NewHandler(s.hub, s.watchdog).HandleConnection)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	return router
}

func (s *Server) newGRPCServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(tracing.GRPCUnaryInterceptor(s.tracer)),
		grpc.ChainStreamInterceptor(tracing.GRPCStreamInterceptor(s.tracer)),
	)
	healthpb.RegisterHealthServer(srv, s.health.Server())
	return srv
}

// Handler returns the REST and websocket surface. HTTP/2 without TLS is
// accepted alongside HTTP/1.1.
func (s *Server) Handler() http.Handler {
	return h2c.NewHandler(s.router, &http2.Server{})
}

// Watchdog returns the watchdog the server drives.
func (s *Server) Watchdog() *watchdog.Watchdog {
	return s.watchdog
}

// Run serves until ctx is done or a listener fails, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", net.JoinHostPort(s.config.Server.Host, s.config.Server.Port))
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}
	grpcLis, err := net.Listen("tcp", net.JoinHostPort(s.config.Server.Host, s.config.Server.GRPCPort))
	if err != nil {
		httpLis.Close()
		return fmt.Errorf("listen grpc: %w", err)
	}
	return s.Serve(ctx, httpLis, grpcLis)
}

// Serve is Run on caller-supplied listeners.
func (s *Server) Serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 3)
	go func() {
		if err := s.loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("watchdog loop: %w", err)
		}
	}()
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", httpLis.Addr().String()))
		if err := s.httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		s.logger.Info("Starting gRPC server", zap.String("addr", grpcLis.Addr().String()))
		if err := s.grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		s.logger.Error("Server failed", zap.Error(runErr))
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := s.shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// shutdown stops accepting work first, then drains the reporting path.
func (s *Server) shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var errs []error
	s.health.Shutdown()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	s.hub.Close()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}

	s.loop.Close()
	if s.webhook != nil {
		if err := s.webhook.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("webhook drain: %w", err))
		}
	}
	s.tracer.Close()

	stats := s.watchdog.Stats()
	s.logger.Info("Server stopped",
		zap.Int("outstanding_timers", stats.OutstandingTimers),
		zap.Int("frozen_sessions", stats.FrozenSessions),
	)
	_ = s.logger.Sync()

	return errors.Join(errs...)
}
