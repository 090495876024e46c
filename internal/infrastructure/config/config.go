package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/AgentOS/anrd/internal/domain/heartbeat"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/domain/timer"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/domain/watchdog"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/logging"
)

// FileEnv names the environment variable holding an optional config file.
const FileEnv = "ANRD_CONFIG"

// ErrUnsupportedFormat is returned for config files that are neither YAML
// nor TOML.
var ErrUnsupportedFormat = errors.New("unsupported config file format")

// Config holds all daemon configuration.
//
// Values are layered: Default, then an optional file, then the environment.
// Fields carry no envconfig defaults so an unset variable never clobbers a
// value from the file.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Watchdog  WatchdogConfig  `yaml:"watchdog" toml:"watchdog"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat" toml:"heartbeat"`
	Logging   LogConfig       `yaml:"logging" toml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
	Report    ReportConfig    `yaml:"report" toml:"report"`
}

// ServerConfig holds listener configuration.
type ServerConfig struct {
	Host     string `envconfig:"HOST" yaml:"host" toml:"host"`
	Port     string `envconfig:"PORT" yaml:"port" toml:"port"`
	GRPCPort string `envconfig:"GRPC_PORT" yaml:"grpc_port" toml:"grpc_port"`
}

// WatchdogConfig holds the detection tunables.
type WatchdogConfig struct {
	TimeoutMs            int64 `envconfig:"ANR_TIMEOUT_MS" yaml:"timeout_ms" toml:"timeout_ms"`
	MaxOutstandingTimers int   `envconfig:"ANR_MAX_OUTSTANDING_TIMERS" yaml:"max_outstanding_timers" toml:"max_outstanding_timers"`
	MinTimerIntervalMs   int64 `envconfig:"ANR_MIN_TIMER_INTERVAL_MS" yaml:"min_timer_interval_ms" toml:"min_timer_interval_ms"`
	MaxTimerIntervalMs   int64 `envconfig:"ANR_MAX_TIMER_INTERVAL_MS" yaml:"max_timer_interval_ms" toml:"max_timer_interval_ms"`
	MaxTimerSlots        int   `envconfig:"ANR_MAX_TIMER_SLOTS" yaml:"max_timer_slots" toml:"max_timer_slots"`
}

// HeartbeatConfig holds the client acknowledgement timing.
type HeartbeatConfig struct {
	MinDelayMs int64 `envconfig:"HEARTBEAT_MIN_DELAY_MS" yaml:"min_delay_ms" toml:"min_delay_ms"`
	MaxDelayMs int64 `envconfig:"HEARTBEAT_MAX_DELAY_MS" yaml:"max_delay_ms" toml:"max_delay_ms"`
	MarginMs   int64 `envconfig:"HEARTBEAT_MARGIN_MS" yaml:"margin_ms" toml:"margin_ms"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development" toml:"development"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" yaml:"burst" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" yaml:"enabled" toml:"enabled"`
}

// ReportConfig holds the outbound fault report configuration.
type ReportConfig struct {
	WebhookURL     string   `envconfig:"REPORT_WEBHOOK_URL" yaml:"webhook_url" toml:"webhook_url"`
	WebhookTimeout Duration `envconfig:"REPORT_WEBHOOK_TIMEOUT" yaml:"webhook_timeout" toml:"webhook_timeout"`
	QueueSize      int      `envconfig:"REPORT_QUEUE_SIZE" yaml:"queue_size" toml:"queue_size"`
}

// Duration is a time.Duration read from text such as "3s" in every source.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns default configuration.
func Default() *Config {
	wd := watchdog.DefaultConfig()
	hb := heartbeat.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			Port:     "8000",
			GRPCPort: "50061",
		},
		Watchdog: WatchdogConfig{
			TimeoutMs:            wd.AnrTimeoutMs,
			MaxOutstandingTimers: wd.MaxOutstandingTimers,
			MinTimerIntervalMs:   wd.Timer.MinIntervalMs,
			MaxTimerIntervalMs:   wd.Timer.MaxIntervalMs,
			MaxTimerSlots:        wd.Timer.Slots,
		},
		Heartbeat: HeartbeatConfig{
			MinDelayMs: hb.MinDelayMs,
			MaxDelayMs: hb.MaxDelayMs,
			MarginMs:   hb.MarginMs,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Report: ReportConfig{
			WebhookTimeout: Duration{3 * time.Second},
			QueueSize:      64,
		},
	}
}

// Load reads the file named by ANRD_CONFIG, if set, and applies the
// environment on top.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(FileEnv))
}

// LoadFile reads path, if non-empty, and applies the environment on top.
// The format is chosen by extension: .yaml, .yml or .toml.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the combined configuration.
func (c *Config) Validate() error {
	var errs []error
	w := c.Watchdog

	if w.MinTimerIntervalMs <= 0 || w.MinTimerIntervalMs > w.MaxTimerIntervalMs {
		errs = append(errs, fmt.Errorf("timer interval range [%d, %d] is invalid",
			w.MinTimerIntervalMs, w.MaxTimerIntervalMs))
	}
	if w.TimeoutMs < w.MinTimerIntervalMs || w.TimeoutMs > w.MaxTimerIntervalMs {
		errs = append(errs, fmt.Errorf("ANR timeout %dms outside timer interval range [%d, %d]",
			w.TimeoutMs, w.MinTimerIntervalMs, w.MaxTimerIntervalMs))
	}
	if w.MaxTimerSlots <= 0 {
		errs = append(errs, fmt.Errorf("timer slots must be positive, got %d", w.MaxTimerSlots))
	}
	if w.MaxOutstandingTimers <= 0 || w.MaxOutstandingTimers > w.MaxTimerSlots {
		errs = append(errs, fmt.Errorf("outstanding timer cap %d must be in [1, %d]",
			w.MaxOutstandingTimers, w.MaxTimerSlots))
	}

	h := c.Heartbeat
	if h.MinDelayMs < 0 || h.MinDelayMs > h.MaxDelayMs {
		errs = append(errs, fmt.Errorf("heartbeat delay range [%d, %d] is invalid", h.MinDelayMs, h.MaxDelayMs))
	}
	if h.MarginMs < 0 || h.MarginMs >= w.TimeoutMs {
		errs = append(errs, fmt.Errorf("heartbeat margin %dms must be below the ANR timeout", h.MarginMs))
	}

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port is required"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("rate limit needs positive rps and burst when enabled"))
	}
	if c.Report.WebhookURL != "" {
		if u, err := url.Parse(c.Report.WebhookURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid report webhook url %q", c.Report.WebhookURL))
		}
	}
	if c.Report.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("report queue size must be positive, got %d", c.Report.QueueSize))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// WatchdogSettings converts to the watchdog's tunables.
func (c *Config) WatchdogSettings() watchdog.Config {
	return watchdog.Config{
		AnrTimeoutMs:         c.Watchdog.TimeoutMs,
		MaxOutstandingTimers: c.Watchdog.MaxOutstandingTimers,
		Timer: timer.Config{
			MinIntervalMs: c.Watchdog.MinTimerIntervalMs,
			MaxIntervalMs: c.Watchdog.MaxTimerIntervalMs,
			Slots:         c.Watchdog.MaxTimerSlots,
		},
	}
}

// HeartbeatSettings converts to the heartbeat emitter's tunables.
func (c *Config) HeartbeatSettings() heartbeat.Config {
	return heartbeat.Config{
		AnrTimeoutMs: c.Watchdog.TimeoutMs,
		MinDelayMs:   c.Heartbeat.MinDelayMs,
		MaxDelayMs:   c.Heartbeat.MaxDelayMs,
		MarginMs:     c.Heartbeat.MarginMs,
	}
}

// LoggerSettings converts to the logger configuration.
func (c *Config) LoggerSettings() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Logging.Level
	cfg.Development = c.Logging.Development
	return cfg
}
