package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "50061", cfg.Server.GRPCPort)

	// Watchdog config
	assert.Equal(t, int64(5000), cfg.Watchdog.TimeoutMs)
	assert.Equal(t, 50, cfg.Watchdog.MaxOutstandingTimers)
	assert.Equal(t, int64(50), cfg.Watchdog.MinTimerIntervalMs)
	assert.Equal(t, int64(10000), cfg.Watchdog.MaxTimerIntervalMs)
	assert.Equal(t, 64, cfg.Watchdog.MaxTimerSlots)

	// Heartbeat config
	assert.Equal(t, int64(100), cfg.Heartbeat.MinDelayMs)
	assert.Equal(t, int64(4000), cfg.Heartbeat.MaxDelayMs)
	assert.Equal(t, int64(500), cfg.Heartbeat.MarginMs)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Rate limit config
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)

	// Report config
	assert.Empty(t, cfg.Report.WebhookURL)
	assert.Equal(t, 3*time.Second, cfg.Report.WebhookTimeout.Duration)

	require.NoError(t, cfg.Validate())
}

func TestLoadOrDefault(t *testing.T) {
	t.Setenv(FileEnv, "")

	cfg := LoadOrDefault()

	assert.NotNil(t, cfg)
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadOrDefaultFallsBackOnInvalidEnv(t *testing.T) {
	t.Setenv(FileEnv, "")
	t.Setenv("ANR_TIMEOUT_MS", "not-a-number")

	cfg := LoadOrDefault()
	assert.Equal(t, int64(5000), cfg.Watchdog.TimeoutMs)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		FileEnv:                      "",
		"PORT":                       "9000",
		"HOST":                       "127.0.0.1",
		"GRPC_PORT":                  "9001",
		"ANR_TIMEOUT_MS":             "3000",
		"ANR_MAX_OUTSTANDING_TIMERS": "64",
		"HEARTBEAT_MARGIN_MS":        "250",
		"LOG_LEVEL":                  "debug",
		"LOG_DEV":                    "true",
		"RATE_LIMIT_RPS":             "500",
		"RATE_LIMIT_BURST":           "1000",
		"RATE_LIMIT_ENABLED":         "false",
		"REPORT_WEBHOOK_URL":         "http://faults.internal/anr",
		"REPORT_WEBHOOK_TIMEOUT":     "750ms",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "9001", cfg.Server.GRPCPort)
	assert.Equal(t, int64(3000), cfg.Watchdog.TimeoutMs)
	assert.Equal(t, 64, cfg.Watchdog.MaxOutstandingTimers)
	assert.Equal(t, int64(250), cfg.Heartbeat.MarginMs)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 1000, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "http://faults.internal/anr", cfg.Report.WebhookURL)
	assert.Equal(t, 750*time.Millisecond, cfg.Report.WebhookTimeout.Duration)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFileFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "anrd.yaml",
			content: `
server:
  port: "7000"
watchdog:
  timeout_ms: 2000
  max_outstanding_timers: 20
heartbeat:
  margin_ms: 200
report:
  webhook_timeout: 5s
`,
		},
		{
			name: "toml",
			file: "anrd.toml",
			content: `
[server]
port = "7000"

[watchdog]
timeout_ms = 2000
max_outstanding_timers = 20

[heartbeat]
margin_ms = 200

[report]
webhook_timeout = "5s"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFile(writeFile(t, tt.file, tt.content))
			require.NoError(t, err)

			assert.Equal(t, "7000", cfg.Server.Port)
			assert.Equal(t, "0.0.0.0", cfg.Server.Host, "fields absent from the file keep defaults")
			assert.Equal(t, int64(2000), cfg.Watchdog.TimeoutMs)
			assert.Equal(t, 20, cfg.Watchdog.MaxOutstandingTimers)
			assert.Equal(t, 64, cfg.Watchdog.MaxTimerSlots)
			assert.Equal(t, int64(200), cfg.Heartbeat.MarginMs)
			assert.Equal(t, 5*time.Second, cfg.Report.WebhookTimeout.Duration)
		})
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "anrd.yml", "server:\n  port: \"7000\"\n  host: \"10.0.0.1\"\n")
	t.Setenv("PORT", "7100")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "7100", cfg.Server.Port)
	assert.Equal(t, "10.0.0.1", cfg.Server.Host)
}

func TestLoadReadsFileFromEnvironment(t *testing.T) {
	t.Setenv(FileEnv, writeFile(t, "anrd.toml", "[logging]\nlevel = \"warn\"\n"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(writeFile(t, "anrd.json", "{}"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadFile(writeFile(t, "bad.toml", "[watchdog\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"timeout below min interval", func(c *Config) { c.Watchdog.TimeoutMs = 10 }, true},
		{"timeout above max interval", func(c *Config) { c.Watchdog.TimeoutMs = 20000 }, true},
		{"inverted interval range", func(c *Config) { c.Watchdog.MinTimerIntervalMs = 20000 }, true},
		{"cap equal to slots", func(c *Config) { c.Watchdog.MaxOutstandingTimers = 64 }, false},
		{"cap above slots", func(c *Config) { c.Watchdog.MaxOutstandingTimers = 65 }, true},
		{"zero cap", func(c *Config) { c.Watchdog.MaxOutstandingTimers = 0 }, true},
		{"inverted heartbeat range", func(c *Config) { c.Heartbeat.MinDelayMs = 5000 }, true},
		{"margin eats the timeout", func(c *Config) { c.Heartbeat.MarginMs = 5000 }, true},
		{"missing port", func(c *Config) { c.Server.Port = "" }, true},
		{"rate limit without burst", func(c *Config) { c.RateLimit.Burst = 0 }, true},
		{"rate limit disabled ignores values", func(c *Config) {
			c.RateLimit.Enabled = false
			c.RateLimit.Burst = 0
		}, false},
		{"relative webhook url", func(c *Config) { c.Report.WebhookURL = "/hook" }, true},
		{"zero queue", func(c *Config) { c.Report.QueueSize = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSettingsConversion(t *testing.T) {
	cfg := Default()
	cfg.Watchdog.TimeoutMs = 3000

	wd := cfg.WatchdogSettings()
	assert.Equal(t, int64(3000), wd.AnrTimeoutMs)
	assert.Equal(t, 50, wd.MaxOutstandingTimers)
	assert.Equal(t, 64, wd.Timer.Slots)

	hb := cfg.HeartbeatSettings()
	assert.Equal(t, int64(3000), hb.AnrTimeoutMs, "heartbeat follows the watchdog timeout")
	assert.Equal(t, int64(4000), hb.MaxDelayMs)

	lc := cfg.LoggerSettings()
	assert.Equal(t, "info", lc.Level)
}
