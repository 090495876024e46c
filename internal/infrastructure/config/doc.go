// Package config provides 12-factor configuration for the watchdog daemon.
//
// Configuration starts from Default, is optionally overlaid with a YAML or
// TOML file named by ANRD_CONFIG (or the daemon's -config flag), and is
// finally overridden by environment variables.
//
// Configuration Sections:
//   - Server: HTTP and gRPC listeners
//   - Watchdog: ANR timeout, outstanding timer cap, timer engine bounds
//   - Heartbeat: client acknowledgement timing
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//   - Report: outbound fault report webhook
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	wd := watchdog.New(cfg.WatchdogSettings(), clock.NewSystem(), logger)
//
// Environment Variables:
//   - HOST, PORT, GRPC_PORT
//   - ANR_TIMEOUT_MS, ANR_MAX_OUTSTANDING_TIMERS, ANR_MIN_TIMER_INTERVAL_MS,
//     ANR_MAX_TIMER_INTERVAL_MS, ANR_MAX_TIMER_SLOTS
//   - HEARTBEAT_MIN_DELAY_MS, HEARTBEAT_MAX_DELAY_MS, HEARTBEAT_MARGIN_MS
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - REPORT_WEBHOOK_URL, REPORT_WEBHOOK_TIMEOUT, REPORT_QUEUE_SIZE
package config
