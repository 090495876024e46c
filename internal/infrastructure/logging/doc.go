// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for human readability
//
// Components receive a *Logger by injection and derive a named child with
// Named, so every line carries the component that wrote it ("watchdog",
// "timer", "heartbeat", ...). The field helpers keep the watchdog's
// identifiers consistently keyed across components.
//
// Example Usage:
//
//	logger := logging.NewDefault().Named("watchdog")
//	logger.Warn("session frozen", logging.Session(7), zap.Int32("pid", 1234))
package logging
