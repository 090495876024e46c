// Package main is the entry point for the anrd watchdog daemon.
//
// anrd tracks input events dispatched to sessions and reports a session as
// frozen when one of its events stays unacknowledged past the ANR timeout.
//
// Surfaces:
//   - REST API under /v1 for dispatch, ack and session state
//   - websocket stream /v1/stream for consumers
//   - gRPC health service with one entry per frozen session
//   - Prometheus metrics on /metrics
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - Optional YAML or TOML file via -config or ANRD_CONFIG
//   - CLI flags override both
//
// Usage:
//
//	./anrd -config anrd.yaml
//	./anrd -port 8000 -grpc-port 50061 -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
