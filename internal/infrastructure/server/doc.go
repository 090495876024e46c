// Package server assembles the daemon: the watchdog and its driver loop,
// the report sinks, the REST and websocket API on one listener and the
// gRPC health service on another.
//
// Frozen sessions show up in three places: the log, the gRPC health
// service "anr.session/<id>" (NOT_SERVING until the session recovers) and,
// when configured, a webhook.
package server
