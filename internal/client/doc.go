// Package client plays the consuming side of a session.
//
// A Consumer reads dispatched events from the daemon, handles each one on
// its own run loop and acknowledges progress through a heartbeat.Emitter.
// The daemon and the consumer run on different clocks, so the dispatch
// time handed to the emitter is the local receive time, which is never
// earlier than the real dispatch.
package client
