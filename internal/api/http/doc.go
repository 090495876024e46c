// Package http exposes the watchdog over a REST API.
//
// Routes (all JSON):
//
//	POST   /v1/sessions/:id/events  report a dispatched event
//	POST   /v1/sessions/:id/ack     acknowledge events up to an id
//	GET    /v1/sessions/:id         session state
//	PUT    /v1/sessions/:id/app     register pid and bundle name
//	DELETE /v1/sessions/:id/timers  cancel the session's deadlines
//	DELETE /v1/sessions/:id         session lost
//	GET    /v1/stats                watchdog and ack latency statistics
//	GET    /health                  liveness
//
// An event the watchdog declines to track because of capacity is not an
// error: the response is 200 with "tracked": false instead of 202.
package http
