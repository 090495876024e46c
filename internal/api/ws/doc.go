/*
Package ws implements the daemon's websocket stream.

A consumer subscribes to one session with GET /v1/stream?session=<id>.
Events reported for that session are pushed to it as "event" frames, and
"ack" frames it sends back are applied to the watchdog. A session has at
most one subscriber; a newer connection replaces the older one.

Each connection runs a read pump on the handler goroutine and a write pump
that owns all writes, including keepalive pings.
*/
package ws
