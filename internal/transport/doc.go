/*
Package transport carries watchdog traffic between the daemon and the
consuming side.

Wire messages are JSON objects encoded with sonic:

	{"type":"event","session_id":1,"event_id":42,"dispatch_time_ms":1200}
	{"type":"ack","session_id":1,"event_id":42}
	{"type":"ping"} / {"type":"pong"}
	{"type":"error","error":"..."}

Two client transports implement heartbeat.Transport: WS sends acks over the
same websocket the events arrive on, HTTP posts them to the REST API.
Both are fire-and-forget; failures are logged and never retried.
*/
package transport
