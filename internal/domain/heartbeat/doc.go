/*
Package heartbeat implements the consuming side of the ANR protocol.

An Emitter collects "handled up to event N" notes for one channel and turns
them into as few acknowledgements as possible. The first note after an idle
period schedules a heartbeat shortly before the server-side deadline of the
event that triggered it; further notes while the heartbeat is pending ride
along with it.

	IDLE --NoteEventHandled--> PENDING --fire--> IDLE

An Emitter is not safe for concurrent use. Drive it from the goroutine that
runs its Scheduler, which is what client.Consumer does.
*/
package heartbeat
