// Package ledger tracks, per session, which dispatched events are still
// waiting for acknowledgement and whether the session is considered frozen.
//
// Each session's events are kept oldest first and acknowledged as a prefix:
// acknowledging event N removes every event with an id <= N.
//
// RecordEvent only appends to a session that already has an entry. Callers
// must Open a session before its first event, otherwise the event is not
// tracked and RecordEvent reports false. The watchdog opens the entry itself
// right before recording, so the restriction only matters to direct users
// of this package.
//
// The Ledger is not safe for concurrent use.
package ledger
