// Package timer implements the deadline engine used by the ANR watchdog.
//
// An Engine holds a bounded set of one-shot or repeating timers with
// millisecond resolution. Timers are kept sorted by their next deadline, so
// both "how long until the next deadline" and "fire everything that is due"
// only ever look at the front of the collection.
//
// Timer ids come from a fixed-size pool and the lowest free id is always
// handed out first. When the pool is exhausted AddTimer returns None instead
// of failing loudly; callers treat that as "this deadline is not tracked".
//
// The Engine is not safe for concurrent use. The watchdog serializes every
// call behind its own mutex.
package timer
