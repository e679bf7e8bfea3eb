// File: api/loop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Readiness-loop contract. The core never blocks: every suspension is a
// callback registered here and resumed by the loop on a later tick.

package api

import "time"

// Loop is the minimal reactor surface the core requires: register a file
// descriptor for read/write readiness, schedule a zero-arg callback for a
// later tick, and arm one-shot timers.
//
// All callbacks run on the loop goroutine. Defer is the only method that
// may be called from other goroutines.
type Loop interface {
	// WatchRead invokes cb whenever fd becomes readable. One read
	// watcher per fd.
	WatchRead(fd int, cb func()) error

	// WatchWrite invokes cb whenever fd becomes writable. One write
	// watcher per fd.
	WatchWrite(fd int, cb func()) error

	// UnwatchRead removes the read watcher for fd.
	UnwatchRead(fd int) error

	// UnwatchWrite removes the write watcher for fd.
	UnwatchWrite(fd int) error

	// Defer schedules fn to run on the loop goroutine on a later tick.
	// Safe to call from any goroutine.
	Defer(fn func())

	// AfterFunc arms a one-shot timer firing fn on the loop goroutine
	// after d. The returned timer is cancellable and re-armable.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a cancellable one-shot countdown.
type Timer interface {
	// Stop cancels the timer. Reports whether it was still pending.
	Stop() bool

	// Reset re-arms the timer for d from now.
	Reset(d time.Duration)
}
