// File: api/reaper.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// ExitStatus describes how a child process ended, decomposed the way the
// supervisor consumes it: a normal-exit flag with the numeric status, or
// the terminating signal, plus the OS errno captured when the failure
// happened before exec.
type ExitStatus struct {
	// Exited reports a normal exit (as opposed to signal termination).
	Exited bool

	// Code is the numeric exit status when Exited is true.
	Code int

	// Signal names the terminating signal when Exited is false.
	Signal string

	// Errno is the OS error captured at the point of a fork/exec
	// failure, zero otherwise.
	Errno int

	// Err carries the exception value for a failed spawn or a code-body
	// failure, nil for a clean end.
	Err error
}

// Reaper delivers asynchronous child-exit notifications, decoupled from
// any readiness event. Watch callbacks run on the loop goroutine.
type Reaper interface {
	// Watch registers fn to be called exactly once with pid's exit
	// status. Statuses that arrive before Watch are held and delivered
	// on registration.
	Watch(pid int, fn func(ExitStatus))

	// Unwatch drops a pending watcher. A no-op for unknown pids.
	Unwatch(pid int)
}
