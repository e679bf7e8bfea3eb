// File: api/errors.go
// Author: momentics <momentics@gmail.com>
//
// Common error values shared across the hioload-proc library.

package api

import "fmt"

// Configuration errors. All of these are reported synchronously from the
// call that caused them and are never retried.
var (
	// ErrDuplicateKey is returned by MergePoint.Needs for a key that is
	// already registered and not yet fired.
	ErrDuplicateKey = fmt.Errorf("merge point: duplicate key")

	// ErrUnknownKey is returned by MergePoint.Done for a key that was
	// never registered.
	ErrUnknownKey = fmt.Errorf("merge point: unknown key")

	// ErrMergeClosed is returned when a MergePoint is mutated after Close.
	ErrMergeClosed = fmt.Errorf("merge point: already closed")

	// ErrHandlerConflict is returned by SignalBridge.Attach when the
	// signal is already owned by another attachment.
	ErrHandlerConflict = fmt.Errorf("signal bridge: handler conflict")

	// ErrNotAttached is returned by SignalBridge.Detach for a signal the
	// bridge does not currently intercept.
	ErrNotAttached = fmt.Errorf("signal bridge: signal not attached")

	// ErrInvalidCallSpec is returned by WorkerPool.Call when the
	// continuation is neither OnResult alone nor OnReturn+OnError.
	ErrInvalidCallSpec = fmt.Errorf("worker pool: invalid call spec")

	// ErrAlreadyRunning is returned for configuration calls on a child
	// process that has already been started.
	ErrAlreadyRunning = fmt.Errorf("process: already running")

	// ErrFDConflict is returned when an fd role contradicts an earlier
	// one, e.g. stdin/stdout combined with the stdio pseudo-fd.
	ErrFDConflict = fmt.Errorf("process: fd role conflict")

	// ErrModeConflict is returned when an explicit wiring mode
	// contradicts the usage inferred from OnRead/Into/From.
	ErrModeConflict = fmt.Errorf("process: wiring mode conflict")

	// ErrNoBody is returned by ChildProcess.Start when neither a command
	// nor a code entry is configured, or both are.
	ErrNoBody = fmt.Errorf("process: exactly one of code or command required")

	// ErrPoolStopped is returned by WorkerPool.Call after Stop.
	ErrPoolStopped = fmt.Errorf("worker pool: stopped")

	// ErrStreamClosed is returned by Stream.Write after the write handle
	// has been closed.
	ErrStreamClosed = fmt.Errorf("stream: closed")

	// ErrChannelClosed is returned by Channel.Send after CloseSend, and
	// surfaced to receivers when the peer closed its end.
	ErrChannelClosed = fmt.Errorf("channel: closed")

	// ErrNotSupported is returned on platforms without a reactor
	// implementation.
	ErrNotSupported = fmt.Errorf("operation not supported")
)
