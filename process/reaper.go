//go:build unix

// File: process/reaper.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// SIGCHLD reaper: one WNOHANG wait4 drain per bridge callback, statuses
// routed to per-pid watchers. Exit reporting stays decoupled from any
// readiness event.

package process

import (
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-proc/api"
	"github.com/momentics/hioload-proc/sigbridge"
)

// ChildReaper implements api.Reaper on top of a signal bridge.
type ChildReaper struct {
	loop     api.Loop
	bridge   *sigbridge.Bridge
	watchers map[int]func(api.ExitStatus)

	// unclaimed holds statuses reaped before anyone watched the pid;
	// SIGCHLD coalesces, so a single drain can collect several exits.
	unclaimed map[int]api.ExitStatus

	log zerolog.Logger
}

// NewReaper attaches SIGCHLD on the bridge. The bridge owns the signal
// for as long as the reaper lives.
func NewReaper(loop api.Loop, bridge *sigbridge.Bridge, log *zerolog.Logger) (*ChildReaper, error) {
	r := &ChildReaper{
		loop:      loop,
		bridge:    bridge,
		watchers:  make(map[int]func(api.ExitStatus)),
		unclaimed: make(map[int]api.ExitStatus),
		log:       zerolog.Nop(),
	}
	if log != nil {
		r.log = *log
	}
	if err := bridge.Attach("CHLD", r.reap); err != nil {
		return nil, err
	}
	return r, nil
}

// Watch registers fn for pid's exit status. An already-reaped status is
// delivered on a later tick to keep the callback asynchronous.
func (r *ChildReaper) Watch(pid int, fn func(api.ExitStatus)) {
	if st, done := r.unclaimed[pid]; done {
		delete(r.unclaimed, pid)
		r.loop.Defer(func() { fn(st) })
		return
	}
	r.watchers[pid] = fn
}

// Unwatch drops a pending watcher.
func (r *ChildReaper) Unwatch(pid int) {
	delete(r.watchers, pid)
}

// Close releases the SIGCHLD attachment.
func (r *ChildReaper) Close() error {
	return r.bridge.Detach("CHLD")
}

// reap drains every exited child. Runs on the loop via the bridge.
func (r *ChildReaper) reap() {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil || pid <= 0 {
			return
		}
		st := decodeWait(ws)
		r.log.Debug().Int("pid", pid).Int("exit_code", st.Code).Str("signal", st.Signal).Msg("child reaped")
		if fn, ok := r.watchers[pid]; ok {
			delete(r.watchers, pid)
			fn(st)
			continue
		}
		r.unclaimed[pid] = st
	}
}

func decodeWait(ws unix.WaitStatus) api.ExitStatus {
	switch {
	case ws.Exited():
		return api.ExitStatus{Exited: true, Code: ws.ExitStatus()}
	case ws.Signaled():
		return api.ExitStatus{Signal: unix.SignalName(ws.Signal())}
	default:
		return api.ExitStatus{}
	}
}
