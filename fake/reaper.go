// File: fake/reaper.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import "github.com/momentics/hioload-proc/api"

// Reaper is an api.Reaper tests feed by hand with Report.
type Reaper struct {
	watchers  map[int]func(api.ExitStatus)
	unclaimed map[int]api.ExitStatus
}

// NewReaper builds an empty fake reaper.
func NewReaper() *Reaper {
	return &Reaper{
		watchers:  make(map[int]func(api.ExitStatus)),
		unclaimed: make(map[int]api.ExitStatus),
	}
}

func (r *Reaper) Watch(pid int, fn func(api.ExitStatus)) {
	if st, ok := r.unclaimed[pid]; ok {
		delete(r.unclaimed, pid)
		fn(st)
		return
	}
	r.watchers[pid] = fn
}

func (r *Reaper) Unwatch(pid int) {
	delete(r.watchers, pid)
}

// Report delivers an exit status for pid, or holds it until Watch.
func (r *Reaper) Report(pid int, st api.ExitStatus) {
	if fn, ok := r.watchers[pid]; ok {
		delete(r.watchers, pid)
		fn(st)
		return
	}
	r.unclaimed[pid] = st
}
