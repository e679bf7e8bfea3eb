// File: fake/loop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import (
	"sort"
	"sync"
	"time"

	"github.com/momentics/hioload-proc/api"
)

// Loop is a hand-driven api.Loop. Deferred callbacks run when the test
// calls Tick; timers fire when the test calls Advance. Watch
// registrations are recorded and triggered explicitly.
type Loop struct {
	mu       sync.Mutex
	readers  map[int]func()
	writers  map[int]func()
	deferred []func()
	timers   []*loopTimer
	now      time.Duration
}

// NewLoop builds an empty fake loop at time zero.
func NewLoop() *Loop {
	return &Loop{
		readers: make(map[int]func()),
		writers: make(map[int]func()),
	}
}

func (l *Loop) WatchRead(fd int, cb func()) error {
	l.readers[fd] = cb
	return nil
}

func (l *Loop) WatchWrite(fd int, cb func()) error {
	l.writers[fd] = cb
	return nil
}

func (l *Loop) UnwatchRead(fd int) error {
	delete(l.readers, fd)
	return nil
}

func (l *Loop) UnwatchWrite(fd int) error {
	delete(l.writers, fd)
	return nil
}

func (l *Loop) Defer(fn func()) {
	l.mu.Lock()
	l.deferred = append(l.deferred, fn)
	l.mu.Unlock()
}

func (l *Loop) AfterFunc(d time.Duration, fn func()) api.Timer {
	t := &loopTimer{loop: l, fn: fn, deadline: l.now + d, armed: true}
	l.timers = append(l.timers, t)
	return t
}

// Tick runs all deferred callbacks, including ones queued while ticking.
func (l *Loop) Tick() {
	for {
		l.mu.Lock()
		batch := l.deferred
		l.deferred = nil
		l.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			fn()
		}
	}
}

// Advance moves fake time forward and fires due timers in deadline
// order, then ticks.
func (l *Loop) Advance(d time.Duration) {
	l.now += d
	for {
		t := l.nextDue()
		if t == nil {
			break
		}
		t.armed = false
		t.fn()
	}
	l.Tick()
}

func (l *Loop) nextDue() *loopTimer {
	live := l.timers[:0]
	for _, t := range l.timers {
		if t.armed {
			live = append(live, t)
		}
	}
	l.timers = live
	sort.SliceStable(l.timers, func(i, j int) bool {
		return l.timers[i].deadline < l.timers[j].deadline
	})
	if len(l.timers) > 0 && l.timers[0].deadline <= l.now {
		return l.timers[0]
	}
	return nil
}

// TriggerRead simulates read readiness on fd.
func (l *Loop) TriggerRead(fd int) {
	if cb, ok := l.readers[fd]; ok {
		cb()
	}
}

// TriggerWrite simulates write readiness on fd.
func (l *Loop) TriggerWrite(fd int) {
	if cb, ok := l.writers[fd]; ok {
		cb()
	}
}

// Watching reports whether fd has a read watcher.
func (l *Loop) Watching(fd int) bool {
	_, ok := l.readers[fd]
	return ok
}

// WatchingWrite reports whether fd has a write watcher.
func (l *Loop) WatchingWrite(fd int) bool {
	_, ok := l.writers[fd]
	return ok
}

// PendingTimers counts armed timers.
func (l *Loop) PendingTimers() int {
	n := 0
	for _, t := range l.timers {
		if t.armed {
			n++
		}
	}
	return n
}

type loopTimer struct {
	loop     *Loop
	fn       func()
	deadline time.Duration
	armed    bool
}

func (t *loopTimer) Stop() bool {
	was := t.armed
	t.armed = false
	return was
}

func (t *loopTimer) Reset(d time.Duration) {
	t.deadline = t.loop.now + d
	if !t.armed {
		t.armed = true
		t.loop.timers = append(t.loop.timers, t)
	}
}
