//go:build unix

// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platform-neutral loop core: watcher table, deferred-callback queue,
// timer heap. The fd demultiplexer itself is supplied per platform by the
// poller interface.

package reactor

import (
	"container/heap"
	"fmt"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-proc/api"
)

// readiness bits reported by the poller.
type readiness uint8

const (
	readyRead readiness = 1 << iota
	readyWrite
	readyError
)

// poller is the platform demultiplexer. Implemented by epollPoller on
// Linux; other platforms get a stub that fails construction.
type poller interface {
	update(fd int, read, write bool) error
	remove(fd int) error
	wait(timeout time.Duration, onReady func(fd int, r readiness)) error
	close() error
}

type watcher struct {
	onRead  func()
	onWrite func()
}

// Loop is the default api.Loop implementation. All methods except Defer
// must be called from the loop goroutine (or before Run starts).
type Loop struct {
	poll     poller
	watchers map[int]*watcher

	deferMu  sync.Mutex
	deferred *queue.Queue // of func()
	wakeR    int
	wakeW    int

	timers timerHeap

	stopped bool
	log     zerolog.Logger
}

// Option mutates loop construction.
type Option func(*Loop)

// WithLogger installs a logger; the default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Loop) { l.log = log }
}

// New constructs a loop with a platform poller and a wake pipe.
func New(opts ...Option) (*Loop, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	l := &Loop{
		poll:     p,
		watchers: make(map[int]*watcher),
		deferred: queue.New(),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		p.close()
		return nil, fmt.Errorf("reactor: wake pipe: %w", err)
	}
	l.wakeR, l.wakeW = fds[0], fds[1]
	if err := l.WatchRead(l.wakeR, l.drainWake); err != nil {
		p.close()
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, err
	}
	return l, nil
}

// WatchRead registers cb for read readiness of fd.
func (l *Loop) WatchRead(fd int, cb func()) error {
	w := l.watchers[fd]
	if w == nil {
		w = &watcher{}
		l.watchers[fd] = w
	}
	w.onRead = cb
	return l.poll.update(fd, true, w.onWrite != nil)
}

// WatchWrite registers cb for write readiness of fd.
func (l *Loop) WatchWrite(fd int, cb func()) error {
	w := l.watchers[fd]
	if w == nil {
		w = &watcher{}
		l.watchers[fd] = w
	}
	w.onWrite = cb
	return l.poll.update(fd, w.onRead != nil, true)
}

// UnwatchRead removes the read watcher for fd.
func (l *Loop) UnwatchRead(fd int) error {
	w := l.watchers[fd]
	if w == nil {
		return nil
	}
	w.onRead = nil
	return l.retire(fd, w)
}

// UnwatchWrite removes the write watcher for fd.
func (l *Loop) UnwatchWrite(fd int) error {
	w := l.watchers[fd]
	if w == nil {
		return nil
	}
	w.onWrite = nil
	return l.retire(fd, w)
}

func (l *Loop) retire(fd int, w *watcher) error {
	if w.onRead == nil && w.onWrite == nil {
		delete(l.watchers, fd)
		return l.poll.remove(fd)
	}
	return l.poll.update(fd, w.onRead != nil, w.onWrite != nil)
}

// Defer schedules fn on a later loop tick. Safe from any goroutine; the
// wake byte is written only on the empty-to-non-empty transition.
func (l *Loop) Defer(fn func()) {
	l.deferMu.Lock()
	if l.deferred.Length() == 0 {
		_, _ = unix.Write(l.wakeW, []byte{0})
	}
	l.deferred.Add(fn)
	l.deferMu.Unlock()
}

// AfterFunc arms a one-shot timer. Loop goroutine only.
func (l *Loop) AfterFunc(d time.Duration, fn func()) api.Timer {
	t := &timer{loop: l, fn: fn, when: time.Now().Add(d), index: -1}
	heap.Push(&l.timers, t)
	return t
}

// Stop makes Run return after the current tick. Safe from any goroutine.
func (l *Loop) Stop() {
	l.Defer(func() { l.stopped = true })
}

// Run drives the loop until Stop. Readiness callbacks, due timers and the
// deferred queue are serviced on every tick, in that order.
func (l *Loop) Run() error {
	for !l.stopped {
		if err := l.tick(); err != nil {
			return err
		}
	}
	return nil
}

// tick performs a single poll-and-dispatch round. Exposed via Run only;
// fake loops used in tests provide their own stepping.
func (l *Loop) tick() error {
	timeout := l.nextTimeout()
	err := l.poll.wait(timeout, func(fd int, r readiness) {
		w := l.watchers[fd]
		if w == nil {
			return
		}
		// Error/hangup surfaces through the read path first so EOF is
		// observed; a write-only watcher still gets unblocked.
		if r&(readyRead|readyError) != 0 && w.onRead != nil {
			w.onRead()
		}
		if r&(readyWrite|readyError) != 0 && w.onWrite != nil {
			w.onWrite()
		}
	})
	if err != nil && err != unix.EINTR {
		return fmt.Errorf("reactor: poll: %w", err)
	}
	l.fireTimers()
	l.runDeferred()
	return nil
}

func (l *Loop) nextTimeout() time.Duration {
	l.deferMu.Lock()
	pending := l.deferred.Length() > 0
	l.deferMu.Unlock()
	if pending {
		return 0
	}
	if len(l.timers) == 0 {
		return -1
	}
	d := time.Until(l.timers[0].when)
	if d < 0 {
		return 0
	}
	return d
}

func (l *Loop) fireTimers() {
	now := time.Now()
	for len(l.timers) > 0 && !l.timers[0].when.After(now) {
		t := heap.Pop(&l.timers).(*timer)
		t.index = -1
		t.fn()
	}
}

func (l *Loop) runDeferred() {
	l.deferMu.Lock()
	var fns []func()
	for l.deferred.Length() > 0 {
		fns = append(fns, l.deferred.Remove().(func()))
	}
	l.deferMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (l *Loop) drainWake() {
	var buf [64]byte
	for {
		n, err := unix.Read(l.wakeR, buf[:])
		if n < len(buf) || err != nil {
			return
		}
	}
}

// Close releases the poller and the wake pipe. The loop must not be
// running.
func (l *Loop) Close() error {
	unix.Close(l.wakeR)
	unix.Close(l.wakeW)
	return l.poll.close()
}
