// File: sigbridge/bridge.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Self-pipe signal bridge. Delivery-side code touches only the shared
// pending state, never the Bridge itself, so an installed handler cannot
// pin the bridge alive on its own.

package sigbridge

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-proc/api"
)

// pending is the state shared between the delivery goroutines and the
// drain callback. Kept separate from Bridge so that delivery code holds no
// strong reference back to the bridge object.
type pending struct {
	mu     sync.Mutex
	queue  *queue.Queue // of signal names, FIFO
	pipeW  int
	closed bool
}

// enqueue appends one occurrence and wakes the loop when the queue
// transitions from empty. Two deliveries racing on the emptiness check may
// both write a wake byte; the drain tolerates the surplus.
func (p *pending) enqueue(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if p.queue.Length() == 0 {
		// EAGAIN means the pipe already holds wake bytes, which is all
		// the drain needs.
		_, _ = unix.Write(p.pipeW, []byte{0})
	}
	p.queue.Add(name)
}

// Bridge converts raw signal delivery into loop-scheduled callbacks.
// Attach, Detach and Close must run on the loop goroutine; drains run
// there by construction.
type Bridge struct {
	loop     api.Loop
	registry *Registry
	state    *pending
	pipeR    int
	attached map[string]*attachment
	log      zerolog.Logger
}

type attachment struct {
	name  string
	cb    func()
	ch    chan os.Signal
	guard *Restore
}

// New creates a bridge wired into loop. The wake pipe's read end is
// registered for read readiness immediately.
func New(loop api.Loop, log zerolog.Logger) (*Bridge, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("sigbridge: pipe: %w", err)
	}
	b := &Bridge{
		loop:     loop,
		registry: DefaultRegistry,
		state:    &pending{queue: queue.New(), pipeW: fds[1]},
		pipeR:    fds[0],
		attached: make(map[string]*attachment),
		log:      log,
	}
	if err := loop.WatchRead(b.pipeR, b.drain); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, err
	}
	return b, nil
}

// Attach intercepts the named POSIX signal ("CHLD", "SIGTERM", ...) and
// arranges for cb to run on the loop for every queued occurrence. Fails
// with api.ErrHandlerConflict while the signal is owned by any other
// attachment in this process.
func (b *Bridge) Attach(name string, cb func()) error {
	canon := canonical(name)
	signum := unix.SignalNum("SIG" + canon)
	if signum == 0 {
		return fmt.Errorf("sigbridge: unknown signal %q", name)
	}
	guard, err := b.registry.Claim(canon, b)
	if err != nil {
		return err
	}

	// Buffered so bursts between drains are not dropped; queue emptiness,
	// not channel depth, is the authoritative signal.
	ch := make(chan os.Signal, 128)
	signal.Notify(ch, signum)

	state := b.state
	go func() {
		for range ch {
			state.enqueue(canon)
		}
	}()

	b.attached[canon] = &attachment{name: canon, cb: cb, ch: ch, guard: guard}
	b.log.Debug().Str("signal", canon).Msg("signal attached")
	return nil
}

// Detach restores the signal's previous disposition. Fails with
// api.ErrNotAttached when the bridge does not currently intercept it.
func (b *Bridge) Detach(name string) error {
	canon := canonical(name)
	att, ok := b.attached[canon]
	if !ok {
		return api.ErrNotAttached
	}
	b.release(att)
	delete(b.attached, canon)
	b.log.Debug().Str("signal", canon).Msg("signal detached")
	return nil
}

// Close detaches every intercepted signal, unregisters the wake pipe and
// closes both ends.
func (b *Bridge) Close() error {
	for name, att := range b.attached {
		b.release(att)
		delete(b.attached, name)
	}
	_ = b.loop.UnwatchRead(b.pipeR)
	b.state.mu.Lock()
	b.state.closed = true
	b.state.mu.Unlock()
	unix.Close(b.pipeR)
	unix.Close(b.state.pipeW)
	return nil
}

func (b *Bridge) release(att *attachment) {
	signal.Stop(att.ch)
	close(att.ch)
	att.guard.Release()
}

// drain runs on wake-pipe readability. Delivery is held off only for the
// pipe-drain plus queue-snapshot step; callbacks run unguarded so they may
// attach further signals or block without deadlocking the bridge.
func (b *Bridge) drain() {
	b.state.mu.Lock()
	drainPipe(b.pipeR)
	var names []string
	for b.state.queue.Length() > 0 {
		names = append(names, b.state.queue.Remove().(string))
	}
	b.state.mu.Unlock()

	for _, name := range names {
		if att, ok := b.attached[name]; ok {
			att.cb()
		}
	}
}

func drainPipe(fd int) {
	var buf [64]byte
	for {
		n, err := unix.Read(fd, buf[:])
		if n < len(buf) || err != nil {
			return
		}
	}
}

// canonical strips an optional SIG prefix and upper-cases the name.
func canonical(name string) string {
	return strings.TrimPrefix(strings.ToUpper(name), "SIG")
}

// Signum exposes the numeric value for a canonical signal name. Used by
// the reaper and by tests to raise signals against the current process.
func Signum(name string) syscall.Signal {
	return unix.SignalNum("SIG" + canonical(name))
}
