// File: merge/merge.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package merge implements a single-use completion barrier: a declared set
// of named asynchronous conditions that fires one callback when the set is
// closed and every registered key has completed. The child-process
// supervisor uses one Point per spawned process to combine "all wired
// streams closed" with "exit reported"; the type is freestanding and
// reusable for any fan-in of independently-completing events.
package merge

import (
	"sync"

	"github.com/momentics/hioload-proc/api"
)

// Point is the completion barrier. Keys may be registered incrementally
// while work is already in flight; Close declares the set complete. The
// finish callback fires exactly once, after Close and after the last Done,
// in whichever order those arrive.
type Point struct {
	mu         sync.Mutex
	pending    map[string]struct{}
	results    map[string]any
	closed     bool
	fired      bool
	onFinished func(results map[string]any)
}

// New returns an empty, open Point.
func New() *Point {
	return &Point{
		pending: make(map[string]struct{}),
		results: make(map[string]any),
	}
}

// Needs registers an outstanding key. Registering a key that is already
// registered and not yet fired fails with api.ErrDuplicateKey.
func (p *Point) Needs(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return api.ErrMergeClosed
	}
	if _, ok := p.pending[key]; ok {
		return api.ErrDuplicateKey
	}
	if _, ok := p.results[key]; ok {
		return api.ErrDuplicateKey
	}
	p.pending[key] = struct{}{}
	return nil
}

// Done marks key complete and records its value. Completing a key that was
// never registered, or completing one twice, fails with api.ErrUnknownKey.
// A Done arriving before Close still counts toward firing.
func (p *Point) Done(key string, value any) error {
	p.mu.Lock()
	if _, ok := p.pending[key]; !ok {
		p.mu.Unlock()
		return api.ErrUnknownKey
	}
	delete(p.pending, key)
	p.results[key] = value
	fire, cb, res := p.maybeFireLocked()
	p.mu.Unlock()
	if fire {
		cb(res)
	}
	return nil
}

// Close declares that no further keys will be registered. If every
// registered key is already done, onFinished runs synchronously with the
// accumulated key-to-value mapping; otherwise the final Done runs it.
func (p *Point) Close(onFinished func(results map[string]any)) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return api.ErrMergeClosed
	}
	p.closed = true
	p.onFinished = onFinished
	fire, cb, res := p.maybeFireLocked()
	p.mu.Unlock()
	if fire {
		cb(res)
	}
	return nil
}

// maybeFireLocked transitions to fired when the barrier is satisfied.
// The callback itself runs outside the lock; the point is single-use, so
// detaching the handler here is safe and breaks the owner's reference to
// its own closure.
func (p *Point) maybeFireLocked() (bool, func(map[string]any), map[string]any) {
	if !p.closed || p.fired || len(p.pending) != 0 || p.onFinished == nil {
		return false, nil, nil
	}
	p.fired = true
	cb := p.onFinished
	p.onFinished = nil
	return true, cb, p.results
}
