// File: pool/pool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"github.com/eapache/queue"
	"github.com/google/btree"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/momentics/hioload-proc/api"
)

// Result is a call outcome: either an ordered value list or an error text.
type Result struct {
	Values  []any
	ErrText string
	IsError bool
}

// ClosedErrText is the error outcome synthesized when a worker dies with
// a call outstanding.
const ClosedErrText = "closed"

// CallSpec describes one call: the arguments plus exactly one continuation
// shape, either OnResult alone or OnReturn together with OnError.
type CallSpec struct {
	Args     []any
	OnResult func(Result)
	OnReturn func(values []any)
	OnError  func(text string)
}

type call struct {
	id      uuid.UUID
	values  [][]byte
	deliver func(Result)
	done    bool
}

// Pool routes calls across a bounded fleet of worker processes. All
// methods run on the loop goroutine; re-entrant mutation from result
// callbacks is part of the contract.
type Pool struct {
	cfg     Config
	log     zerolog.Logger
	metrics *Metrics

	workers   *btree.BTreeG[*worker]
	pending   *queue.Queue // of *call, FIFO
	idleTimer api.Timer
	stopped   bool

	// spawn is the worker factory; swapped out by deterministic tests.
	spawn func(*Pool) (*worker, error)
}

// New validates cfg and builds a stopped pool; Start spawns the initial
// fleet.
func New(cfg Config) (*Pool, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	log := zerolog.Nop()
	if cfg.Log != nil {
		log = *cfg.Log
	}
	return &Pool{
		cfg:     cfg,
		log:     log,
		metrics: cfg.Metrics,
		workers: btree.NewG(2, func(a, b *worker) bool { return a.pid < b.pid }),
		pending: queue.New(),
		spawn:   spawnWorker,
	}, nil
}

// Start brings the fleet up to min_workers.
func (p *Pool) Start() error {
	for p.workers.Len() < p.cfg.MinWorkers {
		if _, err := p.addWorker(); err != nil {
			return err
		}
	}
	return nil
}

// Call admits one request. Arguments are serialized before queueing, so
// the caller may reuse them freely once Call returns. Dispatch order is
// strictly the order Call was invoked.
func (p *Pool) Call(spec CallSpec) error {
	if p.stopped {
		return api.ErrPoolStopped
	}
	deliver, err := continuation(spec)
	if err != nil {
		return err
	}
	values, err := encodeValues(spec.Args)
	if err != nil {
		return err
	}
	c := &call{id: uuid.New(), values: values, deliver: deliver}
	p.metrics.incCalls()
	p.log.Debug().Str("call_id", c.id.String()).Int("args", len(spec.Args)).Msg("call admitted")

	w := p.idleWorker()
	if w == nil && p.workers.Len() < p.cfg.MaxWorkers {
		w, err = p.addWorker()
		if err != nil {
			return err
		}
	}
	if w != nil {
		p.dispatch(w, c)
		return nil
	}
	p.pending.Add(c)
	p.metrics.setQueueDepth(p.pending.Length())
	return nil
}

// Stop tears the pool down: queued calls are dropped, every worker's
// argument channel is closed, and in-flight results are discarded when
// they arrive. Continuations for in-flight calls are not guaranteed to
// fire.
func (p *Pool) Stop() {
	if p.stopped {
		return
	}
	p.stopped = true
	p.stopIdleTimer()
	if n := p.pending.Length(); n > 0 {
		p.log.Warn().Int("dropped", n).Msg("pending calls dropped at stop")
		for p.pending.Length() > 0 {
			p.pending.Remove()
		}
	}
	var all []*worker
	p.workers.Ascend(func(w *worker) bool {
		all = append(all, w)
		return true
	})
	for _, w := range all {
		p.workers.Delete(w)
		w.closeSend()
		// A worker mid-call only notices EOF after finishing; an
		// in-flight call must not hold up teardown.
		if w.busy {
			w.kill()
		}
	}
	p.metrics.setWorkers(0)
	p.metrics.setBusy(0)
	p.metrics.setQueueDepth(0)
}

// Workers reports the current fleet size.
func (p *Pool) Workers() int { return p.workers.Len() }

// QueueDepth reports calls admitted but not yet dispatched.
func (p *Pool) QueueDepth() int { return p.pending.Length() }

func continuation(spec CallSpec) (func(Result), error) {
	hasResult := spec.OnResult != nil
	hasPair := spec.OnReturn != nil && spec.OnError != nil
	hasAnyPair := spec.OnReturn != nil || spec.OnError != nil
	if hasResult == hasPair || (hasResult && hasAnyPair) || (hasAnyPair && !hasPair) {
		return nil, api.ErrInvalidCallSpec
	}
	if hasResult {
		return spec.OnResult, nil
	}
	return func(r Result) {
		if r.IsError {
			spec.OnError(r.ErrText)
			return
		}
		spec.OnReturn(r.Values)
	}, nil
}

// idleWorker scans ascending by pid and returns the first non-busy one.
func (p *Pool) idleWorker() *worker {
	var found *worker
	p.workers.Ascend(func(w *worker) bool {
		if !w.busy {
			found = w
			return false
		}
		return true
	})
	return found
}

func (p *Pool) idleCount() int {
	n := 0
	p.workers.Ascend(func(w *worker) bool {
		if !w.busy {
			n++
		}
		return true
	})
	return n
}

func (p *Pool) lookup(pid int) (*worker, bool) {
	return p.workers.Get(&worker{pid: pid})
}

func (p *Pool) addWorker() (*worker, error) {
	w, err := p.spawn(p)
	if err != nil {
		return nil, err
	}
	p.workers.ReplaceOrInsert(w)
	p.metrics.setWorkers(p.workers.Len())
	p.log.Debug().Int("pid", w.pid).Int("workers", p.workers.Len()).Msg("worker spawned")
	return w, nil
}

// dispatch marks the worker busy and ships the call. Taking the last idle
// worker stops the eviction timer: there is nothing left to evict.
func (p *Pool) dispatch(w *worker, c *call) {
	w.busy = true
	w.current = c
	p.metrics.setBusy(p.busyCount())
	if p.idleCount() == 0 {
		p.stopIdleTimer()
	}
	if err := w.send(api.Message{Tag: api.TagCall, Values: c.values}); err != nil {
		p.log.Warn().Int("pid", w.pid).Err(err).Msg("dispatch failed, worker retired")
		p.workerEOF(w.pid)
	}
}

// handleResult clears the busy flag, translates the tagged message into
// the continuation outcome, then services the queue. Retirement happens
// before the continuation runs: a re-entrant Call from inside it must
// never find the doomed worker still schedulable.
func (p *Pool) handleResult(pid int, m api.Message) {
	w, ok := p.lookup(pid)
	if !ok {
		// Result from a retired or stopped worker: discarded.
		return
	}
	c := w.current
	w.current = nil
	w.busy = false
	p.metrics.setBusy(p.busyCount())

	if c != nil {
		r := translate(m)
		if r.IsError && p.cfg.ExitOnDie {
			p.retire(w)
		}
		p.deliverResult(c, r)
	}
	p.dispatchNext()
	p.maybeArmIdleTimer()
}

// workerEOF handles a worker whose result channel closed. The worker is
// stopped first, then an outstanding call gets the synthesized
// closed-error outcome.
func (p *Pool) workerEOF(pid int) {
	w, ok := p.lookup(pid)
	if !ok {
		return
	}
	c := w.current
	w.current = nil
	w.busy = false
	p.retire(w)
	if c != nil {
		p.deliverResult(c, Result{IsError: true, ErrText: ClosedErrText})
	}
	p.dispatchNext()
}

// workerFinished runs off the child process's terminal callback. The pid
// is resolved against the worker set at notification time; a worker
// already removed is a no-op apart from the lazy min_workers restore.
func (p *Pool) workerFinished(pid int) {
	if w, ok := p.lookup(pid); ok {
		c := w.current
		w.current = nil
		w.busy = false
		p.workers.Delete(w)
		p.metrics.setWorkers(p.workers.Len())
		if c != nil {
			p.deliverResult(c, Result{IsError: true, ErrText: ClosedErrText})
		}
	}
	if p.stopped {
		return
	}
	if p.workers.Len() < p.cfg.MinWorkers {
		if _, err := p.addWorker(); err != nil {
			p.log.Warn().Err(err).Msg("worker respawn failed")
		} else {
			p.metrics.incRespawns()
		}
	}
	p.dispatchNext()
	p.maybeArmIdleTimer()
}

// retire removes a worker from the set and closes its argument channel;
// the process exits when it sees EOF.
func (p *Pool) retire(w *worker) {
	if _, ok := p.workers.Delete(w); !ok {
		return
	}
	w.closeSend()
	p.metrics.setWorkers(p.workers.Len())
	p.log.Debug().Int("pid", w.pid).Msg("worker retired")
}

// dispatchNext drains the pending queue FIFO onto idle workers, growing
// the fleet toward max_workers while the queue stays non-empty.
func (p *Pool) dispatchNext() {
	for p.pending.Length() > 0 {
		w := p.idleWorker()
		if w == nil {
			if p.workers.Len() >= p.cfg.MaxWorkers {
				break
			}
			var err error
			w, err = p.addWorker()
			if err != nil {
				p.log.Warn().Err(err).Msg("worker spawn failed, call left queued")
				break
			}
		}
		c := p.pending.Remove().(*call)
		p.dispatch(w, c)
	}
	p.metrics.setQueueDepth(p.pending.Length())
}

func (p *Pool) deliverResult(c *call, r Result) {
	if c.done {
		return
	}
	c.done = true
	if r.IsError {
		p.metrics.incErrors()
	}
	p.log.Debug().Str("call_id", c.id.String()).Bool("error", r.IsError).Msg("result delivered")
	c.deliver(r)
}

func (p *Pool) busyCount() int {
	n := 0
	p.workers.Ascend(func(w *worker) bool {
		if w.busy {
			n++
		}
		return true
	})
	return n
}

func translate(m api.Message) Result {
	switch m.Tag {
	case api.TagReturn:
		values, err := decodeValues(m.Values)
		if err != nil {
			return Result{IsError: true, ErrText: err.Error()}
		}
		return Result{Values: values}
	case api.TagError:
		text := ""
		if len(m.Values) > 0 {
			text = string(m.Values[0])
		}
		return Result{IsError: true, ErrText: text}
	default:
		return Result{IsError: true, ErrText: "unexpected message tag " + m.Tag}
	}
}

// maybeArmIdleTimer arms eviction only while there is no pending work and
// more idle workers than min_workers.
func (p *Pool) maybeArmIdleTimer() {
	if p.cfg.IdleTimeout <= 0 || p.stopped || p.idleTimer != nil {
		return
	}
	if p.pending.Length() > 0 {
		return
	}
	if p.idleCount() > p.cfg.MinWorkers {
		p.idleTimer = p.cfg.Loop.AfterFunc(p.cfg.IdleTimeout, p.evictIdle)
	}
}

func (p *Pool) stopIdleTimer() {
	if p.idleTimer != nil {
		p.idleTimer.Stop()
		p.idleTimer = nil
	}
}

// evictIdle stops at most one idle worker per expiry, scanning from the
// highest pid downward so the earliest-created workers are retained
// longest.
func (p *Pool) evictIdle() {
	p.idleTimer = nil
	if p.stopped || p.workers.Len() <= p.cfg.MinWorkers {
		return
	}
	var victim *worker
	p.workers.Descend(func(w *worker) bool {
		if !w.busy {
			victim = w
			return false
		}
		return true
	})
	if victim == nil {
		return
	}
	p.retire(victim)
	p.metrics.incEvictions()
	p.log.Debug().Int("pid", victim.pid).Int("workers", p.workers.Len()).Msg("idle worker evicted")
	if p.idleCount() > p.cfg.MinWorkers {
		p.idleTimer = p.cfg.Loop.AfterFunc(p.cfg.IdleTimeout, p.evictIdle)
	}
}
