//go:build unix

// File: reactor/timer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Heap-ordered one-shot timers for the loop.

package reactor

import (
	"container/heap"
	"time"
)

type timer struct {
	loop  *Loop
	fn    func()
	when  time.Time
	index int // heap position, -1 when not queued
}

// Stop cancels the timer. Reports whether it was still pending.
func (t *timer) Stop() bool {
	if t.index < 0 {
		return false
	}
	heap.Remove(&t.loop.timers, t.index)
	t.index = -1
	return true
}

// Reset re-arms the timer for d from now.
func (t *timer) Reset(d time.Duration) {
	t.Stop()
	t.when = time.Now().Add(d)
	heap.Push(&t.loop.timers, t)
}

type timerHeap []*timer

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].when.Before(h[j].when) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}
