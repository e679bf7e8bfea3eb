// File: pool/metrics.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments one pool. A nil *Metrics disables everything.
type Metrics struct {
	workers    prometheus.Gauge
	busy       prometheus.Gauge
	queueDepth prometheus.Gauge
	calls      prometheus.Counter
	errors     prometheus.Counter
	evictions  prometheus.Counter
	respawns   prometheus.Counter
}

// NewMetrics registers pool collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hioload_proc", Subsystem: "pool",
			Name: "workers", Help: "Current worker processes.",
		}),
		busy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hioload_proc", Subsystem: "pool",
			Name: "busy_workers", Help: "Workers with an outstanding call.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hioload_proc", Subsystem: "pool",
			Name: "queue_depth", Help: "Pending calls not yet dispatched.",
		}),
		calls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hioload_proc", Subsystem: "pool",
			Name: "calls_total", Help: "Calls admitted.",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hioload_proc", Subsystem: "pool",
			Name: "errors_total", Help: "Error outcomes delivered.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hioload_proc", Subsystem: "pool",
			Name: "evictions_total", Help: "Idle workers stopped by the timer.",
		}),
		respawns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hioload_proc", Subsystem: "pool",
			Name: "respawns_total", Help: "Workers spawned to restore min_workers.",
		}),
	}
	reg.MustRegister(m.workers, m.busy, m.queueDepth, m.calls, m.errors, m.evictions, m.respawns)
	return m
}

func (m *Metrics) setWorkers(n int) {
	if m != nil {
		m.workers.Set(float64(n))
	}
}

func (m *Metrics) setBusy(n int) {
	if m != nil {
		m.busy.Set(float64(n))
	}
}

func (m *Metrics) setQueueDepth(n int) {
	if m != nil {
		m.queueDepth.Set(float64(n))
	}
}

func (m *Metrics) incCalls() {
	if m != nil {
		m.calls.Inc()
	}
}

func (m *Metrics) incErrors() {
	if m != nil {
		m.errors.Inc()
	}
}

func (m *Metrics) incEvictions() {
	if m != nil {
		m.evictions.Inc()
	}
}

func (m *Metrics) incRespawns() {
	if m != nil {
		m.respawns.Inc()
	}
}
