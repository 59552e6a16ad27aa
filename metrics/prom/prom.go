// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package prom exports gpucache tier metrics to Prometheus.
package prom

import (
	"github.com/gogpu/gpucache/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Adapter implements metrics.Recorder and exports Prometheus counters and
// gauges labelled by tier. Safe for concurrent use; all Prometheus metric
// types are goroutine-safe.
type Adapter struct {
	hits    *prometheus.CounterVec
	misses  *prometheus.CounterVec
	evicts  *prometheus.CounterVec
	sizeEnt *prometheus.GaugeVec
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	labels := []string{"tier"}
	a := &Adapter{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Lookups served from a cache tier",
			ConstLabels: constLabels,
		}, labels),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Lookups that constructed a new GPU object",
			ConstLabels: constLabels,
		}, labels),
		evicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "evictions_total",
			Help:        "GPU objects evicted from a cache tier",
			ConstLabels: constLabels,
		}, labels),
		sizeEnt: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_entries",
			Help:        "Number of resident entries in a cache tier",
			ConstLabels: constLabels,
		}, labels),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.sizeEnt)
	return a
}

// Hit increments the hit counter of tier.
func (a *Adapter) Hit(tier metrics.Tier) { a.hits.WithLabelValues(string(tier)).Inc() }

// Miss increments the miss counter of tier.
func (a *Adapter) Miss(tier metrics.Tier) { a.misses.WithLabelValues(string(tier)).Inc() }

// Evict adds n to the eviction counter of tier.
func (a *Adapter) Evict(tier metrics.Tier, n int) {
	if n <= 0 {
		return
	}
	a.evicts.WithLabelValues(string(tier)).Add(float64(n))
}

// Size sets the resident-entry gauge of tier.
func (a *Adapter) Size(tier metrics.Tier, entries int) {
	a.sizeEnt.WithLabelValues(string(tier)).Set(float64(entries))
}

// Compile-time check: ensure Adapter implements metrics.Recorder.
var _ metrics.Recorder = (*Adapter)(nil)
