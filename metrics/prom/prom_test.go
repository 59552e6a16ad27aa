// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package prom

import (
	"testing"

	"github.com/gogpu/gpucache/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// value returns the sample of family name whose tier label equals tier.
func value(t *testing.T, reg *prometheus.Registry, name string, tier metrics.Tier) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !hasTier(m, tier) {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			}
		}
	}
	t.Fatalf("metric %s{tier=%q} not found", name, tier)
	return 0
}

func hasTier(m *dto.Metric, tier metrics.Tier) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == "tier" && lp.GetValue() == string(tier) {
			return true
		}
	}
	return false
}

func TestAdapterCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := New(reg, "gpucache", "test", nil)

	a.Hit(metrics.TierPipeline)
	a.Hit(metrics.TierPipeline)
	a.Miss(metrics.TierPipeline)
	a.Miss(metrics.TierLayout)
	a.Evict(metrics.TierBindingSet, 3)
	a.Evict(metrics.TierBindingSet, 0)
	a.Size(metrics.TierFramebuffer, 5)

	tests := []struct {
		name string
		tier metrics.Tier
		want float64
	}{
		{"gpucache_test_hits_total", metrics.TierPipeline, 2},
		{"gpucache_test_misses_total", metrics.TierPipeline, 1},
		{"gpucache_test_misses_total", metrics.TierLayout, 1},
		{"gpucache_test_evictions_total", metrics.TierBindingSet, 3},
		{"gpucache_test_size_entries", metrics.TierFramebuffer, 5},
	}
	for _, tt := range tests {
		if got := value(t, reg, tt.name, tt.tier); got != tt.want {
			t.Errorf("%s{tier=%q} = %v, want %v", tt.name, tt.tier, got, tt.want)
		}
	}
}

func TestAdapterSizeOverwrites(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := New(reg, "", "", nil)
	a.Size(metrics.TierStageBuffer, 10)
	a.Size(metrics.TierStageBuffer, 4)
	if got := value(t, reg, "size_entries", metrics.TierStageBuffer); got != 4 {
		t.Errorf("size_entries = %v, want 4", got)
	}
}
