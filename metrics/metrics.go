// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package metrics defines the observability hook every cache tier reports to.
package metrics

// Tier names one cache tier in metric labels.
type Tier string

// Cache tiers.
const (
	TierShader      Tier = "shader"
	TierLayout      Tier = "layout"
	TierBindingSet  Tier = "bindingset"
	TierPipeline    Tier = "pipeline"
	TierRenderPass  Tier = "renderpass"
	TierFramebuffer Tier = "framebuffer"
	TierStageBuffer Tier = "stage_buffer"
	TierStageImage  Tier = "stage_image"
	TierReclaim     Tier = "reclaim"
)

// Recorder receives cache events. Implementations must be cheap; the tiers
// call them on every lookup.
type Recorder interface {
	// Hit records a lookup served from the cache.
	Hit(tier Tier)
	// Miss records a lookup that constructed a new object.
	Miss(tier Tier)
	// Evict records n objects removed from a tier.
	Evict(tier Tier, n int)
	// Size reports the number of resident entries in a tier.
	Size(tier Tier, entries int)
}

// Noop is a Recorder that does nothing. It is the default when no
// observability backend is configured.
type Noop struct{}

func (Noop) Hit(Tier)        {}
func (Noop) Miss(Tier)       {}
func (Noop) Evict(Tier, int) {}
func (Noop) Size(Tier, int)  {}

// Ensure Noop implements the Recorder interface at compile time.
var _ Recorder = Noop{}

// OrNoop returns r, or Noop when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return Noop{}
	}
	return r
}
