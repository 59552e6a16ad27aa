// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package fbo caches render passes and the framebuffers built against them.
//
// A framebuffer holds a reference on its render pass. GC evicts disused
// framebuffers first, dropping those references, and only then evicts
// render passes that are both disused and unreferenced, so a pass is never
// destroyed while a live framebuffer needs it.
package fbo

import (
	"log/slog"

	"github.com/gogpu/gpucache/driver"
	"github.com/gogpu/gpucache/internal/cache"
	"github.com/gogpu/gpucache/internal/epoch"
	"github.com/gogpu/gpucache/metrics"
)

// MaxColorAttachments is the number of color attachments a pass may have.
const MaxColorAttachments = 8

// Config holds Cache settings.
type Config struct {
	// Device creates and destroys passes and framebuffers. Required.
	Device driver.Device

	// Clock ages entries. Nil creates a private clock with a window of 3.
	Clock *epoch.Clock

	// Logger receives debug output. Nil disables logging.
	Logger *slog.Logger

	// Metrics receives tier events. Nil disables metrics.
	Metrics metrics.Recorder
}

// Stats reports cache occupancy and lookup counters.
type Stats struct {
	RenderPasses      int
	RenderPassHits    uint64
	RenderPassMisses  uint64
	Framebuffers      int
	FramebufferHits   uint64
	FramebufferMisses uint64
}

// Cache is a render-pass and framebuffer cache.
//
// Cache is not safe for concurrent use.
type Cache struct {
	dev   driver.Device
	clock *epoch.Clock
	log   *slog.Logger
	rec   metrics.Recorder

	passes *cache.Cache[passKey, *renderPass]
	byID   map[driver.RenderPassID]*renderPass
	fbos   *cache.Cache[fbKey, *framebuffer]
}

// New creates an empty Cache.
func New(cfg Config) *Cache {
	if cfg.Clock == nil {
		cfg.Clock = epoch.New(3)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Cache{
		dev:    cfg.Device,
		clock:  cfg.Clock,
		log:    log,
		rec:    metrics.OrNoop(cfg.Metrics),
		passes: cache.New[passKey, *renderPass](),
		byID:   make(map[driver.RenderPassID]*renderPass),
		fbos:   cache.New[fbKey, *framebuffer](),
	}
}

// GC evicts framebuffers unused for longer than the disuse window, then
// render passes that are disused and no longer referenced by any
// framebuffer. The caller ticks the clock.
func (c *Cache) GC() {
	stale := c.clock.ShouldEvict

	n := c.fbos.Evict(func(e *cache.Entry[fbKey, *framebuffer]) bool {
		return stale(e.LastUsed)
	}, func(e *cache.Entry[fbKey, *framebuffer]) {
		c.dev.DestroyFramebuffer(e.Value.id)
		e.Value.pass.refs--
	})
	c.rec.Evict(metrics.TierFramebuffer, n)
	c.rec.Size(metrics.TierFramebuffer, c.fbos.Len())

	n = c.passes.Evict(func(e *cache.Entry[passKey, *renderPass]) bool {
		return e.Value.refs == 0 && stale(e.LastUsed)
	}, func(e *cache.Entry[passKey, *renderPass]) {
		delete(c.byID, e.Value.id)
		c.dev.DestroyRenderPass(e.Value.id)
	})
	c.rec.Evict(metrics.TierRenderPass, n)
	c.rec.Size(metrics.TierRenderPass, c.passes.Len())
}

// Reset destroys every framebuffer and render pass.
func (c *Cache) Reset() {
	c.fbos.Clear(func(e *cache.Entry[fbKey, *framebuffer]) {
		c.dev.DestroyFramebuffer(e.Value.id)
	})
	c.passes.Clear(func(e *cache.Entry[passKey, *renderPass]) {
		c.dev.DestroyRenderPass(e.Value.id)
	})
	clear(c.byID)
	c.rec.Size(metrics.TierFramebuffer, 0)
	c.rec.Size(metrics.TierRenderPass, 0)
}

// Stats returns cache statistics.
func (c *Cache) Stats() Stats {
	ps, fs := c.passes.Stats(), c.fbos.Stats()
	return Stats{
		RenderPasses:      ps.Len,
		RenderPassHits:    ps.Hits,
		RenderPassMisses:  ps.Misses,
		Framebuffers:      fs.Len,
		FramebufferHits:   fs.Hits,
		FramebufferMisses: fs.Misses,
	}
}

// PassRefs returns the number of cached framebuffers built against pass.
func (c *Cache) PassRefs(pass driver.RenderPassID) int {
	if p, ok := c.byID[pass]; ok {
		return p.refs
	}
	return 0
}
