// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucache

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/gpucache/driver"
	"github.com/gogpu/gpucache/fbo"
	"github.com/gogpu/gpucache/internal/epoch"
	"github.com/gogpu/gpucache/pipeline"
	"github.com/gogpu/gpucache/reclaim"
	"github.com/gogpu/gpucache/stage"
)

// ErrClosed is returned by operations on a Cache after Shutdown.
var ErrClosed = errors.New("gpucache: cache is shut down")

// ErrNilDevice is returned by New when no device is given.
var ErrNilDevice = errors.New("gpucache: nil device")

// CommandBufferSource notifies subscribers when rendering moves to a new
// command buffer, which implies the previous one was submitted.
type CommandBufferSource interface {
	// OnCommandBuffer registers fn and returns a function that removes it.
	OnCommandBuffer(fn func(driver.CommandBuffer)) (unsubscribe func())
}

// Stats aggregates the statistics of every tier.
type Stats struct {
	Epoch          uint64
	Pipeline       pipeline.Stats
	FBO            fbo.Stats
	Stage          stage.Stats
	PendingReclaim int
}

// Cache owns every cache tier of one device and the epoch clock they
// share.
//
// Cache is not safe for concurrent use; drive it from the rendering
// goroutine.
type Cache struct {
	dev   driver.Device
	clock *epoch.Clock
	log   *slog.Logger

	pipelines *pipeline.Cache
	fbos      *fbo.Cache
	stages    *stage.Pool
	fridge    *reclaim.Fridge

	lastCmd uint64
	haveCmd bool
	detach  func()
	closed  bool
}

// New creates a Cache for device.
func New(device driver.Device, opts ...Option) (*Cache, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger
	if log == nil {
		log = Logger()
	}

	clock := epoch.New(o.framesInFlight)
	c := &Cache{
		dev:   device,
		clock: clock,
		log:   log,
		pipelines: pipeline.New(pipeline.Config{
			Device:         device,
			Clock:          clock,
			MaxSetsPerPool: o.maxSetsPerPool,
			Reflector:      o.reflector,
			Logger:         log,
			Metrics:        o.metrics,
		}),
		fbos: fbo.New(fbo.Config{
			Device:  device,
			Clock:   clock,
			Logger:  log,
			Metrics: o.metrics,
		}),
		stages: stage.New(device, clock, stage.Config{
			BufferUsage: o.bufferUsage,
			ImageUsage:  o.imageUsage,
			Logger:      log,
			Metrics:     o.metrics,
		}),
		fridge: reclaim.NewFridge(reclaim.Config{
			Window:  o.framesInFlight,
			Logger:  log,
			Metrics: o.metrics,
		}),
	}
	log.Debug("gpucache: created", "framesInFlight", o.framesInFlight, "maxSetsPerPool", o.maxSetsPerPool)
	return c, nil
}

// Pipelines returns the shader, layout, binding-set and pipeline tiers.
func (c *Cache) Pipelines() *pipeline.Cache { return c.pipelines }

// FBOs returns the render-pass and framebuffer tier.
func (c *Cache) FBOs() *fbo.Cache { return c.fbos }

// Stages returns the staging pool.
func (c *Cache) Stages() *stage.Pool { return c.stages }

// Fridge returns the deferred reclaimer.
func (c *Cache) Fridge() *reclaim.Fridge { return c.fridge }

// Epoch returns the current epoch of the shared clock.
func (c *Cache) Epoch() uint64 { return uint64(c.clock.Now()) }

// GC ends a frame: it ticks the clock once and then collects every tier,
// dependent tiers before the ones they reference. Call it once per
// submitted command buffer.
func (c *Cache) GC() error {
	if c.closed {
		return ErrClosed
	}
	now := c.clock.Tick()
	c.pipelines.GC()
	c.fbos.GC()
	c.stages.GC()
	destroyed := c.fridge.GC()
	c.log.Debug("gpucache: gc", "epoch", now, "reclaimed", destroyed)
	return nil
}

// Observe reports the command buffer the renderer is recording into.
// Moving to a buffer with a different ID runs GC.
func (c *Cache) Observe(cmd driver.CommandBuffer) error {
	if c.closed {
		return ErrClosed
	}
	id := cmd.ID()
	if c.haveCmd && id == c.lastCmd {
		return nil
	}
	first := !c.haveCmd
	c.lastCmd, c.haveCmd = id, true
	if first {
		return nil
	}
	return c.GC()
}

// Attach subscribes the cache to src so that GC runs whenever rendering
// moves to a new command buffer. A previous subscription is replaced.
func (c *Cache) Attach(src CommandBufferSource) error {
	if c.closed {
		return ErrClosed
	}
	if c.detach != nil {
		c.detach()
	}
	c.detach = src.OnCommandBuffer(func(cmd driver.CommandBuffer) {
		if err := c.Observe(cmd); err != nil {
			c.log.Warn("gpucache: observe command buffer", "err", err)
		}
	})
	return nil
}

// ReleaseBuffer schedules destruction of a buffer the caller no longer
// uses. It is destroyed once every frame that may reference it retired.
func (c *Cache) ReleaseBuffer(id driver.BufferID) error {
	if c.closed {
		return ErrClosed
	}
	return c.scheduleDestroy(reclaim.Handle{Kind: reclaim.KindBuffer, ID: uint64(id)}, func() {
		c.dev.DestroyBuffer(id)
	})
}

// ReleaseTexture purges the framebuffers that use a texture and schedules
// destruction of the texture and those framebuffers.
func (c *Cache) ReleaseTexture(id driver.TextureID) error {
	if c.closed {
		return ErrClosed
	}
	c.fbos.PurgeAttachment(id, c.fridge)
	return c.scheduleDestroy(reclaim.Handle{Kind: reclaim.KindTexture, ID: uint64(id)}, func() {
		c.dev.DestroyTexture(id)
	})
}

func (c *Cache) scheduleDestroy(h reclaim.Handle, destroy func()) error {
	if !c.fridge.Register(h, destroy) {
		return fmt.Errorf("gpucache: %v already released: %w", h, driver.ErrConfigurationConflict)
	}
	c.fridge.Release(h)
	return nil
}

// Reset destroys every cached and pending object immediately. The caller
// must ensure the GPU is idle.
func (c *Cache) Reset() error {
	if c.closed {
		return ErrClosed
	}
	c.reset()
	return nil
}

func (c *Cache) reset() {
	c.fridge.Reset()
	c.pipelines.Reset()
	c.fbos.Reset()
	c.stages.Reset()
	c.haveCmd = false
	c.log.Info("gpucache: reset", "epoch", c.clock.Now())
}

// Shutdown resets the cache, detaches it from its command-buffer source
// and makes further calls return ErrClosed. Calling Shutdown twice is a
// no-op.
func (c *Cache) Shutdown() {
	if c.closed {
		return
	}
	if c.detach != nil {
		c.detach()
		c.detach = nil
	}
	c.reset()
	c.closed = true
	c.log.Info("gpucache: shut down")
}

// Stats returns the statistics of every tier.
func (c *Cache) Stats() Stats {
	return Stats{
		Epoch:          uint64(c.clock.Now()),
		Pipeline:       c.pipelines.Stats(),
		FBO:            c.fbos.Stats(),
		Stage:          c.stages.Stats(),
		PendingReclaim: c.fridge.Len(),
	}
}
