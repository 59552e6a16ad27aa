// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package fbo

import (
	"fmt"

	"github.com/gogpu/gpucache/driver"
	"github.com/gogpu/gpucache/internal/cache"
	"github.com/gogpu/gpucache/internal/hashing"
	"github.com/gogpu/gpucache/metrics"
	"github.com/gogpu/gpucache/reclaim"
)

// FramebufferKey binds concrete attachments to a render pass obtained
// from GetRenderPass. Color slots match the pass's color attachments in
// order; zero IDs are absent.
type FramebufferKey struct {
	RenderPass driver.RenderPassID
	Width      uint32
	Height     uint32

	// Layers is the layer count. Zero means 1.
	Layers uint32

	Color        [MaxColorAttachments]driver.TextureID
	Resolve      [MaxColorAttachments]driver.TextureID
	DepthStencil driver.TextureID
}

// uses reports whether the key references tex.
func (k *FramebufferKey) uses(tex driver.TextureID) bool {
	if k.DepthStencil == tex {
		return true
	}
	for i := range k.Color {
		if k.Color[i] == tex || k.Resolve[i] == tex {
			return true
		}
	}
	return false
}

type fbKey struct {
	hash uint64
	FramebufferKey
}

func (k fbKey) Hash() uint64 { return k.hash }

func (k fbKey) Equal(o fbKey) bool { return k.FramebufferKey == o.FramebufferKey }

func newFBKey(k FramebufferKey) fbKey {
	if k.Layers == 0 {
		k.Layers = 1
	}
	var w hashing.Writer
	w.Uint64(uint64(k.RenderPass))
	w.Uint32(k.Width)
	w.Uint32(k.Height)
	w.Uint32(k.Layers)
	for i := range k.Color {
		w.Uint64(uint64(k.Color[i]))
		w.Uint64(uint64(k.Resolve[i]))
	}
	w.Uint64(uint64(k.DepthStencil))
	return fbKey{hash: w.Sum64(), FramebufferKey: k}
}

type framebuffer struct {
	id   driver.FramebufferID
	pass *renderPass
}

// GetFramebuffer returns the framebuffer described by key, creating it on
// a miss. A new framebuffer takes a reference on its render pass.
func (c *Cache) GetFramebuffer(key FramebufferKey) (driver.FramebufferID, error) {
	k := newFBKey(key)
	now := c.clock.Now()
	if e, ok := c.fbos.Get(k, now); ok {
		c.rec.Hit(metrics.TierFramebuffer)
		return e.Value.id, nil
	}

	pass, ok := c.byID[k.RenderPass]
	if !ok {
		return 0, fmt.Errorf("fbo: render pass %d: %w", k.RenderPass, driver.ErrUnknownHandle)
	}
	desc := &driver.FramebufferDesc{
		Label:        "gpucache framebuffer",
		RenderPass:   k.RenderPass,
		Width:        k.Width,
		Height:       k.Height,
		Layers:       k.Layers,
		DepthStencil: k.DepthStencil,
	}
	for i := range k.Color {
		if k.Color[i] == driver.InvalidID {
			continue
		}
		desc.ColorAttachments = append(desc.ColorAttachments, k.Color[i])
		desc.ResolveAttachments = append(desc.ResolveAttachments, k.Resolve[i])
	}
	id, err := c.dev.CreateFramebuffer(desc)
	if err != nil {
		c.log.Error("fbo: framebuffer creation failed", "pass", k.RenderPass, "err", err)
		return 0, fmt.Errorf("fbo: create framebuffer: %w", err)
	}
	pass.refs++
	c.fbos.Insert(k, &framebuffer{id: id, pass: pass}, now)
	c.rec.Miss(metrics.TierFramebuffer)
	c.rec.Size(metrics.TierFramebuffer, c.fbos.Len())
	c.log.Debug("fbo: new framebuffer", "id", id, "pass", k.RenderPass, "width", k.Width, "height", k.Height)
	return id, nil
}

// PurgeAttachment removes every framebuffer that references tex, for
// example after a swapchain resize. Native destruction is handed to fridge
// so that frames still in flight keep a valid framebuffer; the render pass
// reference is dropped when the framebuffer is actually destroyed. A nil
// fridge destroys immediately. It returns the number of purged
// framebuffers.
func (c *Cache) PurgeAttachment(tex driver.TextureID, fridge *reclaim.Fridge) int {
	if tex == driver.InvalidID {
		return 0
	}
	n := c.fbos.Evict(func(e *cache.Entry[fbKey, *framebuffer]) bool {
		return e.Key.uses(tex)
	}, func(e *cache.Entry[fbKey, *framebuffer]) {
		fb := e.Value
		destroy := func() {
			c.dev.DestroyFramebuffer(fb.id)
			fb.pass.refs--
		}
		if fridge == nil {
			destroy()
			return
		}
		h := reclaim.Handle{Kind: reclaim.KindFramebuffer, ID: uint64(fb.id)}
		if fridge.Register(h, destroy) {
			fridge.Release(h)
		}
	})
	if n > 0 {
		c.rec.Evict(metrics.TierFramebuffer, n)
		c.rec.Size(metrics.TierFramebuffer, c.fbos.Len())
		c.log.Debug("fbo: purged framebuffers", "texture", tex, "count", n)
	}
	return n
}
