// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package haldriver

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucache/driver"
)

// CommandBuffer adapts a hal render pass encoder to driver.CommandBuffer.
type CommandBuffer struct {
	id  uint64
	dev *Device
	enc hal.RenderPassEncoder
}

// ID implements driver.CommandBuffer.
func (c *CommandBuffer) ID() uint64 { return c.id }

// Encoder returns the underlying hal render pass encoder for draw calls.
func (c *CommandBuffer) Encoder() hal.RenderPassEncoder { return c.enc }

// BindPipeline implements driver.CommandBuffer.
func (c *CommandBuffer) BindPipeline(id driver.RenderPipelineID) {
	c.dev.mu.RLock()
	p, ok := c.dev.pipelines[id]
	c.dev.mu.RUnlock()
	if !ok {
		c.dev.log.Warn("haldriver: bind unknown pipeline", "pipeline", id)
		return
	}
	c.enc.SetPipeline(p)
}

// BindGroups implements driver.CommandBuffer. dynamicOffsets is split
// across sets in order, each set consuming one offset per dynamic binding
// of its layout.
func (c *CommandBuffer) BindGroups(_ driver.PipelineLayoutID, sets []driver.SetBinding, dynamicOffsets []uint32) {
	c.dev.mu.RLock()
	defer c.dev.mu.RUnlock()
	for _, s := range sets {
		g, ok := c.dev.groups[s.Group]
		if !ok || g.hal == nil {
			c.dev.log.Warn("haldriver: bind unready group", "set", s.Set, "group", s.Group)
			continue
		}
		n := 0
		if sl := c.dev.setLayouts[g.layout]; sl != nil {
			n = min(sl.dynamic, len(dynamicOffsets))
		}
		c.enc.SetBindGroup(s.Set, g.hal, dynamicOffsets[:n])
		dynamicOffsets = dynamicOffsets[n:]
	}
}

// End finishes the render pass.
func (c *CommandBuffer) End() { c.enc.End() }

// BeginRenderPass starts the subpass of a framebuffer's render pass on enc
// and returns a command buffer for it. id identifies the submission the
// pass belongs to; passes recorded into the same submission share it.
// clear holds one clear color per color attachment and may be short.
func (d *Device) BeginRenderPass(enc hal.CommandEncoder, id uint64, fb driver.FramebufferID, subpass uint32, clear []gputypes.Color) (*CommandBuffer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	f, ok := d.framebuffers[fb]
	if !ok {
		return nil, fmt.Errorf("haldriver: framebuffer %d: %w", fb, driver.ErrUnknownHandle)
	}
	pass, ok := d.passes[f.RenderPass]
	if !ok {
		return nil, fmt.Errorf("haldriver: render pass %d: %w", f.RenderPass, driver.ErrUnknownHandle)
	}
	sp, err := subpassOf(pass, subpass)
	if err != nil {
		return nil, err
	}

	desc := &hal.RenderPassDescriptor{}
	for _, a := range sp.ColorAttachments {
		view, err := d.view(f.ColorAttachments[a])
		if err != nil {
			return nil, err
		}
		att := pass.ColorAttachments[a]
		ca := hal.RenderPassColorAttachment{
			View:    view,
			LoadOp:  loadOp(att.LoadOp),
			StoreOp: storeOp(att.StoreOp),
		}
		if int(a) < len(clear) {
			ca.ClearValue = clear[a]
		}
		if int(a) < len(f.ResolveAttachments) {
			if ca.ResolveTarget, err = d.view(f.ResolveAttachments[a]); err != nil {
				return nil, err
			}
		}
		desc.ColorAttachments = append(desc.ColorAttachments, ca)
	}
	if sp.DepthStencil && pass.DepthStencil != nil {
		view, err := d.view(f.DepthStencil)
		if err != nil {
			return nil, err
		}
		ds := pass.DepthStencil
		desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:            view,
			DepthLoadOp:     loadOp(ds.LoadOp),
			DepthStoreOp:    storeOp(ds.StoreOp),
			DepthClearValue: 1,
			StencilLoadOp:   loadOp(ds.StencilLoadOp),
			StencilStoreOp:  storeOp(ds.StencilStoreOp),
		}
	}
	return &CommandBuffer{id: id, dev: d, enc: enc.BeginRenderPass(desc)}, nil
}
