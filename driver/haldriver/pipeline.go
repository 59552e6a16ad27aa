// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package haldriver

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucache/driver"
)

// CreateRenderPass implements driver.Device. The pass is kept as a
// descriptor; pipelines read their target formats from it and
// BeginRenderPass turns it into hal attachments.
func (d *Device) CreateRenderPass(desc *driver.RenderPassDesc) (driver.RenderPassID, error) {
	if len(desc.ColorAttachments) == 0 && desc.DepthStencil == nil {
		return driver.InvalidID, fmt.Errorf("haldriver: render pass without attachments: %w", driver.ErrConfigurationConflict)
	}
	cp := *desc
	cp.ColorAttachments = append([]driver.AttachmentDesc(nil), desc.ColorAttachments...)
	cp.Subpasses = append([]driver.SubpassDesc(nil), desc.Subpasses...)
	cp.Dependencies = append([]driver.SubpassDependency(nil), desc.Dependencies...)
	if desc.DepthStencil != nil {
		ds := *desc.DepthStencil
		cp.DepthStencil = &ds
	}

	id := driver.RenderPassID(d.newID())
	d.mu.Lock()
	d.passes[id] = &cp
	d.mu.Unlock()
	return id, nil
}

// DestroyRenderPass implements driver.Device.
func (d *Device) DestroyRenderPass(id driver.RenderPassID) {
	d.mu.Lock()
	delete(d.passes, id)
	d.mu.Unlock()
}

// CreateFramebuffer implements driver.Device.
func (d *Device) CreateFramebuffer(desc *driver.FramebufferDesc) (driver.FramebufferID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pass, ok := d.passes[desc.RenderPass]
	if !ok {
		return driver.InvalidID, fmt.Errorf("haldriver: render pass %d: %w", desc.RenderPass, driver.ErrUnknownHandle)
	}
	if len(desc.ColorAttachments) != len(pass.ColorAttachments) {
		return driver.InvalidID, fmt.Errorf("haldriver: framebuffer has %d color attachments, pass has %d: %w",
			len(desc.ColorAttachments), len(pass.ColorAttachments), driver.ErrConfigurationConflict)
	}
	cp := *desc
	cp.ColorAttachments = append([]driver.TextureID(nil), desc.ColorAttachments...)
	cp.ResolveAttachments = append([]driver.TextureID(nil), desc.ResolveAttachments...)

	id := driver.FramebufferID(d.newID())
	d.framebuffers[id] = &cp
	return id, nil
}

// DestroyFramebuffer implements driver.Device.
func (d *Device) DestroyFramebuffer(id driver.FramebufferID) {
	d.mu.Lock()
	delete(d.framebuffers, id)
	d.mu.Unlock()
}

// subpassOf returns the subpass of pass, treating a pass without subpasses
// as one subpass writing every attachment.
func subpassOf(pass *driver.RenderPassDesc, index uint32) (driver.SubpassDesc, error) {
	if len(pass.Subpasses) == 0 {
		if index != 0 {
			return driver.SubpassDesc{}, fmt.Errorf("haldriver: subpass %d of single-subpass pass: %w", index, driver.ErrConfigurationConflict)
		}
		sp := driver.SubpassDesc{DepthStencil: pass.DepthStencil != nil}
		for i := range pass.ColorAttachments {
			sp.ColorAttachments = append(sp.ColorAttachments, uint32(i))
		}
		return sp, nil
	}
	if int(index) >= len(pass.Subpasses) {
		return driver.SubpassDesc{}, fmt.Errorf("haldriver: subpass %d of %d: %w", index, len(pass.Subpasses), driver.ErrConfigurationConflict)
	}
	return pass.Subpasses[index], nil
}

func passSamples(pass *driver.RenderPassDesc) uint32 {
	var n uint32
	if len(pass.ColorAttachments) > 0 {
		n = pass.ColorAttachments[0].Samples
	} else if pass.DepthStencil != nil {
		n = pass.DepthStencil.Samples
	}
	if n == 0 {
		n = 1
	}
	return n
}

// CreateRenderPipeline implements driver.Device. Specialization constants
// have no hal counterpart and are ignored.
func (d *Device) CreateRenderPipeline(desc *driver.RenderPipelineDesc) (driver.RenderPipelineID, error) {
	d.mu.RLock()
	layout, okLayout := d.pipelineLayouts[desc.Layout]
	vs, okVS := d.shaderModules[desc.Vertex.Module]
	pass, okPass := d.passes[desc.RenderPass]
	var fs hal.ShaderModule
	okFS := true
	if desc.Fragment != nil {
		fs, okFS = d.shaderModules[desc.Fragment.Module]
	}
	d.mu.RUnlock()

	switch {
	case !okLayout:
		return driver.InvalidID, fmt.Errorf("haldriver: pipeline layout %d: %w", desc.Layout, driver.ErrUnknownHandle)
	case !okVS || !okFS:
		return driver.InvalidID, fmt.Errorf("haldriver: pipeline %q shader module: %w", desc.Label, driver.ErrUnknownHandle)
	case !okPass:
		return driver.InvalidID, fmt.Errorf("haldriver: render pass %d: %w", desc.RenderPass, driver.ErrUnknownHandle)
	}
	sp, err := subpassOf(pass, desc.Subpass)
	if err != nil {
		return driver.InvalidID, err
	}
	if len(desc.Constants) > 0 {
		d.log.Debug("haldriver: specialization constants ignored", "pipeline", desc.Label, "count", len(desc.Constants))
	}

	r := desc.Raster
	hd := &hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     vs,
			EntryPoint: desc.Vertex.EntryPoint,
			Buffers:    vertexBuffers(desc.VertexBuffers),
		},
		Primitive: gputypes.PrimitiveState{
			Topology:  r.Topology,
			FrontFace: r.FrontFace,
			CullMode:  r.CullMode,
		},
		Multisample: gputypes.MultisampleState{
			Count:                  passSamples(pass),
			Mask:                   ^uint64(0),
			AlphaToCoverageEnabled: r.AlphaToCoverage,
		},
	}
	if desc.Fragment != nil {
		mask := gputypes.ColorWriteMaskAll
		if r.ColorWriteDisabled {
			mask = gputypes.ColorWriteMaskNone
		}
		targets := make([]gputypes.ColorTargetState, len(sp.ColorAttachments))
		for i, a := range sp.ColorAttachments {
			targets[i] = gputypes.ColorTargetState{
				Format:    pass.ColorAttachments[a].Format,
				Blend:     blendState(r.Blend),
				WriteMask: mask,
			}
		}
		hd.Fragment = &hal.FragmentState{Module: fs, EntryPoint: desc.Fragment.EntryPoint, Targets: targets}
	}
	if sp.DepthStencil && pass.DepthStencil != nil {
		compare := r.DepthCompare
		if compare == gputypes.CompareFunctionUndefined {
			compare = gputypes.CompareFunctionAlways
		}
		keep := hal.StencilFaceState{Compare: gputypes.CompareFunctionAlways}
		hd.DepthStencil = &hal.DepthStencilState{
			Format:            pass.DepthStencil.Format,
			DepthWriteEnabled: r.DepthWriteEnabled,
			DepthCompare:      compare,
			StencilFront:      keep,
			StencilBack:       keep,
			StencilReadMask:   0xFF,
			StencilWriteMask:  0xFF,
		}
	}

	p, err := d.device.CreateRenderPipeline(hd)
	if err != nil {
		return driver.InvalidID, creationFailed("render pipeline "+desc.Label, err)
	}
	id := driver.RenderPipelineID(d.newID())
	d.mu.Lock()
	d.pipelines[id] = p
	d.mu.Unlock()
	return id, nil
}

// DestroyRenderPipeline implements driver.Device.
func (d *Device) DestroyRenderPipeline(id driver.RenderPipelineID) {
	d.mu.Lock()
	p, ok := d.pipelines[id]
	delete(d.pipelines, id)
	d.mu.Unlock()
	if ok {
		d.device.DestroyRenderPipeline(p)
	}
}
