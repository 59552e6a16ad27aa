// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package haldriver

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpucache/driver"
)

// SamplerBindingOffset is added to the binding index of a combined image
// sampler to place its sampler half. WGSL has no combined image samplers,
// so shaders declare the texture at N and the sampler at
// N+SamplerBindingOffset.
const SamplerBindingOffset = 16

// StorageTextureFormat is the format assumed for storage texture bindings.
const StorageTextureFormat = gputypes.TextureFormatRGBA8Unorm

func layoutEntries(in []driver.BindGroupLayoutEntry) ([]gputypes.BindGroupLayoutEntry, error) {
	out := make([]gputypes.BindGroupLayoutEntry, 0, len(in))
	for _, e := range in {
		if e.Count > 1 {
			return nil, fmt.Errorf("haldriver: binding %d: arrays of %d unsupported: %w",
				e.Binding, e.Count, driver.ErrConfigurationConflict)
		}
		entry := gputypes.BindGroupLayoutEntry{Binding: e.Binding, Visibility: e.Stages}
		switch e.Type {
		case driver.ResourceUniformBuffer:
			entry.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform, HasDynamicOffset: e.Dynamic}
		case driver.ResourceStorageBuffer:
			entry.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage, HasDynamicOffset: e.Dynamic}
		case driver.ResourceReadOnlyStorageBuffer:
			entry.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage, HasDynamicOffset: e.Dynamic}
		case driver.ResourceSampler:
			entry.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
		case driver.ResourceSampledTexture:
			entry.Texture = sampledTexture(gputypes.TextureSampleTypeFloat)
		case driver.ResourceCombinedImageSampler:
			entry.Texture = sampledTexture(gputypes.TextureSampleTypeFloat)
			out = append(out, gputypes.BindGroupLayoutEntry{
				Binding:    e.Binding + SamplerBindingOffset,
				Visibility: e.Stages,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			})
		case driver.ResourceStorageTexture:
			entry.StorageTexture = &gputypes.StorageTextureBindingLayout{
				Access:        gputypes.StorageTextureAccessWriteOnly,
				Format:        StorageTextureFormat,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
		case driver.ResourceInputAttachment:
			// Read back as a plain texture in the following render pass.
			entry.Texture = sampledTexture(gputypes.TextureSampleTypeUnfilterableFloat)
		default:
			return nil, fmt.Errorf("haldriver: binding %d: %s is not a binding-set resource: %w",
				e.Binding, e.Type, driver.ErrConfigurationConflict)
		}
		out = append(out, entry)
	}
	return out, nil
}

func sampledTexture(t gputypes.TextureSampleType) *gputypes.TextureBindingLayout {
	return &gputypes.TextureBindingLayout{SampleType: t, ViewDimension: gputypes.TextureViewDimension2D}
}

func loadOp(op driver.LoadOp) gputypes.LoadOp {
	if op == driver.LoadOpLoad {
		return gputypes.LoadOpLoad
	}
	// DontCare has no WebGPU equivalent; clearing is the cheapest defined op.
	return gputypes.LoadOpClear
}

func storeOp(op driver.StoreOp) gputypes.StoreOp {
	if op == driver.StoreOpDontCare {
		return gputypes.StoreOpDiscard
	}
	return gputypes.StoreOpStore
}

func vertexBuffers(in []driver.VertexBufferLayout) []gputypes.VertexBufferLayout {
	out := make([]gputypes.VertexBufferLayout, len(in))
	for i, b := range in {
		attrs := make([]gputypes.VertexAttribute, len(b.Attributes))
		for j, a := range b.Attributes {
			attrs[j] = gputypes.VertexAttribute{Format: a.Format, Offset: a.Offset, ShaderLocation: a.Location}
		}
		out[i] = gputypes.VertexBufferLayout{ArrayStride: b.ArrayStride, StepMode: b.StepMode, Attributes: attrs}
	}
	return out
}

func blendState(b *driver.BlendState) *gputypes.BlendState {
	if b == nil {
		return nil
	}
	return &gputypes.BlendState{
		Color: gputypes.BlendComponent(b.Color),
		Alpha: gputypes.BlendComponent(b.Alpha),
	}
}
