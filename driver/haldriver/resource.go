// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package haldriver

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucache/driver"
)

// texture pairs a texture with its default view. Imported views have no
// texture and are not destroyed by the driver.
type texture struct {
	tex    hal.Texture
	view   hal.TextureView
	format gputypes.TextureFormat
}

// CreateBuffer implements driver.Device.
func (d *Device) CreateBuffer(desc *driver.BufferDesc) (driver.BufferID, error) {
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: desc.Usage,
	})
	if err != nil {
		return driver.InvalidID, creationFailed("buffer", err)
	}
	id := driver.BufferID(d.newID())
	d.mu.Lock()
	d.buffers[id] = buf
	d.mu.Unlock()
	return id, nil
}

// DestroyBuffer implements driver.Device.
func (d *Device) DestroyBuffer(id driver.BufferID) {
	d.mu.Lock()
	buf, ok := d.buffers[id]
	delete(d.buffers, id)
	d.mu.Unlock()
	if ok {
		d.device.DestroyBuffer(buf)
	}
}

// Buffer returns the hal buffer behind id.
func (d *Device) Buffer(id driver.BufferID) (hal.Buffer, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	buf, ok := d.buffers[id]
	return buf, ok
}

// CreateTexture implements driver.Device. The texture gets a default 2D
// view that binding sets and framebuffers refer to.
func (d *Device) CreateTexture(desc *driver.TextureDesc) (driver.TextureID, error) {
	samples := desc.SampleCount
	if samples == 0 {
		samples = 1
	}
	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   samples,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage,
	})
	if err != nil {
		return driver.InvalidID, creationFailed("texture", err)
	}
	view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:     desc.Label,
		Format:    desc.Format,
		Dimension: gputypes.TextureViewDimension2D,
		Aspect:    gputypes.TextureAspectAll,
	})
	if err != nil {
		d.device.DestroyTexture(tex)
		return driver.InvalidID, creationFailed("texture view", err)
	}

	id := driver.TextureID(d.newID())
	d.mu.Lock()
	d.textures[id] = &texture{tex: tex, view: view, format: desc.Format}
	d.mu.Unlock()
	return id, nil
}

// ImportTextureView registers a view the driver does not own, such as a
// swapchain image. DestroyTexture forgets it without destroying it.
func (d *Device) ImportTextureView(view hal.TextureView, format gputypes.TextureFormat) driver.TextureID {
	id := driver.TextureID(d.newID())
	d.mu.Lock()
	d.textures[id] = &texture{view: view, format: format}
	d.mu.Unlock()
	return id
}

// DestroyTexture implements driver.Device.
func (d *Device) DestroyTexture(id driver.TextureID) {
	d.mu.Lock()
	t, ok := d.textures[id]
	delete(d.textures, id)
	d.mu.Unlock()
	if !ok || t.tex == nil {
		return
	}
	d.device.DestroyTextureView(t.view)
	d.device.DestroyTexture(t.tex)
}

// CreateSampler creates a sampler that binding sets can refer to.
func (d *Device) CreateSampler(desc *hal.SamplerDescriptor) (driver.SamplerID, error) {
	s, err := d.device.CreateSampler(desc)
	if err != nil {
		return driver.InvalidID, creationFailed("sampler", err)
	}
	id := driver.SamplerID(d.newID())
	d.mu.Lock()
	d.samplers[id] = s
	d.mu.Unlock()
	return id, nil
}

// DestroySampler releases a sampler.
func (d *Device) DestroySampler(id driver.SamplerID) {
	d.mu.Lock()
	s, ok := d.samplers[id]
	delete(d.samplers, id)
	d.mu.Unlock()
	if ok {
		d.device.DestroySampler(s)
	}
}

func (d *Device) view(id driver.TextureID) (hal.TextureView, error) {
	if id == driver.InvalidID {
		return nil, nil
	}
	t, ok := d.textures[id]
	if !ok {
		return nil, fmt.Errorf("haldriver: texture %d: %w", id, driver.ErrUnknownHandle)
	}
	return t.view, nil
}
