// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package haldriver

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucache/driver"
)

// pool is an emulated descriptor pool: a capacity counter plus the groups
// handed out from it.
type pool struct {
	maxSets uint32
	groups  []driver.BindGroupID
}

// group is an emulated mutable binding set. WebGPU bind groups are
// immutable, so the hal object is rebuilt from contents on every update.
type group struct {
	pool     driver.DescriptorPoolID
	layout   driver.BindGroupLayoutID
	contents map[uint32]driver.BindGroupWrite
	hal      hal.BindGroup
}

// CreateDescriptorPool implements driver.Device.
func (d *Device) CreateDescriptorPool(desc *driver.DescriptorPoolDesc) (driver.DescriptorPoolID, error) {
	if desc.MaxSets == 0 {
		return driver.InvalidID, fmt.Errorf("haldriver: descriptor pool with zero capacity: %w", driver.ErrConfigurationConflict)
	}
	id := driver.DescriptorPoolID(d.newID())
	d.mu.Lock()
	d.pools[id] = &pool{maxSets: desc.MaxSets}
	d.mu.Unlock()
	return id, nil
}

// ResetDescriptorPool implements driver.Device.
func (d *Device) ResetDescriptorPool(id driver.DescriptorPoolID) {
	d.mu.Lock()
	p, ok := d.pools[id]
	if !ok {
		d.mu.Unlock()
		return
	}
	var dead []hal.BindGroup
	for _, gid := range p.groups {
		if g := d.groups[gid]; g != nil && g.hal != nil {
			dead = append(dead, g.hal)
		}
		delete(d.groups, gid)
	}
	p.groups = nil
	d.mu.Unlock()

	for _, bg := range dead {
		d.device.DestroyBindGroup(bg)
	}
}

// DestroyDescriptorPool implements driver.Device.
func (d *Device) DestroyDescriptorPool(id driver.DescriptorPoolID) {
	d.ResetDescriptorPool(id)
	d.mu.Lock()
	delete(d.pools, id)
	d.mu.Unlock()
}

// AllocateBindGroup implements driver.Device. The hal bind group is created
// by the first UpdateBindGroup call.
func (d *Device) AllocateBindGroup(poolID driver.DescriptorPoolID, layout driver.BindGroupLayoutID) (driver.BindGroupID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.pools[poolID]
	if !ok {
		return driver.InvalidID, fmt.Errorf("haldriver: descriptor pool %d: %w", poolID, driver.ErrUnknownHandle)
	}
	if _, ok := d.setLayouts[layout]; !ok {
		return driver.InvalidID, fmt.Errorf("haldriver: bind group layout %d: %w", layout, driver.ErrUnknownHandle)
	}
	if uint32(len(p.groups)) >= p.maxSets {
		return driver.InvalidID, driver.ErrPoolExhausted
	}
	id := driver.BindGroupID(d.newID())
	p.groups = append(p.groups, id)
	d.groups[id] = &group{pool: poolID, layout: layout, contents: make(map[uint32]driver.BindGroupWrite)}
	return id, nil
}

// UpdateBindGroup implements driver.Device. Once every binding of the
// layout has been written the hal bind group is (re)created.
func (d *Device) UpdateBindGroup(id driver.BindGroupID, writes []driver.BindGroupWrite) error {
	d.mu.Lock()
	g, ok := d.groups[id]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("haldriver: bind group %d: %w", id, driver.ErrUnknownHandle)
	}
	for _, w := range writes {
		if w.ArrayElement != 0 {
			d.mu.Unlock()
			return fmt.Errorf("haldriver: binding %d element %d: %w", w.Binding, w.ArrayElement, driver.ErrConfigurationConflict)
		}
		if w.Clears() {
			delete(g.contents, w.Binding)
			continue
		}
		g.contents[w.Binding] = w
	}
	sl := d.setLayouts[g.layout]
	if sl == nil {
		d.mu.Unlock()
		return fmt.Errorf("haldriver: bind group layout %d: %w", g.layout, driver.ErrUnknownHandle)
	}
	entries, complete, err := d.groupEntries(sl, g.contents)
	old := g.hal
	d.mu.Unlock()
	if err != nil {
		return err
	}
	if !complete {
		d.log.Debug("haldriver: bind group incomplete, deferring creation", "group", id)
		if old != nil {
			d.mu.Lock()
			g.hal = nil
			d.mu.Unlock()
			d.device.DestroyBindGroup(old)
		}
		return nil
	}

	bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{Layout: sl.hal, Entries: entries})
	if err != nil {
		return creationFailed("bind group", err)
	}
	d.mu.Lock()
	g.hal = bg
	d.mu.Unlock()
	if old != nil {
		d.device.DestroyBindGroup(old)
	}
	return nil
}

// groupEntries translates recorded writes into hal entries. It reports
// complete=false while some binding of the layout is still unwritten.
// d.mu must be held.
func (d *Device) groupEntries(sl *setLayout, contents map[uint32]driver.BindGroupWrite) ([]gputypes.BindGroupEntry, bool, error) {
	entries := make([]gputypes.BindGroupEntry, 0, len(sl.entries))
	for _, le := range sl.entries {
		w, ok := contents[le.Binding]
		if !ok {
			return nil, false, nil
		}
		switch {
		case le.Type.IsBuffer():
			buf, ok := d.buffers[w.Buffer]
			if !ok {
				return nil, false, fmt.Errorf("haldriver: buffer %d: %w", w.Buffer, driver.ErrUnknownHandle)
			}
			entries = append(entries, gputypes.BindGroupEntry{
				Binding:  le.Binding,
				Resource: gputypes.BufferBinding{Buffer: buf.NativeHandle(), Offset: w.Offset, Size: w.Size},
			})
		case le.Type == driver.ResourceSampler:
			s, err := d.sampler(w.Sampler)
			if err != nil {
				return nil, false, err
			}
			entries = append(entries, gputypes.BindGroupEntry{Binding: le.Binding, Resource: s})
		default:
			tex, ok := d.textures[w.Texture]
			if !ok {
				return nil, false, fmt.Errorf("haldriver: texture %d: %w", w.Texture, driver.ErrUnknownHandle)
			}
			entries = append(entries, gputypes.BindGroupEntry{
				Binding:  le.Binding,
				Resource: gputypes.TextureViewBinding{TextureView: tex.view.NativeHandle()},
			})
			if le.Type == driver.ResourceCombinedImageSampler {
				s, err := d.sampler(w.Sampler)
				if err != nil {
					return nil, false, err
				}
				entries = append(entries, gputypes.BindGroupEntry{Binding: le.Binding + SamplerBindingOffset, Resource: s})
			}
		}
	}
	return entries, true, nil
}

func (d *Device) sampler(id driver.SamplerID) (gputypes.SamplerBinding, error) {
	s, ok := d.samplers[id]
	if !ok {
		return gputypes.SamplerBinding{}, fmt.Errorf("haldriver: sampler %d: %w", id, driver.ErrUnknownHandle)
	}
	return gputypes.SamplerBinding{Sampler: s.NativeHandle()}, nil
}
