// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package drivertest provides an in-memory driver.Device that records every
// creation, destruction and binding call, for testing the cache tiers
// without a GPU.
package drivertest

import (
	"fmt"
	"sort"

	"github.com/gogpu/gpucache/driver"
)

// Kind names a driver object type in the recorded counters.
type Kind string

// Object kinds.
const (
	ShaderModule    Kind = "shader-module"
	BindGroupLayout Kind = "bind-group-layout"
	PipelineLayout  Kind = "pipeline-layout"
	DescriptorPool  Kind = "descriptor-pool"
	BindGroup       Kind = "bind-group"
	RenderPipeline  Kind = "render-pipeline"
	RenderPass      Kind = "render-pass"
	Framebuffer     Kind = "framebuffer"
	Buffer          Kind = "buffer"
	Texture         Kind = "texture"
)

// Slot addresses one element of a binding set.
type Slot struct {
	Binding      uint32
	ArrayElement uint32
}

type pool struct {
	desc   driver.DescriptorPoolDesc
	groups []driver.BindGroupID
}

type group struct {
	pool     driver.DescriptorPoolID
	layout   driver.BindGroupLayoutID
	contents map[Slot]driver.BindGroupWrite
}

// Device is a recording driver.Device. The zero value is not usable; call
// New.
//
// Device is not safe for concurrent use.
type Device struct {
	nextID uint64

	created   map[Kind]int
	destroyed map[Kind]int
	live      map[Kind]map[uint64]any
	failNext  map[Kind]error

	pools  map[driver.DescriptorPoolID]*pool
	groups map[driver.BindGroupID]*group

	// Writes counts individual BindGroupWrite entries applied.
	Writes int

	// Anomalies records destroy calls on unknown IDs and other misuse.
	Anomalies []string
}

var _ driver.Device = (*Device)(nil)

// New creates an empty recording device.
func New() *Device {
	return &Device{
		created:   make(map[Kind]int),
		destroyed: make(map[Kind]int),
		live:      make(map[Kind]map[uint64]any),
		failNext:  make(map[Kind]error),
		pools:     make(map[driver.DescriptorPoolID]*pool),
		groups:    make(map[driver.BindGroupID]*group),
	}
}

// Created returns how many objects of kind were created.
func (d *Device) Created(k Kind) int { return d.created[k] }

// Destroyed returns how many objects of kind were destroyed.
func (d *Device) Destroyed(k Kind) int { return d.destroyed[k] }

// Live returns how many objects of kind currently exist.
func (d *Device) Live(k Kind) int { return len(d.live[k]) }

// IsLive reports whether id names a live object of kind.
func (d *Device) IsLive(k Kind, id uint64) bool {
	_, ok := d.live[k][id]
	return ok
}

// TotalCreated returns the number of objects created across all kinds.
func (d *Device) TotalCreated() int {
	n := 0
	for _, c := range d.created {
		n += c
	}
	return n
}

// FailNext makes the next creation of kind fail with err wrapped in
// driver.ErrCreationFailed.
func (d *Device) FailNext(k Kind, err error) {
	d.failNext[k] = err
}

// Desc returns the descriptor an object was created with.
func (d *Device) Desc(k Kind, id uint64) (any, bool) {
	desc, ok := d.live[k][id]
	return desc, ok
}

// BindGroupContents returns the current slot contents of a binding set.
func (d *Device) BindGroupContents(id driver.BindGroupID) map[Slot]driver.BindGroupWrite {
	g, ok := d.groups[id]
	if !ok {
		return nil
	}
	out := make(map[Slot]driver.BindGroupWrite, len(g.contents))
	for k, v := range g.contents {
		out[k] = v
	}
	return out
}

// PoolGroups returns how many sets are currently allocated from a pool.
func (d *Device) PoolGroups(id driver.DescriptorPoolID) int {
	if p, ok := d.pools[id]; ok {
		return len(p.groups)
	}
	return 0
}

func (d *Device) create(k Kind, desc any) (uint64, error) {
	if err, ok := d.failNext[k]; ok {
		delete(d.failNext, k)
		return 0, fmt.Errorf("drivertest: create %s: %w: %w", k, driver.ErrCreationFailed, err)
	}
	d.nextID++
	if d.live[k] == nil {
		d.live[k] = make(map[uint64]any)
	}
	d.live[k][d.nextID] = desc
	d.created[k]++
	return d.nextID, nil
}

func (d *Device) destroy(k Kind, id uint64) {
	if _, ok := d.live[k][id]; !ok {
		d.Anomalies = append(d.Anomalies, fmt.Sprintf("destroy unknown %s %d", k, id))
		return
	}
	delete(d.live[k], id)
	d.destroyed[k]++
}

// CreateShaderModule implements driver.Device.
func (d *Device) CreateShaderModule(desc *driver.ShaderModuleDesc) (driver.ShaderModuleID, error) {
	id, err := d.create(ShaderModule, *desc)
	return driver.ShaderModuleID(id), err
}

// DestroyShaderModule implements driver.Device.
func (d *Device) DestroyShaderModule(id driver.ShaderModuleID) { d.destroy(ShaderModule, uint64(id)) }

// CreateBindGroupLayout implements driver.Device.
func (d *Device) CreateBindGroupLayout(desc *driver.BindGroupLayoutDesc) (driver.BindGroupLayoutID, error) {
	id, err := d.create(BindGroupLayout, *desc)
	return driver.BindGroupLayoutID(id), err
}

// DestroyBindGroupLayout implements driver.Device.
func (d *Device) DestroyBindGroupLayout(id driver.BindGroupLayoutID) {
	d.destroy(BindGroupLayout, uint64(id))
}

// CreatePipelineLayout implements driver.Device.
func (d *Device) CreatePipelineLayout(desc *driver.PipelineLayoutDesc) (driver.PipelineLayoutID, error) {
	id, err := d.create(PipelineLayout, *desc)
	return driver.PipelineLayoutID(id), err
}

// DestroyPipelineLayout implements driver.Device.
func (d *Device) DestroyPipelineLayout(id driver.PipelineLayoutID) {
	d.destroy(PipelineLayout, uint64(id))
}

// CreateDescriptorPool implements driver.Device.
func (d *Device) CreateDescriptorPool(desc *driver.DescriptorPoolDesc) (driver.DescriptorPoolID, error) {
	id, err := d.create(DescriptorPool, *desc)
	if err != nil {
		return 0, err
	}
	d.pools[driver.DescriptorPoolID(id)] = &pool{desc: *desc}
	return driver.DescriptorPoolID(id), nil
}

// ResetDescriptorPool implements driver.Device.
func (d *Device) ResetDescriptorPool(id driver.DescriptorPoolID) {
	p, ok := d.pools[id]
	if !ok {
		d.Anomalies = append(d.Anomalies, fmt.Sprintf("reset unknown pool %d", id))
		return
	}
	for _, g := range p.groups {
		delete(d.groups, g)
		d.destroy(BindGroup, uint64(g))
	}
	p.groups = nil
}

// DestroyDescriptorPool implements driver.Device.
func (d *Device) DestroyDescriptorPool(id driver.DescriptorPoolID) {
	if _, ok := d.pools[id]; ok {
		d.ResetDescriptorPool(id)
		delete(d.pools, id)
	}
	d.destroy(DescriptorPool, uint64(id))
}

// AllocateBindGroup implements driver.Device. It returns
// driver.ErrPoolExhausted once MaxSets sets are outstanding.
func (d *Device) AllocateBindGroup(poolID driver.DescriptorPoolID, layout driver.BindGroupLayoutID) (driver.BindGroupID, error) {
	p, ok := d.pools[poolID]
	if !ok {
		return 0, fmt.Errorf("drivertest: pool %d: %w", poolID, driver.ErrUnknownHandle)
	}
	if uint32(len(p.groups)) >= p.desc.MaxSets {
		return 0, driver.ErrPoolExhausted
	}
	id, err := d.create(BindGroup, layout)
	if err != nil {
		return 0, err
	}
	gid := driver.BindGroupID(id)
	p.groups = append(p.groups, gid)
	d.groups[gid] = &group{pool: poolID, layout: layout, contents: make(map[Slot]driver.BindGroupWrite)}
	return gid, nil
}

// UpdateBindGroup implements driver.Device.
func (d *Device) UpdateBindGroup(id driver.BindGroupID, writes []driver.BindGroupWrite) error {
	g, ok := d.groups[id]
	if !ok {
		return fmt.Errorf("drivertest: bind group %d: %w", id, driver.ErrUnknownHandle)
	}
	for _, w := range writes {
		at := Slot{Binding: w.Binding, ArrayElement: w.ArrayElement}
		if w.Clears() {
			delete(g.contents, at)
		} else {
			g.contents[at] = w
		}
		d.Writes++
	}
	return nil
}

// CreateRenderPipeline implements driver.Device.
func (d *Device) CreateRenderPipeline(desc *driver.RenderPipelineDesc) (driver.RenderPipelineID, error) {
	id, err := d.create(RenderPipeline, *desc)
	return driver.RenderPipelineID(id), err
}

// DestroyRenderPipeline implements driver.Device.
func (d *Device) DestroyRenderPipeline(id driver.RenderPipelineID) {
	d.destroy(RenderPipeline, uint64(id))
}

// CreateRenderPass implements driver.Device.
func (d *Device) CreateRenderPass(desc *driver.RenderPassDesc) (driver.RenderPassID, error) {
	id, err := d.create(RenderPass, *desc)
	return driver.RenderPassID(id), err
}

// DestroyRenderPass implements driver.Device.
func (d *Device) DestroyRenderPass(id driver.RenderPassID) { d.destroy(RenderPass, uint64(id)) }

// CreateFramebuffer implements driver.Device.
func (d *Device) CreateFramebuffer(desc *driver.FramebufferDesc) (driver.FramebufferID, error) {
	if !d.IsLive(RenderPass, uint64(desc.RenderPass)) {
		d.Anomalies = append(d.Anomalies, fmt.Sprintf("framebuffer against dead render pass %d", desc.RenderPass))
	}
	id, err := d.create(Framebuffer, *desc)
	return driver.FramebufferID(id), err
}

// DestroyFramebuffer implements driver.Device.
func (d *Device) DestroyFramebuffer(id driver.FramebufferID) { d.destroy(Framebuffer, uint64(id)) }

// CreateBuffer implements driver.Device.
func (d *Device) CreateBuffer(desc *driver.BufferDesc) (driver.BufferID, error) {
	id, err := d.create(Buffer, *desc)
	return driver.BufferID(id), err
}

// DestroyBuffer implements driver.Device.
func (d *Device) DestroyBuffer(id driver.BufferID) { d.destroy(Buffer, uint64(id)) }

// CreateTexture implements driver.Device.
func (d *Device) CreateTexture(desc *driver.TextureDesc) (driver.TextureID, error) {
	id, err := d.create(Texture, *desc)
	return driver.TextureID(id), err
}

// DestroyTexture implements driver.Device.
func (d *Device) DestroyTexture(id driver.TextureID) { d.destroy(Texture, uint64(id)) }

// Summary returns "kind=created/destroyed" pairs in kind order, for test
// failure messages.
func (d *Device) Summary() string {
	kinds := make([]string, 0, len(d.created))
	for k := range d.created {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	out := ""
	for _, k := range kinds {
		out += fmt.Sprintf("%s=%d/%d ", k, d.created[Kind(k)], d.destroyed[Kind(k)])
	}
	return out
}
