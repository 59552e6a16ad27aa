// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package haldriver

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucache/driver"
)

// Device implements driver.Device on a hal.Device.
//
// Thread Safety: Device is safe for concurrent use from multiple goroutines.
// All resource maps are protected by a mutex.
type Device struct {
	mu     sync.RWMutex
	device hal.Device
	log    *slog.Logger

	surfaceFormat gputypes.TextureFormat

	// ID generation
	nextID atomic.Uint64

	// Resource tracking maps driver IDs to hal resources
	shaderModules   map[driver.ShaderModuleID]hal.ShaderModule
	setLayouts      map[driver.BindGroupLayoutID]*setLayout
	pipelineLayouts map[driver.PipelineLayoutID]hal.PipelineLayout
	pools           map[driver.DescriptorPoolID]*pool
	groups          map[driver.BindGroupID]*group
	pipelines       map[driver.RenderPipelineID]hal.RenderPipeline
	buffers         map[driver.BufferID]hal.Buffer
	textures        map[driver.TextureID]*texture
	samplers        map[driver.SamplerID]hal.Sampler

	// Emulated objects; WebGPU has no render pass or framebuffer handles.
	passes       map[driver.RenderPassID]*driver.RenderPassDesc
	framebuffers map[driver.FramebufferID]*driver.FramebufferDesc
}

// Option configures a Device.
type Option func(*Device)

// WithLogger sets the logger for driver diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(d *Device) {
		if l != nil {
			d.log = l
		}
	}
}

// WithSurfaceFormat records the preferred swapchain format.
func WithSurfaceFormat(f gputypes.TextureFormat) Option {
	return func(d *Device) { d.surfaceFormat = f }
}

// New wraps a hal device. The hal device stays owned by the caller.
func New(device hal.Device, opts ...Option) *Device {
	d := &Device{
		device:          device,
		log:             slog.New(slog.DiscardHandler),
		shaderModules:   make(map[driver.ShaderModuleID]hal.ShaderModule),
		setLayouts:      make(map[driver.BindGroupLayoutID]*setLayout),
		pipelineLayouts: make(map[driver.PipelineLayoutID]hal.PipelineLayout),
		pools:           make(map[driver.DescriptorPoolID]*pool),
		groups:          make(map[driver.BindGroupID]*group),
		pipelines:       make(map[driver.RenderPipelineID]hal.RenderPipeline),
		buffers:         make(map[driver.BufferID]hal.Buffer),
		textures:        make(map[driver.TextureID]*texture),
		samplers:        make(map[driver.SamplerID]hal.Sampler),
		passes:          make(map[driver.RenderPassID]*driver.RenderPassDesc),
		framebuffers:    make(map[driver.FramebufferID]*driver.FramebufferDesc),
	}
	for _, opt := range opts {
		opt(d)
	}

	// Start ID generation at 1 (0 is invalid)
	d.nextID.Store(1)
	return d
}

// NewFromProvider wraps the device of a gpucontext provider. The provider
// must implement HalDevice() any returning a hal.Device.
func NewFromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*Device, error) {
	type halProvider interface {
		HalDevice() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("haldriver: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("haldriver: provider HalDevice is not hal.Device")
	}
	opts = append([]Option{WithSurfaceFormat(provider.SurfaceFormat())}, opts...)
	return New(device, opts...), nil
}

// HAL returns the wrapped hal device.
func (d *Device) HAL() hal.Device { return d.device }

// SurfaceFormat returns the preferred swapchain format, or
// TextureFormatUndefined when headless.
func (d *Device) SurfaceFormat() gputypes.TextureFormat { return d.surfaceFormat }

// newID generates a unique resource ID.
func (d *Device) newID() uint64 {
	return d.nextID.Add(1) - 1
}

func creationFailed(what string, err error) error {
	return fmt.Errorf("haldriver: create %s: %w: %w", what, driver.ErrCreationFailed, err)
}

// === Shaders ===

// CreateShaderModule implements driver.Device. WGSL sources are compiled to
// SPIR-V with naga before they reach the hal device.
func (d *Device) CreateShaderModule(desc *driver.ShaderModuleDesc) (driver.ShaderModuleID, error) {
	spirv := desc.SPIRV
	if len(spirv) == 0 {
		if desc.WGSL == "" {
			return driver.InvalidID, fmt.Errorf("haldriver: shader %q has no source: %w", desc.Label, driver.ErrConfigurationConflict)
		}
		var err error
		if spirv, err = compileWGSL(desc.WGSL); err != nil {
			return driver.InvalidID, creationFailed("shader module "+desc.Label, err)
		}
	}

	module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return driver.InvalidID, creationFailed("shader module "+desc.Label, err)
	}

	id := driver.ShaderModuleID(d.newID())
	d.mu.Lock()
	d.shaderModules[id] = module
	d.mu.Unlock()
	return id, nil
}

// compileWGSL compiles WGSL source to SPIR-V words.
func compileWGSL(src string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(src)
	if err != nil {
		return nil, err
	}

	// SPIR-V is little-endian 32-bit words
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

// DestroyShaderModule implements driver.Device.
func (d *Device) DestroyShaderModule(id driver.ShaderModuleID) {
	d.mu.Lock()
	module, ok := d.shaderModules[id]
	delete(d.shaderModules, id)
	d.mu.Unlock()
	if ok {
		d.device.DestroyShaderModule(module)
	}
}

// === Layouts ===

// setLayout is a bind group layout with the entries it was created from.
type setLayout struct {
	hal     hal.BindGroupLayout
	entries []driver.BindGroupLayoutEntry
	dynamic int
}

// CreateBindGroupLayout implements driver.Device.
func (d *Device) CreateBindGroupLayout(desc *driver.BindGroupLayoutDesc) (driver.BindGroupLayoutID, error) {
	entries, err := layoutEntries(desc.Entries)
	if err != nil {
		return driver.InvalidID, err
	}
	layout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label,
		Entries: entries,
	})
	if err != nil {
		return driver.InvalidID, creationFailed("bind group layout", err)
	}

	sl := &setLayout{hal: layout, entries: append([]driver.BindGroupLayoutEntry(nil), desc.Entries...)}
	for _, e := range desc.Entries {
		if e.Dynamic {
			sl.dynamic++
		}
	}
	id := driver.BindGroupLayoutID(d.newID())
	d.mu.Lock()
	d.setLayouts[id] = sl
	d.mu.Unlock()
	return id, nil
}

// DestroyBindGroupLayout implements driver.Device.
func (d *Device) DestroyBindGroupLayout(id driver.BindGroupLayoutID) {
	d.mu.Lock()
	sl, ok := d.setLayouts[id]
	delete(d.setLayouts, id)
	d.mu.Unlock()
	if ok {
		d.device.DestroyBindGroupLayout(sl.hal)
	}
}

// CreatePipelineLayout implements driver.Device.
func (d *Device) CreatePipelineLayout(desc *driver.PipelineLayoutDesc) (driver.PipelineLayoutID, error) {
	d.mu.RLock()
	layouts := make([]hal.BindGroupLayout, len(desc.BindGroupLayouts))
	for i, id := range desc.BindGroupLayouts {
		sl, ok := d.setLayouts[id]
		if !ok {
			d.mu.RUnlock()
			return driver.InvalidID, fmt.Errorf("haldriver: bind group layout %d: %w", id, driver.ErrUnknownHandle)
		}
		layouts[i] = sl.hal
	}
	d.mu.RUnlock()

	ranges := make([]hal.PushConstantRange, len(desc.PushConstantRanges))
	for i, r := range desc.PushConstantRanges {
		ranges[i] = hal.PushConstantRange{
			Stages: r.Stages,
			Range:  hal.Range{Start: r.Offset, End: r.Offset + r.Size},
		}
	}

	layout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:              desc.Label,
		BindGroupLayouts:   layouts,
		PushConstantRanges: ranges,
	})
	if err != nil {
		return driver.InvalidID, creationFailed("pipeline layout", err)
	}

	id := driver.PipelineLayoutID(d.newID())
	d.mu.Lock()
	d.pipelineLayouts[id] = layout
	d.mu.Unlock()
	return id, nil
}

// DestroyPipelineLayout implements driver.Device.
func (d *Device) DestroyPipelineLayout(id driver.PipelineLayoutID) {
	d.mu.Lock()
	layout, ok := d.pipelineLayouts[id]
	delete(d.pipelineLayouts, id)
	d.mu.Unlock()
	if ok {
		d.device.DestroyPipelineLayout(layout)
	}
}
