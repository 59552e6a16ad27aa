// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package haldriver

import (
	"errors"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/gpucache/driver"
)

// spirvStub is a SPIR-V magic word; the noop backend does not parse it.
var spirvStub = []uint32{0x07230203}

// recordingDevice captures the descriptors handed to the hal device.
type recordingDevice struct {
	noop.Device
	pipelines  []*hal.RenderPipelineDescriptor
	bindGroups []*hal.BindGroupDescriptor
	destroyed  int
}

func (r *recordingDevice) CreateRenderPipeline(desc *hal.RenderPipelineDescriptor) (hal.RenderPipeline, error) {
	r.pipelines = append(r.pipelines, desc)
	return r.Device.CreateRenderPipeline(desc)
}

func (r *recordingDevice) CreateBindGroup(desc *hal.BindGroupDescriptor) (hal.BindGroup, error) {
	r.bindGroups = append(r.bindGroups, desc)
	return r.Device.CreateBindGroup(desc)
}

func (r *recordingDevice) DestroyBindGroup(g hal.BindGroup) {
	r.destroyed++
	r.Device.DestroyBindGroup(g)
}

type bindCall struct {
	index   uint32
	offsets []uint32
}

type recordingPass struct {
	noop.RenderPassEncoder
	binds []bindCall
}

func (p *recordingPass) SetBindGroup(index uint32, _ hal.BindGroup, offsets []uint32) {
	p.binds = append(p.binds, bindCall{index, append([]uint32(nil), offsets...)})
}

type recordingEncoder struct {
	noop.CommandEncoder
	desc *hal.RenderPassDescriptor
	pass *recordingPass
}

func (e *recordingEncoder) BeginRenderPass(desc *hal.RenderPassDescriptor) hal.RenderPassEncoder {
	e.desc = desc
	e.pass = &recordingPass{}
	return e.pass
}

func TestCreateShaderModule(t *testing.T) {
	d := New(&noop.Device{})
	tests := []struct {
		name    string
		desc    driver.ShaderModuleDesc
		wantErr error
	}{
		{"spirv", driver.ShaderModuleDesc{Label: "vs", SPIRV: spirvStub}, nil},
		{"no source", driver.ShaderModuleDesc{Label: "empty"}, driver.ErrConfigurationConflict},
		{"invalid wgsl", driver.ShaderModuleDesc{Label: "bad", WGSL: "fn {"}, driver.ErrCreationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := d.CreateShaderModule(&tt.desc)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CreateShaderModule() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil {
				if id == driver.InvalidID {
					t.Fatal("CreateShaderModule() returned InvalidID")
				}
				d.DestroyShaderModule(id)
				if _, ok := d.shaderModules[id]; ok {
					t.Error("module still tracked after destroy")
				}
			}
		})
	}
}

func TestLayoutEntries(t *testing.T) {
	tests := []struct {
		name    string
		in      []driver.BindGroupLayoutEntry
		want    []uint32
		wantErr bool
	}{
		{
			name: "buffers",
			in: []driver.BindGroupLayoutEntry{
				{Binding: 0, Type: driver.ResourceUniformBuffer, Dynamic: true},
				{Binding: 1, Type: driver.ResourceStorageBuffer},
			},
			want: []uint32{0, 1},
		},
		{
			name: "combined image sampler splits",
			in:   []driver.BindGroupLayoutEntry{{Binding: 2, Type: driver.ResourceCombinedImageSampler}},
			want: []uint32{2 + SamplerBindingOffset, 2},
		},
		{
			name:    "array",
			in:      []driver.BindGroupLayoutEntry{{Binding: 0, Type: driver.ResourceSampledTexture, Count: 4}},
			wantErr: true,
		},
		{
			name:    "stage input",
			in:      []driver.BindGroupLayoutEntry{{Binding: 0, Type: driver.ResourceStageInput}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := layoutEntries(tt.in)
			if tt.wantErr {
				if !errors.Is(err, driver.ErrConfigurationConflict) {
					t.Fatalf("layoutEntries() error = %v, want ErrConfigurationConflict", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("layoutEntries() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i, b := range tt.want {
				if got[i].Binding != b {
					t.Errorf("entry %d binding = %d, want %d", i, got[i].Binding, b)
				}
			}
		})
	}
}

func TestDescriptorPoolCapacity(t *testing.T) {
	d := New(&noop.Device{})
	layout, err := d.CreateBindGroupLayout(&driver.BindGroupLayoutDesc{
		Entries: []driver.BindGroupLayoutEntry{{Binding: 0, Type: driver.ResourceUniformBuffer}},
	})
	if err != nil {
		t.Fatal(err)
	}
	pool, err := d.CreateDescriptorPool(&driver.DescriptorPoolDesc{MaxSets: 2})
	if err != nil {
		t.Fatal(err)
	}

	first, err := d.AllocateBindGroup(pool, layout)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.AllocateBindGroup(pool, layout); err != nil {
		t.Fatal(err)
	}
	if _, err := d.AllocateBindGroup(pool, layout); !errors.Is(err, driver.ErrPoolExhausted) {
		t.Fatalf("third AllocateBindGroup() error = %v, want ErrPoolExhausted", err)
	}

	d.ResetDescriptorPool(pool)
	if err := d.UpdateBindGroup(first, nil); !errors.Is(err, driver.ErrUnknownHandle) {
		t.Errorf("UpdateBindGroup after reset error = %v, want ErrUnknownHandle", err)
	}
	if _, err := d.AllocateBindGroup(pool, layout); err != nil {
		t.Errorf("AllocateBindGroup after reset error = %v", err)
	}

	d.DestroyDescriptorPool(pool)
	if _, err := d.AllocateBindGroup(pool, layout); !errors.Is(err, driver.ErrUnknownHandle) {
		t.Errorf("AllocateBindGroup on destroyed pool error = %v, want ErrUnknownHandle", err)
	}
}

func TestUpdateBindGroupRebuilds(t *testing.T) {
	rec := &recordingDevice{}
	d := New(rec)

	layout, err := d.CreateBindGroupLayout(&driver.BindGroupLayoutDesc{
		Entries: []driver.BindGroupLayoutEntry{
			{Binding: 0, Type: driver.ResourceUniformBuffer},
			{Binding: 1, Type: driver.ResourceCombinedImageSampler},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	pool, _ := d.CreateDescriptorPool(&driver.DescriptorPoolDesc{MaxSets: 1})
	g, err := d.AllocateBindGroup(pool, layout)
	if err != nil {
		t.Fatal(err)
	}
	buf, _ := d.CreateBuffer(&driver.BufferDesc{Size: 64, Usage: gputypes.BufferUsageUniform})
	tex, _ := d.CreateTexture(&driver.TextureDesc{Width: 4, Height: 4, Format: gputypes.TextureFormatRGBA8Unorm})
	smp, err := d.CreateSampler(&hal.SamplerDescriptor{MagFilter: gputypes.FilterModeLinear})
	if err != nil {
		t.Fatal(err)
	}

	if err := d.UpdateBindGroup(g, []driver.BindGroupWrite{{Binding: 0, Type: driver.ResourceUniformBuffer, Buffer: buf}}); err != nil {
		t.Fatal(err)
	}
	if len(rec.bindGroups) != 0 {
		t.Fatalf("bind group created before every binding was written")
	}

	combined := driver.BindGroupWrite{Binding: 1, Type: driver.ResourceCombinedImageSampler, Texture: tex, Sampler: smp}
	if err := d.UpdateBindGroup(g, []driver.BindGroupWrite{combined}); err != nil {
		t.Fatal(err)
	}
	if len(rec.bindGroups) != 1 {
		t.Fatalf("CreateBindGroup calls = %d, want 1", len(rec.bindGroups))
	}
	if n := len(rec.bindGroups[0].Entries); n != 3 {
		t.Errorf("entries = %d, want 3 (buffer, texture, sampler)", n)
	}

	if err := d.UpdateBindGroup(g, []driver.BindGroupWrite{{Binding: 0, Type: driver.ResourceUniformBuffer, Buffer: buf, Offset: 16}}); err != nil {
		t.Fatal(err)
	}
	if len(rec.bindGroups) != 2 || rec.destroyed != 1 {
		t.Errorf("after rewrite: created %d destroyed %d, want 2 and 1", len(rec.bindGroups), rec.destroyed)
	}

	bad := driver.BindGroupWrite{Binding: 0, ArrayElement: 1, Type: driver.ResourceUniformBuffer, Buffer: buf}
	if err := d.UpdateBindGroup(g, []driver.BindGroupWrite{bad}); !errors.Is(err, driver.ErrConfigurationConflict) {
		t.Errorf("array element write error = %v, want ErrConfigurationConflict", err)
	}

	unbind := driver.BindGroupWrite{Binding: 1, Type: driver.ResourceCombinedImageSampler}
	if err := d.UpdateBindGroup(g, []driver.BindGroupWrite{unbind}); err != nil {
		t.Fatal(err)
	}
	if rec.destroyed != 2 || d.groups[g].hal != nil {
		t.Errorf("after clearing binding 1: destroyed %d ready %v, want 2 and false", rec.destroyed, d.groups[g].hal != nil)
	}
	if _, ok := d.groups[g].contents[1]; ok {
		t.Error("cleared binding still recorded")
	}
}

// newPipelineFixture creates a two-subpass pass with one input attachment
// and a pipeline layout with one dynamic uniform buffer.
func newPipelineFixture(t *testing.T, d *Device) (driver.RenderPassID, driver.PipelineLayoutID, driver.ShaderModuleID) {
	t.Helper()
	pass, err := d.CreateRenderPass(&driver.RenderPassDesc{
		ColorAttachments: []driver.AttachmentDesc{
			{Format: gputypes.TextureFormatRGBA8Unorm, LoadOp: driver.LoadOpClear},
			{Format: gputypes.TextureFormatBGRA8Unorm, LoadOp: driver.LoadOpLoad},
		},
		DepthStencil: &driver.AttachmentDesc{Format: gputypes.TextureFormatDepth24PlusStencil8},
		Subpasses: []driver.SubpassDesc{
			{ColorAttachments: []uint32{0}},
			{ColorAttachments: []uint32{1}, InputAttachments: []uint32{0}, DepthStencil: true},
		},
		Dependencies: []driver.SubpassDependency{{SrcSubpass: 0, DstSubpass: 1, ByRegion: true}},
	})
	if err != nil {
		t.Fatal(err)
	}
	set, err := d.CreateBindGroupLayout(&driver.BindGroupLayoutDesc{
		Entries: []driver.BindGroupLayoutEntry{{Binding: 0, Type: driver.ResourceUniformBuffer, Dynamic: true}},
	})
	if err != nil {
		t.Fatal(err)
	}
	layout, err := d.CreatePipelineLayout(&driver.PipelineLayoutDesc{BindGroupLayouts: []driver.BindGroupLayoutID{set, set}})
	if err != nil {
		t.Fatal(err)
	}
	module, err := d.CreateShaderModule(&driver.ShaderModuleDesc{SPIRV: spirvStub})
	if err != nil {
		t.Fatal(err)
	}
	return pass, layout, module
}

func TestCreateRenderPipelineTargets(t *testing.T) {
	rec := &recordingDevice{}
	d := New(rec)
	pass, layout, module := newPipelineFixture(t, d)

	blend := &driver.BlendState{Color: driver.BlendComponent{
		SrcFactor: gputypes.BlendFactorOne,
		DstFactor: gputypes.BlendFactorOneMinusSrcAlpha,
		Operation: gputypes.BlendOperationAdd,
	}}
	for subpass := uint32(0); subpass < 2; subpass++ {
		_, err := d.CreateRenderPipeline(&driver.RenderPipelineDesc{
			Layout:     layout,
			Vertex:     driver.ProgrammableStage{Module: module, EntryPoint: "vs_main"},
			Fragment:   &driver.ProgrammableStage{Module: module, EntryPoint: "fs_main"},
			Raster:     driver.RasterState{Blend: blend, DepthWriteEnabled: true},
			Constants:  []driver.SpecializationConstant{{ID: 1, Value: 2}},
			RenderPass: pass,
			Subpass:    subpass,
		})
		if err != nil {
			t.Fatalf("subpass %d: %v", subpass, err)
		}
	}

	first, second := rec.pipelines[0], rec.pipelines[1]
	if got := first.Fragment.Targets[0].Format; got != gputypes.TextureFormatRGBA8Unorm {
		t.Errorf("subpass 0 target = %v, want RGBA8Unorm", got)
	}
	if first.DepthStencil != nil {
		t.Error("subpass 0 should not use depth")
	}
	if got := second.Fragment.Targets[0].Format; got != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("subpass 1 target = %v, want BGRA8Unorm", got)
	}
	if second.DepthStencil == nil || second.DepthStencil.DepthCompare != gputypes.CompareFunctionAlways {
		t.Errorf("subpass 1 depth state = %+v", second.DepthStencil)
	}
	if second.Fragment.Targets[0].Blend == nil {
		t.Error("blend state dropped")
	}

	_, err := d.CreateRenderPipeline(&driver.RenderPipelineDesc{
		Layout:     layout,
		Vertex:     driver.ProgrammableStage{Module: module},
		RenderPass: pass,
		Subpass:    2,
	})
	if !errors.Is(err, driver.ErrConfigurationConflict) {
		t.Errorf("out-of-range subpass error = %v, want ErrConfigurationConflict", err)
	}
}

func TestBeginRenderPassSplitsDynamicOffsets(t *testing.T) {
	d := New(&noop.Device{})
	pass, layout, _ := newPipelineFixture(t, d)

	var color [2]driver.TextureID
	for i := range color {
		var err error
		color[i], err = d.CreateTexture(&driver.TextureDesc{Width: 8, Height: 8, Format: gputypes.TextureFormatRGBA8Unorm})
		if err != nil {
			t.Fatal(err)
		}
	}
	depth, _ := d.CreateTexture(&driver.TextureDesc{Width: 8, Height: 8, Format: gputypes.TextureFormatDepth24PlusStencil8})
	fb, err := d.CreateFramebuffer(&driver.FramebufferDesc{
		RenderPass:       pass,
		Width:            8,
		Height:           8,
		Layers:           1,
		ColorAttachments: color[:],
		DepthStencil:     depth,
	})
	if err != nil {
		t.Fatal(err)
	}

	enc := &recordingEncoder{}
	cmd, err := d.BeginRenderPass(enc, 42, fb, 1, []gputypes.Color{{R: 1}, {G: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if cmd.ID() != 42 {
		t.Errorf("ID() = %d, want 42", cmd.ID())
	}
	if n := len(enc.desc.ColorAttachments); n != 1 {
		t.Fatalf("color attachments = %d, want 1", n)
	}
	if got := enc.desc.ColorAttachments[0]; got.LoadOp != gputypes.LoadOpLoad || got.ClearValue.G != 1 {
		t.Errorf("color attachment = %+v", got)
	}
	if enc.desc.DepthStencilAttachment == nil {
		t.Fatal("depth attachment missing")
	}

	set := dynamicSetLayout(t, d)
	poolID, _ := d.CreateDescriptorPool(&driver.DescriptorPoolDesc{MaxSets: 2})
	buf, _ := d.CreateBuffer(&driver.BufferDesc{Size: 256})
	var groups [2]driver.BindGroupID
	for i := range groups {
		groups[i], _ = d.AllocateBindGroup(poolID, set)
		if err := d.UpdateBindGroup(groups[i], []driver.BindGroupWrite{{Binding: 0, Type: driver.ResourceUniformBuffer, Buffer: buf}}); err != nil {
			t.Fatal(err)
		}
	}
	cmd.BindGroups(layout, []driver.SetBinding{{Set: 0, Group: groups[0]}, {Set: 1, Group: groups[1]}}, []uint32{64, 128})
	cmd.End()

	if len(enc.pass.binds) != 2 {
		t.Fatalf("SetBindGroup calls = %d, want 2", len(enc.pass.binds))
	}
	for i, want := range []uint32{64, 128} {
		b := enc.pass.binds[i]
		if b.index != uint32(i) || len(b.offsets) != 1 || b.offsets[0] != want {
			t.Errorf("bind %d = %+v, want set %d offset %d", i, b, i, want)
		}
	}
}

// dynamicSetLayout returns the set layout created by newPipelineFixture.
func dynamicSetLayout(t *testing.T, d *Device) driver.BindGroupLayoutID {
	t.Helper()
	for id, sl := range d.setLayouts {
		if sl.dynamic == 1 {
			return id
		}
	}
	t.Fatal("no dynamic set layout")
	return 0
}

func TestImportedTextureNotDestroyed(t *testing.T) {
	d := New(&noop.Device{})
	id := d.ImportTextureView(&noop.Resource{}, gputypes.TextureFormatBGRA8Unorm)
	if _, err := d.view(id); err != nil {
		t.Fatal(err)
	}
	d.DestroyTexture(id)
	if _, err := d.view(id); !errors.Is(err, driver.ErrUnknownHandle) {
		t.Errorf("view after destroy error = %v, want ErrUnknownHandle", err)
	}
}

type fakeProvider struct {
	gpucontext.DeviceProvider
	dev hal.Device
}

func (p fakeProvider) HalDevice() any { return p.dev }

func (p fakeProvider) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatBGRA8Unorm
}

type plainProvider struct{ gpucontext.DeviceProvider }

func TestNewFromProvider(t *testing.T) {
	d, err := NewFromProvider(fakeProvider{dev: &noop.Device{}})
	if err != nil {
		t.Fatal(err)
	}
	if d.SurfaceFormat() != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("SurfaceFormat() = %v", d.SurfaceFormat())
	}
	if _, err := NewFromProvider(plainProvider{}); err == nil {
		t.Error("NewFromProvider without HAL access should fail")
	}
	if _, err := NewFromProvider(fakeProvider{}); err == nil {
		t.Error("NewFromProvider with nil HAL device should fail")
	}
}
