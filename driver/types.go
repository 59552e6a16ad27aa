// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import "github.com/gogpu/gputypes"

// Resource IDs
//
// These opaque IDs represent driver objects. Each Device implementation
// maintains a mapping between IDs and native objects.

// ShaderModuleID is an opaque handle to a compiled shader module.
type ShaderModuleID uint64

// BindGroupLayoutID is an opaque handle to a binding-set layout.
type BindGroupLayoutID uint64

// PipelineLayoutID is an opaque handle to a pipeline layout.
type PipelineLayoutID uint64

// DescriptorPoolID is an opaque handle to a binding-set allocation pool.
type DescriptorPoolID uint64

// BindGroupID is an opaque handle to a binding set.
type BindGroupID uint64

// RenderPipelineID is an opaque handle to a compiled render pipeline.
type RenderPipelineID uint64

// RenderPassID is an opaque handle to a render pass.
type RenderPassID uint64

// FramebufferID is an opaque handle to a framebuffer.
type FramebufferID uint64

// BufferID is an opaque handle to a GPU buffer.
type BufferID uint64

// TextureID is an opaque handle to a GPU texture (or its default view).
type TextureID uint64

// SamplerID is an opaque handle to a sampler.
type SamplerID uint64

// InvalidID is the zero value, representing an invalid/null object.
const InvalidID = 0

// ShaderStage is a bitmask of programmable pipeline stages.
type ShaderStage = gputypes.ShaderStage

// Shader stages.
const (
	ShaderStageVertex   = gputypes.ShaderStageVertex
	ShaderStageFragment = gputypes.ShaderStageFragment
	ShaderStageCompute  = gputypes.ShaderStageCompute
)

// BufferDesc describes a buffer to create.
type BufferDesc struct {
	// Label is an optional debug label.
	Label string

	// Size is the buffer size in bytes.
	Size uint64

	// Usage is the set of allowed buffer usages.
	Usage gputypes.BufferUsage
}

// TextureDesc describes a 2D texture to create.
type TextureDesc struct {
	// Label is an optional debug label.
	Label string

	// Width and Height are the texture dimensions in pixels.
	Width  uint32
	Height uint32

	// Format is the texel format.
	Format gputypes.TextureFormat

	// Usage is the set of allowed texture usages.
	Usage gputypes.TextureUsage

	// SampleCount is the number of samples per texel. Zero means 1.
	SampleCount uint32
}

// BindGroupLayoutEntry describes a single binding in a binding-set layout.
type BindGroupLayoutEntry struct {
	// Binding is the binding index inside the set.
	Binding uint32

	// Type is the resource type bound at this index.
	Type ResourceType

	// Stages is the set of stages that may access the binding.
	Stages ShaderStage

	// Count is the array size. Zero is treated as 1.
	Count uint32

	// Dynamic marks a buffer binding whose offset is supplied at bind time.
	Dynamic bool
}

// BindGroupLayoutDesc describes a binding-set layout.
type BindGroupLayoutDesc struct {
	// Label is an optional debug label.
	Label string

	// Entries defines the bindings in this layout, sorted by Binding.
	Entries []BindGroupLayoutEntry
}

// PushConstantRange describes a push-constant block visible to some stages.
type PushConstantRange struct {
	Stages ShaderStage
	Offset uint32
	Size   uint32
}

// PipelineLayoutDesc describes a pipeline layout.
type PipelineLayoutDesc struct {
	// Label is an optional debug label.
	Label string

	// BindGroupLayouts holds one layout per set index, in set order.
	BindGroupLayouts []BindGroupLayoutID

	// PushConstantRanges lists the push-constant blocks.
	PushConstantRanges []PushConstantRange
}

// DescriptorPoolSize is the capacity of a pool for one resource type.
type DescriptorPoolSize struct {
	Type  ResourceType
	Count uint32
}

// DescriptorPoolDesc describes a binding-set allocation pool.
type DescriptorPoolDesc struct {
	// Label is an optional debug label.
	Label string

	// MaxSets is the number of sets the pool can hand out before it must
	// be reset.
	MaxSets uint32

	// Sizes is the per-type descriptor capacity.
	Sizes []DescriptorPoolSize
}

// BindGroupWrite writes one resource into one slot of a binding set.
type BindGroupWrite struct {
	// Binding is the binding index inside the set.
	Binding uint32

	// ArrayElement is the element index for arrayed bindings.
	ArrayElement uint32

	// Type is the resource type of the slot.
	Type ResourceType

	// Buffer, Offset and Size describe a buffer range (buffer types).
	// Size 0 binds the whole buffer from Offset.
	Buffer BufferID
	Offset uint64
	Size   uint64

	// Sampler and Texture describe an image binding (image types).
	Sampler SamplerID
	Texture TextureID
}

// Clears reports whether w names no resource. Writing it unbinds the slot.
func (w BindGroupWrite) Clears() bool {
	return w.Buffer == InvalidID && w.Sampler == InvalidID && w.Texture == InvalidID
}

// VertexAttribute describes a single vertex attribute.
type VertexAttribute struct {
	Location uint32
	Format   gputypes.VertexFormat
	Offset   uint64
}

// VertexBufferLayout describes one vertex buffer binding.
type VertexBufferLayout struct {
	ArrayStride uint64
	StepMode    gputypes.VertexStepMode
	Attributes  []VertexAttribute
}

// BlendComponent describes a blend equation for color or alpha.
type BlendComponent struct {
	SrcFactor gputypes.BlendFactor
	DstFactor gputypes.BlendFactor
	Operation gputypes.BlendOperation
}

// BlendState describes the color blending configuration.
type BlendState struct {
	Color BlendComponent
	Alpha BlendComponent
}

// RasterState is the fixed-function state of a render pipeline.
type RasterState struct {
	Topology  gputypes.PrimitiveTopology
	FrontFace gputypes.FrontFace
	CullMode  gputypes.CullMode

	DepthWriteEnabled bool
	DepthCompare      gputypes.CompareFunction

	// Blend applies to every color attachment. Nil disables blending.
	Blend *BlendState

	// ColorWriteDisabled masks all color writes.
	ColorWriteDisabled bool

	AlphaToCoverage bool
}

// SpecializationConstant overrides a pipeline-creation constant.
// Value holds the raw 32-bit pattern of the constant.
type SpecializationConstant struct {
	ID    uint32
	Value uint32
}

// ProgrammableStage names a shader module entry point.
type ProgrammableStage struct {
	Module     ShaderModuleID
	EntryPoint string
}

// RenderPipelineDesc describes a render pipeline to compile.
type RenderPipelineDesc struct {
	// Label is an optional debug label.
	Label string

	Layout        PipelineLayoutID
	Vertex        ProgrammableStage
	Fragment      *ProgrammableStage
	VertexBuffers []VertexBufferLayout
	Raster        RasterState
	Constants     []SpecializationConstant

	// RenderPass and Subpass select the pass the pipeline is compatible with.
	RenderPass RenderPassID
	Subpass    uint32
}

// LoadOp selects what happens to an attachment at the start of a pass.
type LoadOp uint8

// Attachment load operations.
const (
	LoadOpLoad LoadOp = iota
	LoadOpClear
	LoadOpDontCare
)

// StoreOp selects what happens to an attachment at the end of a pass.
type StoreOp uint8

// Attachment store operations.
const (
	StoreOpStore StoreOp = iota
	StoreOpDontCare
)

// AttachmentDesc describes one render pass attachment.
type AttachmentDesc struct {
	Format  gputypes.TextureFormat
	Samples uint32
	LoadOp  LoadOp
	StoreOp StoreOp

	// Stencil operations, used for depth/stencil attachments only.
	StencilLoadOp  LoadOp
	StencilStoreOp StoreOp
}

// SubpassDesc lists the attachments used by one subpass. Indices refer to
// RenderPassDesc.ColorAttachments.
type SubpassDesc struct {
	ColorAttachments []uint32
	InputAttachments []uint32
	DepthStencil     bool
}

// SubpassDependency orders two subpasses.
type SubpassDependency struct {
	SrcSubpass uint32
	DstSubpass uint32
	ByRegion   bool
}

// RenderPassDesc describes a render pass.
type RenderPassDesc struct {
	// Label is an optional debug label.
	Label string

	ColorAttachments []AttachmentDesc
	DepthStencil     *AttachmentDesc
	Subpasses        []SubpassDesc
	Dependencies     []SubpassDependency
}

// FramebufferDesc binds concrete attachments to a render pass.
type FramebufferDesc struct {
	// Label is an optional debug label.
	Label string

	RenderPass RenderPassID
	Width      uint32
	Height     uint32
	Layers     uint32

	ColorAttachments   []TextureID
	ResolveAttachments []TextureID
	DepthStencil       TextureID
}

// SetBinding pairs a binding set with the set index it is bound to.
type SetBinding struct {
	Set   uint32
	Group BindGroupID
}
