// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

// Device abstracts over a native graphics device.
//
// The cache tiers are the only callers of the Create*/Destroy* pairs; they
// decide when an object may be destroyed. Implementations need not be safe
// for concurrent use: the cache hierarchy drives a Device from a single
// rendering thread.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - Destroying a resource while the GPU may still read it is undefined
//     behavior; the cache tiers delay destruction by the disuse window
//   - IDs become invalid after destruction and must not be reused
type Device interface {
	// === Shaders ===

	// CreateShaderModule compiles a shader module.
	CreateShaderModule(desc *ShaderModuleDesc) (ShaderModuleID, error)

	// DestroyShaderModule releases a shader module.
	DestroyShaderModule(id ShaderModuleID)

	// === Layouts ===

	// CreateBindGroupLayout creates a binding-set layout.
	CreateBindGroupLayout(desc *BindGroupLayoutDesc) (BindGroupLayoutID, error)

	// DestroyBindGroupLayout releases a binding-set layout.
	DestroyBindGroupLayout(id BindGroupLayoutID)

	// CreatePipelineLayout creates a pipeline layout from per-set layouts.
	CreatePipelineLayout(desc *PipelineLayoutDesc) (PipelineLayoutID, error)

	// DestroyPipelineLayout releases a pipeline layout.
	DestroyPipelineLayout(id PipelineLayoutID)

	// === Binding sets ===

	// CreateDescriptorPool creates a pool binding sets are allocated from.
	CreateDescriptorPool(desc *DescriptorPoolDesc) (DescriptorPoolID, error)

	// ResetDescriptorPool returns every set allocated from the pool to it.
	// The sets become invalid.
	ResetDescriptorPool(id DescriptorPoolID)

	// DestroyDescriptorPool releases a pool and every set allocated from it.
	DestroyDescriptorPool(id DescriptorPoolID)

	// AllocateBindGroup allocates a set with the given layout from a pool.
	// It returns ErrPoolExhausted when the pool has no capacity left.
	AllocateBindGroup(pool DescriptorPoolID, layout BindGroupLayoutID) (BindGroupID, error)

	// UpdateBindGroup writes resources into a set. Slots not named by
	// writes keep their previous contents; a write that carries no resource
	// (see [BindGroupWrite.Clears]) unbinds its slot.
	UpdateBindGroup(id BindGroupID, writes []BindGroupWrite) error

	// === Pipelines ===

	// CreateRenderPipeline compiles a render pipeline.
	CreateRenderPipeline(desc *RenderPipelineDesc) (RenderPipelineID, error)

	// DestroyRenderPipeline releases a render pipeline.
	DestroyRenderPipeline(id RenderPipelineID)

	// === Passes ===

	// CreateRenderPass creates a render pass.
	CreateRenderPass(desc *RenderPassDesc) (RenderPassID, error)

	// DestroyRenderPass releases a render pass.
	DestroyRenderPass(id RenderPassID)

	// CreateFramebuffer binds attachments to a render pass.
	CreateFramebuffer(desc *FramebufferDesc) (FramebufferID, error)

	// DestroyFramebuffer releases a framebuffer.
	DestroyFramebuffer(id FramebufferID)

	// === Memory ===

	// CreateBuffer creates a GPU buffer.
	CreateBuffer(desc *BufferDesc) (BufferID, error)

	// DestroyBuffer releases a GPU buffer.
	DestroyBuffer(id BufferID)

	// CreateTexture creates a 2D texture.
	CreateTexture(desc *TextureDesc) (TextureID, error)

	// DestroyTexture releases a texture.
	DestroyTexture(id TextureID)
}

// CommandBuffer receives the binding commands the pipeline tier records.
type CommandBuffer interface {
	// ID identifies the command buffer. The cache hub runs garbage
	// collection whenever it observes a new ID.
	ID() uint64

	// BindPipeline binds a render pipeline.
	BindPipeline(id RenderPipelineID)

	// BindGroups binds sets in ascending set order. dynamicOffsets lists
	// the dynamic buffer offsets of all sets in the same order.
	BindGroups(layout PipelineLayoutID, sets []SetBinding, dynamicOffsets []uint32)
}
