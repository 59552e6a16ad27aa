// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import "github.com/gogpu/gputypes"

// ResourceType classifies a reflected shader resource.
type ResourceType uint32

// Resource types. The last three are reflection-only kinds that never
// appear in a binding-set layout.
const (
	ResourceUniformBuffer ResourceType = iota + 1
	ResourceStorageBuffer
	ResourceReadOnlyStorageBuffer
	ResourceSampler
	ResourceSampledTexture
	ResourceCombinedImageSampler
	ResourceStorageTexture
	ResourceInputAttachment
	ResourceStageInput
	ResourceStageOutput
	ResourcePushConstant
)

var resourceTypeNames = map[ResourceType]string{
	ResourceUniformBuffer:         "uniform-buffer",
	ResourceStorageBuffer:         "storage-buffer",
	ResourceReadOnlyStorageBuffer: "read-only-storage-buffer",
	ResourceSampler:               "sampler",
	ResourceSampledTexture:        "sampled-texture",
	ResourceCombinedImageSampler:  "combined-image-sampler",
	ResourceStorageTexture:        "storage-texture",
	ResourceInputAttachment:       "input-attachment",
	ResourceStageInput:            "stage-input",
	ResourceStageOutput:           "stage-output",
	ResourcePushConstant:          "push-constant",
}

func (t ResourceType) String() string {
	if name, ok := resourceTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// IsDescriptor reports whether the resource lives in a binding set.
func (t ResourceType) IsDescriptor() bool {
	return t >= ResourceUniformBuffer && t <= ResourceInputAttachment
}

// IsBuffer reports whether the resource is bound as a buffer range.
func (t ResourceType) IsBuffer() bool {
	return t == ResourceUniformBuffer || t == ResourceStorageBuffer || t == ResourceReadOnlyStorageBuffer
}

// IsImage reports whether the resource is bound as a texture and/or sampler.
func (t ResourceType) IsImage() bool {
	return t >= ResourceSampler && t <= ResourceInputAttachment
}

// ShaderResource is one entry of the metadata a reflection collaborator
// produces for a compiled module. The cache hierarchy never parses shader
// bytecode itself.
type ShaderResource struct {
	// Name is the resource name used by the Bind* calls.
	Name string

	Type    ResourceType
	Set     uint32
	Binding uint32
	Stages  ShaderStage

	// Size is the byte size of a buffer block, push-constant block or
	// vertex input. Zero means unknown.
	Size uint32

	// ArraySize is the element count of an arrayed binding. Zero means 1.
	ArraySize uint32

	// Location and Format describe a vertex stage input.
	Location uint32
	Format   gputypes.VertexFormat
}

// ShaderModuleDesc describes a shader module. It is the content the shader
// cache hashes for deduplication.
type ShaderModuleDesc struct {
	// Label is an optional debug label; it does not take part in hashing.
	Label string

	Stage      ShaderStage
	EntryPoint string

	// WGSL source or precompiled SPIR-V words. A backend uses SPIRV when it
	// is non-empty and compiles WGSL otherwise.
	WGSL  string
	SPIRV []uint32

	// Resources is the reflection metadata for the module.
	Resources []ShaderResource
}
