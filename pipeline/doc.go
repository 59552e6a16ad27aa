// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package pipeline caches shader modules, pipeline layouts, binding sets
// and render pipelines behind a builder-style per-frame API.
//
// # Frame protocol
//
// A renderer drives a [Cache] with a sequence of bind calls that fill
// accumulating requirements, then resolves them:
//
//	BindShader(vs); BindShader(fs)         Idle -> ShaderBinding
//	FinishShaderBinding()
//	SetShaderResourceUpdateMode(...)       optional
//	BindPipelineLayout()                   -> LayoutBound
//	BindRasterState / BindRenderPass /
//	SetInputRatePerInstance /
//	BindSpecializationConstant             -> StateBound
//	BindBuffer / BindImage /
//	BindInputAttachment
//	ResolveBindingSets(cmd)
//	BindPipeline(cmd)                      -> Resolved
//
// UnbindPipeline and UnbindDescriptorSet empty one half of the requirements.
// GC is called once per submitted command buffer; it clears every
// accumulator and evicts disused binding sets, then pipelines, then layouts
// together with their binding-set allocators.
//
// # Deduplication
//
// Every tier keys objects by a CityHash64 content hash and confirms each
// hash hit with a structural comparison, so a hash collision produces a
// second object rather than a wrong reuse.
//
// # Lifetimes
//
// Shader modules live until Reset. Layouts, binding sets and pipelines are
// destroyed once unused for longer than the disuse window of the shared
// epoch clock.
package pipeline
