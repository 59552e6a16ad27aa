// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gpucache caches GPU driver objects by content and destroys them
// only once the GPU can no longer reference them.
//
// # Overview
//
// Driver objects such as compiled pipelines, binding sets, render passes
// and framebuffers are costly to create. A [Cache] deduplicates them by a
// content hash, verified by structural equality, and ages them with an
// epoch clock that ticks once per submitted command buffer. An object
// unused for more than the frames-in-flight window is destroyed; by then
// every command buffer that could have referenced it has retired.
//
// # Quick Start
//
//	c, err := gpucache.New(device, gpucache.WithFramesInFlight(3))
//	if err != nil {
//	    return err
//	}
//	defer c.Shutdown()
//
//	p := c.Pipelines()
//	p.BindShader(&vs)
//	p.BindShader(&fs)
//	p.FinishShaderBinding()
//	p.BindPipelineLayout()
//	p.BindRenderPass(pass, 0)
//	p.BindBuffer("ubo", ubo, 0, 64, 0)
//	p.ResolveBindingSets(cmd)
//	p.BindPipeline(cmd)
//
//	// after submitting cmd
//	c.GC()
//
// # Architecture
//
// The tiers live in their own packages and share one clock:
//   - pipeline: shader modules, pipeline layouts, binding-set allocators,
//     binding sets and render pipelines behind a per-frame builder API
//   - fbo: render passes and framebuffers with pass reference counts
//   - stage: recycled staging buffers and images
//   - reclaim: deferred destruction of raw handles
//   - driver: the device capability surface the tiers call into, with a
//     gogpu/wgpu HAL implementation in driver/haldriver
//
// [Cache.GC] collects the tiers in dependency order: binding sets, then
// pipelines, then layouts, then framebuffers, then render passes.
//
// # Logging
//
// gpucache logs through log/slog and is silent by default. Use [SetLogger]
// or [WithLogger] to enable output.
//
// # Concurrency
//
// A Cache is driven from a single rendering goroutine and performs no
// internal locking. Independent caches may be used concurrently.
package gpucache
