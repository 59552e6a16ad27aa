// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package haldriver implements driver.Device on a gogpu/wgpu HAL device.
//
// WebGPU has no descriptor pools, mutable bind groups, render pass objects
// or framebuffers. Device emulates them:
//   - descriptor pools are capacity counters
//   - bind groups record their contents and are rebuilt on every update
//   - render passes and framebuffers are descriptors resolved by
//     [Device.CreateRenderPipeline] and [Device.BeginRenderPass]
//
// WGSL shader sources are compiled to SPIR-V with gogpu/naga.
//
// Devices can be obtained from any gpucontext.DeviceProvider exposing its
// HAL device:
//
//	dev, err := haldriver.NewFromProvider(provider)
//	if err != nil {
//	    return err
//	}
//	c, err := gpucache.New(dev)
package haldriver

import "github.com/gogpu/gpucache/driver"

var (
	_ driver.Device        = (*Device)(nil)
	_ driver.CommandBuffer = (*CommandBuffer)(nil)
)
