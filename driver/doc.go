// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package driver defines the capability surface the gpucache tiers consume.
//
// The [Device] interface abstracts over a native graphics device. It is
// shaped after explicit APIs (descriptor pools, render passes, framebuffers)
// so that the cache hierarchy can manage their lifetimes, while backends
// without such objects emulate them:
//
//	               +------------------+
//	               |  gpucache tiers  |
//	               +--------+---------+
//	                        |
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v---------+
//	|    haldriver    |          |    drivertest    |
//	|  (hal.Device)   |          | (recording fake) |
//	+-----------------+          +------------------+
//
// # Resource Management
//
// Driver objects are referred to by opaque IDs ([ShaderModuleID],
// [BindGroupID], ...). A Device maps IDs to native objects and is the only
// place where native objects are created or destroyed. The zero value
// [InvalidID] never names a live object.
//
// # Errors
//
// Failures are classified with three sentinels: [ErrCreationFailed],
// [ErrConfigurationConflict] and [ErrPoolExhausted]. Use errors.Is to test
// for them; backends wrap their native errors with one of the sentinels.
package driver
