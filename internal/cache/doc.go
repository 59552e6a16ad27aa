// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package cache provides the content-addressed map every cache tier is
// built on.
//
// Keys carry a 64-bit content hash and structural equality. A hash hit is
// always confirmed with Equal, so two distinct configurations that collide
// on the hash get separate entries:
//
//	c := cache.New[layoutKey, *layout]()
//	if e, ok := c.Get(key, clock.Now()); ok {
//		return e.Value
//	}
//	c.Insert(key, build(key), clock.Now())
//
// # Aging
//
// Each entry remembers the epoch it was last returned by Get. Nothing is
// evicted implicitly; the owning tier sweeps with Evict during garbage
// collection, typically with a predicate built on epoch.Clock.ShouldEvict.
//
// # Thread Safety
//
// Cache is not safe for concurrent use. All tiers run on the rendering
// thread.
package cache
