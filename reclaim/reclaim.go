// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package reclaim delays destruction of native GPU resources until the GPU
// can no longer reference them.
//
// A [Refrigerator] holds a tag per resource. A tag carries a reference
// count, a countdown of GC ticks and a deleter. Freeing a resource anywhere
// else in gpucache is logical only; the deleter registered here is the one
// place the native object is destroyed.
//
// Lifecycle of a tag:
//
//	Register            refs=1, countdown=W
//	Acquire             refs++, countdown=W
//	Release             refs--; countdown=W once refs reaches 0
//	GC                  refs==0 && countdown==0  -> deleter, tag dropped
//	                    otherwise countdown--; reaching 0 with refs>0
//	                    performs one implicit Release and restarts the
//	                    countdown
//
// With frames-in-flight W, a tag released at epoch e is destroyed by the
// GC at epoch e+W+1, after every command buffer that could reference it
// has retired.
package reclaim

import (
	"log/slog"

	"github.com/gogpu/gpucache/metrics"
)

// Config holds Refrigerator settings.
type Config struct {
	// Window is the number of GC ticks a tag survives after its last
	// release. Zero means 3.
	Window uint32

	// Logger receives debug output. Nil disables logging.
	Logger *slog.Logger

	// Metrics receives eviction events. Nil disables metrics.
	Metrics metrics.Recorder
}

type tag struct {
	refs      uint32
	countdown uint32
	deleter   func()
}

// Refrigerator is a ref-counted registry of resources pending destruction.
//
// Refrigerator is not safe for concurrent use.
type Refrigerator[K comparable] struct {
	tags    map[K]*tag
	window  uint32
	log     *slog.Logger
	metrics metrics.Recorder
}

// New creates an empty Refrigerator.
func New[K comparable](cfg Config) *Refrigerator[K] {
	if cfg.Window == 0 {
		cfg.Window = 3
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Refrigerator[K]{
		tags:    make(map[K]*tag),
		window:  cfg.Window,
		log:     log,
		metrics: metrics.OrNoop(cfg.Metrics),
	}
}

// Register adds a resource with one reference held by the caller.
// It reports false if key is already registered; the existing tag is left
// untouched and deleter is not retained.
func (r *Refrigerator[K]) Register(key K, deleter func()) bool {
	if _, ok := r.tags[key]; ok {
		return false
	}
	r.tags[key] = &tag{refs: 1, countdown: r.window, deleter: deleter}
	return true
}

// Acquire takes an additional reference and restarts the countdown.
// It reports false if key is not registered.
func (r *Refrigerator[K]) Acquire(key K) bool {
	t, ok := r.tags[key]
	if !ok {
		return false
	}
	t.refs++
	t.countdown = r.window
	return true
}

// Release drops one reference. Dropping the last one restarts the
// countdown, so the resource survives W further GC ticks.
func (r *Refrigerator[K]) Release(key K) bool {
	t, ok := r.tags[key]
	if !ok {
		return false
	}
	if t.refs > 0 {
		t.refs--
		if t.refs == 0 {
			t.countdown = r.window
		}
	}
	return true
}

// GC runs one tick. It returns the number of resources destroyed.
func (r *Refrigerator[K]) GC() int {
	destroyed := 0
	for key, t := range r.tags {
		if t.refs == 0 && t.countdown == 0 {
			delete(r.tags, key)
			if t.deleter != nil {
				t.deleter()
			}
			destroyed++
			continue
		}
		if t.countdown > 0 {
			t.countdown--
			if t.countdown == 0 && t.refs > 0 {
				// Each expired window drops one reference.
				t.refs--
				t.countdown = r.window
			}
		}
	}
	if destroyed > 0 {
		r.log.Debug("reclaim: destroyed resources", "count", destroyed, "pending", len(r.tags))
		r.metrics.Evict(metrics.TierReclaim, destroyed)
	}
	r.metrics.Size(metrics.TierReclaim, len(r.tags))
	return destroyed
}

// Reset invokes every deleter immediately, regardless of references.
func (r *Refrigerator[K]) Reset() {
	n := len(r.tags)
	for key, t := range r.tags {
		delete(r.tags, key)
		if t.deleter != nil {
			t.deleter()
		}
	}
	if n > 0 {
		r.log.Debug("reclaim: reset", "destroyed", n)
		r.metrics.Evict(metrics.TierReclaim, n)
	}
	r.metrics.Size(metrics.TierReclaim, 0)
}

// Len returns the number of pending resources.
func (r *Refrigerator[K]) Len() int { return len(r.tags) }

// Contains reports whether key is pending.
func (r *Refrigerator[K]) Contains(key K) bool {
	_, ok := r.tags[key]
	return ok
}
