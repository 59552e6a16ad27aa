// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucache

import (
	"log/slog"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpucache/metrics"
	"github.com/gogpu/gpucache/pipeline"
)

// DefaultFramesInFlight is the disuse window used when WithFramesInFlight
// is not given.
const DefaultFramesInFlight = 3

// Option configures a Cache during creation.
//
// Example:
//
//	c, err := gpucache.New(dev,
//	    gpucache.WithFramesInFlight(2),
//	    gpucache.WithLogger(slog.Default()),
//	)
type Option func(*options)

// options holds optional configuration for Cache creation.
type options struct {
	framesInFlight uint32
	maxSetsPerPool uint32
	logger         *slog.Logger
	metrics        metrics.Recorder
	reflector      pipeline.Reflector
	bufferUsage    gputypes.BufferUsage
	imageUsage     gputypes.TextureUsage
}

// defaultOptions returns the default cache options.
func defaultOptions() options {
	return options{
		framesInFlight: DefaultFramesInFlight,
		maxSetsPerPool: pipeline.DefaultMaxSetsPerPool,
		metrics:        metrics.Noop{},
		reflector:      pipeline.DescriptorReflector{},
	}
}

// WithFramesInFlight sets the number of command buffers that may execute
// concurrently. It is the disuse window of every tier: an object unused
// for more than n GC passes is destroyed. Values below 1 are raised to 1.
func WithFramesInFlight(n uint32) Option {
	return func(o *options) {
		if n < 1 {
			n = 1
		}
		o.framesInFlight = n
	}
}

// WithMaxSetsPerPool sets how many binding sets each backing pool holds.
// Zero keeps the default.
func WithMaxSetsPerPool(n uint32) Option {
	return func(o *options) {
		if n > 0 {
			o.maxSetsPerPool = n
		}
	}
}

// WithLogger sets the logger of the cache and all its tiers. Without it
// the cache uses [Logger] at creation time.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics sets the recorder that receives per-tier hit, miss,
// eviction and size events.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	c, err := gpucache.New(dev, gpucache.WithMetrics(prom.New(reg, "app", "gpucache", nil)))
func WithMetrics(r metrics.Recorder) Option {
	return func(o *options) {
		o.metrics = metrics.OrNoop(r)
	}
}

// WithReflector sets the shader reflection collaborator.
func WithReflector(r pipeline.Reflector) Option {
	return func(o *options) {
		if r != nil {
			o.reflector = r
		}
	}
}

// WithStagingUsage sets the usage flags of staging buffers and images.
// Zero values keep the defaults.
func WithStagingUsage(buffers gputypes.BufferUsage, images gputypes.TextureUsage) Option {
	return func(o *options) {
		o.bufferUsage = buffers
		o.imageUsage = images
	}
}
