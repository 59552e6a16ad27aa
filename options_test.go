// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucache

import (
	"log/slog"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpucache/metrics"
	"github.com/gogpu/gpucache/pipeline"
)

func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()
	if o.framesInFlight != DefaultFramesInFlight {
		t.Errorf("framesInFlight = %d, want %d", o.framesInFlight, DefaultFramesInFlight)
	}
	if o.maxSetsPerPool != pipeline.DefaultMaxSetsPerPool {
		t.Errorf("maxSetsPerPool = %d, want %d", o.maxSetsPerPool, pipeline.DefaultMaxSetsPerPool)
	}
	if o.logger != nil {
		t.Error("logger should default to nil (resolved at New)")
	}
}

func TestOptions(t *testing.T) {
	logger := slog.Default()
	tests := []struct {
		name  string
		opt   Option
		check func(o options) bool
	}{
		{"frames in flight", WithFramesInFlight(2), func(o options) bool { return o.framesInFlight == 2 }},
		{"frames in flight floor", WithFramesInFlight(0), func(o options) bool { return o.framesInFlight == 1 }},
		{"max sets", WithMaxSetsPerPool(16), func(o options) bool { return o.maxSetsPerPool == 16 }},
		{"max sets zero keeps default", WithMaxSetsPerPool(0), func(o options) bool {
			return o.maxSetsPerPool == pipeline.DefaultMaxSetsPerPool
		}},
		{"logger", WithLogger(logger), func(o options) bool { return o.logger == logger }},
		{"nil metrics", WithMetrics(nil), func(o options) bool { return o.metrics == metrics.Noop{} }},
		{"nil reflector keeps default", WithReflector(nil), func(o options) bool {
			_, ok := o.reflector.(pipeline.DescriptorReflector)
			return ok
		}},
		{"staging usage", WithStagingUsage(gputypes.BufferUsageCopySrc, gputypes.TextureUsageCopyDst), func(o options) bool {
			return o.bufferUsage == gputypes.BufferUsageCopySrc && o.imageUsage == gputypes.TextureUsageCopyDst
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := defaultOptions()
			tt.opt(&o)
			if !tt.check(o) {
				t.Errorf("option not applied: %+v", o)
			}
		})
	}
}
