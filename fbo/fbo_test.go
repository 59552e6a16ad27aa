// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package fbo

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpucache/driver"
	"github.com/gogpu/gpucache/driver/drivertest"
	"github.com/gogpu/gpucache/internal/epoch"
	"github.com/gogpu/gpucache/reclaim"
)

func newTestCache(window uint32) (*Cache, *drivertest.Device, *epoch.Clock) {
	dev := drivertest.New()
	clock := epoch.New(window)
	return New(Config{Device: dev, Clock: clock}), dev, clock
}

func colorPass() RenderPassKey {
	k := RenderPassKey{DepthFormat: gputypes.TextureFormatDepth24PlusStencil8, Clear: TargetColor0 | TargetDepth}
	k.ColorFormats[0] = gputypes.TextureFormatBGRA8Unorm
	return k
}

func passDesc(t *testing.T, dev *drivertest.Device, id driver.RenderPassID) driver.RenderPassDesc {
	t.Helper()
	d, ok := dev.Desc(drivertest.RenderPass, uint64(id))
	if !ok {
		t.Fatalf("render pass %d not live", id)
	}
	return d.(driver.RenderPassDesc)
}

func TestGetRenderPassDedup(t *testing.T) {
	c, dev, _ := newTestCache(3)

	a, err := c.GetRenderPass(colorPass())
	if err != nil {
		t.Fatalf("GetRenderPass() error = %v", err)
	}
	b, err := c.GetRenderPass(colorPass())
	if err != nil {
		t.Fatalf("GetRenderPass() error = %v", err)
	}
	if a != b {
		t.Errorf("equal keys returned passes %d and %d", a, b)
	}

	other := colorPass()
	other.Samples = 4
	if id, _ := c.GetRenderPass(other); id == a {
		t.Errorf("different sample count reused pass %d", a)
	}
	// Samples 0 and 1 describe the same pass.
	one := colorPass()
	one.Samples = 1
	if id, _ := c.GetRenderPass(one); id != a {
		t.Errorf("Samples=1 returned pass %d, want %d", id, a)
	}
	if got := dev.Created(drivertest.RenderPass); got != 2 {
		t.Errorf("Created(RenderPass) = %d, want 2", got)
	}
	if s := c.Stats(); s.RenderPassHits != 2 || s.RenderPassMisses != 2 {
		t.Errorf("Stats = %+v, want 2 hits 2 misses", s)
	}
}

func TestAttachmentOps(t *testing.T) {
	tests := []struct {
		name         string
		clear        TargetBufferFlags
		discardStart TargetBufferFlags
		discardEnd   TargetBufferFlags
		load         driver.LoadOp
		store        driver.StoreOp
	}{
		{"load store", 0, 0, 0, driver.LoadOpLoad, driver.StoreOpStore},
		{"clear", TargetColor0, 0, 0, driver.LoadOpClear, driver.StoreOpStore},
		{"clear wins over discard", TargetColor0, TargetColor0, 0, driver.LoadOpClear, driver.StoreOpStore},
		{"discard start", 0, TargetColor0, 0, driver.LoadOpDontCare, driver.StoreOpStore},
		{"discard end", 0, 0, TargetColor0, driver.LoadOpLoad, driver.StoreOpDontCare},
		{"other target", TargetColor1, TargetColor1, TargetColor1, driver.LoadOpLoad, driver.StoreOpStore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, dev, _ := newTestCache(3)
			var k RenderPassKey
			k.ColorFormats[0] = gputypes.TextureFormatRGBA8Unorm
			k.Clear, k.DiscardStart, k.DiscardEnd = tt.clear, tt.discardStart, tt.discardEnd
			id, err := c.GetRenderPass(k)
			if err != nil {
				t.Fatalf("GetRenderPass() error = %v", err)
			}
			a := passDesc(t, dev, id).ColorAttachments[0]
			if a.LoadOp != tt.load || a.StoreOp != tt.store {
				t.Errorf("ops = %v/%v, want %v/%v", a.LoadOp, a.StoreOp, tt.load, tt.store)
			}
		})
	}
}

func TestDepthStencilOps(t *testing.T) {
	c, dev, _ := newTestCache(3)
	k := RenderPassKey{
		DepthFormat:  gputypes.TextureFormatDepth24PlusStencil8,
		Clear:        TargetDepth,
		DiscardStart: TargetStencil,
		DiscardEnd:   TargetDepthStencil,
	}
	id, err := c.GetRenderPass(k)
	if err != nil {
		t.Fatalf("GetRenderPass() error = %v", err)
	}
	d := passDesc(t, dev, id)
	ds := d.DepthStencil
	if ds == nil {
		t.Fatal("DepthStencil = nil")
	}
	if ds.LoadOp != driver.LoadOpClear || ds.StencilLoadOp != driver.LoadOpDontCare ||
		ds.StoreOp != driver.StoreOpDontCare || ds.StencilStoreOp != driver.StoreOpDontCare {
		t.Errorf("depth/stencil = %+v", *ds)
	}
	if len(d.Subpasses) != 1 || !d.Subpasses[0].DepthStencil || len(d.Subpasses[0].ColorAttachments) != 0 {
		t.Errorf("Subpasses = %+v, want one depth-only subpass", d.Subpasses)
	}
}

func TestInputAttachmentsSplitSubpasses(t *testing.T) {
	c, dev, _ := newTestCache(3)
	var k RenderPassKey
	k.ColorFormats[0] = gputypes.TextureFormatBGRA8Unorm
	k.ColorFormats[1] = gputypes.TextureFormatRGBA8Unorm
	k.InputAttachments = 1 << 1

	id, err := c.GetRenderPass(k)
	if err != nil {
		t.Fatalf("GetRenderPass() error = %v", err)
	}
	d := passDesc(t, dev, id)
	if len(d.Subpasses) != 2 {
		t.Fatalf("Subpasses = %d, want 2", len(d.Subpasses))
	}
	if got := d.Subpasses[0].ColorAttachments; len(got) != 1 || got[0] != 1 {
		t.Errorf("subpass 0 colors = %v, want [1]", got)
	}
	if got := d.Subpasses[1].InputAttachments; len(got) != 1 || got[0] != 1 {
		t.Errorf("subpass 1 inputs = %v, want [1]", got)
	}
	if got := d.Subpasses[1].ColorAttachments; len(got) != 1 || got[0] != 0 {
		t.Errorf("subpass 1 colors = %v, want [0]", got)
	}
	want := driver.SubpassDependency{SrcSubpass: 0, DstSubpass: 1, ByRegion: true}
	if len(d.Dependencies) != 1 || d.Dependencies[0] != want {
		t.Errorf("Dependencies = %+v, want [%+v]", d.Dependencies, want)
	}
}

func TestRenderPassErrors(t *testing.T) {
	c, dev, _ := newTestCache(3)
	if _, err := c.GetRenderPass(RenderPassKey{}); !errors.Is(err, driver.ErrConfigurationConflict) {
		t.Errorf("empty pass error = %v, want ErrConfigurationConflict", err)
	}
	k := colorPass()
	k.InputAttachments = 1 << 3
	if _, err := c.GetRenderPass(k); !errors.Is(err, driver.ErrConfigurationConflict) {
		t.Errorf("input without color error = %v, want ErrConfigurationConflict", err)
	}
	dev.FailNext(drivertest.RenderPass, errors.New("device lost"))
	if _, err := c.GetRenderPass(colorPass()); !errors.Is(err, driver.ErrCreationFailed) {
		t.Errorf("failed creation error = %v, want ErrCreationFailed", err)
	}
	if _, err := c.GetFramebuffer(FramebufferKey{RenderPass: 99}); !errors.Is(err, driver.ErrUnknownHandle) {
		t.Errorf("unknown pass error = %v, want ErrUnknownHandle", err)
	}
}

func TestFramebufferRefsPass(t *testing.T) {
	c, dev, _ := newTestCache(3)
	pass, _ := c.GetRenderPass(colorPass())

	key := FramebufferKey{RenderPass: pass, Width: 640, Height: 480, DepthStencil: 9}
	key.Color[0] = 5
	a, err := c.GetFramebuffer(key)
	if err != nil {
		t.Fatalf("GetFramebuffer() error = %v", err)
	}
	if b, _ := c.GetFramebuffer(key); b != a {
		t.Errorf("equal keys returned framebuffers %d and %d", a, b)
	}
	key.Color[0] = 6
	if _, err := c.GetFramebuffer(key); err != nil {
		t.Fatalf("GetFramebuffer() error = %v", err)
	}
	if got := c.PassRefs(pass); got != 2 {
		t.Errorf("PassRefs = %d, want 2", got)
	}

	d, _ := dev.Desc(drivertest.Framebuffer, uint64(a))
	desc := d.(driver.FramebufferDesc)
	if desc.Layers != 1 || len(desc.ColorAttachments) != 1 || desc.ColorAttachments[0] != 5 || desc.DepthStencil != 9 {
		t.Errorf("FramebufferDesc = %+v", desc)
	}
}

// A pass stays alive while any framebuffer built against it is cached,
// even past its own disuse window.
func TestPassOutlivesFramebuffers(t *testing.T) {
	const window = 2
	c, dev, clock := newTestCache(window)
	pass, _ := c.GetRenderPass(colorPass())
	key := FramebufferKey{RenderPass: pass, Width: 64, Height: 64}
	key.Color[0] = 5

	// Keep the framebuffer hot for several windows without touching the pass.
	for i := 0; i < 3*window; i++ {
		if _, err := c.GetFramebuffer(key); err != nil {
			t.Fatalf("GetFramebuffer() error = %v", err)
		}
		clock.Tick()
		c.GC()
		if !dev.IsLive(drivertest.RenderPass, uint64(pass)) {
			t.Fatalf("render pass evicted at epoch %d with a live framebuffer", clock.Now())
		}
	}

	last := clock.Now() - 1
	for clock.Now() <= last+window {
		clock.Tick()
		c.GC()
	}
	if dev.Live(drivertest.Framebuffer) != 0 {
		t.Errorf("framebuffer still live at epoch %d", clock.Now())
	}
	if dev.Live(drivertest.RenderPass) != 0 {
		t.Errorf("render pass still live at epoch %d", clock.Now())
	}
	if len(dev.Anomalies) != 0 {
		t.Errorf("Anomalies = %v", dev.Anomalies)
	}
}

func TestEvictionTiming(t *testing.T) {
	const window = 3
	c, dev, clock := newTestCache(window)
	pass, _ := c.GetRenderPass(colorPass())
	used := clock.Now()

	for i := 0; i < window; i++ {
		clock.Tick()
		c.GC()
		if _, ok := c.passes.Peek(newPassKey(colorPass())); !ok {
			t.Fatalf("pass evicted at epoch %d, last used %d", clock.Now(), used)
		}
	}
	clock.Tick()
	c.GC()
	if dev.IsLive(drivertest.RenderPass, uint64(pass)) {
		t.Errorf("pass live at epoch %d, last used %d", clock.Now(), used)
	}
	if got := c.PassRefs(pass); got != 0 {
		t.Errorf("PassRefs of evicted pass = %d", got)
	}
}

func TestPurgeAttachment(t *testing.T) {
	const window = 2
	c, dev, _ := newTestCache(window)
	fridge := reclaim.NewFridge(reclaim.Config{Window: window})
	pass, _ := c.GetRenderPass(colorPass())

	var ids []driver.FramebufferID
	for _, tex := range []driver.TextureID{5, 6} {
		key := FramebufferKey{RenderPass: pass, Width: 64, Height: 64, DepthStencil: 9}
		key.Color[0] = tex
		id, err := c.GetFramebuffer(key)
		if err != nil {
			t.Fatalf("GetFramebuffer() error = %v", err)
		}
		ids = append(ids, id)
	}

	if n := c.PurgeAttachment(5, fridge); n != 1 {
		t.Fatalf("PurgeAttachment(5) = %d, want 1", n)
	}
	if c.Stats().Framebuffers != 1 {
		t.Errorf("Framebuffers = %d, want 1", c.Stats().Framebuffers)
	}
	for i := 0; i < window; i++ {
		fridge.GC()
		if !dev.IsLive(drivertest.Framebuffer, uint64(ids[0])) {
			t.Fatalf("purged framebuffer destroyed after %d ticks", i+1)
		}
		if c.PassRefs(pass) != 2 {
			t.Fatalf("PassRefs = %d before destruction, want 2", c.PassRefs(pass))
		}
	}
	fridge.GC()
	if dev.IsLive(drivertest.Framebuffer, uint64(ids[0])) {
		t.Errorf("purged framebuffer live after %d ticks", window+1)
	}
	if c.PassRefs(pass) != 1 {
		t.Errorf("PassRefs = %d, want 1", c.PassRefs(pass))
	}

	// The shared depth attachment purges the rest immediately without a fridge.
	if n := c.PurgeAttachment(9, nil); n != 1 {
		t.Errorf("PurgeAttachment(9) = %d, want 1", n)
	}
	if dev.Live(drivertest.Framebuffer) != 0 || c.PassRefs(pass) != 0 {
		t.Errorf("after purge: live framebuffers %d, refs %d", dev.Live(drivertest.Framebuffer), c.PassRefs(pass))
	}
	if c.PurgeAttachment(driver.InvalidID, nil) != 0 {
		t.Error("PurgeAttachment(InvalidID) purged framebuffers")
	}
}

func TestReset(t *testing.T) {
	c, dev, _ := newTestCache(3)
	pass, _ := c.GetRenderPass(colorPass())
	key := FramebufferKey{RenderPass: pass, Width: 8, Height: 8}
	key.Color[0] = 1
	if _, err := c.GetFramebuffer(key); err != nil {
		t.Fatalf("GetFramebuffer() error = %v", err)
	}
	c.Reset()
	if dev.Live(drivertest.Framebuffer) != 0 || dev.Live(drivertest.RenderPass) != 0 {
		t.Errorf("live objects after Reset: %s", dev.Summary())
	}
	if _, err := c.GetFramebuffer(key); !errors.Is(err, driver.ErrUnknownHandle) {
		t.Errorf("GetFramebuffer after Reset error = %v, want ErrUnknownHandle", err)
	}
}
