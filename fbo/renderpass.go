// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package fbo

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpucache/driver"
	"github.com/gogpu/gpucache/internal/hashing"
	"github.com/gogpu/gpucache/metrics"
)

// TargetBufferFlags selects render targets. Bit i is color attachment i.
type TargetBufferFlags uint32

// Target buffers.
const (
	TargetColor0 TargetBufferFlags = 1 << iota
	TargetColor1
	TargetColor2
	TargetColor3
	TargetColor4
	TargetColor5
	TargetColor6
	TargetColor7
	TargetDepth
	TargetStencil

	TargetColorAll = TargetColor0 | TargetColor1 | TargetColor2 | TargetColor3 |
		TargetColor4 | TargetColor5 | TargetColor6 | TargetColor7
	TargetDepthStencil = TargetDepth | TargetStencil
)

// TargetColor returns the flag of color attachment i.
func TargetColor(i int) TargetBufferFlags { return TargetColor0 << i }

// RenderPassKey describes a render pass. Color attachments with an
// undefined format are absent.
type RenderPassKey struct {
	ColorFormats [MaxColorAttachments]gputypes.TextureFormat
	DepthFormat  gputypes.TextureFormat

	// Clear selects attachments cleared at the start of the pass.
	Clear TargetBufferFlags
	// DiscardStart selects attachments whose prior contents are not needed.
	DiscardStart TargetBufferFlags
	// DiscardEnd selects attachments whose contents are not needed after
	// the pass.
	DiscardEnd TargetBufferFlags

	// InputAttachments selects color attachments (bit i = color i) that a
	// second subpass reads as input attachments.
	InputAttachments uint8

	// Samples is the sample count. Zero means 1.
	Samples uint32
}

type passKey struct {
	hash uint64
	RenderPassKey
}

func (k passKey) Hash() uint64 { return k.hash }

func (k passKey) Equal(o passKey) bool { return k.RenderPassKey == o.RenderPassKey }

func newPassKey(k RenderPassKey) passKey {
	if k.Samples == 0 {
		k.Samples = 1
	}
	var w hashing.Writer
	for _, f := range k.ColorFormats {
		w.Uint32(uint32(f))
	}
	w.Uint32(uint32(k.DepthFormat))
	w.Uint32(uint32(k.Clear))
	w.Uint32(uint32(k.DiscardStart))
	w.Uint32(uint32(k.DiscardEnd))
	w.Uint32(uint32(k.InputAttachments))
	w.Uint32(k.Samples)
	return passKey{hash: w.Sum64(), RenderPassKey: k}
}

type renderPass struct {
	id   driver.RenderPassID
	refs int
}

// GetRenderPass returns the render pass described by key, creating it on
// a miss.
func (c *Cache) GetRenderPass(key RenderPassKey) (driver.RenderPassID, error) {
	k := newPassKey(key)
	now := c.clock.Now()
	if e, ok := c.passes.Get(k, now); ok {
		c.rec.Hit(metrics.TierRenderPass)
		return e.Value.id, nil
	}

	desc, err := renderPassDesc(&k.RenderPassKey)
	if err != nil {
		return 0, err
	}
	id, err := c.dev.CreateRenderPass(desc)
	if err != nil {
		c.log.Error("fbo: render pass creation failed", "err", err)
		return 0, fmt.Errorf("fbo: create render pass: %w", err)
	}
	p := &renderPass{id: id}
	c.passes.Insert(k, p, now)
	c.byID[id] = p
	c.rec.Miss(metrics.TierRenderPass)
	c.rec.Size(metrics.TierRenderPass, c.passes.Len())
	c.log.Debug("fbo: new render pass", "id", id, "subpasses", len(desc.Subpasses))
	return id, nil
}

func loadOp(flag, clearMask, discardStart TargetBufferFlags) driver.LoadOp {
	switch {
	case clearMask&flag != 0:
		return driver.LoadOpClear
	case discardStart&flag != 0:
		return driver.LoadOpDontCare
	default:
		return driver.LoadOpLoad
	}
}

func storeOp(flag, discardEnd TargetBufferFlags) driver.StoreOp {
	if discardEnd&flag != 0 {
		return driver.StoreOpDontCare
	}
	return driver.StoreOpStore
}

// renderPassDesc derives attachment operations from the clear and discard
// masks. A non-zero input mask splits the pass into two subpasses: the
// first writes the input attachments, the second reads them and writes the
// remaining color attachments.
func renderPassDesc(k *RenderPassKey) (*driver.RenderPassDesc, error) {
	desc := &driver.RenderPassDesc{Label: "gpucache render pass"}

	var colors, inputs, outputs []uint32
	for i, f := range k.ColorFormats {
		if f == gputypes.TextureFormatUndefined {
			if k.InputAttachments&(1<<i) != 0 {
				return nil, fmt.Errorf("fbo: input attachment %d has no color attachment: %w", i, driver.ErrConfigurationConflict)
			}
			continue
		}
		flag := TargetColor(i)
		idx := uint32(len(desc.ColorAttachments)) //nolint:gosec // at most MaxColorAttachments
		desc.ColorAttachments = append(desc.ColorAttachments, driver.AttachmentDesc{
			Format:  f,
			Samples: k.Samples,
			LoadOp:  loadOp(flag, k.Clear, k.DiscardStart),
			StoreOp: storeOp(flag, k.DiscardEnd),
		})
		colors = append(colors, idx)
		if k.InputAttachments&(1<<i) != 0 {
			inputs = append(inputs, idx)
		} else {
			outputs = append(outputs, idx)
		}
	}

	hasDepth := k.DepthFormat != gputypes.TextureFormatUndefined
	if hasDepth {
		desc.DepthStencil = &driver.AttachmentDesc{
			Format:         k.DepthFormat,
			Samples:        k.Samples,
			LoadOp:         loadOp(TargetDepth, k.Clear, k.DiscardStart),
			StoreOp:        storeOp(TargetDepth, k.DiscardEnd),
			StencilLoadOp:  loadOp(TargetStencil, k.Clear, k.DiscardStart),
			StencilStoreOp: storeOp(TargetStencil, k.DiscardEnd),
		}
	}
	if len(colors) == 0 && !hasDepth {
		return nil, fmt.Errorf("fbo: render pass without attachments: %w", driver.ErrConfigurationConflict)
	}

	if len(inputs) == 0 {
		desc.Subpasses = []driver.SubpassDesc{{ColorAttachments: colors, DepthStencil: hasDepth}}
		return desc, nil
	}
	desc.Subpasses = []driver.SubpassDesc{
		{ColorAttachments: inputs, DepthStencil: hasDepth},
		{ColorAttachments: outputs, InputAttachments: inputs, DepthStencil: hasDepth},
	}
	desc.Dependencies = []driver.SubpassDependency{{SrcSubpass: 0, DstSubpass: 1, ByRegion: true}}
	return desc, nil
}
