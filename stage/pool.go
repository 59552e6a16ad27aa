// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package stage recycles host-visible staging buffers and images.
//
// A slot lives on the free list or the in-use list. AcquireBuffer picks the
// smallest free buffer that is large enough; AcquireImage requires an exact
// format and extent match. Ownership of an acquired slot is shared and
// reference counted: the acquirer holds one reference and may Hold more,
// for example on behalf of a command buffer that copies from it. GC returns
// unreferenced slots to the free list and destroys free slots that stayed
// unused for longer than the disuse window.
package stage

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/gputypes"
	"github.com/google/btree"

	"github.com/gogpu/gpucache/driver"
	"github.com/gogpu/gpucache/internal/epoch"
	"github.com/gogpu/gpucache/metrics"
)

// Config holds Pool settings.
type Config struct {
	// BufferUsage is the usage of created staging buffers.
	// Zero means MapWrite|CopySrc.
	BufferUsage gputypes.BufferUsage

	// ImageUsage is the usage of created staging images.
	// Zero means CopySrc|CopyDst.
	ImageUsage gputypes.TextureUsage

	// Logger receives debug output. Nil disables logging.
	Logger *slog.Logger

	// Metrics receives tier events. Nil disables metrics.
	Metrics metrics.Recorder
}

// Stats reports pool occupancy and lookup counters.
type Stats struct {
	FreeBuffers  int
	InUseBuffers int
	FreeImages   int
	InUseImages  int

	BufferHits   uint64
	BufferMisses uint64
	ImageHits    uint64
	ImageMisses  uint64
}

// btreeDegree is the branching factor of the free-buffer index.
const btreeDegree = 8

// Pool is a free/in-use pool of staging slots.
//
// Pool is not safe for concurrent use.
type Pool struct {
	device driver.Device
	clock  *epoch.Clock
	cfg    Config
	log    *slog.Logger
	rec    metrics.Recorder

	freeBuffers  *btree.BTree
	inUseBuffers []*Buffer
	freeImages   []*Image
	inUseImages  []*Image

	stats Stats
}

// New creates an empty pool that ages slots with clock.
func New(device driver.Device, clock *epoch.Clock, cfg Config) *Pool {
	if cfg.BufferUsage == 0 {
		cfg.BufferUsage = gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc
	}
	if cfg.ImageUsage == 0 {
		cfg.ImageUsage = gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Pool{
		device:      device,
		clock:       clock,
		cfg:         cfg,
		log:         log,
		rec:         metrics.OrNoop(cfg.Metrics),
		freeBuffers: btree.New(btreeDegree),
	}
}

// AcquireBuffer returns a buffer of at least minSize bytes. The smallest
// free buffer that fits is reused; otherwise a buffer of exactly minSize
// bytes is created. The caller owns one reference and must Release it.
func (p *Pool) AcquireBuffer(minSize uint64) (*Buffer, error) {
	var found *Buffer
	p.freeBuffers.AscendGreaterOrEqual(&Buffer{capacity: minSize}, func(it btree.Item) bool {
		found = it.(*Buffer)
		return false
	})
	now := p.clock.Now()
	if found != nil {
		p.freeBuffers.Delete(found)
		found.refs = 1
		found.lastUsed = now
		p.inUseBuffers = append(p.inUseBuffers, found)
		p.stats.BufferHits++
		p.rec.Hit(metrics.TierStageBuffer)
		return found, nil
	}

	id, err := p.device.CreateBuffer(&driver.BufferDesc{
		Label: "gpucache staging buffer",
		Size:  minSize,
		Usage: p.cfg.BufferUsage,
	})
	if err != nil {
		p.log.Error("stage: buffer creation failed", "size", minSize, "err", err)
		return nil, fmt.Errorf("stage: create buffer (%d bytes): %w", minSize, err)
	}
	b := &Buffer{id: id, capacity: minSize, lastUsed: now, refs: 1}
	p.inUseBuffers = append(p.inUseBuffers, b)
	p.stats.BufferMisses++
	p.rec.Miss(metrics.TierStageBuffer)
	p.log.Debug("stage: new buffer", "size", minSize, "id", id)
	return b, nil
}

// AcquireImage returns a staging image with exactly the given format and
// extent. The caller owns one reference and must Release it.
func (p *Pool) AcquireImage(format gputypes.TextureFormat, width, height uint32) (*Image, error) {
	now := p.clock.Now()
	for i, img := range p.freeImages {
		if img.format != format || img.width != width || img.height != height {
			continue
		}
		p.freeImages = append(p.freeImages[:i], p.freeImages[i+1:]...)
		img.refs = 1
		img.lastUsed = now
		p.inUseImages = append(p.inUseImages, img)
		p.stats.ImageHits++
		p.rec.Hit(metrics.TierStageImage)
		return img, nil
	}

	id, err := p.device.CreateTexture(&driver.TextureDesc{
		Label:  "gpucache staging image",
		Width:  width,
		Height: height,
		Format: format,
		Usage:  p.cfg.ImageUsage,
	})
	if err != nil {
		p.log.Error("stage: image creation failed", "format", format, "width", width, "height", height, "err", err)
		return nil, fmt.Errorf("stage: create image %dx%d: %w", width, height, err)
	}
	img := &Image{id: id, format: format, width: width, height: height, lastUsed: now, refs: 1}
	p.inUseImages = append(p.inUseImages, img)
	p.stats.ImageMisses++
	p.rec.Miss(metrics.TierStageImage)
	p.log.Debug("stage: new image", "format", format, "width", width, "height", height, "id", id)
	return img, nil
}

// GC destroys free slots past the disuse window, then moves unreferenced
// in-use slots to the free list stamped with the current epoch.
func (p *Pool) GC() {
	now := p.clock.Now()

	var expired []*Buffer
	p.freeBuffers.Ascend(func(it btree.Item) bool {
		if b := it.(*Buffer); p.clock.ShouldEvict(b.lastUsed) {
			expired = append(expired, b)
		}
		return true
	})
	for _, b := range expired {
		p.freeBuffers.Delete(b)
		p.device.DestroyBuffer(b.id)
	}
	kept := p.inUseBuffers[:0]
	for _, b := range p.inUseBuffers {
		if b.refs > 0 {
			kept = append(kept, b)
			continue
		}
		b.lastUsed = now
		p.freeBuffers.ReplaceOrInsert(b)
	}
	clear(p.inUseBuffers[len(kept):])
	p.inUseBuffers = kept

	freeImages := p.freeImages[:0]
	evictedImages := 0
	for _, img := range p.freeImages {
		if p.clock.ShouldEvict(img.lastUsed) {
			p.device.DestroyTexture(img.id)
			evictedImages++
			continue
		}
		freeImages = append(freeImages, img)
	}
	clear(p.freeImages[len(freeImages):])
	p.freeImages = freeImages
	usedImages := p.inUseImages[:0]
	for _, img := range p.inUseImages {
		if img.refs > 0 {
			usedImages = append(usedImages, img)
			continue
		}
		img.lastUsed = now
		p.freeImages = append(p.freeImages, img)
	}
	clear(p.inUseImages[len(usedImages):])
	p.inUseImages = usedImages

	if len(expired) > 0 || evictedImages > 0 {
		p.log.Debug("stage: evicted", "buffers", len(expired), "images", evictedImages)
	}
	p.rec.Evict(metrics.TierStageBuffer, len(expired))
	p.rec.Evict(metrics.TierStageImage, evictedImages)
	p.rec.Size(metrics.TierStageBuffer, p.freeBuffers.Len()+len(p.inUseBuffers))
	p.rec.Size(metrics.TierStageImage, len(p.freeImages)+len(p.inUseImages))
}

// Reset destroys every slot, free or in use.
func (p *Pool) Reset() {
	p.freeBuffers.Ascend(func(it btree.Item) bool {
		p.device.DestroyBuffer(it.(*Buffer).id)
		return true
	})
	p.freeBuffers.Clear(false)
	for _, b := range p.inUseBuffers {
		p.device.DestroyBuffer(b.id)
	}
	p.inUseBuffers = nil
	for _, img := range p.freeImages {
		p.device.DestroyTexture(img.id)
	}
	for _, img := range p.inUseImages {
		p.device.DestroyTexture(img.id)
	}
	p.freeImages = nil
	p.inUseImages = nil
	p.rec.Size(metrics.TierStageBuffer, 0)
	p.rec.Size(metrics.TierStageImage, 0)
}

// Stats returns pool statistics.
func (p *Pool) Stats() Stats {
	s := p.stats
	s.FreeBuffers = p.freeBuffers.Len()
	s.InUseBuffers = len(p.inUseBuffers)
	s.FreeImages = len(p.freeImages)
	s.InUseImages = len(p.inUseImages)
	return s
}
