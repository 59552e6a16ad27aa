// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpucache/driver"
	"github.com/gogpu/gpucache/internal/cache"
	"github.com/gogpu/gpucache/internal/epoch"
	"github.com/gogpu/gpucache/internal/hashing"
	"github.com/gogpu/gpucache/metrics"
)

// DefaultMaxSetsPerPool is the number of binding sets one backing pool
// holds when Config.MaxSetsPerPool is zero.
const DefaultMaxSetsPerPool = 64

// State is the position of a Cache in the frame protocol.
type State uint8

// Frame protocol states.
const (
	StateIdle State = iota
	StateShaderBinding
	StateLayoutBound
	StateStateBound
	StateResolved
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateShaderBinding:
		return "ShaderBinding"
	case StateLayoutBound:
		return "LayoutBound"
	case StateStateBound:
		return "StateBound"
	case StateResolved:
		return "Resolved"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Config holds Cache settings.
type Config struct {
	// Device creates and destroys the cached objects. Required.
	Device driver.Device

	// Clock ages entries. It is shared with the other tiers of a hub,
	// which ticks it. Nil creates a private clock with a window of 3.
	Clock *epoch.Clock

	// MaxSetsPerPool sizes each backing binding-set pool.
	// Zero means DefaultMaxSetsPerPool.
	MaxSetsPerPool uint32

	// Reflector supplies shader resources. Nil means DescriptorReflector.
	Reflector Reflector

	// Logger receives debug output. Nil disables logging.
	Logger *slog.Logger

	// Metrics receives tier events. Nil disables metrics.
	Metrics metrics.Recorder
}

// TierStats reports one cache tier.
type TierStats struct {
	Entries   int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

func tierStats(s cache.Stats) TierStats {
	return TierStats{Entries: s.Len, Hits: s.Hits, Misses: s.Misses, Evictions: s.Evictions}
}

// Stats reports every tier owned by a Cache.
type Stats struct {
	ShaderModules int
	ShaderHits    uint64
	ShaderMisses  uint64

	Layouts     TierStats
	BindingSets TierStats
	Pipelines   TierStats

	// Pools is the number of backing binding-set pools across all layouts.
	Pools int
}

// pipelineReq accumulates the fixed-function half of a pipeline.
type pipelineReq struct {
	raster       rasterKey
	constants    map[uint32]uint32
	renderPass   driver.RenderPassID
	subpass      uint32
	instanceMask uint32
}

// rasterKey is a RasterState with its blend state held by value.
type rasterKey struct {
	state   driver.RasterState
	blend   driver.BlendState
	blended bool
}

func flattenRaster(r *driver.RasterState) rasterKey {
	k := rasterKey{state: *r}
	if r.Blend != nil {
		k.blend = *r.Blend
		k.blended = true
	}
	k.state.Blend = nil
	return k
}

func (k rasterKey) expand() driver.RasterState {
	r := k.state
	if k.blended {
		b := k.blend
		r.Blend = &b
	}
	return r
}

// pipelineKey identifies a compiled pipeline.
type pipelineKey struct {
	hash         uint64
	layout       driver.PipelineLayoutID
	modules      [slotCount]driver.ShaderModuleID
	raster       rasterKey
	constants    []driver.SpecializationConstant
	renderPass   driver.RenderPassID
	subpass      uint32
	instanceMask uint32
}

func (k pipelineKey) Hash() uint64 { return k.hash }

func (k pipelineKey) Equal(o pipelineKey) bool {
	return k.layout == o.layout &&
		k.modules == o.modules &&
		k.raster == o.raster &&
		k.renderPass == o.renderPass &&
		k.subpass == o.subpass &&
		k.instanceMask == o.instanceMask &&
		slices.Equal(k.constants, o.constants)
}

// Cache owns the shader, layout, binding-set and pipeline tiers and the
// per-frame requirements that drive them.
//
// Cache is not safe for concurrent use.
type Cache struct {
	dev            driver.Device
	clock          *epoch.Clock
	log            *slog.Logger
	rec            metrics.Recorder
	reflector      Reflector
	maxSetsPerPool uint32

	state State

	// shader binding
	shaders         []*shaderModule
	bound           [slotCount]*shaderModule
	shadersFinished bool
	finishedModules [slotCount]driver.ShaderModuleID
	resources       map[string]driver.ShaderResource
	updateModes     map[string]UpdateMode

	// layouts
	layouts    *cache.Cache[layoutKey, *pipelineLayout]
	layout     *pipelineLayout
	allocators map[driver.PipelineLayoutID][]*allocator

	// binding sets
	sets      *cache.Cache[setKey, *bindingSet]
	reqs      []setRequirement
	boundSets []boundSet

	// pipelines
	pipelines     *cache.Cache[pipelineKey, driver.RenderPipelineID]
	pipe          pipelineReq
	stateBound    bool
	boundPipeline *pipelineKey

	stats Stats
}

// New creates an empty Cache.
func New(cfg Config) *Cache {
	if cfg.Clock == nil {
		cfg.Clock = epoch.New(3)
	}
	if cfg.MaxSetsPerPool == 0 {
		cfg.MaxSetsPerPool = DefaultMaxSetsPerPool
	}
	if cfg.Reflector == nil {
		cfg.Reflector = DescriptorReflector{}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Cache{
		dev:            cfg.Device,
		clock:          cfg.Clock,
		log:            log,
		rec:            metrics.OrNoop(cfg.Metrics),
		reflector:      cfg.Reflector,
		maxSetsPerPool: cfg.MaxSetsPerPool,
		layouts:        cache.New[layoutKey, *pipelineLayout](),
		allocators:     make(map[driver.PipelineLayoutID][]*allocator),
		sets:           cache.New[setKey, *bindingSet](),
		pipelines:      cache.New[pipelineKey, driver.RenderPipelineID](),
	}
}

// State returns the current frame protocol state.
func (c *Cache) State() State { return c.state }

// markStateBound records that fixed-function state was supplied.
func (c *Cache) markStateBound() {
	c.stateBound = true
	if c.state >= StateLayoutBound {
		c.state = StateStateBound
	}
}

// BindRasterState sets the fixed-function state of the next pipeline.
func (c *Cache) BindRasterState(r driver.RasterState) {
	c.pipe.raster = flattenRaster(&r)
	c.markStateBound()
}

// BindRenderPass selects the render pass and subpass the next pipeline
// must be compatible with.
func (c *Cache) BindRenderPass(pass driver.RenderPassID, subpass uint32) {
	c.pipe.renderPass = pass
	c.pipe.subpass = subpass
	c.markStateBound()
}

// SetInputRatePerInstance makes the vertex input at location advance once
// per instance instead of once per vertex.
func (c *Cache) SetInputRatePerInstance(location uint32) error {
	if location >= 32 {
		return fmt.Errorf("pipeline: vertex input location %d out of range: %w", location, driver.ErrConfigurationConflict)
	}
	c.pipe.instanceMask |= 1 << location
	c.markStateBound()
	return nil
}

// BindSpecializationConstant overrides a pipeline-creation constant.
// value is the raw 32-bit pattern of the constant.
func (c *Cache) BindSpecializationConstant(id, value uint32) {
	if c.pipe.constants == nil {
		c.pipe.constants = make(map[uint32]uint32)
	}
	c.pipe.constants[id] = value
	c.markStateBound()
}

func (c *Cache) currentPipelineKey() pipelineKey {
	k := pipelineKey{
		layout:       c.layout.id,
		raster:       c.pipe.raster,
		renderPass:   c.pipe.renderPass,
		subpass:      c.pipe.subpass,
		instanceMask: c.pipe.instanceMask,
	}
	for i, m := range c.bound {
		if m != nil {
			k.modules[i] = m.id
		}
	}
	if len(c.pipe.constants) > 0 {
		k.constants = make([]driver.SpecializationConstant, 0, len(c.pipe.constants))
		for id, v := range c.pipe.constants {
			k.constants = append(k.constants, driver.SpecializationConstant{ID: id, Value: v})
		}
		sort.Slice(k.constants, func(i, j int) bool { return k.constants[i].ID < k.constants[j].ID })
	}

	var w hashing.Writer
	w.Uint64(uint64(k.layout))
	for _, id := range k.modules {
		w.Uint64(uint64(id))
	}
	r := &k.raster.state
	w.Uint32(uint32(r.Topology))
	w.Uint32(uint32(r.FrontFace))
	w.Uint32(uint32(r.CullMode))
	w.Bool(r.DepthWriteEnabled)
	w.Uint32(uint32(r.DepthCompare))
	w.Bool(r.ColorWriteDisabled)
	w.Bool(r.AlphaToCoverage)
	w.Bool(k.raster.blended)
	if k.raster.blended {
		b := &k.raster.blend
		for _, bc := range []driver.BlendComponent{b.Color, b.Alpha} {
			w.Uint32(uint32(bc.SrcFactor))
			w.Uint32(uint32(bc.DstFactor))
			w.Uint32(uint32(bc.Operation))
		}
	}
	w.Uint32(uint32(len(k.constants))) //nolint:gosec // constant counts are small
	for _, sc := range k.constants {
		w.Uint32(sc.ID)
		w.Uint32(sc.Value)
	}
	w.Uint64(uint64(k.renderPass))
	w.Uint32(k.subpass)
	w.Uint32(k.instanceMask)
	k.hash = w.Sum64()
	return k
}

// BindPipeline binds the pipeline described by the bound modules, layout
// and fixed-function state, compiling it on a miss. Binding a pipeline
// equal to the one cmd already has bound records nothing.
func (c *Cache) BindPipeline(cmd driver.CommandBuffer) error {
	if err := c.requireLayout("bind pipeline"); err != nil {
		return err
	}
	if c.bound[slotVertex] == nil {
		return fmt.Errorf("pipeline: bind pipeline without a vertex shader: %w", driver.ErrConfigurationConflict)
	}
	key := c.currentPipelineKey()
	if c.boundPipeline != nil && c.boundPipeline.Equal(key) {
		c.state = StateResolved
		return nil
	}

	now := c.clock.Now()
	var id driver.RenderPipelineID
	if e, ok := c.pipelines.Get(key, now); ok {
		id = e.Value
		c.rec.Hit(metrics.TierPipeline)
	} else {
		built, err := c.buildPipeline(&key)
		if err != nil {
			return err
		}
		id = built
		c.pipelines.Insert(key, id, now)
		c.rec.Miss(metrics.TierPipeline)
		c.rec.Size(metrics.TierPipeline, c.pipelines.Len())
		c.log.Debug("pipeline: new render pipeline", "id", id, "layout", key.layout)
	}

	cmd.BindPipeline(id)
	c.boundPipeline = &key
	c.state = StateResolved
	return nil
}

func (c *Cache) buildPipeline(key *pipelineKey) (driver.RenderPipelineID, error) {
	vs := c.bound[slotVertex]
	desc := &driver.RenderPipelineDesc{
		Label:      "gpucache pipeline",
		Layout:     key.layout,
		Vertex:     driver.ProgrammableStage{Module: vs.id, EntryPoint: vs.desc.EntryPoint},
		Raster:     key.raster.expand(),
		Constants:  key.constants,
		RenderPass: key.renderPass,
		Subpass:    key.subpass,
	}
	if fs := c.bound[slotFragment]; fs != nil {
		desc.Fragment = &driver.ProgrammableStage{Module: fs.id, EntryPoint: fs.desc.EntryPoint}
	}
	for _, in := range c.vertexInputs() {
		stride := uint64(in.Size)
		if stride == 0 {
			stride = in.Format.Size()
		}
		step := gputypes.VertexStepModeVertex
		if in.Location < 32 && key.instanceMask&(1<<in.Location) != 0 {
			step = gputypes.VertexStepModeInstance
		}
		desc.VertexBuffers = append(desc.VertexBuffers, driver.VertexBufferLayout{
			ArrayStride: stride,
			StepMode:    step,
			Attributes:  []driver.VertexAttribute{{Location: in.Location, Format: in.Format}},
		})
	}

	id, err := c.dev.CreateRenderPipeline(desc)
	if err != nil {
		c.log.Error("pipeline: render pipeline creation failed", "layout", key.layout, "err", err)
		return 0, fmt.Errorf("pipeline: create render pipeline: %w", err)
	}
	return id, nil
}

// UnbindPipeline empties the fixed-function requirement and forgets the
// bound pipeline.
func (c *Cache) UnbindPipeline() {
	c.pipe = pipelineReq{}
	c.stateBound = false
	c.boundPipeline = nil
	if c.state >= StateLayoutBound {
		c.state = StateLayoutBound
	}
}

// UnbindDescriptorSet empties every binding-set requirement and forgets
// the bound sets. The layout stays bound.
func (c *Cache) UnbindDescriptorSet() {
	if c.layout != nil {
		c.reqs = make([]setRequirement, len(c.reqs))
	}
	c.boundSets = nil
}

// clearFrame drops the per-frame requirements and bound pointers. The
// aggregate resources and update modes of the last shader binding survive.
func (c *Cache) clearFrame() {
	c.state = StateIdle
	c.bound = [slotCount]*shaderModule{}
	c.shadersFinished = false
	c.layout = nil
	c.reqs = nil
	c.boundSets = nil
	c.pipe = pipelineReq{}
	c.stateBound = false
	c.boundPipeline = nil
}

// GC ends the frame recorded into the last command buffer. It clears the
// per-frame state and evicts binding sets, then pipelines, then layouts
// that stayed unused for longer than the disuse window. The caller ticks
// the clock.
func (c *Cache) GC() {
	c.clearFrame()
	stale := c.clock.ShouldEvict

	n := c.sets.Evict(func(e *cache.Entry[setKey, *bindingSet]) bool {
		return stale(e.LastUsed)
	}, func(e *cache.Entry[setKey, *bindingSet]) {
		e.Value.alloc.release(e.Value.id, e.Value.written)
	})
	c.rec.Evict(metrics.TierBindingSet, n)
	c.rec.Size(metrics.TierBindingSet, c.sets.Len())

	n = c.pipelines.Evict(func(e *cache.Entry[pipelineKey, driver.RenderPipelineID]) bool {
		return stale(e.LastUsed)
	}, func(e *cache.Entry[pipelineKey, driver.RenderPipelineID]) {
		c.dev.DestroyRenderPipeline(e.Value)
	})
	c.rec.Evict(metrics.TierPipeline, n)
	c.rec.Size(metrics.TierPipeline, c.pipelines.Len())

	n = c.layouts.Evict(func(e *cache.Entry[layoutKey, *pipelineLayout]) bool {
		return stale(e.LastUsed)
	}, func(e *cache.Entry[layoutKey, *pipelineLayout]) {
		c.purgeLayout(e.Value)
	})
	c.rec.Evict(metrics.TierLayout, n)
	c.rec.Size(metrics.TierLayout, c.layouts.Len())

	if n > 0 {
		c.log.Debug("pipeline: layouts evicted", "count", n, "epoch", c.clock.Now())
	}
}

// purgeLayout drops every binding set and pipeline still cached for l and
// destroys l with its pools.
func (c *Cache) purgeLayout(l *pipelineLayout) {
	c.sets.Evict(func(e *cache.Entry[setKey, *bindingSet]) bool {
		return e.Key.layout == l.id
	}, nil)
	c.pipelines.Evict(func(e *cache.Entry[pipelineKey, driver.RenderPipelineID]) bool {
		return e.Key.layout == l.id
	}, func(e *cache.Entry[pipelineKey, driver.RenderPipelineID]) {
		c.dev.DestroyRenderPipeline(e.Value)
	})
	c.destroyLayout(l)
}

// Reset destroys every cached object, shader modules included, and
// returns the Cache to its initial state.
func (c *Cache) Reset() {
	c.clearFrame()
	c.sets.Clear(nil)
	c.pipelines.Clear(func(e *cache.Entry[pipelineKey, driver.RenderPipelineID]) {
		c.dev.DestroyRenderPipeline(e.Value)
	})
	c.layouts.Clear(func(e *cache.Entry[layoutKey, *pipelineLayout]) {
		c.destroyLayout(e.Value)
	})
	for _, m := range c.shaders {
		c.dev.DestroyShaderModule(m.id)
	}
	c.shaders = nil
	c.finishedModules = [slotCount]driver.ShaderModuleID{}
	c.resources = nil
	c.updateModes = nil
	c.rec.Size(metrics.TierShader, 0)
	c.rec.Size(metrics.TierLayout, 0)
	c.rec.Size(metrics.TierBindingSet, 0)
	c.rec.Size(metrics.TierPipeline, 0)
	c.log.Info("pipeline: cache reset")
}

// Stats returns tier statistics.
func (c *Cache) Stats() Stats {
	s := c.stats
	s.ShaderModules = len(c.shaders)
	s.Layouts = tierStats(c.layouts.Stats())
	s.BindingSets = tierStats(c.sets.Stats())
	s.Pipelines = tierStats(c.pipelines.Stats())
	for _, as := range c.allocators {
		for _, a := range as {
			s.Pools += len(a.pools)
		}
	}
	return s
}
