// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"fmt"
	"slices"
	"sort"

	"github.com/gogpu/gpucache/driver"
	"github.com/gogpu/gpucache/internal/hashing"
	"github.com/gogpu/gpucache/metrics"
)

// layoutKey identifies a pipeline layout by the bound module set and the
// names of the resources switched to UpdateDynamic.
type layoutKey struct {
	hash    uint64
	modules [slotCount]driver.ShaderModuleID
	dynamic []string
}

func (k layoutKey) Hash() uint64 { return k.hash }

func (k layoutKey) Equal(o layoutKey) bool {
	return k.modules == o.modules && slices.Equal(k.dynamic, o.dynamic)
}

func (c *Cache) currentLayoutKey() layoutKey {
	k := layoutKey{}
	var w hashing.Writer
	for i, m := range c.bound {
		if m != nil {
			k.modules[i] = m.id
			w.Uint64(m.hash)
		} else {
			w.Uint64(0)
		}
	}
	for name, mode := range c.updateModes {
		if mode == UpdateDynamic {
			k.dynamic = append(k.dynamic, name)
		}
	}
	sort.Strings(k.dynamic)
	w.Uint32(uint32(len(k.dynamic))) //nolint:gosec // resource counts are small
	for _, name := range k.dynamic {
		w.String(name)
	}
	k.hash = w.Sum64()
	return k
}

// resourceSlot locates a named resource inside a layout.
type resourceSlot struct {
	set     uint32
	binding uint32
	typ     driver.ResourceType
	dynamic bool
	count   uint32
}

// pipelineLayout is one cached layout. Its allocators live in the
// Cache.allocators side table under id.
type pipelineLayout struct {
	id         driver.PipelineLayoutID
	setLayouts []driver.BindGroupLayoutID
	slots      map[string]resourceSlot

	// dynamicBindings lists, per set, the dynamic buffer bindings in
	// ascending binding order.
	dynamicBindings [][]uint32
}

// BindPipelineLayout selects the layout derived from the finished shader
// binding, building it on a miss. It resets the binding-set requirements
// to an empty template with one entry per set of the layout.
func (c *Cache) BindPipelineLayout() error {
	if c.state != StateShaderBinding || !c.shadersFinished {
		return fmt.Errorf("pipeline: bind layout in state %v: %w", c.state, driver.ErrConfigurationConflict)
	}
	key := c.currentLayoutKey()
	now := c.clock.Now()

	var l *pipelineLayout
	if e, ok := c.layouts.Get(key, now); ok {
		l = e.Value
		c.rec.Hit(metrics.TierLayout)
	} else {
		built, err := c.buildLayout()
		if err != nil {
			return err
		}
		l = built
		c.layouts.Insert(key, l, now)
		c.rec.Miss(metrics.TierLayout)
		c.rec.Size(metrics.TierLayout, c.layouts.Len())
		c.log.Debug("pipeline: new layout", "id", l.id, "sets", len(l.setLayouts))
	}

	if c.layout != l {
		c.boundSets = nil
	}
	c.layout = l
	c.reqs = make([]setRequirement, len(c.allocators[l.id]))
	c.state = StateLayoutBound
	if c.stateBound {
		c.state = StateStateBound
	}
	return nil
}

// buildLayout constructs one set layout per set index up to the highest
// one used, a pipeline layout over them and the per-set allocators.
func (c *Cache) buildLayout() (*pipelineLayout, error) {
	resources := sortedResources(c.resources)

	bySet := make(map[uint32][]driver.BindGroupLayoutEntry)
	taken := make(map[[2]uint32]string)
	slots := make(map[string]resourceSlot, len(resources))
	var pushConstants []driver.PushConstantRange
	maxSet := -1

	for _, r := range resources {
		if r.Type == driver.ResourcePushConstant {
			pushConstants = append(pushConstants, driver.PushConstantRange{Stages: r.Stages, Size: r.Size})
			continue
		}
		at := [2]uint32{r.Set, r.Binding}
		if other, ok := taken[at]; ok {
			c.log.Error("pipeline: binding collision", "set", r.Set, "binding", r.Binding, "a", other, "b", r.Name)
			return nil, fmt.Errorf("pipeline: resources %q and %q both use set %d binding %d: %w",
				other, r.Name, r.Set, r.Binding, driver.ErrConfigurationConflict)
		}
		taken[at] = r.Name
		dynamic := c.updateModes[r.Name] == UpdateDynamic
		bySet[r.Set] = append(bySet[r.Set], driver.BindGroupLayoutEntry{
			Binding: r.Binding,
			Type:    r.Type,
			Stages:  r.Stages,
			Count:   r.ArraySize,
			Dynamic: dynamic,
		})
		slots[r.Name] = resourceSlot{set: r.Set, binding: r.Binding, typ: r.Type, dynamic: dynamic, count: r.ArraySize}
		if int(r.Set) > maxSet {
			maxSet = int(r.Set)
		}
	}

	l := &pipelineLayout{
		slots:           slots,
		setLayouts:      make([]driver.BindGroupLayoutID, 0, maxSet+1),
		dynamicBindings: make([][]uint32, maxSet+1),
	}
	allocators := make([]*allocator, 0, maxSet+1)
	for s := 0; s <= maxSet; s++ {
		entries := bySet[uint32(s)] //nolint:gosec // s is bounded by a uint32 set index
		id, err := c.dev.CreateBindGroupLayout(&driver.BindGroupLayoutDesc{
			Label:   fmt.Sprintf("gpucache set %d", s),
			Entries: entries,
		})
		if err != nil {
			c.destroySetLayouts(l.setLayouts)
			c.log.Error("pipeline: set layout creation failed", "set", s, "err", err)
			return nil, fmt.Errorf("pipeline: create set layout %d: %w", s, err)
		}
		l.setLayouts = append(l.setLayouts, id)
		allocators = append(allocators, newAllocator(c.dev, c.log, id, entries, c.maxSetsPerPool))
		for _, e := range entries {
			if e.Dynamic {
				l.dynamicBindings[s] = append(l.dynamicBindings[s], e.Binding)
			}
		}
	}

	id, err := c.dev.CreatePipelineLayout(&driver.PipelineLayoutDesc{
		Label:              "gpucache pipeline layout",
		BindGroupLayouts:   l.setLayouts,
		PushConstantRanges: pushConstants,
	})
	if err != nil {
		c.destroySetLayouts(l.setLayouts)
		c.log.Error("pipeline: layout creation failed", "err", err)
		return nil, fmt.Errorf("pipeline: create pipeline layout: %w", err)
	}
	l.id = id
	c.allocators[id] = allocators
	return l, nil
}

func (c *Cache) destroySetLayouts(ids []driver.BindGroupLayoutID) {
	for _, id := range ids {
		c.dev.DestroyBindGroupLayout(id)
	}
}

// destroyLayout tears down a layout together with its allocator side-table
// entry. Binding sets allocated from it must already be out of the cache.
func (c *Cache) destroyLayout(l *pipelineLayout) {
	for _, a := range c.allocators[l.id] {
		a.destroy()
	}
	delete(c.allocators, l.id)
	c.dev.DestroyPipelineLayout(l.id)
	c.destroySetLayouts(l.setLayouts)
}
