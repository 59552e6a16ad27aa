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

type slotKey struct {
	binding uint32
	element uint32
}

// setRequirement accumulates the bindings of one set index.
type setRequirement struct {
	writes map[slotKey]driver.BindGroupWrite

	// offsets holds dynamic buffer offsets by binding. They are not part
	// of the set's content.
	offsets map[uint32]uint32
}

func (r *setRequirement) put(w driver.BindGroupWrite) {
	if r.writes == nil {
		r.writes = make(map[slotKey]driver.BindGroupWrite)
	}
	r.writes[slotKey{binding: w.Binding, element: w.ArrayElement}] = w
}

func (r *setRequirement) setOffset(binding, offset uint32) {
	if r.offsets == nil {
		r.offsets = make(map[uint32]uint32)
	}
	r.offsets[binding] = offset
}

// sortedWrites returns the writes ordered by binding and array element.
func (r *setRequirement) sortedWrites() []driver.BindGroupWrite {
	out := make([]driver.BindGroupWrite, 0, len(r.writes))
	for _, w := range r.writes {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Binding != out[j].Binding {
			return out[i].Binding < out[j].Binding
		}
		return out[i].ArrayElement < out[j].ArrayElement
	})
	return out
}

// dynamicOffsets returns one offset per dynamic binding, in binding order.
func (r *setRequirement) dynamicOffsets(bindings []uint32) []uint32 {
	if len(bindings) == 0 {
		return nil
	}
	out := make([]uint32, len(bindings))
	for i, b := range bindings {
		out[i] = r.offsets[b]
	}
	return out
}

// setKey identifies a binding set by layout, set index and content.
type setKey struct {
	hash   uint64
	layout driver.PipelineLayoutID
	set    uint32
	writes []driver.BindGroupWrite
}

func (k setKey) Hash() uint64 { return k.hash }

func (k setKey) Equal(o setKey) bool {
	return k.layout == o.layout && k.set == o.set && slices.Equal(k.writes, o.writes)
}

func newSetKey(layout driver.PipelineLayoutID, set uint32, writes []driver.BindGroupWrite) setKey {
	var w hashing.Writer
	w.Uint64(uint64(layout))
	w.Uint32(set)
	w.Uint32(uint32(len(writes))) //nolint:gosec // bounded by the layout's binding count
	for _, bw := range writes {
		w.Uint32(bw.Binding)
		w.Uint32(bw.ArrayElement)
		w.Uint32(uint32(bw.Type))
		w.Uint64(uint64(bw.Buffer))
		w.Uint64(bw.Offset)
		w.Uint64(bw.Size)
		w.Uint64(uint64(bw.Sampler))
		w.Uint64(uint64(bw.Texture))
	}
	return setKey{hash: w.Sum64(), layout: layout, set: set, writes: writes}
}

// bindingSet is one cached set and what has been written into it. The
// writes travel with the set to the allocator's free list so a recycled
// set is rewritten only where it differs.
type bindingSet struct {
	id      driver.BindGroupID
	alloc   *allocator
	written map[slotKey]driver.BindGroupWrite
}

// boundSet remembers what is bound at one set index of the current
// command buffer.
type boundSet struct {
	set     *bindingSet
	key     setKey
	offsets []uint32
}

func (c *Cache) requireLayout(op string) error {
	if c.layout == nil || c.state < StateLayoutBound {
		return fmt.Errorf("pipeline: %s in state %v: %w", op, c.state, driver.ErrConfigurationConflict)
	}
	return nil
}

func (c *Cache) lookupSlot(name string) (resourceSlot, error) {
	s, ok := c.layout.slots[name]
	if !ok {
		c.log.Warn("pipeline: unknown binding name", "name", name)
		return resourceSlot{}, fmt.Errorf("pipeline: no resource named %q in the bound layout: %w",
			name, driver.ErrConfigurationConflict)
	}
	return s, nil
}

func checkElement(name string, s resourceSlot, element uint32) error {
	n := s.count
	if n == 0 {
		n = 1
	}
	if element >= n {
		return fmt.Errorf("pipeline: %q element %d out of range (%d): %w", name, element, n, driver.ErrConfigurationConflict)
	}
	return nil
}

// BindBuffer binds a buffer range to the named resource, replacing any
// previous binding of that slot. For a dynamic resource the offset is
// passed at bind time instead of being written into the set.
func (c *Cache) BindBuffer(name string, buffer driver.BufferID, offset, size uint64, element uint32) error {
	if err := c.requireLayout("bind buffer"); err != nil {
		return err
	}
	s, err := c.lookupSlot(name)
	if err != nil {
		return err
	}
	if !s.typ.IsBuffer() {
		return fmt.Errorf("pipeline: %q is a %v, not a buffer: %w", name, s.typ, driver.ErrConfigurationConflict)
	}
	if err := checkElement(name, s, element); err != nil {
		return err
	}
	w := driver.BindGroupWrite{
		Binding:      s.binding,
		ArrayElement: element,
		Type:         s.typ,
		Buffer:       buffer,
		Offset:       offset,
		Size:         size,
	}
	req := &c.reqs[s.set]
	if s.dynamic {
		w.Offset = 0
		req.setOffset(s.binding, uint32(offset)) //nolint:gosec // dynamic offsets are 32-bit by API
	}
	req.put(w)
	return nil
}

// BindImage binds a sampler and/or texture to the named resource.
func (c *Cache) BindImage(name string, sampler driver.SamplerID, texture driver.TextureID, element uint32) error {
	if err := c.requireLayout("bind image"); err != nil {
		return err
	}
	s, err := c.lookupSlot(name)
	if err != nil {
		return err
	}
	if !s.typ.IsImage() || s.typ == driver.ResourceInputAttachment {
		return fmt.Errorf("pipeline: %q is a %v, not an image: %w", name, s.typ, driver.ErrConfigurationConflict)
	}
	if err := checkElement(name, s, element); err != nil {
		return err
	}
	w := driver.BindGroupWrite{Binding: s.binding, ArrayElement: element, Type: s.typ}
	switch s.typ {
	case driver.ResourceSampler:
		w.Sampler = sampler
	case driver.ResourceCombinedImageSampler:
		w.Sampler = sampler
		w.Texture = texture
	default:
		w.Texture = texture
	}
	c.reqs[s.set].put(w)
	return nil
}

// BindInputAttachment binds a texture to the named input attachment.
func (c *Cache) BindInputAttachment(name string, texture driver.TextureID) error {
	if err := c.requireLayout("bind input attachment"); err != nil {
		return err
	}
	s, err := c.lookupSlot(name)
	if err != nil {
		return err
	}
	if s.typ != driver.ResourceInputAttachment {
		return fmt.Errorf("pipeline: %q is a %v, not an input attachment: %w", name, s.typ, driver.ErrConfigurationConflict)
	}
	c.reqs[s.set].put(driver.BindGroupWrite{Binding: s.binding, Type: s.typ, Texture: texture})
	return nil
}

// ResolveBindingSets turns each set requirement into a binding set and
// binds every set that differs from what cmd already has bound, in one
// call ordered by ascending set index. Sets without bindings are skipped.
func (c *Cache) ResolveBindingSets(cmd driver.CommandBuffer) error {
	if err := c.requireLayout("resolve binding sets"); err != nil {
		return err
	}
	l := c.layout
	if len(c.boundSets) != len(c.reqs) {
		c.boundSets = make([]boundSet, len(c.reqs))
	}

	var (
		sets    []driver.SetBinding
		offsets []uint32
	)
	for i := range c.reqs {
		req := &c.reqs[i]
		if len(req.writes) == 0 {
			continue
		}
		set := uint32(i) //nolint:gosec // set indices come from uint32
		key := newSetKey(l.id, set, req.sortedWrites())
		offs := req.dynamicOffsets(l.dynamicBindings[i])

		b := &c.boundSets[i]
		if b.set != nil && b.key.Equal(key) && slices.Equal(b.offsets, offs) {
			continue
		}
		bs, err := c.lookupSet(key, i)
		if err != nil {
			return err
		}
		*b = boundSet{set: bs, key: key, offsets: offs}
		sets = append(sets, driver.SetBinding{Set: set, Group: bs.id})
		offsets = append(offsets, offs...)
	}
	if len(sets) > 0 {
		cmd.BindGroups(l.id, sets, offsets)
	}
	return nil
}

func (c *Cache) lookupSet(key setKey, set int) (*bindingSet, error) {
	now := c.clock.Now()
	if e, ok := c.sets.Get(key, now); ok {
		c.rec.Hit(metrics.TierBindingSet)
		return e.Value, nil
	}

	alloc := c.allocators[key.layout][set]
	id, prev, err := alloc.allocate()
	if err != nil {
		c.log.Error("pipeline: binding set allocation failed", "set", set, "err", err)
		return nil, err
	}
	if pending := pendingWrites(prev, key.writes); len(pending) > 0 {
		if err := c.dev.UpdateBindGroup(id, pending); err != nil {
			// The set's contents are unknown now; its pool reclaims it on reset.
			return nil, fmt.Errorf("pipeline: write binding set: %w", err)
		}
	}
	bs := &bindingSet{id: id, alloc: alloc, written: make(map[slotKey]driver.BindGroupWrite, len(key.writes))}
	for _, w := range key.writes {
		bs.written[slotKey{binding: w.Binding, element: w.ArrayElement}] = w
	}
	c.sets.Insert(key, bs, now)
	c.rec.Miss(metrics.TierBindingSet)
	c.log.Debug("pipeline: new binding set", "set", set, "id", id, "recycled", prev != nil, "writes", len(key.writes))
	return bs, nil
}

// pendingWrites returns the writes that turn a set holding prev into one
// holding exactly next: every changed slot, plus a clearing write for each
// slot of prev that next leaves unbound. The result is ordered by slot.
func pendingWrites(prev map[slotKey]driver.BindGroupWrite, next []driver.BindGroupWrite) []driver.BindGroupWrite {
	var out []driver.BindGroupWrite
	kept := make(map[slotKey]bool, len(next))
	for _, w := range next {
		at := slotKey{binding: w.Binding, element: w.ArrayElement}
		kept[at] = true
		if p, ok := prev[at]; !ok || p != w {
			out = append(out, w)
		}
	}
	for at, p := range prev {
		if !kept[at] {
			out = append(out, driver.BindGroupWrite{Binding: at.binding, ArrayElement: at.element, Type: p.Type})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Binding != out[j].Binding {
			return out[i].Binding < out[j].Binding
		}
		return out[i].ArrayElement < out[j].ArrayElement
	})
	return out
}
