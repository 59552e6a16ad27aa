// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/gogpu/gpucache/driver"
)

// allocator hands out binding sets of one set layout. It owns one or more
// backing pools sized by the layout's resource histogram and grows by
// adding pools. Sets are never freed individually: released sets go to a
// free list for reuse, and reset returns everything at once.
type allocator struct {
	dev    driver.Device
	log    *slog.Logger
	layout driver.BindGroupLayoutID
	desc   driver.DescriptorPoolDesc

	pools   []driver.DescriptorPoolID
	current int
	free    []freeSet
}

// freeSet is a released set and the writes it still holds.
type freeSet struct {
	id      driver.BindGroupID
	written map[slotKey]driver.BindGroupWrite
}

func newAllocator(dev driver.Device, log *slog.Logger, layout driver.BindGroupLayoutID,
	entries []driver.BindGroupLayoutEntry, maxSets uint32,
) *allocator {
	hist := make(map[driver.ResourceType]uint32)
	for _, e := range entries {
		n := e.Count
		if n == 0 {
			n = 1
		}
		hist[e.Type] += n
	}
	sizes := make([]driver.DescriptorPoolSize, 0, len(hist))
	for t, n := range hist {
		sizes = append(sizes, driver.DescriptorPoolSize{Type: t, Count: n * maxSets})
	}
	sort.Slice(sizes, func(i, j int) bool { return sizes[i].Type < sizes[j].Type })
	return &allocator{
		dev:    dev,
		log:    log,
		layout: layout,
		desc:   driver.DescriptorPoolDesc{Label: "gpucache binding sets", MaxSets: maxSets, Sizes: sizes},
	}
}

// allocate returns a set, reusing a released one when possible, together
// with the writes a reused set still holds. Pool exhaustion is absorbed by
// growing.
func (a *allocator) allocate() (driver.BindGroupID, map[slotKey]driver.BindGroupWrite, error) {
	if n := len(a.free); n > 0 {
		f := a.free[n-1]
		a.free = a.free[:n-1]
		return f.id, f.written, nil
	}
	for i := range a.pools {
		idx := (a.current + i) % len(a.pools)
		id, err := a.dev.AllocateBindGroup(a.pools[idx], a.layout)
		if err == nil {
			a.current = idx
			return id, nil, nil
		}
		if !errors.Is(err, driver.ErrPoolExhausted) {
			return 0, nil, fmt.Errorf("pipeline: allocate binding set: %w", err)
		}
	}

	pool, err := a.dev.CreateDescriptorPool(&a.desc)
	if err != nil {
		return 0, nil, fmt.Errorf("pipeline: grow binding-set pool: %w", err)
	}
	a.pools = append(a.pools, pool)
	a.current = len(a.pools) - 1
	a.log.Debug("pipeline: binding-set pool added", "layout", a.layout, "pools", len(a.pools))
	id, err := a.dev.AllocateBindGroup(pool, a.layout)
	if err != nil {
		return 0, nil, fmt.Errorf("pipeline: allocate from new pool: %w: %w", driver.ErrCreationFailed, err)
	}
	return id, nil, nil
}

// release returns a set holding written to the free list.
func (a *allocator) release(id driver.BindGroupID, written map[slotKey]driver.BindGroupWrite) {
	a.free = append(a.free, freeSet{id: id, written: written})
}

// reset returns every set of every pool and clears the free list.
func (a *allocator) reset() {
	for _, p := range a.pools {
		a.dev.ResetDescriptorPool(p)
	}
	a.free = nil
	a.current = 0
}

// destroy resets and then releases every pool.
func (a *allocator) destroy() {
	a.reset()
	for _, p := range a.pools {
		a.dev.DestroyDescriptorPool(p)
	}
	a.pools = nil
}
