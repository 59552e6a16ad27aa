// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package drivertest

import "github.com/gogpu/gpucache/driver"

// Call is one recorded binding command. Exactly one of Pipeline or Layout
// is set.
type Call struct {
	Pipeline driver.RenderPipelineID
	Layout   driver.PipelineLayoutID
	Sets     []driver.SetBinding
	Offsets  []uint32
}

// CommandBuffer records the binding commands issued against it.
type CommandBuffer struct {
	id    uint64
	Calls []Call
}

var _ driver.CommandBuffer = (*CommandBuffer)(nil)

// NewCommandBuffer returns an empty command buffer with the given ID.
func NewCommandBuffer(id uint64) *CommandBuffer {
	return &CommandBuffer{id: id}
}

// ID implements driver.CommandBuffer.
func (c *CommandBuffer) ID() uint64 { return c.id }

// BindPipeline implements driver.CommandBuffer.
func (c *CommandBuffer) BindPipeline(id driver.RenderPipelineID) {
	c.Calls = append(c.Calls, Call{Pipeline: id})
}

// BindGroups implements driver.CommandBuffer.
func (c *CommandBuffer) BindGroups(layout driver.PipelineLayoutID, sets []driver.SetBinding, dynamicOffsets []uint32) {
	c.Calls = append(c.Calls, Call{
		Layout:  layout,
		Sets:    append([]driver.SetBinding(nil), sets...),
		Offsets: append([]uint32(nil), dynamicOffsets...),
	})
}
