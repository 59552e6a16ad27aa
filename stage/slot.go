// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package stage

import (
	"github.com/gogpu/gputypes"
	"github.com/google/btree"

	"github.com/gogpu/gpucache/driver"
	"github.com/gogpu/gpucache/internal/epoch"
)

// Buffer is a pooled staging buffer.
type Buffer struct {
	id       driver.BufferID
	capacity uint64
	lastUsed epoch.Epoch
	refs     int32
}

// ID returns the driver buffer.
func (b *Buffer) ID() driver.BufferID { return b.id }

// Capacity returns the buffer size in bytes. It may exceed the size that
// was requested.
func (b *Buffer) Capacity() uint64 { return b.capacity }

// Hold takes an additional reference.
func (b *Buffer) Hold() { b.refs++ }

// Release drops one reference. The buffer returns to the free list at the
// next GC after the last reference is released.
func (b *Buffer) Release() {
	if b.refs > 0 {
		b.refs--
	}
}

// Less orders free buffers by capacity, then by ID, for best-fit lookup.
func (b *Buffer) Less(than btree.Item) bool {
	o := than.(*Buffer)
	if b.capacity != o.capacity {
		return b.capacity < o.capacity
	}
	return b.id < o.id
}

// Image is a pooled staging image.
type Image struct {
	id       driver.TextureID
	format   gputypes.TextureFormat
	width    uint32
	height   uint32
	lastUsed epoch.Epoch
	refs     int32
}

// ID returns the driver texture.
func (i *Image) ID() driver.TextureID { return i.id }

// Format returns the texel format.
func (i *Image) Format() gputypes.TextureFormat { return i.format }

// Size returns the image extent.
func (i *Image) Size() (width, height uint32) { return i.width, i.height }

// Hold takes an additional reference.
func (i *Image) Hold() { i.refs++ }

// Release drops one reference.
func (i *Image) Release() {
	if i.refs > 0 {
		i.refs--
	}
}
