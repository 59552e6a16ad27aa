// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package reclaim

import "fmt"

// Kind identifies the driver object type behind a Handle.
type Kind uint8

// Handle kinds.
const (
	KindBuffer Kind = iota + 1
	KindTexture
	KindFramebuffer
	KindRenderPass
	KindPipeline
	KindBindGroup
)

var kindNames = [...]string{
	KindBuffer:      "buffer",
	KindTexture:     "texture",
	KindFramebuffer: "framebuffer",
	KindRenderPass:  "renderpass",
	KindPipeline:    "pipeline",
	KindBindGroup:   "bindgroup",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Handle names a driver object of any kind. IDs of different kinds may
// overlap, so the kind is part of the key.
type Handle struct {
	Kind Kind
	ID   uint64
}

func (h Handle) String() string {
	return fmt.Sprintf("%s#%d", h.Kind, h.ID)
}

// Fridge is the Refrigerator keyed by Handle that the cache hub owns.
type Fridge = Refrigerator[Handle]

// NewFridge creates a Refrigerator keyed by Handle.
func NewFridge(cfg Config) *Fridge {
	return New[Handle](cfg)
}
