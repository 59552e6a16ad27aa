// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package epoch provides the frame clock shared by all cache tiers.
package epoch

// Epoch is a monotonically increasing frame counter value.
type Epoch uint64

// Clock counts garbage-collection ticks. It starts at the disuse window so
// that an object stamped with epoch 0 is not yet eligible for eviction.
//
// Clock is not safe for concurrent use.
type Clock struct {
	now    Epoch
	window Epoch
}

// New returns a clock whose disuse window is window ticks.
// A window of 0 is promoted to 1.
func New(window uint32) *Clock {
	if window == 0 {
		window = 1
	}
	return &Clock{now: Epoch(window), window: Epoch(window)}
}

// Tick advances the clock by one and returns the new epoch.
func (c *Clock) Tick() Epoch {
	c.now++
	return c.now
}

// Now returns the current epoch.
func (c *Clock) Now() Epoch { return c.now }

// Window returns the disuse window.
func (c *Clock) Window() Epoch { return c.window }

// ShouldEvict reports whether an object last used at epoch last has been
// idle for longer than the disuse window.
func (c *Clock) ShouldEvict(last Epoch) bool {
	return c.now-c.window > last
}
