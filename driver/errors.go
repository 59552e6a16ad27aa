// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import "errors"

// Error taxonomy shared by the driver and every cache tier.
var (
	// ErrCreationFailed is returned when a native object-creation call fails
	// (out of memory, invalid parameters). Callers treat it as fatal for the
	// current frame.
	ErrCreationFailed = errors.New("driver: object creation failed")

	// ErrConfigurationConflict reports a programming error in the caller:
	// two shader resources colliding on the same set/binding, an unknown
	// binding name, or a builder call made in the wrong state.
	ErrConfigurationConflict = errors.New("driver: configuration conflict")

	// ErrPoolExhausted is returned by AllocateBindGroup when the pool has
	// no capacity left. The allocator factory absorbs it by growing.
	ErrPoolExhausted = errors.New("driver: descriptor pool exhausted")

	// ErrUnknownHandle is returned when an ID does not name a live object.
	ErrUnknownHandle = errors.New("driver: unknown handle")
)
