// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package hashing builds 64-bit content hashes of cache keys.
//
// Fields are serialized little-endian into a byte buffer and the buffer is
// hashed with CityHash64. Strings and slices are length-prefixed so that
// adjacent fields cannot alias.
package hashing

import (
	"encoding/binary"

	"github.com/creachadair/cityhash"
)

// Writer accumulates key fields. The zero value is ready to use.
type Writer struct {
	buf []byte
}

// Uint32 appends v.
func (w *Writer) Uint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// Uint64 appends v.
func (w *Writer) Uint64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// String appends a length-prefixed string.
//
//nolint:gosec // G115: key strings (entry points, names) are short
func (w *Writer) String(s string) {
	w.Uint32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// Bool appends v as a single byte.
func (w *Writer) Bool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// Words appends a length-prefixed slice of 32-bit words.
//
//nolint:gosec // G115: slice lengths fit in uint32
func (w *Writer) Words(v []uint32) {
	w.Uint32(uint32(len(v)))
	for _, x := range v {
		w.Uint32(x)
	}
}

// Sum64 returns the CityHash64 of everything written so far.
func (w *Writer) Sum64() uint64 {
	return cityhash.Hash64(w.buf)
}

// Reset discards written fields, keeping the buffer capacity.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
}
