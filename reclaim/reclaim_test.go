// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package reclaim

import "testing"

func TestRefCountedDeferredFree(t *testing.T) {
	const w = 3
	r := New[int](Config{Window: w})
	deleted := 0
	r.Register(1, func() { deleted++ })
	r.Acquire(1) // refs == 2

	r.Release(1)
	r.Release(1)
	for i := 1; i <= w; i++ {
		r.GC()
		if deleted != 0 {
			t.Fatalf("destroyed after %d ticks, want survival for %d", i, w)
		}
	}
	r.GC()
	if deleted != 1 {
		t.Fatalf("deleted = %d after W+1 ticks, want 1", deleted)
	}
	for i := 0; i < 5; i++ {
		r.GC()
	}
	if deleted != 1 {
		t.Errorf("deleter invoked %d times, want exactly 1", deleted)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestNeverDestroyedWhileReferenced(t *testing.T) {
	r := New[string](Config{Window: 2})
	deleted := false
	r.Register("a", func() { deleted = true })
	r.Acquire("a")
	r.Acquire("a") // refs == 3

	// Each expiry of the countdown drops one implicit reference; keep
	// re-acquiring so the count never reaches zero.
	for i := 0; i < 20; i++ {
		r.GC()
		r.Acquire("a")
		if deleted {
			t.Fatalf("tick %d: destroyed while referenced", i)
		}
	}
}

func TestImplicitReleaseOnCountdown(t *testing.T) {
	r := New[int](Config{Window: 1})
	deleted := 0
	r.Register(7, func() { deleted++ })

	r.GC() // countdown expires: implicit release, refs 1 -> 0
	r.GC() // the window after the last release
	if deleted != 0 {
		t.Fatal("destroyed before a full window passed after the implicit release")
	}
	r.GC()
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
}

func TestImplicitReleaseRepeats(t *testing.T) {
	const w = 2
	r := New[int](Config{Window: w})
	deleted := 0
	r.Register(1, func() { deleted++ })
	r.Acquire(1) // refs == 2, never released explicitly

	// Two windows drop both references, then one more window must pass.
	for i := 1; i <= 3*w; i++ {
		r.GC()
		if deleted != 0 {
			t.Fatalf("destroyed after %d ticks, want survival for %d", i, 3*w)
		}
	}
	r.GC()
	if deleted != 1 {
		t.Errorf("deleted = %d after %d ticks, want 1", deleted, 3*w+1)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestReleaseAfterHeldTicksRestartsCountdown(t *testing.T) {
	const w = 3
	r := New[int](Config{Window: w})
	deleted := 0
	r.Register(1, func() { deleted++ })
	r.Acquire(1)
	for i := 0; i < w-1; i++ {
		r.GC()
	}
	r.Release(1)
	r.Release(1)

	ticks := 0
	for deleted == 0 && ticks < 10*w {
		r.GC()
		ticks++
	}
	if ticks != w+1 {
		t.Errorf("destroyed %d ticks after the last release, want %d", ticks, w+1)
	}
}

func TestAcquireRefreshesCountdown(t *testing.T) {
	r := New[int](Config{Window: 2})
	deleted := false
	r.Register(1, func() { deleted = true })
	r.Release(1)

	r.GC()
	r.Acquire(1)
	r.Release(1)
	r.GC()
	r.GC()
	if deleted {
		t.Fatal("destroyed before the refreshed countdown elapsed")
	}
	r.GC()
	if !deleted {
		t.Error("not destroyed after the refreshed countdown elapsed")
	}
}

func TestResetForcesDeleters(t *testing.T) {
	r := New[int](Config{Window: 5})
	deleted := 0
	for i := 0; i < 4; i++ {
		r.Register(i, func() { deleted++ })
		r.Acquire(i)
	}
	r.Reset()
	if deleted != 4 {
		t.Errorf("deleted = %d, want 4", deleted)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := New[int](Config{})
	if !r.Register(1, nil) {
		t.Fatal("first Register returned false")
	}
	if r.Register(1, nil) {
		t.Error("duplicate Register returned true")
	}
	if r.Acquire(2) || r.Release(2) {
		t.Error("Acquire/Release of unknown key returned true")
	}
}

func TestHandleKeys(t *testing.T) {
	r := NewFridge(Config{Window: 1})
	r.Register(Handle{Kind: KindBuffer, ID: 1}, nil)
	if !r.Register(Handle{Kind: KindTexture, ID: 1}, nil) {
		t.Error("handles of different kinds with equal IDs collided")
	}
	if got := (Handle{Kind: KindFramebuffer, ID: 4}).String(); got != "framebuffer#4" {
		t.Errorf("String() = %q, want %q", got, "framebuffer#4")
	}
}
