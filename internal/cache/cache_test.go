// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cache

import (
	"strconv"
	"testing"

	"github.com/gogpu/gpucache/internal/epoch"
)

// testKey lets tests force hash collisions.
type testKey struct {
	hash uint64
	name string
}

func (k testKey) Hash() uint64             { return k.hash }
func (k testKey) Equal(other testKey) bool { return k == other }

func TestGetInsert(t *testing.T) {
	c := New[testKey, int]()
	k := testKey{hash: 1, name: "a"}

	if _, ok := c.Get(k, 5); ok {
		t.Fatal("Get on empty cache returned ok")
	}
	c.Insert(k, 42, 5)
	e, ok := c.Get(k, 7)
	if !ok {
		t.Fatal("Get after Insert returned !ok")
	}
	if e.Value != 42 {
		t.Errorf("Value = %d, want 42", e.Value)
	}
	if e.LastUsed != 7 {
		t.Errorf("LastUsed = %d, want 7", e.LastUsed)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestHashCollisionKeepsBothEntries(t *testing.T) {
	c := New[testKey, string]()
	a := testKey{hash: 9, name: "a"}
	b := testKey{hash: 9, name: "b"}

	c.Insert(a, "A", 1)
	c.Insert(b, "B", 1)

	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	ea, _ := c.Get(a, 1)
	eb, _ := c.Get(b, 1)
	if ea.Value != "A" || eb.Value != "B" {
		t.Errorf("got %q/%q, want A/B", ea.Value, eb.Value)
	}
}

func TestInsertReplaces(t *testing.T) {
	c := New[testKey, int]()
	k := testKey{hash: 1, name: "a"}
	c.Insert(k, 1, 1)
	c.Insert(k, 2, 3)
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
	e, _ := c.Peek(k)
	if e.Value != 2 || e.LastUsed != 3 {
		t.Errorf("entry = %d@%d, want 2@3", e.Value, e.LastUsed)
	}
}

func TestPeekDoesNotTouch(t *testing.T) {
	c := New[testKey, int]()
	k := testKey{hash: 1}
	c.Insert(k, 1, 1)
	e, _ := c.Peek(k)
	if e.LastUsed != 1 {
		t.Errorf("LastUsed = %d, want 1", e.LastUsed)
	}
	if s := c.Stats(); s.Hits != 0 || s.Misses != 0 {
		t.Errorf("Peek counted: hits=%d misses=%d", s.Hits, s.Misses)
	}
}

func TestEvict(t *testing.T) {
	clock := epoch.New(2)
	c := New[testKey, int]()
	for i := 0; i < 10; i++ {
		c.Insert(testKey{hash: uint64(i % 3), name: strconv.Itoa(i)}, i, clock.Now())
	}
	fresh := testKey{hash: 0, name: "0"}

	for i := 0; i < 3; i++ {
		clock.Tick()
	}
	c.Get(fresh, clock.Now())

	var evicted []int
	n := c.Evict(func(e *Entry[testKey, int]) bool {
		return clock.ShouldEvict(e.LastUsed)
	}, func(e *Entry[testKey, int]) {
		evicted = append(evicted, e.Value)
	})

	if n != 9 || len(evicted) != 9 {
		t.Errorf("evicted %d (callbacks %d), want 9", n, len(evicted))
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
	if _, ok := c.Peek(fresh); !ok {
		t.Error("recently used entry was evicted")
	}
	if got := c.Stats().Evictions; got != 9 {
		t.Errorf("Stats().Evictions = %d, want 9", got)
	}
}

func TestClear(t *testing.T) {
	c := New[testKey, int]()
	for i := 0; i < 4; i++ {
		c.Insert(testKey{hash: uint64(i)}, i, 0)
	}
	calls := 0
	c.Clear(func(*Entry[testKey, int]) { calls++ })
	if calls != 4 {
		t.Errorf("onEvict called %d times, want 4", calls)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestStatsHitRate(t *testing.T) {
	c := New[testKey, int]()
	k := testKey{hash: 1}
	c.Insert(k, 1, 0)
	c.Get(k, 0)
	c.Get(k, 0)
	c.Get(testKey{hash: 2}, 0)
	c.Get(k, 0)

	s := c.Stats()
	if s.Hits != 3 || s.Misses != 1 {
		t.Errorf("hits=%d misses=%d, want 3/1", s.Hits, s.Misses)
	}
	if s.HitRate != 0.75 {
		t.Errorf("HitRate = %v, want 0.75", s.HitRate)
	}
}

func BenchmarkCacheGet(b *testing.B) {
	c := New[testKey, int]()
	for i := 0; i < 100; i++ {
		c.Insert(testKey{hash: uint64(i), name: strconv.Itoa(i)}, i, 0)
	}
	k := testKey{hash: 50, name: "50"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get(k, 1)
	}
}
