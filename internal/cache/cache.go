// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cache

import "github.com/gogpu/gpucache/internal/epoch"

// Key is a cache key that carries its own content hash. Equal must agree
// with Hash: equal keys hash equally. Unequal keys may share a hash; they
// then occupy separate entries of the same bucket.
type Key[K any] interface {
	Hash() uint64
	Equal(other K) bool
}

// Entry is a cached value with its last-access epoch.
type Entry[K Key[K], V any] struct {
	Key      K
	Value    V
	LastUsed epoch.Epoch
}

// Cache is a content-addressed cache with epoch-based aging.
// Entries are never evicted implicitly; callers sweep with Evict.
//
// Cache is not safe for concurrent use.
type Cache[K Key[K], V any] struct {
	buckets map[uint64][]*Entry[K, V]
	n       int

	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates an empty cache.
func New[K Key[K], V any]() *Cache[K, V] {
	return &Cache[K, V]{
		buckets: make(map[uint64][]*Entry[K, V]),
	}
}

// Get returns the entry for key and stamps it with now.
func (c *Cache[K, V]) Get(key K, now epoch.Epoch) (*Entry[K, V], bool) {
	e := c.find(key)
	if e == nil {
		c.misses++
		return nil, false
	}
	c.hits++
	e.LastUsed = now
	return e, true
}

// Peek returns the entry for key without touching its epoch or the
// hit/miss counters.
func (c *Cache[K, V]) Peek(key K) (*Entry[K, V], bool) {
	e := c.find(key)
	return e, e != nil
}

func (c *Cache[K, V]) find(key K) *Entry[K, V] {
	for _, e := range c.buckets[key.Hash()] {
		if e.Key.Equal(key) {
			return e
		}
	}
	return nil
}

// Insert stores value under key, stamped with now. An existing entry with
// an equal key is replaced.
func (c *Cache[K, V]) Insert(key K, value V, now epoch.Epoch) *Entry[K, V] {
	h := key.Hash()
	if e := c.find(key); e != nil {
		e.Value = value
		e.LastUsed = now
		return e
	}
	e := &Entry[K, V]{Key: key, Value: value, LastUsed: now}
	c.buckets[h] = append(c.buckets[h], e)
	c.n++
	return e
}

// Evict removes every entry for which pred returns true, calling onEvict
// for each removed entry. It returns the number of removed entries.
func (c *Cache[K, V]) Evict(pred func(*Entry[K, V]) bool, onEvict func(*Entry[K, V])) int {
	removed := 0
	for h, bucket := range c.buckets {
		kept := bucket[:0]
		for _, e := range bucket {
			if pred(e) {
				if onEvict != nil {
					onEvict(e)
				}
				removed++
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(c.buckets, h)
		} else {
			clear(bucket[len(kept):])
			c.buckets[h] = kept
		}
	}
	c.n -= removed
	c.evictions += uint64(removed)
	return removed
}

// Range calls fn for every entry until fn returns false.
func (c *Cache[K, V]) Range(fn func(*Entry[K, V]) bool) {
	for _, bucket := range c.buckets {
		for _, e := range bucket {
			if !fn(e) {
				return
			}
		}
	}
}

// Clear removes all entries, calling onEvict for each.
func (c *Cache[K, V]) Clear(onEvict func(*Entry[K, V])) {
	if onEvict != nil {
		c.Range(func(e *Entry[K, V]) bool {
			onEvict(e)
			return true
		})
	}
	c.buckets = make(map[uint64][]*Entry[K, V])
	c.n = 0
}

// Len returns the number of entries in the cache.
func (c *Cache[K, V]) Len() int {
	return c.n
}

// Stats returns cache statistics.
func (c *Cache[K, V]) Stats() Stats {
	s := Stats{
		Len:       c.n,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// Stats contains cache statistics.
type Stats struct {
	// Len is the current number of entries.
	Len int
	// Hits is the number of Get calls that found an entry.
	Hits uint64
	// Misses is the number of Get calls that found nothing.
	Misses uint64
	// HitRate is the cache hit rate 0.0 to 1.0.
	HitRate float64
	// Evictions is the number of entries removed by Evict.
	Evictions uint64
}
