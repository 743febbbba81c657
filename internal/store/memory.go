// Flicksift - Resilient Movie Discovery Data Core
// Copyright 2026 Flicksift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/flicksift/flicksift

package store

import (
	"sync"
	"time"

	"github.com/flicksift/flicksift/internal/catalog"
	"github.com/flicksift/flicksift/internal/metrics"
)

// MemoryStore is the in-memory offline cache backend. It is the default
// backend and the degradation target when the durable backend cannot open.
type MemoryStore struct {
	mu         sync.RWMutex
	items      map[int]CachedEntry
	categories map[string][]int

	// now is the clock; tests override it to drive expiry.
	now func() time.Time
}

// NewMemoryStore creates an empty in-memory catalog store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:      make(map[int]CachedEntry),
		categories: make(map[string][]int),
		now:        time.Now,
	}
}

// Put caches a single item with the given TTL.
func (s *MemoryStore) Put(item catalog.CatalogItem, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(item, ttl)
	metrics.CacheItems.Set(float64(len(s.items)))
	return nil
}

func (s *MemoryStore) putLocked(item catalog.CatalogItem, ttl time.Duration) {
	now := s.now()
	s.items[item.ID] = CachedEntry{
		Item:      item,
		CachedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

// Get returns the cached item for id, or ok=false when absent or expired.
func (s *MemoryStore) Get(id int) (catalog.CatalogItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.items[id]
	if !ok || entry.Expired(s.now()) {
		metrics.CacheMisses.WithLabelValues("item").Inc()
		return catalog.CatalogItem{}, false
	}

	metrics.CacheHits.WithLabelValues("item").Inc()
	return entry.Item, true
}

// PutCategory replaces the named category listing wholesale.
func (s *MemoryStore) PutCategory(name string, items []catalog.CatalogItem, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int, len(items))
	for i := range items {
		s.putLocked(items[i], ttl)
		ids[i] = items[i].ID
	}
	s.categories[name] = ids
	metrics.CacheItems.Set(float64(len(s.items)))
	return nil
}

// GetCategory returns the unexpired items of a category in stored order.
func (s *MemoryStore) GetCategory(name string) ([]catalog.CatalogItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, ok := s.categories[name]
	if !ok {
		metrics.CacheMisses.WithLabelValues("category").Inc()
		return nil, false
	}

	now := s.now()
	items := make([]catalog.CatalogItem, 0, len(ids))
	for _, id := range ids {
		entry, ok := s.items[id]
		if !ok || entry.Expired(now) {
			continue
		}
		items = append(items, entry.Item)
	}

	if len(items) == 0 {
		metrics.CacheMisses.WithLabelValues("category").Inc()
		return nil, false
	}

	metrics.CacheHits.WithLabelValues("category").Inc()
	return items, true
}

// HasValid reports whether the category has at least one unexpired item.
func (s *MemoryStore) HasValid(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	for _, id := range s.categories[name] {
		if entry, ok := s.items[id]; ok && !entry.Expired(now) {
			return true
		}
	}
	return false
}

// EvictExpired removes expired entries and prunes category indices.
func (s *MemoryStore) EvictExpired() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, entry := range s.items {
		if entry.Expired(now) {
			delete(s.items, id)
			removed++
		}
	}

	if removed > 0 {
		for name, ids := range s.categories {
			kept := ids[:0]
			for _, id := range ids {
				if _, ok := s.items[id]; ok {
					kept = append(kept, id)
				}
			}
			if len(kept) == 0 {
				delete(s.categories, name)
				continue
			}
			s.categories[name] = kept
		}
	}

	metrics.CacheEvictions.Add(float64(removed))
	metrics.CacheItems.Set(float64(len(s.items)))
	return removed, nil
}

// Clear empties the store.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[int]CachedEntry)
	s.categories = make(map[string][]int)
	metrics.CacheItems.Set(0)
	return nil
}

// Stats returns current item and category counts.
func (s *MemoryStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	valid := 0
	for _, entry := range s.items {
		if !entry.Expired(now) {
			valid++
		}
	}
	return Stats{Items: len(s.items), Valid: valid, Categories: len(s.categories)}
}

// Close is a no-op for the memory backend.
func (s *MemoryStore) Close() error {
	return nil
}

// entry returns the raw cache entry for id regardless of expiry. Used by the
// durable backend to serialize exactly what the mirror holds.
func (s *MemoryStore) entry(id int) (CachedEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.items[id]
	return entry, ok
}

// categoryIndices returns a copy of every category index. Used by the durable
// backend to diff indices across an eviction sweep.
func (s *MemoryStore) categoryIndices() map[string][]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]int, len(s.categories))
	for name, ids := range s.categories {
		out[name] = append([]int(nil), ids...)
	}
	return out
}

// expiredIDs lists ids that the next EvictExpired sweep would remove.
func (s *MemoryStore) expiredIDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	var ids []int
	for id, entry := range s.items {
		if entry.Expired(now) {
			ids = append(ids, id)
		}
	}
	return ids
}
