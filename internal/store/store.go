// Flicksift - Resilient Movie Discovery Data Core
// Copyright 2026 Flicksift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/flicksift/flicksift

// Package store implements the offline catalog cache: a write-through store of
// catalog items and ordered category listings that survives loss of
// connectivity. Two backends exist, an in-memory store and a BadgerDB-backed
// one, selected by a factory from configuration.
package store

import (
	"time"

	"github.com/flicksift/flicksift/internal/catalog"
)

// CachedEntry wraps a catalog item with its cache bookkeeping. Entries past
// ExpiresAt are treated as absent on read and reclaimed by EvictExpired.
type CachedEntry struct {
	Item      catalog.CatalogItem `json:"item"`
	CachedAt  time.Time           `json:"cached_at"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// Expired reports whether the entry is past its expiry at the given instant.
func (e *CachedEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Stats is a point-in-time snapshot of store contents. Items counts every
// entry held; Valid counts only those not yet expired.
type Stats struct {
	Items      int `json:"items"`
	Valid      int `json:"valid"`
	Categories int `json:"categories"`
}

// CatalogStore is the offline cache surface used by the discovery tier.
//
// Lookups never fail: absent and expired entries both read as a miss. Write
// errors surface only from the durable backend; the memory backend's writes
// always succeed.
type CatalogStore interface {
	// Put caches a single item with the given TTL.
	Put(item catalog.CatalogItem, ttl time.Duration) error

	// Get returns the cached item for id, or ok=false when absent or expired.
	Get(id int) (catalog.CatalogItem, bool)

	// PutCategory replaces the named category listing wholesale, caching
	// every listed item with the given TTL. Order is preserved.
	PutCategory(name string, items []catalog.CatalogItem, ttl time.Duration) error

	// GetCategory returns the unexpired items of a category in stored order,
	// or ok=false when the category is unknown or fully expired.
	GetCategory(name string) ([]catalog.CatalogItem, bool)

	// HasValid reports whether the category has at least one unexpired item.
	HasValid(name string) bool

	// EvictExpired removes expired entries and prunes their ids from every
	// category index. Returns the number of items removed. Idempotent.
	EvictExpired() (int, error)

	// Clear empties the store.
	Clear() error

	// Stats returns current item and category counts.
	Stats() Stats

	// Close releases backend resources. Safe to call once.
	Close() error
}
