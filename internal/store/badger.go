// Flicksift - Resilient Movie Discovery Data Core
// Copyright 2026 Flicksift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/flicksift/flicksift

package store

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/flicksift/flicksift/internal/catalog"
)

// Key prefixes for BadgerDB storage
const (
	itemKeyPrefix     = "item:"
	categoryKeyPrefix = "category:"
)

func itemKey(id int) []byte {
	return []byte(itemKeyPrefix + strconv.Itoa(id))
}

func categoryKey(name string) []byte {
	return []byte(categoryKeyPrefix + name)
}

// BadgerStore is the durable offline cache backend. All reads are served from
// an in-memory mirror rebuilt from BadgerDB at open; every mutation writes
// through to disk so cached catalog data survives restarts.
//
// Badger entries carry their TTL natively, so disk space for expired entries
// is reclaimed by Badger itself even if EvictExpired is never called.
type BadgerStore struct {
	mem    *MemoryStore
	db     *badger.DB
	logger zerolog.Logger
}

// NewBadgerStore builds a store over an already-open BadgerDB, reloading any
// surviving entries into the in-memory mirror. Corrupt values are skipped
// with a warning rather than failing the open.
func NewBadgerStore(db *badger.DB, logger zerolog.Logger) (*BadgerStore, error) {
	s := &BadgerStore{
		mem:    NewMemoryStore(),
		db:     db,
		logger: logger,
	}
	if err := s.reload(); err != nil {
		return nil, fmt.Errorf("reload offline cache: %w", err)
	}
	return s, nil
}

// reload rebuilds the in-memory mirror from disk. Runs before the store is
// published, so it writes the mirror's maps without locking.
func (s *BadgerStore) reload() error {
	items := 0
	categories := 0

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(itemKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var entry CachedEntry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				s.logger.Warn().Str("key", string(it.Item().Key())).Err(err).
					Msg("skipping corrupt cache entry")
				continue
			}
			s.mem.items[entry.Item.ID] = entry
			items++
		}

		prefix = []byte(categoryKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			name := strings.TrimPrefix(string(it.Item().Key()), categoryKeyPrefix)
			var ids []int
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &ids)
			})
			if err != nil {
				s.logger.Warn().Str("category", name).Err(err).
					Msg("skipping corrupt category index")
				continue
			}
			s.mem.categories[name] = ids
			categories++
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().Int("items", items).Int("categories", categories).
		Msg("offline cache reloaded from disk")
	return nil
}

// Put caches a single item, writing through to disk.
func (s *BadgerStore) Put(item catalog.CatalogItem, ttl time.Duration) error {
	if err := s.mem.Put(item, ttl); err != nil {
		return err
	}

	entry, _ := s.mem.entry(item.ID)
	data, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(itemKey(item.ID), data).WithTTL(ttl))
	})
}

// Get returns the cached item for id, or ok=false when absent or expired.
func (s *BadgerStore) Get(id int) (catalog.CatalogItem, bool) {
	return s.mem.Get(id)
}

// PutCategory replaces the named category listing wholesale, on disk and in
// the mirror.
func (s *BadgerStore) PutCategory(name string, items []catalog.CatalogItem, ttl time.Duration) error {
	if err := s.mem.PutCategory(name, items, ttl); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		ids := make([]int, len(items))
		for i := range items {
			ids[i] = items[i].ID

			entry, ok := s.mem.entry(items[i].ID)
			if !ok {
				continue
			}
			data, err := json.Marshal(&entry)
			if err != nil {
				return fmt.Errorf("marshal cache entry: %w", err)
			}
			if err := txn.SetEntry(badger.NewEntry(itemKey(items[i].ID), data).WithTTL(ttl)); err != nil {
				return fmt.Errorf("set item: %w", err)
			}
		}

		data, err := json.Marshal(ids)
		if err != nil {
			return fmt.Errorf("marshal category index: %w", err)
		}
		if err := txn.SetEntry(badger.NewEntry(categoryKey(name), data).WithTTL(ttl)); err != nil {
			return fmt.Errorf("set category: %w", err)
		}
		return nil
	})
}

// GetCategory returns the unexpired items of a category in stored order.
func (s *BadgerStore) GetCategory(name string) ([]catalog.CatalogItem, bool) {
	return s.mem.GetCategory(name)
}

// HasValid reports whether the category has at least one unexpired item.
func (s *BadgerStore) HasValid(name string) bool {
	return s.mem.HasValid(name)
}

// EvictExpired removes expired entries from the mirror and from disk. Category
// indices pruned by the sweep are rewritten on disk in the same transaction so
// a reload never resurrects dangling ids.
func (s *BadgerStore) EvictExpired() (int, error) {
	before := s.mem.categoryIndices()
	expired := s.mem.expiredIDs()
	removed, err := s.mem.EvictExpired()
	if err != nil {
		return removed, err
	}
	if len(expired) == 0 {
		return removed, nil
	}
	after := s.mem.categoryIndices()

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, id := range expired {
			if err := txn.Delete(itemKey(id)); err != nil && !isNotFound(err) {
				return fmt.Errorf("delete item: %w", err)
			}
		}

		for name, old := range before {
			ids, ok := after[name]
			if !ok {
				if err := txn.Delete(categoryKey(name)); err != nil && !isNotFound(err) {
					return fmt.Errorf("delete category: %w", err)
				}
				continue
			}
			// Pruning only removes ids, so an unchanged length means an
			// unchanged index.
			if len(ids) == len(old) {
				continue
			}

			data, err := json.Marshal(ids)
			if err != nil {
				return fmt.Errorf("marshal category index: %w", err)
			}
			entry := badger.NewEntry(categoryKey(name), data)
			if prev, err := txn.Get(categoryKey(name)); err == nil {
				entry.ExpiresAt = prev.ExpiresAt()
			}
			if err := txn.SetEntry(entry); err != nil {
				return fmt.Errorf("set category: %w", err)
			}
		}
		return nil
	})
	return removed, err
}

// Clear empties the mirror and drops all disk data.
func (s *BadgerStore) Clear() error {
	if err := s.mem.Clear(); err != nil {
		return err
	}
	return s.db.DropAll()
}

// Stats returns current item and category counts.
func (s *BadgerStore) Stats() Stats {
	return s.mem.Stats()
}

// Close closes the underlying BadgerDB.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func isNotFound(err error) bool {
	return errors.Is(err, badger.ErrKeyNotFound)
}
