// Flicksift - Resilient Movie Discovery Data Core
// Copyright 2026 Flicksift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/flicksift/flicksift

package store

import (
	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/flicksift/flicksift/internal/config"
)

// Backend names accepted in CacheConfig.Backend.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// New creates the offline cache backend selected by cfg. A durable backend
// that fails to open degrades to the memory backend with a warning: a missing
// cache must never keep the application from starting.
func New(cfg config.CacheConfig, logger zerolog.Logger) CatalogStore {
	if cfg.Backend != BackendBadger {
		return NewMemoryStore()
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.Logger = nil // Suppress BadgerDB logs

	db, err := badger.Open(opts)
	if err != nil {
		logger.Warn().Str("path", cfg.Path).Err(err).
			Msg("cannot open offline cache, degrading to memory backend")
		return NewMemoryStore()
	}

	s, err := NewBadgerStore(db, logger)
	if err != nil {
		logger.Warn().Str("path", cfg.Path).Err(err).
			Msg("cannot reload offline cache, degrading to memory backend")
		_ = db.Close()
		return NewMemoryStore()
	}
	return s
}
