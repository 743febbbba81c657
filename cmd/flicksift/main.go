// Flicksift - Resilient Movie Discovery Data Core
// Copyright 2026 Flicksift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/flicksift/flicksift

// Package main is the Flicksift command-line entry point.
//
// Flicksift is the data core of a swipe-based movie discovery client. This
// binary wires the full stack together and prints a ranked discovery feed
// for one catalog category:
//
//  1. Configuration: defaults, optional flicksift.yaml, FLICKSIFT_ env vars
//  2. Offline cache: memory or BadgerDB backend, selected by configuration
//  3. Catalog client: rate-limited, retrying, circuit-broken TMDB-style API
//  4. Discovery tier: coalesced fetches, cache write-through, offline fallback
//
// # Configuration
//
// The remote catalog needs an API key:
//
//	export FLICKSIFT_CATALOG_API_KEY=your-api-key
//	flicksift trending
//
// Durable offline cache:
//
//	export FLICKSIFT_CACHE_BACKEND=badger
//	export FLICKSIFT_CACHE_PATH=/data/flicksift/cache
//	flicksift popular
//
// When the network is down, a previously fetched listing is served from the
// offline cache instead of failing.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/flicksift/flicksift/internal/catalog"
	"github.com/flicksift/flicksift/internal/config"
	"github.com/flicksift/flicksift/internal/discovery"
	"github.com/flicksift/flicksift/internal/logging"
	"github.com/flicksift/flicksift/internal/scoring"
	"github.com/flicksift/flicksift/internal/store"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Timestamp: true,
	})

	logging.Info().
		Str("catalog_url", cfg.Catalog.BaseURL).
		Str("cache_backend", cfg.Cache.Backend).
		Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := store.New(cfg.Cache, logging.Component("store"))
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing offline cache")
		}
	}()

	client := catalog.NewClient(cfg.Catalog, logging.Component("catalog"))
	var fetcher catalog.Fetcher = client
	if cfg.Catalog.Breaker.Enabled {
		fetcher = catalog.NewBreakerClient(cfg.Catalog, client)
	}

	scorer := scoring.NewEngine(cfg.Scoring, logging.Component("scoring"))
	svc := discovery.NewService(fetcher, st, scorer, *cfg, logging.Component("discovery"))

	category := "trending"
	if len(os.Args) > 1 {
		category = os.Args[1]
	}

	deck, err := svc.Discover(ctx, category, 1)
	if err != nil {
		logging.Fatal().Str("category", category).Err(err).Msg("Discovery failed")
	}

	fmt.Printf("%s (%d items)\n", category, len(deck))
	for i, item := range deck {
		year := "----"
		if !item.ReleaseDate.IsZero() {
			year = fmt.Sprintf("%d", item.ReleaseDate.Year())
		}
		fmt.Printf("%3d. %-45s %s  %.1f\n", i+1, item.Title, year, item.Rating)
	}
}
