// Flicksift - Resilient Movie Discovery Data Core
// Copyright 2026 Flicksift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/flicksift/flicksift

// Package discovery is the composition tier over the catalog client, request
// coalescer, offline cache, and scoring engine. It is the surface the
// presentation layer calls: every fetch is coalesced, successful results are
// written through to the offline cache, and category fetches fall back to the
// cache when the network fails.
package discovery

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/flicksift/flicksift/internal/catalog"
	"github.com/flicksift/flicksift/internal/coalesce"
	"github.com/flicksift/flicksift/internal/config"
	"github.com/flicksift/flicksift/internal/metrics"
	"github.com/flicksift/flicksift/internal/scoring"
	"github.com/flicksift/flicksift/internal/store"
)

// Service wires the data-plane components together.
type Service struct {
	client   catalog.Fetcher
	pages    *coalesce.Coalescer[*catalog.CatalogPage]
	items    *coalesce.Coalescer[*catalog.CatalogItem]
	store    store.CatalogStore
	scorer   *scoring.Engine
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// NewService builds the discovery tier from its collaborators.
func NewService(
	client catalog.Fetcher,
	st store.CatalogStore,
	scorer *scoring.Engine,
	cfg config.Config,
	logger zerolog.Logger,
) *Service {
	return &Service{
		client:   client,
		pages:    coalesce.New[*catalog.CatalogPage](cfg.Coalescer.MemoTTL),
		items:    coalesce.New[*catalog.CatalogItem](cfg.Coalescer.MemoTTL),
		store:    st,
		scorer:   scorer,
		cacheTTL: cfg.Cache.DefaultTTL,
		logger:   logger,
	}
}

// Category returns one page of a named category listing. Concurrent calls for
// the same page share one network request. On success the result is written
// through to the offline cache; on a transport failure the first page falls
// back to the cached listing, and the original error surfaces only when the
// cache is empty too.
func (s *Service) Category(ctx context.Context, name string, page int) (*catalog.CatalogPage, error) {
	key := categoryPageKey(name, page)
	result, err := s.pages.Do(ctx, key, func(ctx context.Context) (*catalog.CatalogPage, error) {
		return s.client.FetchCategory(ctx, name, page)
	})
	if err == nil {
		s.cachePage(name, page, result)
		return result, nil
	}

	// Only the first page is a sensible offline listing.
	if page != 1 {
		return nil, err
	}

	cached, ok := s.store.GetCategory(name)
	if !ok {
		metrics.OfflineFallbacks.WithLabelValues("empty").Inc()
		return nil, err
	}

	metrics.OfflineFallbacks.WithLabelValues("hit").Inc()
	s.logger.Warn().Str("category", name).Err(err).Int("items", len(cached)).
		Msg("serving category from offline cache")

	return &catalog.CatalogPage{
		Items:        cached,
		Page:         1,
		TotalPages:   1,
		TotalResults: len(cached),
	}, nil
}

// Search returns one page of search results. Results are coalesced and their
// items cached individually, but searches have no offline fallback: a stale
// listing for an arbitrary query is worth less than an honest error.
func (s *Service) Search(ctx context.Context, query string, page int) (*catalog.CatalogPage, error) {
	key := searchKey(query, page)
	result, err := s.pages.Do(ctx, key, func(ctx context.Context) (*catalog.CatalogPage, error) {
		return s.client.Search(ctx, query, page)
	})
	if err != nil {
		return nil, err
	}

	for i := range result.Items {
		if perr := s.store.Put(result.Items[i], s.cacheTTL); perr != nil {
			s.logger.Warn().Int("item_id", result.Items[i].ID).Err(perr).
				Msg("cache write failed")
		}
	}
	return result, nil
}

// Item returns one item's detail, serving from the offline cache when a fresh
// copy is present and fetching (coalesced) otherwise.
func (s *Service) Item(ctx context.Context, id int) (*catalog.CatalogItem, error) {
	if item, ok := s.store.Get(id); ok {
		return &item, nil
	}

	result, err := s.items.Do(ctx, itemKey(id), func(ctx context.Context) (*catalog.CatalogItem, error) {
		return s.client.FetchItem(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	if perr := s.store.Put(*result, s.cacheTTL); perr != nil {
		s.logger.Warn().Int("item_id", id).Err(perr).Msg("cache write failed")
	}
	return result, nil
}

// Discover returns a category page filtered of already-judged items and
// ranked by the preference profile. This is the feed the swipe deck consumes.
func (s *Service) Discover(ctx context.Context, name string, page int) ([]catalog.CatalogItem, error) {
	result, err := s.Category(ctx, name, page)
	if err != nil {
		return nil, err
	}

	fresh := s.scorer.FilterJudged(result.Items)
	return s.scorer.Rank(fresh), nil
}

// RecordSwipe feeds one judgment into the preference profile.
func (s *Service) RecordSwipe(sig scoring.SwipeSignal) error {
	if err := s.scorer.Record(sig); err != nil {
		return fmt.Errorf("record swipe: %w", err)
	}
	return nil
}

// Profile exposes the current preference snapshot.
func (s *Service) Profile() scoring.Profile {
	return s.scorer.Profile()
}

// cachePage writes a fetched page through to the offline cache. The first
// page replaces the category listing; deeper pages only cache their items.
func (s *Service) cachePage(name string, page int, result *catalog.CatalogPage) {
	var err error
	if page == 1 {
		err = s.store.PutCategory(name, result.Items, s.cacheTTL)
	} else {
		for i := range result.Items {
			if perr := s.store.Put(result.Items[i], s.cacheTTL); perr != nil {
				err = perr
			}
		}
	}
	if err != nil {
		s.logger.Warn().Str("category", name).Int("page", page).Err(err).
			Msg("cache write failed")
	}
}

func categoryPageKey(name string, page int) string {
	return "category:" + name + ":p" + strconv.Itoa(page)
}

func searchKey(query string, page int) string {
	return "search:" + strings.ToLower(strings.TrimSpace(query)) + ":p" + strconv.Itoa(page)
}

func itemKey(id int) string {
	return "item:" + strconv.Itoa(id)
}
