// Flicksift - Resilient Movie Discovery Data Core
// Copyright 2026 Flicksift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/flicksift/flicksift

// Package scoring implements the preference scoring engine. Swipe judgments
// feed a per-genre affinity profile and an exponentially smoothed preferred
// rating; candidate items are scored against the profile and ranked for the
// discovery feed.
//
// Signals outside the retention window are dropped lazily on Record, and the
// profile is rebuilt by replaying the retained window, so old judgments age
// out of the profile instead of accumulating forever.
package scoring

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/flicksift/flicksift/internal/catalog"
	"github.com/flicksift/flicksift/internal/config"
)

// Judgment is the outcome of one swipe.
type Judgment string

const (
	JudgmentLiked      Judgment = "liked"
	JudgmentSuperLiked Judgment = "super_liked"
	JudgmentSkipped    Judgment = "skipped"
)

// SwipeSignal is one recorded judgment with the item facts needed to update
// the profile without refetching the item.
type SwipeSignal struct {
	ItemID    int       `json:"item_id"`
	Judgment  Judgment  `json:"judgment"`
	GenreIDs  []int     `json:"genre_ids"`
	Rating    float64   `json:"rating"` // 0-10 scale, 0 = unrated
	Timestamp time.Time `json:"timestamp"`
}

// Profile is a point-in-time snapshot of the learned preferences.
type Profile struct {
	GenreAffinity   map[int]float64 `json:"genre_affinity"`
	PreferredRating float64         `json:"preferred_rating"`
	HasRating       bool            `json:"has_rating"`
	Signals         int             `json:"signals"`
}

// Engine scores and ranks catalog items against recorded swipe judgments.
// It is safe for concurrent use.
type Engine struct {
	mu  sync.RWMutex
	cfg config.ScoringConfig

	// Retained signals, oldest first.
	signals []SwipeSignal

	// Derived profile state, rebuilt when the window shrinks.
	judged          map[int]Judgment
	genreAffinity   map[int]float64
	preferredRating float64
	hasRating       bool

	logger zerolog.Logger

	// now is the clock; tests override it to drive retention and the
	// recent-release boost.
	now func() time.Time
}

// NewEngine creates a scoring engine with the given weights and windows.
func NewEngine(cfg config.ScoringConfig, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:           cfg,
		judged:        make(map[int]Judgment),
		genreAffinity: make(map[int]float64),
		logger:        logger,
		now:           time.Now,
	}
}

// Record stores a swipe judgment and folds it into the profile. A zero
// timestamp is stamped with the current time. Signals older than the
// retention window are pruned, replaying the survivors into a fresh profile.
func (e *Engine) Record(sig SwipeSignal) error {
	switch sig.Judgment {
	case JudgmentLiked, JudgmentSuperLiked, JudgmentSkipped:
	default:
		return fmt.Errorf("unknown judgment %q", sig.Judgment)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if sig.Timestamp.IsZero() {
		sig.Timestamp = now
	}

	e.signals = append(e.signals, sig)

	cutoff := now.Add(-e.cfg.Retention)
	if e.prune(cutoff) {
		e.rebuild()
	} else {
		e.apply(sig)
	}

	e.logger.Debug().
		Int("item_id", sig.ItemID).
		Str("judgment", string(sig.Judgment)).
		Int("signals", len(e.signals)).
		Msg("swipe recorded")
	return nil
}

// prune drops signals before cutoff, reporting whether any were removed.
// Signals are appended in Record order, which is not guaranteed to be
// timestamp order, so the whole window is filtered.
func (e *Engine) prune(cutoff time.Time) bool {
	kept := e.signals[:0]
	for _, s := range e.signals {
		if !s.Timestamp.Before(cutoff) {
			kept = append(kept, s)
		}
	}
	pruned := len(kept) != len(e.signals)
	e.signals = kept
	return pruned
}

// rebuild replays the retained window into a fresh profile.
func (e *Engine) rebuild() {
	e.judged = make(map[int]Judgment, len(e.signals))
	e.genreAffinity = make(map[int]float64)
	e.preferredRating = 0
	e.hasRating = false

	for _, s := range e.signals {
		e.apply(s)
	}
}

// apply folds one signal into the profile. Caller holds the lock.
func (e *Engine) apply(sig SwipeSignal) {
	e.judged[sig.ItemID] = sig.Judgment

	weight := e.judgmentWeight(sig.Judgment)
	for _, g := range sig.GenreIDs {
		e.genreAffinity[g] += weight
	}

	// Only positive judgments teach the rating preference; a skip says
	// nothing about what ratings the user enjoys.
	if sig.Judgment == JudgmentSkipped || sig.Rating <= 0 {
		return
	}
	if !e.hasRating {
		e.preferredRating = sig.Rating
		e.hasRating = true
		return
	}
	s := e.cfg.RatingSmoothing
	e.preferredRating = e.preferredRating*s + sig.Rating*(1-s)
}

func (e *Engine) judgmentWeight(j Judgment) float64 {
	switch j {
	case JudgmentSuperLiked:
		return e.cfg.SuperLikedWeight
	case JudgmentSkipped:
		return e.cfg.SkippedWeight
	default:
		return e.cfg.LikedWeight
	}
}

// Score computes the preference score of one item against the profile.
// Higher is better; unjudged genres and absent history score neutrally.
func (e *Engine) Score(item catalog.CatalogItem) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scoreLocked(item, e.now())
}

func (e *Engine) scoreLocked(item catalog.CatalogItem, now time.Time) float64 {
	score := e.cfg.GenreTermWeight * e.avgGenreAffinity(item.GenreIDs)

	// Closeness to the preferred rating on a 0-10 scale. Before any rating
	// preference exists the item's own rating stands in, so better-rated
	// items still sort first.
	closeness := item.Rating
	if e.hasRating {
		diff := item.Rating - e.preferredRating
		if diff < 0 {
			diff = -diff
		}
		closeness = 10 - diff
	}
	score += e.cfg.RatingTermWeight * closeness

	if item.Rating >= e.cfg.HighRatingThreshold {
		score += e.cfg.HighRatingBoost
	}
	if !item.ReleaseDate.IsZero() && now.Sub(item.ReleaseDate) <= e.cfg.RecentReleaseWindow {
		score += e.cfg.RecentReleaseBoost
	}

	return score
}

func (e *Engine) avgGenreAffinity(genres []int) float64 {
	if len(genres) == 0 {
		return 0
	}
	sum := 0.0
	for _, g := range genres {
		sum += e.genreAffinity[g]
	}
	return sum / float64(len(genres))
}

// Rank returns the items ordered by descending score. The sort is stable, so
// equally scored items keep their incoming order. The input is not modified.
func (e *Engine) Rank(items []catalog.CatalogItem) []catalog.CatalogItem {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.now()
	type scored struct {
		item  catalog.CatalogItem
		score float64
	}
	entries := make([]scored, len(items))
	for i, item := range items {
		entries[i] = scored{item: item, score: e.scoreLocked(item, now)}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].score > entries[j].score
	})

	ranked := make([]catalog.CatalogItem, len(entries))
	for i, en := range entries {
		ranked[i] = en.item
	}
	return ranked
}

// FilterJudged returns the items that have no recorded judgment, preserving
// order. Liked and skipped items are removed alike.
func (e *Engine) FilterJudged(items []catalog.CatalogItem) []catalog.CatalogItem {
	e.mu.RLock()
	defer e.mu.RUnlock()

	fresh := make([]catalog.CatalogItem, 0, len(items))
	for _, item := range items {
		if _, ok := e.judged[item.ID]; ok {
			continue
		}
		fresh = append(fresh, item)
	}
	return fresh
}

// Profile returns a snapshot of the learned preferences.
func (e *Engine) Profile() Profile {
	e.mu.RLock()
	defer e.mu.RUnlock()

	affinity := make(map[int]float64, len(e.genreAffinity))
	for g, w := range e.genreAffinity {
		affinity[g] = w
	}
	return Profile{
		GenreAffinity:   affinity,
		PreferredRating: e.preferredRating,
		HasRating:       e.hasRating,
		Signals:         len(e.signals),
	}
}
