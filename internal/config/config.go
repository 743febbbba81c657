// Flicksift - Resilient Movie Discovery Data Core
// Copyright 2026 Flicksift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/flicksift/flicksift

// Package config defines the Flicksift configuration model and its koanf-based
// loader. Configuration is layered: built-in defaults, then an optional YAML
// file, then FLICKSIFT_-prefixed environment variables. Every loaded Config is
// validated before use.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the data core.
type Config struct {
	Catalog   CatalogConfig   `koanf:"catalog"`
	Cache     CacheConfig     `koanf:"cache"`
	Coalescer CoalescerConfig `koanf:"coalescer"`
	Scoring   ScoringConfig   `koanf:"scoring"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// CatalogConfig configures the remote catalog client.
type CatalogConfig struct {
	// BaseURL is the metadata service root, e.g. "https://api.themoviedb.org/3".
	BaseURL string `koanf:"base_url" validate:"required,url"`

	// APIKey authenticates every request.
	APIKey string `koanf:"api_key" validate:"required"`

	// Timeout applies per network attempt, not per logical call.
	Timeout time.Duration `koanf:"timeout"`

	// MaxRetries caps retry attempts for retryable failures.
	MaxRetries int `koanf:"max_retries" validate:"min=0,max=10"`

	// RetryBaseDelay is the backoff base; attempt n waits
	// base * 2^n plus uniform jitter, capped at RetryMaxDelay.
	RetryBaseDelay time.Duration `koanf:"retry_base_delay"`
	RetryMaxDelay  time.Duration `koanf:"retry_max_delay"`

	// RequestsPerSecond is the client-side rate limit ahead of every attempt.
	// Zero disables limiting.
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"min=0"`
	RateBurst         int     `koanf:"rate_burst" validate:"min=0"`

	// Breaker configures the circuit breaker wrapping the client.
	Breaker BreakerConfig `koanf:"breaker"`
}

// BreakerConfig configures the sony/gobreaker circuit breaker.
type BreakerConfig struct {
	Enabled bool `koanf:"enabled"`

	// MaxRequests allowed through in half-open state.
	MaxRequests uint32 `koanf:"max_requests"`

	// Interval resets failure counts while closed.
	Interval time.Duration `koanf:"interval"`

	// Timeout before an open breaker transitions to half-open.
	Timeout time.Duration `koanf:"timeout"`

	// MinRequests and FailureRatio gate the trip decision.
	MinRequests  uint32  `koanf:"min_requests"`
	FailureRatio float64 `koanf:"failure_ratio" validate:"min=0,max=1"`
}

// CacheConfig configures the offline catalog cache.
type CacheConfig struct {
	// Backend selects the store implementation: "memory" or "badger".
	Backend string `koanf:"backend" validate:"oneof=memory badger"`

	// Path is the BadgerDB directory; required for the badger backend.
	Path string `koanf:"path"`

	// DefaultTTL applies when callers cache without an explicit TTL.
	DefaultTTL time.Duration `koanf:"default_ttl"`
}

// CoalescerConfig configures the request coalescer.
type CoalescerConfig struct {
	// MemoTTL is the short window during which a completed result is
	// returned without re-executing. Zero disables memoization.
	MemoTTL time.Duration `koanf:"memo_ttl"`
}

// ScoringConfig configures the preference scoring engine.
// Only the directional behavior of these parameters is contractual; the
// values are hand-tunable.
type ScoringConfig struct {
	// Judgment weights applied to each genre of a judged item.
	LikedWeight      float64 `koanf:"liked_weight"`
	SuperLikedWeight float64 `koanf:"super_liked_weight"`
	SkippedWeight    float64 `koanf:"skipped_weight"`

	// RatingSmoothing is the exponential smoothing retention factor for the
	// preferred-rating scalar: preferred = preferred*s + rating*(1-s).
	RatingSmoothing float64 `koanf:"rating_smoothing" validate:"gt=0,lt=1"`

	// Score term weights.
	GenreTermWeight  float64 `koanf:"genre_term_weight" validate:"min=0"`
	RatingTermWeight float64 `koanf:"rating_term_weight" validate:"min=0"`

	// Fixed boosts.
	HighRatingBoost     float64       `koanf:"high_rating_boost" validate:"min=0"`
	HighRatingThreshold float64       `koanf:"high_rating_threshold" validate:"min=0,max=10"`
	RecentReleaseBoost  float64       `koanf:"recent_release_boost" validate:"min=0"`
	RecentReleaseWindow time.Duration `koanf:"recent_release_window"`

	// Retention is the rolling window for swipe signals.
	Retention time.Duration `koanf:"retention"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

var validate = validator.New()

// Validate checks tagged constraints plus the cross-field rules the tags
// cannot express. Called by Load; exported for configs built by hand.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	checks := []func() error{
		c.validateCatalog,
		c.validateCache,
		c.validateScoring,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateCatalog() error {
	if _, err := url.Parse(c.Catalog.BaseURL); err != nil {
		return fmt.Errorf("catalog.base_url is invalid: %w", err)
	}
	if c.Catalog.Timeout <= 0 {
		return fmt.Errorf("catalog.timeout must be positive")
	}
	if c.Catalog.RetryBaseDelay <= 0 {
		return fmt.Errorf("catalog.retry_base_delay must be positive")
	}
	if c.Catalog.RetryMaxDelay < c.Catalog.RetryBaseDelay {
		return fmt.Errorf("catalog.retry_max_delay must be >= catalog.retry_base_delay")
	}
	if c.Catalog.RequestsPerSecond > 0 && c.Catalog.RateBurst < 1 {
		return fmt.Errorf("catalog.rate_burst must be >= 1 when rate limiting is enabled")
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.Backend == "badger" && c.Cache.Path == "" {
		return fmt.Errorf("cache.path is required for the badger backend")
	}
	if c.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("cache.default_ttl must be positive")
	}
	return nil
}

func (c *Config) validateScoring() error {
	if c.Scoring.SuperLikedWeight < c.Scoring.LikedWeight {
		return fmt.Errorf("scoring.super_liked_weight must be >= scoring.liked_weight")
	}
	if c.Scoring.SkippedWeight >= 0 {
		return fmt.Errorf("scoring.skipped_weight must be negative")
	}
	if c.Scoring.Retention <= 0 {
		return fmt.Errorf("scoring.retention must be positive")
	}
	return nil
}
