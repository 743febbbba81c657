// Flicksift - Resilient Movie Discovery Data Core
// Copyright 2026 Flicksift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/flicksift/flicksift

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"flicksift.yaml",
	"flicksift.yml",
	"/etc/flicksift/config.yaml",
	"/etc/flicksift/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "FLICKSIFT_CONFIG"

// envPrefix namespaces environment overrides: FLICKSIFT_CATALOG_API_KEY
// maps to catalog.api_key.
const envPrefix = "FLICKSIFT_"

// Default returns a Config with all built-in defaults applied.
// These are overridden by config file and environment variables.
func Default() *Config {
	return &Config{
		Catalog: CatalogConfig{
			BaseURL:           "https://api.themoviedb.org/3",
			APIKey:            "",
			Timeout:           10 * time.Second,
			MaxRetries:        3,
			RetryBaseDelay:    500 * time.Millisecond,
			RetryMaxDelay:     8 * time.Second,
			RequestsPerSecond: 4,
			RateBurst:         8,
			Breaker: BreakerConfig{
				Enabled:      true,
				MaxRequests:  3,
				Interval:     time.Minute,
				Timeout:      2 * time.Minute,
				MinRequests:  10,
				FailureRatio: 0.6,
			},
		},
		Cache: CacheConfig{
			Backend:    "badger",
			Path:       "/data/flicksift/cache",
			DefaultTTL: 6 * time.Hour,
		},
		Coalescer: CoalescerConfig{
			MemoTTL: 30 * time.Second,
		},
		Scoring: ScoringConfig{
			LikedWeight:         1.0,
			SuperLikedWeight:    2.0,
			SkippedWeight:       -0.5,
			RatingSmoothing:     0.9,
			GenreTermWeight:     1.0,
			RatingTermWeight:    0.3,
			HighRatingBoost:     0.5,
			HighRatingThreshold: 7.5,
			RecentReleaseBoost:  0.5,
			RecentReleaseWindow: 90 * 24 * time.Hour,
			Retention:           30 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. FLICKSIFT_-prefixed environment variables (highest priority)
//
// The result is validated before being returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envTransform maps environment variable names to koanf paths:
//
//	FLICKSIFT_CATALOG_API_KEY  -> catalog.api_key
//	FLICKSIFT_CACHE_BACKEND    -> cache.backend
//	FLICKSIFT_LOGGING_LEVEL    -> logging.level
//
// The first underscore-delimited token selects the section; the remainder is
// the key, keeping multi-word keys like retry_base_delay intact.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))

	section, rest, found := strings.Cut(key, "_")
	if !found {
		return key
	}

	// Nested breaker keys: FLICKSIFT_CATALOG_BREAKER_TIMEOUT -> catalog.breaker.timeout
	if section == "catalog" {
		if sub, tail, ok := strings.Cut(rest, "_"); ok && sub == "breaker" {
			return "catalog.breaker." + tail
		}
	}

	return section + "." + rest
}
