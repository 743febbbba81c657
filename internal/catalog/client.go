// Flicksift - Resilient Movie Discovery Data Core
// Copyright 2026 Flicksift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/flicksift/flicksift

/*
client.go - Remote Catalog Client

Issues typed requests against the remote movie metadata service and owns the
resilience policy for a single logical fetch:

  - Per-attempt timeout (never per coalesced wait)
  - Client-side rate limiting ahead of every attempt
  - Exponential backoff with uniform jitter for retryable failures
  - Retry-After honored when the service provides it
  - Transport taxonomy classification of every failure

Retry policy: only timeout, rateLimited, and serverError kinds are retried,
up to MaxRetries attempts. Client errors, decoding failures, trust failures,
and cancellation surface immediately; a trust failure in particular must
never be papered over by a retry.

This client performs no cache writes. Populating the offline cache is the
caller's concern, which keeps retry logic and cache logic independently
testable.
*/

//nolint:staticcheck // File documentation, not package doc
package catalog

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/flicksift/flicksift/internal/config"
	"github.com/flicksift/flicksift/internal/metrics"
	"github.com/flicksift/flicksift/internal/transport"
)

// maxBodySize bounds response reads to keep a misbehaving server from
// forcing unbounded allocation.
const maxBodySize = 8 << 20 // 8MB

// categoryPaths maps browsable category names to service endpoints.
// Unknown categories fall back to /movie/<name>.
var categoryPaths = map[string]string{
	"trending":    "/trending/movie/week",
	"popular":     "/movie/popular",
	"top_rated":   "/movie/top_rated",
	"now_playing": "/movie/now_playing",
	"upcoming":    "/movie/upcoming",
}

// Client communicates with the remote catalog service.
// All methods are safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	cfg        config.CatalogConfig
	logger     zerolog.Logger
}

// NewClient creates a catalog client from configuration.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewClient(cfg config.CatalogConfig, logger zerolog.Logger) *Client {
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.RateBurst)
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		cfg:        cfg,
		logger:     logger.With().Str("component", "catalog").Logger(),
	}
}

// FetchCategory fetches one page of a named category.
func (c *Client) FetchCategory(ctx context.Context, category string, page int) (*CatalogPage, error) {
	path, ok := categoryPaths[category]
	if !ok {
		path = "/movie/" + url.PathEscape(category)
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))

	return c.fetchPage(ctx, "category", path, query)
}

// Search fetches one page of free-text search results.
//
// A query consisting only of whitespace is rejected locally and returns an
// empty page without any network call.
func (c *Client) Search(ctx context.Context, searchQuery string, page int) (*CatalogPage, error) {
	if strings.TrimSpace(searchQuery) == "" {
		return EmptyPage(page), nil
	}

	query := url.Values{}
	query.Set("query", searchQuery)
	query.Set("page", strconv.Itoa(page))

	return c.fetchPage(ctx, "search", "/search/movie", query)
}

// FetchItem fetches full detail for a single item by id.
func (c *Client) FetchItem(ctx context.Context, id int) (*CatalogItem, error) {
	start := time.Now()
	body, err := c.doWithRetry(ctx, "/movie/"+strconv.Itoa(id), nil)
	if err != nil {
		metrics.RecordCatalogRequest("item", transport.KindOf(err).String(), time.Since(start).Seconds())
		return nil, err
	}

	item, decErr := decodeItem(body)
	if decErr != nil {
		metrics.RecordCatalogRequest("item", transport.KindDecoding.String(), time.Since(start).Seconds())
		return nil, transport.New(transport.KindDecoding, fmt.Errorf("decode item %d: %w", id, decErr))
	}

	metrics.RecordCatalogRequest("item", "success", time.Since(start).Seconds())
	return item, nil
}

// fetchPage executes a list request and decodes the response page.
func (c *Client) fetchPage(ctx context.Context, operation, path string, query url.Values) (*CatalogPage, error) {
	start := time.Now()
	body, err := c.doWithRetry(ctx, path, query)
	if err != nil {
		metrics.RecordCatalogRequest(operation, transport.KindOf(err).String(), time.Since(start).Seconds())
		return nil, err
	}

	page, decErr := decodePage(body)
	if decErr != nil {
		metrics.RecordCatalogRequest(operation, transport.KindDecoding.String(), time.Since(start).Seconds())
		return nil, transport.New(transport.KindDecoding, fmt.Errorf("decode %s: %w", path, decErr))
	}

	metrics.RecordCatalogRequest(operation, "success", time.Since(start).Seconds())
	return page, nil
}

// doWithRetry executes one attempt plus up to MaxRetries retries for
// retryable transport kinds, backing off exponentially with jitter.
func (c *Client) doWithRetry(ctx context.Context, path string, query url.Values) ([]byte, error) {
	var lastErr *transport.Error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoffDelay(attempt-1, lastErr.RetryAfter)
			c.logger.Warn().
				Str("path", path).
				Str("kind", lastErr.Kind.String()).
				Dur("delay", delay).
				Int("attempt", attempt).
				Int("max_retries", c.cfg.MaxRetries).
				Msg("retrying catalog request")
			metrics.CatalogRetriesTotal.WithLabelValues(lastErr.Kind.String()).Inc()

			select {
			case <-ctx.Done():
				return nil, transport.Classify(ctx.Err())
			case <-time.After(delay):
			}
		}

		body, err := c.attempt(ctx, path, query)
		if err == nil {
			return body, nil
		}
		if !err.Retryable() {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

// attempt performs a single rate-limited, timeout-bounded request.
func (c *Client) attempt(ctx context.Context, path string, query url.Values) ([]byte, *transport.Error) {
	// Rate limiting waits on the caller's context so a cancelled caller is
	// not charged a token.
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, transport.Classify(err)
		}
	}

	// The timeout bounds this attempt only; retries each get a fresh one.
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, transport.New(transport.KindUnknown, fmt.Errorf("create request: %w", err))
	}

	q := req.URL.Query()
	for key, vals := range query {
		for _, v := range vals {
			q.Add(key, v)
		}
	}
	q.Set("api_key", c.apiKey)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// A per-attempt deadline must surface as timeout even when the
		// caller's context is still live.
		if attemptCtx.Err() != nil && ctx.Err() == nil {
			return nil, transport.New(transport.KindTimeout, err)
		}
		return nil, transport.Classify(err)
	}
	defer resp.Body.Close()

	if terr := transport.FromStatus(resp.StatusCode, parseRetryAfter(resp.Header)); terr != nil {
		return nil, terr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, transport.Classify(err)
	}

	return body, nil
}

// backoffDelay computes the wait before retry number attempt (zero-based):
// min(base * 2^attempt * (1 + uniform(0, 0.5)), maxDelay). A server-provided
// Retry-After hint overrides the computed delay, still capped at maxDelay.
func (c *Client) backoffDelay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		if retryAfter > c.cfg.RetryMaxDelay {
			return c.cfg.RetryMaxDelay
		}
		return retryAfter
	}

	delay := c.cfg.RetryBaseDelay << uint(attempt)
	jitter := time.Duration(rand.Float64() * 0.5 * float64(delay)) //nolint:gosec // jitter needs no crypto rand
	delay += jitter

	if delay > c.cfg.RetryMaxDelay {
		return c.cfg.RetryMaxDelay
	}
	return delay
}

// parseRetryAfter reads an RFC 6585 Retry-After header in seconds form.
func parseRetryAfter(h http.Header) time.Duration {
	raw := h.Get("Retry-After")
	if raw == "" {
		return 0
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
