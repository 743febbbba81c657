// Flicksift - Resilient Movie Discovery Data Core
// Copyright 2026 Flicksift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/flicksift/flicksift

package catalog

import (
	"context"
	"errors"
	"fmt"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/flicksift/flicksift/internal/config"
	"github.com/flicksift/flicksift/internal/logging"
	"github.com/flicksift/flicksift/internal/metrics"
	"github.com/flicksift/flicksift/internal/transport"
)

// Fetcher is the catalog surface consumed by higher layers. Implemented by
// Client and by BreakerClient, and by mock fetchers in tests.
type Fetcher interface {
	FetchCategory(ctx context.Context, category string, page int) (*CatalogPage, error)
	Search(ctx context.Context, query string, page int) (*CatalogPage, error)
	FetchItem(ctx context.Context, id int) (*CatalogItem, error)
}

// BreakerClient wraps a Client with the circuit breaker pattern, shedding
// load from a remote service that is failing or slow instead of piling
// retries onto it.
//
// The breaker uses real time for its interval and timeout bookkeeping; unit
// tests exercise the wrapped client directly.
type BreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[interface{}]
	name   string
}

// NewBreakerClient creates a catalog client protected by a circuit breaker
// configured from cfg.Breaker.
func NewBreakerClient(cfg config.CatalogConfig, client *Client) *BreakerClient {
	const cbName = "catalog-api"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.Breaker.MinRequests {
				return false
			}

			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= cfg.Breaker.FailureRatio

			if shouldTrip {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening circuit")
			}

			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},

		// A cancelled caller or a plain 4xx says nothing about service
		// health; only infrastructure kinds count toward tripping.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			switch transport.KindOf(err) {
			case transport.KindClientError, transport.KindCancelled, transport.KindDecoding:
				return true
			default:
				return false
			}
		},
	})

	return &BreakerClient{client: client, cb: cb, name: cbName}
}

// execute runs a catalog call under breaker protection.
func (bc *BreakerClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := bc.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "rejected").Inc()
			// An open breaker means the service is effectively unreachable.
			return nil, transport.New(transport.KindNoConnectivity, err)
		}
		metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "failure").Inc()
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "success").Inc()
	return result, nil
}

// castResult type-casts a breaker result with error checking.
func castResult[T any](result interface{}, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	typed, ok := result.(*T)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

// FetchCategory fetches a category page with circuit breaker protection.
func (bc *BreakerClient) FetchCategory(ctx context.Context, category string, page int) (*CatalogPage, error) {
	return castResult[CatalogPage](bc.execute(func() (interface{}, error) {
		return bc.client.FetchCategory(ctx, category, page)
	}))
}

// Search fetches search results with circuit breaker protection.
func (bc *BreakerClient) Search(ctx context.Context, query string, page int) (*CatalogPage, error) {
	return castResult[CatalogPage](bc.execute(func() (interface{}, error) {
		return bc.client.Search(ctx, query, page)
	}))
}

// FetchItem fetches item detail with circuit breaker protection.
func (bc *BreakerClient) FetchItem(ctx context.Context, id int) (*CatalogItem, error) {
	return castResult[CatalogItem](bc.execute(func() (interface{}, error) {
		return bc.client.FetchItem(ctx, id)
	}))
}

// State returns the breaker's current state name for observability.
func (bc *BreakerClient) State() string {
	return stateToString(bc.cb.State())
}

// stateToFloat converts breaker state to a numeric metric value.
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts breaker state to a string for logging.
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
