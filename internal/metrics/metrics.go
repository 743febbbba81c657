// Flicksift - Resilient Movie Discovery Data Core
// Copyright 2026 Flicksift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/flicksift/flicksift

// Package metrics provides Prometheus instrumentation for the data core:
// catalog request outcomes and retries, circuit breaker state, request
// coalescing effectiveness, and offline cache hit rates.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Catalog client metrics
	CatalogRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_requests_total",
			Help: "Total catalog requests by operation and outcome",
		},
		[]string{"operation", "outcome"}, // outcome: "success" or a transport kind
	)

	CatalogRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_request_duration_seconds",
			Help:    "Catalog request latency including retries",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	CatalogRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_retries_total",
			Help: "Total retry attempts by transport kind",
		},
		[]string{"kind"},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Request coalescer metrics
	CoalescerExecutions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coalescer_executions_total",
			Help: "Producer executions performed by the request coalescer",
		},
	)

	CoalescerShared = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coalescer_shared_total",
			Help: "Calls that joined an already in-flight execution",
		},
	)

	CoalescerMemoHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coalescer_memo_hits_total",
			Help: "Calls served from the coalescer's short-TTL memo",
		},
	)

	// Offline cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_hits_total",
			Help: "Offline cache hits",
		},
		[]string{"lookup"}, // "item" or "category"
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_misses_total",
			Help: "Offline cache misses (absent or expired)",
		},
		[]string{"lookup"},
	)

	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offline_cache_evictions_total",
			Help: "Entries removed by expiry sweeps",
		},
	)

	CacheItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "offline_cache_items",
			Help: "Current number of cached catalog items",
		},
	)

	// Offline fallback metric: fetches that failed over to the cache
	OfflineFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_fallbacks_total",
			Help: "Fetches served from the offline cache after a transport failure",
		},
		[]string{"result"}, // "hit" or "empty"
	)
)

// RecordCatalogRequest records one completed catalog call.
func RecordCatalogRequest(operation, outcome string, seconds float64) {
	CatalogRequestsTotal.WithLabelValues(operation, outcome).Inc()
	CatalogRequestDuration.WithLabelValues(operation).Observe(seconds)
}
