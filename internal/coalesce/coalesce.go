// Flicksift - Resilient Movie Discovery Data Core
// Copyright 2026 Flicksift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/flicksift/flicksift

// Package coalesce provides a generic request coalescer: concurrent calls
// sharing a key await a single producer execution and receive the same result,
// optionally memoized for a short window afterwards.
//
// The package holds no domain knowledge; it is a pure concurrency utility
// layered on golang.org/x/sync/singleflight.
package coalesce

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/flicksift/flicksift/internal/metrics"
)

// Coalescer deduplicates concurrent calls by key and memoizes results.
// The zero value is not usable; construct with New.
type Coalescer[V any] struct {
	group   singleflight.Group
	memoTTL time.Duration

	mu      sync.Mutex
	memo    map[string]memoEntry[V]
	flights map[string]*flight

	// now is the clock seam for expiry tests.
	now func() time.Time

	executions atomic.Int64
	shared     atomic.Int64
	memoHits   atomic.Int64
}

type memoEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// flight tracks the waiters of one in-flight execution so the producer is
// cancelled only when every caller for the key has gone away.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// Stats is a snapshot of coalescer counters.
type Stats struct {
	Executions int64 // producer invocations
	Shared     int64 // calls that joined an existing execution
	MemoHits   int64 // calls served from the memo window
}

// New creates a Coalescer. A zero memoTTL disables result memoization,
// leaving only in-flight deduplication.
func New[V any](memoTTL time.Duration) *Coalescer[V] {
	return &Coalescer[V]{
		memoTTL: memoTTL,
		memo:    make(map[string]memoEntry[V]),
		flights: make(map[string]*flight),
		now:     time.Now,
	}
}

// Do returns the memoized result for key if one is fresh; otherwise it joins
// or starts the single execution of producer for that key.
//
// All callers overlapping on a key receive the same value or the same error.
// A caller whose ctx ends stops waiting with ctx.Err(), but the shared
// execution continues until every caller for the key has gone; only then is
// the producer's context cancelled.
func (c *Coalescer[V]) Do(ctx context.Context, key string, producer func(context.Context) (V, error)) (V, error) {
	if v, ok := c.memoGet(key); ok {
		c.memoHits.Add(1)
		metrics.CoalescerMemoHits.Inc()
		return v, nil
	}

	fl := c.join(key)

	ch := c.group.DoChan(key, func() (interface{}, error) {
		c.executions.Add(1)
		metrics.CoalescerExecutions.Inc()
		return producer(fl.ctx)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		c.leave(key, fl)
		var zero V
		return zero, ctx.Err()
	}
	c.leave(key, fl)

	if res.Shared {
		c.shared.Add(1)
		metrics.CoalescerShared.Inc()
	}

	if res.Err != nil {
		var zero V
		return zero, res.Err
	}

	value := res.Val.(V)
	// singleflight drops its in-flight entry before delivering results, so
	// this memo write strictly follows the marker removal: a call landing in
	// between re-executes instead of reading a half-written entry.
	c.memoSet(key, value)
	return value, nil
}

// join registers a waiter for key, creating the shared flight if needed.
func (c *Coalescer[V]) join(key string) *flight {
	c.mu.Lock()
	defer c.mu.Unlock()

	fl, ok := c.flights[key]
	if !ok || fl.ctx.Err() != nil {
		fctx, cancel := context.WithCancel(context.Background())
		fl = &flight{ctx: fctx, cancel: cancel}
		c.flights[key] = fl
	}
	fl.waiters++
	return fl
}

// leave deregisters a waiter; the last one out cancels the producer context.
func (c *Coalescer[V]) leave(key string, fl *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fl.waiters--
	if fl.waiters > 0 {
		return
	}
	fl.cancel()
	if c.flights[key] == fl {
		delete(c.flights, key)
	}
	// The doomed execution may still be winding down inside singleflight;
	// forget it so the next caller starts fresh instead of inheriting its
	// cancellation.
	c.group.Forget(key)
}

// memoGet returns a fresh memoized value for key.
func (c *Coalescer[V]) memoGet(key string) (V, bool) {
	var zero V
	if c.memoTTL <= 0 {
		return zero, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.memo[key]
	if !ok {
		return zero, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.memo, key)
		return zero, false
	}
	return entry.value, true
}

// memoSet stores a completed result for the memo window. Errors are never
// memoized; only successful values reach this point.
func (c *Coalescer[V]) memoSet(key string, value V) {
	if c.memoTTL <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.memo[key] = memoEntry[V]{value: value, expiresAt: c.now().Add(c.memoTTL)}
}

// ClearCache drops the memoized result for key, if any. In-flight
// executions are unaffected.
func (c *Coalescer[V]) ClearCache(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.memo, key)
}

// Clear drops every memoized result.
func (c *Coalescer[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memo = make(map[string]memoEntry[V])
}

// Forget makes the next Do for key execute fresh even if a flight is still
// running, and drops any memoized result.
func (c *Coalescer[V]) Forget(key string) {
	c.group.Forget(key)
	c.ClearCache(key)
}

// Stats returns a snapshot of the coalescer's counters.
func (c *Coalescer[V]) Stats() Stats {
	return Stats{
		Executions: c.executions.Load(),
		Shared:     c.shared.Load(),
		MemoHits:   c.memoHits.Load(),
	}
}
