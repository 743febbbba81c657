// Flicksift - Resilient Movie Discovery Data Core
// Copyright 2026 Flicksift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/flicksift/flicksift

package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/flicksift/flicksift/internal/config"
	"github.com/flicksift/flicksift/internal/transport"
)

var (
	_ Fetcher = (*Client)(nil)
	_ Fetcher = (*BreakerClient)(nil)
)

func testBreakerConfig(baseURL string) config.CatalogConfig {
	cfg := testClientConfig(baseURL)
	cfg.MaxRetries = 0
	cfg.Breaker = config.BreakerConfig{
		Enabled:      true,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  3,
		FailureRatio: 0.6,
	}
	return cfg
}

func newBreakerClient(t *testing.T, handler http.HandlerFunc) (*BreakerClient, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := testBreakerConfig(srv.URL)
	return NewBreakerClient(cfg, NewClient(cfg, zerolog.Nop())), &calls
}

func TestBreakerClient_OpensAfterServerErrors(t *testing.T) {
	bc, calls := newBreakerClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	for i := 0; i < 3; i++ {
		if _, err := bc.FetchCategory(context.Background(), "popular", 1); err == nil {
			t.Fatalf("call %d: expected server error", i)
		}
	}

	if got := bc.State(); got != "open" {
		t.Fatalf("state = %q, want open", got)
	}

	before := calls.Load()
	_, err := bc.FetchCategory(context.Background(), "popular", 1)
	if err == nil {
		t.Fatal("expected rejection from open breaker")
	}
	if kind := transport.KindOf(err); kind != transport.KindNoConnectivity {
		t.Errorf("kind = %s, want no_connectivity", kind)
	}
	if calls.Load() != before {
		t.Errorf("open breaker still reached the server (%d calls)", calls.Load()-before)
	}
}

func TestBreakerClient_ClientErrorsDoNotTrip(t *testing.T) {
	bc, _ := newBreakerClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for i := 0; i < 6; i++ {
		_, err := bc.FetchCategory(context.Background(), "popular", 1)
		if kind := transport.KindOf(err); kind != transport.KindClientError {
			t.Fatalf("call %d: kind = %s, want client_error", i, kind)
		}
	}

	if got := bc.State(); got != "closed" {
		t.Errorf("state = %q, want closed (4xx must not trip the breaker)", got)
	}
}

func TestBreakerClient_SuccessPassesThrough(t *testing.T) {
	bc, _ := newBreakerClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(samplePage))
	})

	page, err := bc.FetchCategory(context.Background(), "popular", 1)
	if err != nil {
		t.Fatalf("FetchCategory: %v", err)
	}
	if len(page.Items) != 2 {
		t.Errorf("items = %d, want 2", len(page.Items))
	}
}

func TestBreakerClient_SearchWhitespacePassThrough(t *testing.T) {
	bc, calls := newBreakerClient(t, func(w http.ResponseWriter, r *http.Request) {})

	page, err := bc.Search(context.Background(), "  ", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(page.Items) != 0 {
		t.Errorf("items = %d, want 0", len(page.Items))
	}
	if calls.Load() != 0 {
		t.Errorf("whitespace search reached the server %d times", calls.Load())
	}
}
