// Flicksift - Resilient Movie Discovery Data Core
// Copyright 2026 Flicksift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/flicksift/flicksift

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordCatalogRequest(t *testing.T) {
	before := testutil.ToFloat64(CatalogRequestsTotal.WithLabelValues("category", "success"))

	RecordCatalogRequest("category", "success", 0.05)
	RecordCatalogRequest("category", "success", 0.10)

	after := testutil.ToFloat64(CatalogRequestsTotal.WithLabelValues("category", "success"))
	if after-before != 2 {
		t.Errorf("expected counter to increase by 2, got %v", after-before)
	}
}

func TestCoalescerCounters(t *testing.T) {
	before := testutil.ToFloat64(CoalescerMemoHits)
	CoalescerMemoHits.Inc()
	if got := testutil.ToFloat64(CoalescerMemoHits) - before; got != 1 {
		t.Errorf("expected memo hit counter to increase by 1, got %v", got)
	}
}

func TestCacheCounters(t *testing.T) {
	before := testutil.ToFloat64(CacheHits.WithLabelValues("item"))
	CacheHits.WithLabelValues("item").Inc()
	if got := testutil.ToFloat64(CacheHits.WithLabelValues("item")) - before; got != 1 {
		t.Errorf("expected item hit counter to increase by 1, got %v", got)
	}
}
