// Flicksift - Resilient Movie Discovery Data Core
// Copyright 2026 Flicksift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/flicksift/flicksift

package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/flicksift/flicksift/internal/catalog"
	"github.com/flicksift/flicksift/internal/config"
)

var _ CatalogStore = (*BadgerStore)(nil)

func openBadgerStore(t *testing.T, dir string) *BadgerStore {
	t.Helper()

	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}

	s, err := NewBadgerStore(db, zerolog.Nop())
	if err != nil {
		t.Fatalf("new badger store: %v", err)
	}
	return s
}

func TestBadgerStore_ReopenRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s := openBadgerStore(t, dir)
	items := []catalog.CatalogItem{
		testItem(30, "Cc"), testItem(10, "Aa"), testItem(20, "Bb"),
	}
	if err := s.PutCategory("trending", items, time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(testItem(7, "Solo"), time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// A fresh open must rebuild items, listings, and their order from disk.
	s = openBadgerStore(t, dir)
	defer s.Close()

	got, ok := s.GetCategory("trending")
	if !ok {
		t.Fatal("category lost across reopen")
	}
	for i, want := range []int{30, 10, 20} {
		if got[i].ID != want {
			t.Errorf("position %d: id = %d, want %d", i, got[i].ID, want)
		}
	}

	item, ok := s.Get(7)
	if !ok || item.Title != "Solo" {
		t.Errorf("item 7 after reopen = %+v, ok=%v", item, ok)
	}

	stats := s.Stats()
	if stats.Items != 4 || stats.Valid != 4 || stats.Categories != 1 {
		t.Errorf("stats after reopen = %+v, want 4 items / 4 valid / 1 category", stats)
	}
}

func TestBadgerStore_ExpiryAcrossMirror(t *testing.T) {
	s := openBadgerStore(t, t.TempDir())
	defer s.Close()

	clock := newFakeClock()
	s.mem.now = clock.now

	if err := s.Put(testItem(1, "a"), time.Minute); err != nil {
		t.Fatal(err)
	}
	clock.advance(2 * time.Minute)

	if _, ok := s.Get(1); ok {
		t.Error("expired entry still readable")
	}

	removed, err := s.EvictExpired()
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
}

func TestBadgerStore_EvictRewritesCategoryIndices(t *testing.T) {
	dir := t.TempDir()
	s := openBadgerStore(t, dir)

	clock := newFakeClock()
	s.mem.now = clock.now

	items := []catalog.CatalogItem{testItem(10, "a"), testItem(20, "b"), testItem(30, "c")}
	if err := s.PutCategory("trending", items, time.Hour); err != nil {
		t.Fatal(err)
	}
	// Shorten one member's lifetime so the sweep prunes the index.
	if err := s.Put(testItem(10, "a"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := s.PutCategory("stale", []catalog.CatalogItem{testItem(40, "d")}, time.Minute); err != nil {
		t.Fatal(err)
	}

	clock.advance(2 * time.Minute)
	removed, err := s.EvictExpired()
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// A fresh open reads the indices back from disk: the pruned one must
	// carry no dangling ids and the emptied one must be gone.
	s = openBadgerStore(t, dir)
	defer s.Close()

	ids, ok := s.mem.categories["trending"]
	if !ok {
		t.Fatal("trending index lost across reopen")
	}
	if len(ids) != 2 || ids[0] != 20 || ids[1] != 30 {
		t.Errorf("trending index after reopen = %v, want [20 30]", ids)
	}
	if _, ok := s.mem.categories["stale"]; ok {
		t.Error("emptied category index survived on disk")
	}

	stats := s.Stats()
	if stats.Items != 2 || stats.Categories != 1 {
		t.Errorf("stats after reopen = %+v, want 2 items / 1 category", stats)
	}
}

func TestBadgerStore_Clear(t *testing.T) {
	s := openBadgerStore(t, t.TempDir())
	defer s.Close()

	if err := s.PutCategory("popular", []catalog.CatalogItem{testItem(1, "a")}, time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}

	if _, ok := s.Get(1); ok {
		t.Error("item survived Clear")
	}
	if s.Stats().Items != 0 {
		t.Errorf("stats = %+v, want empty", s.Stats())
	}
}

func TestNew_SelectsBackend(t *testing.T) {
	s := New(config.CacheConfig{Backend: BackendMemory}, zerolog.Nop())
	t.Cleanup(func() { s.Close() })
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("backend = %T, want *MemoryStore", s)
	}

	s = New(config.CacheConfig{Backend: BackendBadger, Path: t.TempDir()}, zerolog.Nop())
	t.Cleanup(func() { s.Close() })
	if _, ok := s.(*BadgerStore); !ok {
		t.Errorf("backend = %T, want *BadgerStore", s)
	}
}

func TestNew_DegradesToMemoryOnOpenFailure(t *testing.T) {
	// A regular file where badger expects a directory makes Open fail.
	path := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	s := New(config.CacheConfig{Backend: BackendBadger, Path: path}, zerolog.Nop())
	t.Cleanup(func() { s.Close() })

	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("backend = %T, want degradation to *MemoryStore", s)
	}

	// The degraded store still works.
	if err := s.Put(testItem(1, "a"), time.Hour); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Get(1); !ok {
		t.Error("degraded store lost a write")
	}
}
