package imagecache

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCleanupEmptySetDeletesNothing(t *testing.T) {
	fetcher := &scriptedFetcher{payload: bytes.Repeat([]byte{1}, 100)}
	cache := newTestCache(t, fetcher)
	cache.CacheImage(context.Background(), "http://example.com/a.jpg")

	if removed := cache.cleanup(nil); removed != 0 {
		t.Fatalf("nil set must delete nothing, removed %d", removed)
	}
	if removed := cache.cleanup([]string{}); removed != 0 {
		t.Fatalf("empty set must delete nothing, removed %d", removed)
	}
	if names := listFiles(t, cache.Dir()); len(names) != 1 {
		t.Fatalf("cache contents should be untouched, found %v", names)
	}
}

func TestCleanupRemovesStaleAndUnreferenced(t *testing.T) {
	fetcher := &scriptedFetcher{payload: bytes.Repeat([]byte{1}, 100)}
	cache := newTestCache(t, fetcher)

	fresh := "http://example.com/fresh.jpg"
	staleRef := "http://example.com/stale.jpg"
	orphan := "http://example.com/orphan.jpg"
	for _, url := range []string{fresh, staleRef, orphan} {
		if got := cache.cacheImage(context.Background(), url); got != outcomeStored {
			t.Fatalf("seed store failed for %s: %s", url, got)
		}
	}

	stalePath, ok := cache.CachedLocation(staleRef)
	if !ok {
		t.Fatalf("expected stale seed to be cached")
	}
	old := time.Now().Add(-31 * 24 * time.Hour)
	if err := os.Chtimes(stalePath, old, old); err != nil {
		t.Fatalf("chtimes error: %v", err)
	}

	if removed := cache.cleanup([]string{fresh, staleRef}); removed != 2 {
		t.Fatalf("expected 2 removals, got %d", removed)
	}
	if _, ok := cache.CachedLocation(fresh); !ok {
		t.Fatalf("fresh referenced entry must survive")
	}
	if _, ok := cache.CachedLocation(staleRef); ok {
		t.Fatalf("stale entry must be removed even when referenced")
	}
	if _, ok := cache.CachedLocation(orphan); ok {
		t.Fatalf("unreferenced entry must be removed")
	}
}

func TestCleanupSweepsAbandonedTempFiles(t *testing.T) {
	fetcher := &scriptedFetcher{payload: bytes.Repeat([]byte{1}, 100)}
	cache := newTestCache(t, fetcher)
	keep := "http://example.com/keep.jpg"
	cache.CacheImage(context.Background(), keep)

	tempPath := filepath.Join(cache.Dir(), tempPrefix+"zzz")
	if err := os.WriteFile(tempPath, []byte("partial"), 0o644); err != nil {
		t.Fatalf("write temp file error: %v", err)
	}

	if removed := cache.cleanup([]string{keep}); removed != 1 {
		t.Fatalf("expected only the temp file removed, got %d", removed)
	}
	if _, err := os.Stat(tempPath); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("temp file should be gone, err=%v", err)
	}
	if _, ok := cache.CachedLocation(keep); !ok {
		t.Fatalf("referenced entry must survive the sweep")
	}
}

func TestCleanupDerivationFailuresContributeNothing(t *testing.T) {
	fetcher := &scriptedFetcher{payload: bytes.Repeat([]byte{1}, 100)}
	cache := newTestCache(t, fetcher)
	cache.CacheImage(context.Background(), "http://example.com/a.jpg")

	// A non-empty set whose urls derive no names references no files.
	if removed := cache.cleanup([]string{"http://cdn-host/stream"}); removed != 1 {
		t.Fatalf("entry should be removed when reference set derives nothing, got %d", removed)
	}
}

func TestCleanupListFailureAborts(t *testing.T) {
	fetcher := &scriptedFetcher{payload: bytes.Repeat([]byte{1}, 100)}
	cache := newTestCache(t, fetcher)
	if err := os.RemoveAll(cache.Dir()); err != nil {
		t.Fatalf("remove dir error: %v", err)
	}

	if removed := cache.cleanup([]string{"http://example.com/a.jpg"}); removed != 0 {
		t.Fatalf("listing failure should abort cleanup, removed %d", removed)
	}
}
