package server

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iCreck/NewsBlur/internal/config"
)

func TestNewBucketRegistryBuildsPerBucketCaches(t *testing.T) {
	storage := t.TempDir()
	cfg := &config.Config{
		Global: config.GlobalConfig{
			StoragePath:  storage,
			MinFreeSpace: 100 * 1024 * 1024,
			MinValidSize: 64,
			MaxFileAge:   config.Duration(720 * time.Hour),
		},
		Buckets: []config.BucketConfig{
			{Name: "olimages", Subdir: "olimages"},
			{Name: "thumbnails", Subdir: "thumbs"},
		},
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	registry, err := NewBucketRegistry(cfg, &stubFetcher{}, logger)
	if err != nil {
		t.Fatalf("registry error: %v", err)
	}

	bucket, ok := registry.Lookup("thumbnails")
	if !ok {
		t.Fatalf("expected thumbnails bucket to be registered")
	}
	want, _ := filepath.Abs(filepath.Join(storage, "thumbs"))
	if bucket.Cache.Dir() != want {
		t.Fatalf("expected cache dir %s, got %s", want, bucket.Cache.Dir())
	}

	if got := len(registry.List()); got != 2 {
		t.Fatalf("expected 2 buckets listed, got %d", got)
	}
	if registry.List()[0].Config.Name != "olimages" {
		t.Fatalf("List should preserve config order, got %s first", registry.List()[0].Config.Name)
	}
	if registry.StoragePath() != storage {
		t.Fatalf("expected storage path %s, got %s", storage, registry.StoragePath())
	}
}

func TestNewBucketRegistryRejectsDuplicates(t *testing.T) {
	cfg := &config.Config{
		Global: config.GlobalConfig{StoragePath: t.TempDir()},
		Buckets: []config.BucketConfig{
			{Name: "olimages", Subdir: "a"},
			{Name: "olimages", Subdir: "b"},
		},
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	if _, err := NewBucketRegistry(cfg, &stubFetcher{}, logger); err == nil {
		t.Fatalf("expected duplicate bucket name to be rejected")
	}
}

func TestNewBucketRegistryRequiresFetcher(t *testing.T) {
	cfg := &config.Config{
		Global:  config.GlobalConfig{StoragePath: t.TempDir()},
		Buckets: []config.BucketConfig{{Name: "olimages", Subdir: "olimages"}},
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	if _, err := NewBucketRegistry(cfg, nil, logger); err == nil {
		t.Fatalf("expected missing fetcher to be rejected")
	}
	if _, err := NewBucketRegistry(nil, &stubFetcher{}, logger); err == nil {
		t.Fatalf("expected nil config to be rejected")
	}
}
