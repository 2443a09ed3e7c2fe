package integration

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/iCreck/NewsBlur/internal/config"
	"github.com/iCreck/NewsBlur/internal/fetch"
	"github.com/iCreck/NewsBlur/internal/prefetch"
	"github.com/iCreck/NewsBlur/internal/server"
	"github.com/iCreck/NewsBlur/internal/server/routes"
)

// imageService wires the full stack the binary assembles: config → fetch
// client → bucket registry → prefetch pool → fiber app with stats route.
type imageService struct {
	app      *fiber.App
	registry *server.BucketRegistry
	pool     *prefetch.Pool
	storage  string
}

func newImageService(t *testing.T, buckets ...config.BucketConfig) *imageService {
	t.Helper()

	if len(buckets) == 0 {
		buckets = []config.BucketConfig{{Name: "olimages", Subdir: "olimages"}}
	}

	storage := t.TempDir()
	cfg := &config.Config{
		Global: config.GlobalConfig{
			ListenPort: 5000,
			// CI 磁盘余量不可控，压到 1 字节避免误触容量红线。
			MinFreeSpace: 1,
			MinValidSize: 64,
			MaxFileAge:   config.Duration(720 * time.Hour),
			FetchTimeout: config.Duration(10 * time.Second),
			StoragePath:  storage,
		},
		Buckets: buckets,
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	registry, err := server.NewBucketRegistry(cfg, fetch.NewClient(cfg), logger)
	if err != nil {
		t.Fatalf("registry error: %v", err)
	}

	// 单 worker 保证任务顺序执行，重复 URL 的第二个任务必然命中存在性短路。
	pool := prefetch.NewPool(prefetch.Options{
		Workers:   1,
		QueueSize: 64,
		Logger:    logger,
	})
	t.Cleanup(pool.Close)

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Registry:   registry,
		Prefetch:   pool,
		ListenPort: 5000,
	})
	if err != nil {
		t.Fatalf("app error: %v", err)
	}
	routes.RegisterStatsRoutes(app, registry, pool)

	return &imageService{app: app, registry: registry, pool: pool, storage: storage}
}

func (s *imageService) request(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	return resp
}

// waitCached polls the location endpoint until the URL reports cached or the
// deadline expires, mirroring how the client waits on background prefetch.
func (s *imageService) waitCached(t *testing.T, bucket, rawURL string) string {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		path, ok := s.cachedLocation(t, bucket, rawURL)
		if ok {
			return path
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("image %s was not cached before deadline", rawURL)
	return ""
}

func (s *imageService) cachedLocation(t *testing.T, bucket, rawURL string) (string, bool) {
	t.Helper()

	b, ok := s.registry.Lookup(bucket)
	if !ok {
		t.Fatalf("bucket %s not registered", bucket)
	}
	return b.Cache.CachedLocation(rawURL)
}

func bucketConfig(name, subdir string) config.BucketConfig {
	return config.BucketConfig{Name: name, Subdir: subdir}
}

// upstreamStub serves deterministic payloads and counts GETs per path.
type upstreamStub struct {
	*httptest.Server
	mu       sync.Mutex
	hits     map[string]int
	payloads map[string][]byte
}

func newUpstreamStub(t *testing.T) *upstreamStub {
	t.Helper()

	stub := &upstreamStub{
		hits:     map[string]int{},
		payloads: map[string][]byte{},
	}
	stub.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.mu.Lock()
		stub.hits[r.URL.Path]++
		payload, ok := stub.payloads[r.URL.Path]
		stub.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(payload)
	}))
	t.Cleanup(stub.Close)
	return stub
}

func (s *upstreamStub) serve(path string, payload []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads[path] = payload
	return s.URL + path
}

func (s *upstreamStub) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}
