package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iCreck/NewsBlur/internal/prefetch"
)

// Prefetcher describes the component that queues background warm-up jobs.
// It allows injecting fake queues during tests.
type Prefetcher interface {
	Enqueue(job prefetch.Job) bool
}

// AppOptions controls how the Fiber application should behave on a specific port.
type AppOptions struct {
	Logger     *logrus.Logger
	Registry   *BucketRegistry
	Prefetch   Prefetcher
	ListenPort int
}

const contextKeyRequestID = "_olimages_request_id"

// locationPayload 描述 location 查询的响应；未命中时 Path 省略。
type locationPayload struct {
	Cached bool   `json:"cached"`
	Path   string `json:"path,omitempty"`
}

type prefetchRequest struct {
	URLs []string `json:"urls"`
}

type cleanupRequest struct {
	CurrentURLs []string `json:"current_urls"`
}

// NewApp builds a Fiber application with bucket routing and structured error
// handling. Lookup and cleanup never fail observably; the cache's silent
// degradation contract carries through to the HTTP surface.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("bucket registry is required")
	}
	if opts.Prefetch == nil {
		return nil, errors.New("prefetch queue is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())

	app.Get("/images/:bucket/location", handleLocation(opts))
	app.Get("/images/:bucket/file", handleFile(opts))
	app.Post("/images/:bucket/prefetch", handlePrefetch(opts))
	app.Post("/images/:bucket/cleanup", handleCleanup(opts))

	return app, nil
}

// requestIDMiddleware 为每个请求生成 UUID，便于日志串联。
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// handleLocation 返回 URL 对应缓存文件的绝对路径；未缓存时只返回 cached=false，
// 该查询按契约不可观测地失败。
func handleLocation(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		bucket, ok := lookupBucket(c, opts)
		if !ok {
			return renderBucketUnknown(c, opts.Logger)
		}
		rawURL := c.Query("url")
		if rawURL == "" {
			return renderURLRequired(c)
		}

		path, cached := bucket.Cache.CachedLocation(rawURL)
		return c.JSON(locationPayload{Cached: cached, Path: path})
	}
}

// handleFile 直接回送缓存文件内容，供不方便读本地路径的调用方使用。
func handleFile(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		bucket, ok := lookupBucket(c, opts)
		if !ok {
			return renderBucketUnknown(c, opts.Logger)
		}
		rawURL := c.Query("url")
		if rawURL == "" {
			return renderURLRequired(c)
		}

		path, cached := bucket.Cache.CachedLocation(rawURL)
		if !cached {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "image_not_cached",
			})
		}

		c.Set("X-Image-Cache", "hit")
		return c.SendFile(path)
	}
}

// handlePrefetch 把一批 URL 放入预热队列后立即返回，下载在后台完成。
// 队列满时任务被丢弃，依赖调用方下一轮同步重新提交。
func handlePrefetch(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		bucket, ok := lookupBucket(c, opts)
		if !ok {
			return renderBucketUnknown(c, opts.Logger)
		}

		var req prefetchRequest
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid_body",
			})
		}

		accepted := 0
		for _, rawURL := range req.URLs {
			if rawURL == "" {
				continue
			}
			if opts.Prefetch.Enqueue(prefetch.Job{
				Bucket: bucket.Config.Name,
				URL:    rawURL,
				Cache:  bucket.Cache,
			}) {
				accepted++
			}
		}

		opts.Logger.WithFields(logrus.Fields{
			"action":     "prefetch_enqueue",
			"bucket":     bucket.Config.Name,
			"submitted":  len(req.URLs),
			"accepted":   accepted,
			"request_id": RequestID(c),
		}).Info("prefetch batch queued")

		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"accepted": accepted,
		})
	}
}

// handleCleanup 同步执行一轮清理。清理本身是尽力而为的静默操作，
// 解析失败按空引用集处理（即放弃本轮），因此总是返回 204。
func handleCleanup(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		bucket, ok := lookupBucket(c, opts)
		if !ok {
			return renderBucketUnknown(c, opts.Logger)
		}

		var req cleanupRequest
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			opts.Logger.WithFields(logrus.Fields{
				"action":     "image_cleanup",
				"bucket":     bucket.Config.Name,
				"request_id": RequestID(c),
			}).WithError(err).Warn("cleanup body unreadable, skipping round")
			return c.SendStatus(fiber.StatusNoContent)
		}

		bucket.Cache.Cleanup(req.CurrentURLs)
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func lookupBucket(c fiber.Ctx, opts AppOptions) (*Bucket, bool) {
	return opts.Registry.Lookup(c.Params("bucket"))
}

func renderBucketUnknown(c fiber.Ctx, logger *logrus.Logger) error {
	logger.WithFields(logrus.Fields{
		"action":     "bucket_lookup",
		"bucket":     c.Params("bucket"),
		"request_id": RequestID(c),
	}).Warn("bucket not found")

	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "bucket_not_found",
	})
}

func renderURLRequired(c fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "url_required",
	})
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
