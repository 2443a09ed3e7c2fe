package imagecache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/iCreck/NewsBlur/internal/diskfree"
	"github.com/iCreck/NewsBlur/internal/logging"
)

// 阈值默认值沿用移动端时期的取值，Options 保持零值即可得到同样行为。
const (
	DefaultMinFreeBytes  uint64 = 100 * 1024 * 1024
	DefaultMinValidBytes int64  = 64
	DefaultMaxFileAge           = 30 * 24 * time.Hour
)

// 下载先落到临时文件，校验通过后再 rename 到目标名。
const tempPrefix = ".fetch-"

// Fetcher 把远端资源完整写入指定路径并返回写入字节数。失败时实现必须
// 清理目标路径，不得留下半截文件。
type Fetcher interface {
	Download(ctx context.Context, rawURL, destPath string) (int64, error)
}

// Options 描述一个缓存实例：落盘目录、下载器与阈值。阈值为零时使用默认值。
type Options struct {
	Dir     string
	Bucket  string // 仅用于日志标识，不影响磁盘布局
	Fetcher Fetcher
	Logger  *logrus.Logger

	MinFreeBytes  uint64
	MinValidBytes int64
	MaxFileAge    time.Duration
}

// Cache 管理单个图片缓存目录。文件系统就是全部状态：没有索引，也没有锁，
// 并发 CacheImage 与 Cleanup 之间的竞争按“最多浪费一次下载”接受。
type Cache struct {
	dir           string
	bucket        string
	fetcher       Fetcher
	logger        *logrus.Logger
	minFreeBytes  uint64
	minValidBytes int64
	maxFileAge    time.Duration

	freeBytes func(string) (uint64, error)
	now       func() time.Time
}

// New 构建缓存实例并确保目录存在。
func New(opts Options) (*Cache, error) {
	if opts.Dir == "" {
		return nil, errors.New("image cache dir required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("image fetcher required")
	}

	abs, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve image cache dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create image cache dir: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	cache := &Cache{
		dir:           abs,
		bucket:        opts.Bucket,
		fetcher:       opts.Fetcher,
		logger:        logger,
		minFreeBytes:  opts.MinFreeBytes,
		minValidBytes: opts.MinValidBytes,
		maxFileAge:    opts.MaxFileAge,
		freeBytes:     diskfree.Bytes,
		now:           time.Now,
	}
	if cache.minFreeBytes == 0 {
		cache.minFreeBytes = DefaultMinFreeBytes
	}
	if cache.minValidBytes == 0 {
		cache.minValidBytes = DefaultMinValidBytes
	}
	if cache.maxFileAge == 0 {
		cache.maxFileAge = DefaultMaxFileAge
	}
	return cache, nil
}

// Dir 返回缓存目录的绝对路径。
func (c *Cache) Dir() string {
	return c.dir
}

// outcome 区分一次操作的内部结果。对外契约保持静默，调用方只观察到
// “已缓存/未缓存”；具体原因进入日志与包内测试。
type outcome string

const (
	outcomeStored        outcome = "stored"
	outcomeAlreadyCached outcome = "already_cached"
	outcomeLowSpace      outcome = "skipped_low_space"
	outcomeNoExtension   outcome = "skipped_no_extension"
	outcomeFetchFailed   outcome = "fetch_failed"
	outcomeTooSmall      outcome = "discarded_too_small"
)

// CacheImage 尽力把 url 指向的图片拉取到本地磁盘。空间不足、推导失败、
// 已有缓存或下载失败都不会向调用方暴露错误，缓存坏了只会静默退化。
func (c *Cache) CacheImage(ctx context.Context, rawURL string) {
	c.cacheImage(ctx, rawURL)
}

func (c *Cache) cacheImage(ctx context.Context, rawURL string) outcome {
	fields := logging.ImageFields(c.bucket, rawURL)

	// 用户磁盘快满时不要雪上加霜。
	if free, err := c.freeBytes(c.dir); err != nil {
		c.logger.WithError(err).WithFields(fields).Debug("free_space_probe_failed")
	} else if free < c.minFreeBytes {
		c.logger.WithFields(fields).WithFields(logrus.Fields{
			"free":  humanize.IBytes(free),
			"floor": humanize.IBytes(c.minFreeBytes),
		}).Warn("device low on storage, not caching images")
		return outcomeLowSpace
	}

	name, ok := FileName(rawURL)
	if !ok {
		c.logger.WithFields(fields).Warn("failed to cache image: no file extension")
		return outcomeNoExtension
	}

	// 文件名即缓存键，存在就认为有效，不做刷新或校验。
	target := filepath.Join(c.dir, name)
	if _, err := os.Stat(target); err == nil {
		return outcomeAlreadyCached
	}

	tmp, err := os.CreateTemp(c.dir, tempPrefix+"*")
	if err != nil {
		c.logger.WithError(err).WithFields(fields).Warn("image_temp_create_failed")
		return outcomeFetchFailed
	}
	tmpName := tmp.Name()
	tmp.Close()

	size, err := c.fetcher.Download(ctx, rawURL, tmpName)
	if err != nil {
		os.Remove(tmpName)
		// 抓图会因为各种网络原因失败，降到 debug 避免刷屏。
		c.logger.WithError(err).WithFields(fields).Debug("image_fetch_failed")
		return outcomeFetchFailed
	}
	if size < c.minValidBytes {
		// 特别小的响应多半是错误页或不可见占位图，不值得留着。
		os.Remove(tmpName)
		c.logger.WithFields(fields).WithField("size", size).Debug("image_discarded_too_small")
		return outcomeTooSmall
	}

	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		c.logger.WithError(err).WithFields(fields).Warn("image_store_failed")
		return outcomeFetchFailed
	}
	return outcomeStored
}

// CachedLocation 返回 url 对应缓存文件的绝对路径。未缓存、无法推导文件名
// 或查询出错时返回 false；该操作设计为快速失败，永不向调用方抛错。
func (c *Cache) CachedLocation(rawURL string) (string, bool) {
	name, ok := FileName(rawURL)
	if !ok {
		return "", false
	}

	target := filepath.Join(c.dir, name)
	info, err := os.Stat(target)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.WithError(err).WithFields(logging.ImageFields(c.bucket, rawURL)).Error("image cache error")
		}
		return "", false
	}
	if info.IsDir() {
		return "", false
	}
	return target, true
}
