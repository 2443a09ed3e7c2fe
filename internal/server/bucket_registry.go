package server

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iCreck/NewsBlur/internal/config"
	"github.com/iCreck/NewsBlur/internal/imagecache"
)

// Bucket 将一类图片资产的配置与其缓存实例聚合在一起，供路由层直接复用，
// 避免每个请求重复计算目录与阈值。
type Bucket struct {
	// Config 是用户在 config.toml 中声明的 Bucket 字段副本，避免外部修改。
	Config config.BucketConfig
	// Cache 是该 Bucket 独占的磁盘缓存实例。
	Cache *imagecache.Cache
}

// BucketRegistry 提供 Bucket 名称到缓存实例的查询能力，所有 Bucket 共享
// 同一个存储根目录与监听端口。
type BucketRegistry struct {
	buckets     map[string]*Bucket
	ordered     []*Bucket
	storagePath string
}

// NewBucketRegistry 根据配置构建 Bucket 映射，每个 Bucket 在存储根目录下
// 拥有独立子目录。调用方应在启动阶段创建一次并复用。
func NewBucketRegistry(cfg *config.Config, fetcher imagecache.Fetcher, logger *logrus.Logger) (*BucketRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if fetcher == nil {
		return nil, errors.New("fetcher is nil")
	}
	if len(cfg.Buckets) == 0 {
		return nil, errors.New("no buckets configured")
	}

	registry := &BucketRegistry{
		buckets:     make(map[string]*Bucket, len(cfg.Buckets)),
		storagePath: cfg.Global.StoragePath,
	}

	for _, bucketCfg := range cfg.Buckets {
		name := strings.TrimSpace(bucketCfg.Name)
		if name == "" {
			return nil, errors.New("bucket name is empty")
		}
		if _, exists := registry.buckets[name]; exists {
			return nil, fmt.Errorf("duplicate bucket name detected: %s", name)
		}

		cache, err := imagecache.New(imagecache.Options{
			Dir:           filepath.Join(cfg.Global.StoragePath, bucketCfg.Subdir),
			Bucket:        name,
			Fetcher:       fetcher,
			Logger:        logger,
			MinFreeBytes:  uint64(cfg.Global.MinFreeSpace),
			MinValidBytes: cfg.EffectiveMinValidSize(bucketCfg),
			MaxFileAge:    cfg.EffectiveMaxFileAge(bucketCfg),
		})
		if err != nil {
			return nil, fmt.Errorf("bucket %s: %w", name, err)
		}

		bucket := &Bucket{Config: bucketCfg, Cache: cache}
		registry.buckets[name] = bucket
		registry.ordered = append(registry.ordered, bucket)
	}

	return registry, nil
}

// Lookup 根据名称查找 Bucket。
func (r *BucketRegistry) Lookup(name string) (*Bucket, bool) {
	if r == nil {
		return nil, false
	}
	bucket, ok := r.buckets[strings.TrimSpace(name)]
	return bucket, ok
}

// List 返回当前注册的 Bucket 列表（按配置定义的顺序），用于诊断输出。
func (r *BucketRegistry) List() []*Bucket {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}
	result := make([]*Bucket, len(r.ordered))
	copy(result, r.ordered)
	return result
}

// StoragePath 返回所有 Bucket 共享的存储根目录。
func (r *BucketRegistry) StoragePath() string {
	if r == nil {
		return ""
	}
	return r.storagePath
}
