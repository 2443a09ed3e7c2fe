package routes

import (
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v3"

	"github.com/iCreck/NewsBlur/internal/diskfree"
	"github.com/iCreck/NewsBlur/internal/server"
	"github.com/iCreck/NewsBlur/internal/version"
)

// QueueStats 暴露预热队列的积压情况，方便诊断接口注入假实现。
type QueueStats interface {
	Pending() int
}

// RegisterStatsRoutes 暴露 /-/stats 诊断接口，供 SRE 查询各 Bucket 的
// 缓存规模与磁盘余量。
func RegisterStatsRoutes(app *fiber.App, registry *server.BucketRegistry, queue QueueStats) {
	if app == nil || registry == nil {
		return
	}

	app.Get("/-/stats", func(c fiber.Ctx) error {
		payload := statsPayload{
			Version: version.Full(),
			Buckets: encodeBuckets(registry.List()),
		}
		if queue != nil {
			payload.PrefetchPending = queue.Pending()
		}
		if free, err := diskfree.Bytes(registry.StoragePath()); err == nil {
			payload.FreeDisk = humanize.IBytes(free)
			payload.FreeDiskBytes = free
		}
		return c.JSON(payload)
	})
}

type statsPayload struct {
	Version         string               `json:"version"`
	FreeDisk        string               `json:"free_disk,omitempty"`
	FreeDiskBytes   uint64               `json:"free_disk_bytes,omitempty"`
	PrefetchPending int                  `json:"prefetch_pending"`
	Buckets         []bucketStatsPayload `json:"buckets"`
}

type bucketStatsPayload struct {
	Name       string `json:"name"`
	Dir        string `json:"dir"`
	Entries    int    `json:"entries"`
	TotalBytes int64  `json:"total_bytes"`
	TotalHuman string `json:"total_human"`
}

func encodeBuckets(buckets []*server.Bucket) []bucketStatsPayload {
	if len(buckets) == 0 {
		return nil
	}
	result := make([]bucketStatsPayload, 0, len(buckets))
	for _, bucket := range buckets {
		count, totalBytes := bucket.Cache.Stats()
		result = append(result, bucketStatsPayload{
			Name:       bucket.Config.Name,
			Dir:        bucket.Cache.Dir(),
			Entries:    count,
			TotalBytes: totalBytes,
			TotalHuman: humanize.IBytes(uint64(totalBytes)),
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}
