package imagecache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Cleanup 删除过期或不再被引用的缓存文件。currentURLs 是调用方当前仍在
// 引用的全量图片地址；为空时视为上层数据不可信（例如数据重建刚发生），
// 本轮直接放弃，不删除任何文件。
func (c *Cache) Cleanup(currentURLs []string) {
	c.cleanup(currentURLs)
}

func (c *Cache) cleanup(currentURLs []string) int {
	if len(currentURLs) == 0 {
		return 0
	}

	current := make(map[string]struct{}, len(currentURLs))
	for _, u := range currentURLs {
		if name, ok := FileName(u); ok {
			current[name] = struct{}{}
		}
	}

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"action": "image_cleanup",
			"bucket": c.bucket,
		}).Warn("image_cleanup_list_failed")
		return 0
	}

	cutoff := c.now().Add(-c.maxFileAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		stale := false
		if info, err := entry.Info(); err == nil {
			stale = info.ModTime().Before(cutoff)
		}
		// 中断下载遗留的临时文件不在引用集合里，同样会被这里回收。
		if _, referenced := current[name]; referenced && !stale {
			continue
		}

		if err := os.Remove(filepath.Join(c.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"action": "image_cleanup",
				"bucket": c.bucket,
				"file":   name,
			}).Warn("image_cleanup_remove_failed")
			continue
		}
		removed++
	}

	if removed > 0 {
		c.logger.WithFields(logrus.Fields{
			"action":  "image_cleanup",
			"bucket":  c.bucket,
			"removed": removed,
		}).Info("image_cleanup_done")
	}
	return removed
}
