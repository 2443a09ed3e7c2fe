package imagecache

import (
	"os"
	"strings"
)

// Stats 汇总目录内缓存文件的数量与字节总量，供诊断接口使用。
// 进行中的下载临时文件不计入。
func (c *Cache) Stats() (count int, totalBytes int64) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, 0
	}
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), tempPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		count++
		totalBytes += info.Size()
	}
	return count, totalBytes
}
