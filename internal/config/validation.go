package config

import (
	"errors"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.MinFreeSpace <= 0 {
		return newFieldError("Global.MinFreeSpace", "必须大于 0")
	}
	if g.MinValidSize <= 0 {
		return newFieldError("Global.MinValidSize", "必须大于 0")
	}
	if g.MaxFileAge.DurationValue() <= 0 {
		return newFieldError("Global.MaxFileAge", "必须大于 0")
	}
	if g.FetchTimeout.DurationValue() <= 0 {
		return newFieldError("Global.FetchTimeout", "必须大于 0")
	}
	if g.PrefetchWorkers <= 0 {
		return newFieldError("Global.PrefetchWorkers", "必须大于 0")
	}
	if g.PrefetchQueue <= 0 {
		return newFieldError("Global.PrefetchQueue", "必须大于 0")
	}
	if g.PrefetchRate < 0 {
		return newFieldError("Global.PrefetchRate", "不能为负数")
	}
	if g.PrefetchRate > 0 && g.PrefetchBurst <= 0 {
		return newFieldError("Global.PrefetchBurst", "限速开启时必须大于 0")
	}

	if len(c.Buckets) == 0 {
		return errors.New("至少需要配置一个 Bucket")
	}

	seenNames := map[string]struct{}{}
	seenSubdirs := map[string]struct{}{}
	for i := range c.Buckets {
		bucket := &c.Buckets[i]
		if bucket.Name == "" {
			return newFieldError("Bucket[].Name", "不能为空")
		}
		if _, exists := seenNames[bucket.Name]; exists {
			return newFieldError(bucketField(bucket.Name, "Name"), "重复")
		}
		seenNames[bucket.Name] = struct{}{}

		if err := validateSubdir(bucket.Subdir); err != nil {
			return newFieldError(bucketField(bucket.Name, "Subdir"), err.Error())
		}
		if _, exists := seenSubdirs[bucket.Subdir]; exists {
			return newFieldError(bucketField(bucket.Name, "Subdir"), "与其他 Bucket 重复")
		}
		seenSubdirs[bucket.Subdir] = struct{}{}

		if bucket.MinValidSize < 0 {
			return newFieldError(bucketField(bucket.Name, "MinValidSize"), "不能为负数")
		}
		if bucket.MaxFileAge.DurationValue() < 0 {
			return newFieldError(bucketField(bucket.Name, "MaxFileAge"), "不能为负数")
		}
	}

	return nil
}

// validateSubdir 要求子目录是单层路径片段，防止 Bucket 逃出存储根目录。
func validateSubdir(subdir string) error {
	if subdir == "" {
		return errors.New("不能为空")
	}
	if subdir == "." || subdir == ".." {
		return errors.New("不允许使用相对目录")
	}
	if strings.ContainsAny(subdir, `/\`) {
		return errors.New("不允许包含路径分隔符")
	}
	if strings.Contains(subdir, " ") {
		return errors.New("不允许包含空格")
	}
	return nil
}
