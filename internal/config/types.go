package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为，所有 Bucket 共享同一份参数。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	StoragePath     string   `mapstructure:"StoragePath"`
	MinFreeSpace    int64    `mapstructure:"MinFreeSpace"`
	MinValidSize    int64    `mapstructure:"MinValidSize"`
	MaxFileAge      Duration `mapstructure:"MaxFileAge"`
	FetchTimeout    Duration `mapstructure:"FetchTimeout"`
	PrefetchWorkers int      `mapstructure:"PrefetchWorkers"`
	PrefetchQueue   int      `mapstructure:"PrefetchQueue"`
	PrefetchRate    float64  `mapstructure:"PrefetchRate"`
	PrefetchBurst   int      `mapstructure:"PrefetchBurst"`
}

// BucketConfig 描述单类图片资产的存放目录与可覆盖的阈值。
// MinValidSize/MaxFileAge 为零时继承全局值。
type BucketConfig struct {
	Name         string   `mapstructure:"Name"`
	Subdir       string   `mapstructure:"Subdir"`
	MinValidSize int64    `mapstructure:"MinValidSize"`
	MaxFileAge   Duration `mapstructure:"MaxFileAge"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global  GlobalConfig   `mapstructure:",squash"`
	Buckets []BucketConfig `mapstructure:"Bucket"`
}

// EffectiveMaxFileAge 返回特定 Bucket 生效的过期窗口，未覆盖时回退至全局值。
func (c *Config) EffectiveMaxFileAge(b BucketConfig) time.Duration {
	if b.MaxFileAge.DurationValue() > 0 {
		return b.MaxFileAge.DurationValue()
	}
	return c.Global.MaxFileAge.DurationValue()
}

// EffectiveMinValidSize 返回特定 Bucket 生效的最小有效字节数。
func (c *Config) EffectiveMinValidSize(b BucketConfig) int64 {
	if b.MinValidSize > 0 {
		return b.MinValidSize
	}
	return c.Global.MinValidSize
}

// BucketNames 返回所有 Bucket 的名称列表，供启动日志输出。
func BucketNames(buckets []BucketConfig) []string {
	if len(buckets) == 0 {
		return nil
	}
	result := make([]string, len(buckets))
	for i, bucket := range buckets {
		result[i] = bucket.Name
	}
	return result
}
