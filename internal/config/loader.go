package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// defaultBucketName 是历史固定子目录名，未配置任何 Bucket 时沿用。
const defaultBucketName = "olimages"

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	if err := rejectBucketLevelDirs(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	if len(cfg.Buckets) == 0 {
		cfg.Buckets = []BucketConfig{{Name: defaultBucketName}}
	}
	for i := range cfg.Buckets {
		applyBucketDefaults(&cfg.Buckets[i])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("MinFreeSpace", 100*1024*1024)
	v.SetDefault("MinValidSize", 64)
	v.SetDefault("MaxFileAge", "720h")
	v.SetDefault("FetchTimeout", "30s")
	v.SetDefault("PrefetchWorkers", 4)
	v.SetDefault("PrefetchQueue", 256)
	v.SetDefault("PrefetchRate", 0)
	v.SetDefault("PrefetchBurst", 1)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if g.MinFreeSpace == 0 {
		g.MinFreeSpace = 100 * 1024 * 1024
	}
	if g.MinValidSize == 0 {
		g.MinValidSize = 64
	}
	if g.MaxFileAge.DurationValue() == 0 {
		g.MaxFileAge = Duration(30 * 24 * time.Hour)
	}
	if g.FetchTimeout.DurationValue() == 0 {
		g.FetchTimeout = Duration(30 * time.Second)
	}
	if g.PrefetchWorkers == 0 {
		g.PrefetchWorkers = 4
	}
	if g.PrefetchQueue == 0 {
		g.PrefetchQueue = 256
	}
	if g.PrefetchRate > 0 && g.PrefetchBurst < 1 {
		g.PrefetchBurst = 1
	}
}

func applyBucketDefaults(b *BucketConfig) {
	b.Name = strings.TrimSpace(b.Name)
	if trimmed := strings.TrimSpace(b.Subdir); trimmed != "" {
		b.Subdir = trimmed
	} else {
		b.Subdir = b.Name
	}
	if b.MaxFileAge.DurationValue() < 0 {
		b.MaxFileAge = Duration(0)
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}

// rejectBucketLevelDirs 拦截早期版本遗留的 Bucket 级 Dir 字段，避免静默忽略。
// viper 存储的 map 键全部为小写，这里必须按小写键查找。
func rejectBucketLevelDirs(v *viper.Viper) error {
	raw := v.Get("Bucket")
	buckets, ok := raw.([]interface{})
	if !ok {
		return nil
	}

	for idx, entry := range buckets {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		if _, exists := m["dir"]; exists {
			name := fmt.Sprintf("#%d", idx)
			if rawName, ok := m["name"].(string); ok && rawName != "" {
				name = rawName
			}
			return newFieldError(bucketField(name, "Dir"), "字段已弃用，请使用全局 StoragePath 搭配 Subdir")
		}
	}

	return nil
}
