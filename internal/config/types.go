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

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
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

// GlobalConfig 描述进程级参数。
type GlobalConfig struct {
	ListenPort       int      `mapstructure:"ListenPort"`
	LogLevel         string   `mapstructure:"LogLevel"`
	LogFilePath      string   `mapstructure:"LogFilePath"`
	LogMaxSize       int      `mapstructure:"LogMaxSize"`
	LogMaxBackups    int      `mapstructure:"LogMaxBackups"`
	LogCompress      bool     `mapstructure:"LogCompress"`
	StoragePath      string   `mapstructure:"StoragePath"`
	MaxCacheEntries  int      `mapstructure:"MaxCacheEntries"`
	UpstreamTimeout  Duration `mapstructure:"UpstreamTimeout"`
	FetchConcurrency int      `mapstructure:"FetchConcurrency"`
	RefreshOnStart   bool     `mapstructure:"RefreshOnStart"`
}

// BackupConfig 对应 [Backup] 段，控制快照目录、保留数量与自动备份。
type BackupConfig struct {
	Enabled    bool     `mapstructure:"Enabled"`
	Interval   Duration `mapstructure:"Interval"`
	MaxBackups int      `mapstructure:"MaxBackups"`
	Path       string   `mapstructure:"Path"`
}

// DocConfig 描述一个需要缓存的文档，对应 [[Doc]] 数组。
type DocConfig struct {
	Name        string   `mapstructure:"Name"`
	URL         string   `mapstructure:"URL"`
	Category    string   `mapstructure:"Category"`
	Description string   `mapstructure:"Description"`
	Tags        []string `mapstructure:"Tags"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Backup BackupConfig `mapstructure:"Backup"`
	Docs   []DocConfig  `mapstructure:"Doc"`
}

// Categories 返回按分类统计的文档数量，供启动日志使用。
func Categories(docs []DocConfig) map[string]int {
	if len(docs) == 0 {
		return nil
	}
	result := make(map[string]int, len(docs))
	for _, doc := range docs {
		key := doc.Category
		if key == "" {
			key = "other"
		}
		result[key]++
	}
	return result
}
