package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix 是环境变量覆盖配置项时使用的前缀，例如 DOCS_HUB_STORAGEPATH、DOCS_HUB_BACKUP_ENABLED。
const EnvPrefix = "DOCS_HUB"

var allowedDocKeys = map[string]struct{}{
	"name":        {},
	"url":         {},
	"category":    {},
	"description": {},
	"tags":        {},
}

// LoadEnvFiles 依次加载 .env 文件到进程环境，已存在的变量不会被覆盖，缺失的文件被忽略。
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("加载 %s 失败: %w", path, err)
		}
	}
	return nil
}

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	if err := rejectUnknownDocKeys(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyBackupDefaults(&cfg.Backup)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析存储目录: %w", err)
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
	v.SetDefault("MaxCacheEntries", 512)
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("FetchConcurrency", 4)
	v.SetDefault("RefreshOnStart", false)

	v.SetDefault("Backup.Enabled", true)
	v.SetDefault("Backup.Interval", "24h")
	v.SetDefault("Backup.MaxBackups", 7)
	v.SetDefault("Backup.Path", "backups")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if g.LogLevel == "" {
		g.LogLevel = "info"
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
	if g.FetchConcurrency == 0 {
		g.FetchConcurrency = 4
	}
}

func applyBackupDefaults(b *BackupConfig) {
	if b.Interval.DurationValue() == 0 {
		b.Interval = Duration(24 * time.Hour)
	}
	if strings.TrimSpace(b.Path) == "" {
		b.Path = "backups"
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

// rejectUnknownDocKeys 拒绝 [[Doc]] 中无法识别的字段（例如手写的 Version/Content），
// 这些字段由存储层维护，写在配置里只会被静默忽略。
func rejectUnknownDocKeys(v *viper.Viper) error {
	raw := v.Get("Doc")
	docs, ok := raw.([]interface{})
	if !ok {
		return nil
	}

	for idx, entry := range docs {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		name := fmt.Sprintf("#%d", idx)
		for key, value := range m {
			if strings.EqualFold(key, "name") {
				if s, ok := value.(string); ok && s != "" {
					name = s
				}
			}
		}
		for key := range m {
			if _, allowed := allowedDocKeys[strings.ToLower(key)]; !allowed {
				return newFieldError(docField(name, key), "不支持的字段")
			}
		}
	}

	return nil
}
