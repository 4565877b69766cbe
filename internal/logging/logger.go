package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/any-hub/docs-hub/internal/config"
	"github.com/any-hub/docs-hub/internal/version"
)

// ServiceName 写入每条日志的 service 字段。
const ServiceName = "docs-hub"

// InitLogger 根据全局配置初始化 JSON 结构化日志。每条日志都带 service 与
// version 字段；各组件再通过 Component 追加 component 字段。
// 返回的 logger 同时设置为 logrus 全局实例。
func InitLogger(cfg config.GlobalConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("无法解析日志级别: %w", err)
	}

	output, outErr := openOutput(cfg)
	if outErr != nil {
		fmt.Fprintf(os.Stderr, "logger_fallback: %v\n", outErr)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(output)
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	logger.AddHook(newServiceHook())

	logrus.SetFormatter(logger.Formatter)
	logrus.SetOutput(logger.Out)
	logrus.SetLevel(logger.GetLevel())

	if outErr != nil {
		logger.WithFields(logrus.Fields{
			"action": "logger_fallback",
			"path":   cfg.LogFilePath,
		}).Warn(outErr.Error())
	}
	return logger, nil
}

// Component 返回带 component 字段的子 logger，例如 "docstore"、"backup"。
func Component(logger logrus.FieldLogger, name string) logrus.FieldLogger {
	if logger == nil {
		return nil
	}
	return logger.WithField("component", name)
}

// serviceHook 为未显式设置的条目补上 service/version 字段。
type serviceHook struct {
	fields logrus.Fields
}

func newServiceHook() *serviceHook {
	return &serviceHook{fields: logrus.Fields{
		"service": ServiceName,
		"version": version.Version,
	}}
}

func (h *serviceHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *serviceHook) Fire(entry *logrus.Entry) error {
	for k, v := range h.fields {
		if _, ok := entry.Data[k]; !ok {
			entry.Data[k] = v
		}
	}
	return nil
}

// openOutput 返回日志输出：未配置文件时为 stdout，否则为按大小轮转的文件。
// 日志目录不可用时退回 stdout 并返回原因。
func openOutput(cfg config.GlobalConfig) (io.Writer, error) {
	if cfg.LogFilePath == "" {
		return os.Stdout, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFilePath), 0o755); err != nil {
		return os.Stdout, fmt.Errorf("创建日志目录失败: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   cfg.LogFilePath,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   cfg.LogCompress,
		LocalTime:  true,
	}, nil
}
