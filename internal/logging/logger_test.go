package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/any-hub/docs-hub/internal/config"
	"github.com/any-hub/docs-hub/internal/version"
)

func TestConfigureDefaultsToStdout(t *testing.T) {
	logger, err := InitLogger(config.GlobalConfig{LogLevel: "info"})
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	if logger.Out != os.Stdout {
		t.Fatalf("未指定文件时应输出到 stdout")
	}
}

func TestInitLoggerFallbackOnPermissionDenied(t *testing.T) {
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	if err := os.Mkdir(blocked, 0o755); err != nil {
		t.Fatalf("创建目录失败: %v", err)
	}
	if err := os.Chmod(blocked, 0o000); err != nil {
		t.Fatalf("设置目录权限失败: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(blocked, 0o755) })

	cfg := config.GlobalConfig{
		LogLevel:    "info",
		LogFilePath: filepath.Join(blocked, "sub", "docs-hub.log"),
	}
	logger, err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("初始化不应失败: %v", err)
	}
	if logger.Out != os.Stdout {
		t.Fatalf("fallback 时应退回 stdout")
	}
}

func TestConfigureCreatesRotatingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docs-hub.log")
	cfg := config.GlobalConfig{LogLevel: "debug", LogFilePath: path}
	logger, err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	logger.Info("test")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("预期创建日志文件: %v", err)
	}
}

func TestDocFieldsCarryIdentity(t *testing.T) {
	fields := DocFields("doc_save", "example.com_guide-abc", "https://example.com/guide")
	if fields["action"] != "doc_save" || fields["doc_id"] != "example.com_guide-abc" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if fields["url"] != "https://example.com/guide" {
		t.Fatalf("url missing: %v", fields)
	}

	backup := BackupFields("backup_create", "backup-20261019T000000.000000000Z")
	if backup["snapshot"] != "backup-20261019T000000.000000000Z" {
		t.Fatalf("snapshot missing: %v", backup)
	}
}

func TestEntriesCarryServiceAndComponent(t *testing.T) {
	logger, err := InitLogger(config.GlobalConfig{LogLevel: "info"})
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	Component(logger, "backup").WithField("action", "backup_create").Info("done")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("日志应为 JSON: %v (%s)", err, buf.String())
	}
	if entry["service"] != ServiceName || entry["version"] != version.Version {
		t.Fatalf("缺少 service/version 字段: %v", entry)
	}
	if entry["component"] != "backup" || entry["action"] != "backup_create" {
		t.Fatalf("component/action 字段不正确: %v", entry)
	}

	buf.Reset()
	logger.WithField("version", "override").Info("explicit")
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("日志应为 JSON: %v", err)
	}
	if entry["version"] != "override" {
		t.Fatalf("显式字段不应被覆盖: %v", entry["version"])
	}
}
