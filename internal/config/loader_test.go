package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFailsWithMissingFields(t *testing.T) {
	if _, err := loadFixture(t, "missing.toml"); err == nil {
		t.Fatalf("缺失字段的配置应返回错误")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
LogLevel = "info"
StoragePath = "./data"
UpstreamTimeout = "boom"
`
	if _, err := loadInline(t, cfg); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadRejectsUnknownDocKeys(t *testing.T) {
	cfg := `
[[Doc]]
Name = "spec"
URL = "https://go.dev/ref/spec"
Version = "v1"
`
	_, err := loadInline(t, cfg)
	if err == nil {
		t.Fatalf("[[Doc]] 中的未知字段应报错")
	}
	if _, ok := err.(FieldError); !ok {
		t.Fatalf("应返回 FieldError，得到 %T: %v", err, err)
	}
}

func TestLoadEnvFilesIgnoresMissing(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("DOCS_HUB_TEST_MARKER=loaded\n"), 0o600); err != nil {
		t.Fatalf("写入 .env 失败: %v", err)
	}
	t.Setenv("DOCS_HUB_TEST_MARKER", "")
	os.Unsetenv("DOCS_HUB_TEST_MARKER")

	if err := LoadEnvFiles(filepath.Join(dir, "absent.env"), envPath); err != nil {
		t.Fatalf("LoadEnvFiles 返回错误: %v", err)
	}
	if got := os.Getenv("DOCS_HUB_TEST_MARKER"); got != "loaded" {
		t.Fatalf("预期从 .env 读取变量，得到 %q", got)
	}
}
