package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// loadFixture 加载 testdata 下的样例配置。
func loadFixture(t *testing.T, name string) (*Config, error) {
	t.Helper()
	return Load(filepath.Join("testdata", name))
}

// loadInline 将 body 写入临时 config.toml 后加载；相对 StoragePath 按当前工作目录解析。
func loadInline(t *testing.T, body string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(body)+"\n"), 0o600); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	return Load(path)
}
