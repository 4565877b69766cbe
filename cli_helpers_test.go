package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// cliOutput 在测试期间接管 stdOut/stdErr。
type cliOutput struct {
	out bytes.Buffer
	err bytes.Buffer
}

func captureOutput(t *testing.T) *cliOutput {
	t.Helper()
	o := &cliOutput{}
	prevOut, prevErr := stdOut, stdErr
	stdOut, stdErr = &o.out, &o.err
	t.Cleanup(func() {
		stdOut, stdErr = prevOut, prevErr
	})
	return o
}

func (o *cliOutput) stdout() string { return strings.TrimSpace(o.out.String()) }
func (o *cliOutput) stderr() string { return o.err.String() }

// configFixture 指向 internal/config/testdata 下的样例配置。
func configFixture(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join("internal", "config", "testdata", name)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("配置样例不存在: %v", err)
	}
	return path
}

// storeConfig 写出一个使用 storage 目录的最小配置，extra 追加在末尾（例如 [[Doc]]）。
func storeConfig(t *testing.T, storage, extra string) string {
	t.Helper()
	return writeConfigFile(t, fmt.Sprintf(`
LogLevel = "error"
StoragePath = "%s"
ListenPort = 5000
%s`, storage, extra))
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(file, []byte(strings.TrimSpace(content)), 0o600); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	return file
}
