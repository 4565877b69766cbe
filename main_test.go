package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseCLIFlagsPriority(t *testing.T) {
	t.Setenv("DOCS_HUB_CONFIG", "/tmp/env.toml")

	opts, err := parseCLIFlags([]string{})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/env.toml" {
		t.Fatalf("应优先使用环境变量，得到 %s", opts.configPath)
	}

	opts, err = parseCLIFlags([]string{"--config", "/tmp/flag.toml"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/flag.toml" {
		t.Fatalf("flag 应高于环境变量，得到 %s", opts.configPath)
	}
}

func TestParseCLIFlagsModes(t *testing.T) {
	opts, err := parseCLIFlags([]string{"--restore", " latest "})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.restoreTarget != "latest" {
		t.Fatalf("restore 目标应去除空白，得到 %q", opts.restoreTarget)
	}

	if _, err := parseCLIFlags([]string{"--backup", "--refresh"}); err == nil {
		t.Fatalf("多个单次命令应报错")
	}
	if _, err := parseCLIFlags([]string{"--unknown"}); err == nil {
		t.Fatalf("未知参数应报错")
	}
}

func TestRunCheckConfigSuccess(t *testing.T) {
	out := captureOutput(t)
	if code := run(cliOptions{configPath: configFixture(t, "valid.toml"), checkOnly: true}); code != 0 {
		t.Fatalf("期望退出码 0，得到 %d: %s", code, out.stderr())
	}
}

func TestRunCheckConfigFailure(t *testing.T) {
	out := captureOutput(t)
	if code := run(cliOptions{configPath: configFixture(t, "missing.toml"), checkOnly: true}); code == 0 {
		t.Fatalf("无效配置应返回非零退出码")
	}
	if !strings.Contains(out.stderr(), "加载配置失败") {
		t.Fatalf("stderr 应说明配置错误，得到 %q", out.stderr())
	}
}

func TestRunVersionOutput(t *testing.T) {
	out := captureOutput(t)
	if code := run(cliOptions{showVersion: true}); code != 0 {
		t.Fatalf("version 模式应成功退出，得到 %d", code)
	}
	if !strings.HasPrefix(out.stdout(), "docs-hub ") {
		t.Fatalf("version 输出应以 docs-hub 开头，得到 %q", out.stdout())
	}
}

func TestRunBackupAndRestore(t *testing.T) {
	storage := t.TempDir()
	configPath := storeConfig(t, storage, "")

	out := captureOutput(t)
	if code := run(cliOptions{configPath: configPath, restoreTarget: "latest"}); code == 0 {
		t.Fatalf("没有快照时恢复应失败")
	}
	if !strings.Contains(out.stderr(), "Backup not found") {
		t.Fatalf("stderr 应包含 Backup not found，得到 %q", out.stderr())
	}

	out = captureOutput(t)
	if code := run(cliOptions{configPath: configPath, backupOnly: true}); code != 0 {
		t.Fatalf("创建快照应成功，stderr: %s", out.stderr())
	}
	name := out.stdout()
	if !strings.HasPrefix(name, "backup-") {
		t.Fatalf("应输出快照名，得到 %q", name)
	}
	if _, err := os.Stat(filepath.Join(storage, "backups", name)); err != nil {
		t.Fatalf("快照目录应存在: %v", err)
	}

	out = captureOutput(t)
	if code := run(cliOptions{configPath: configPath, restoreTarget: "latest"}); code != 0 {
		t.Fatalf("恢复最新快照应成功，stderr: %s", out.stderr())
	}
	if got := out.stdout(); got != name {
		t.Fatalf("应恢复 %s，得到 %s", name, got)
	}
}

func TestRunRefresh(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("# Upstream Guide\n\nhello"))
	}))
	defer upstream.Close()

	configPath := storeConfig(t, t.TempDir(), fmt.Sprintf(`
[[Doc]]
Name = "Guide"
URL = "%s/guide"
Category = "guide"
`, upstream.URL))

	out := captureOutput(t)
	if code := run(cliOptions{configPath: configPath, refreshOnly: true}); code != 0 {
		t.Fatalf("刷新应成功，stderr: %s", out.stderr())
	}
	if !strings.Contains(out.stdout(), `"saved": 1`) {
		t.Fatalf("刷新报告应包含 saved=1，得到 %s", out.stdout())
	}

	brokenPath := storeConfig(t, t.TempDir(), fmt.Sprintf(`
[[Doc]]
URL = "%s/broken"
`, upstream.URL))

	out = captureOutput(t)
	if code := run(cliOptions{configPath: brokenPath, refreshOnly: true}); code == 0 {
		t.Fatalf("存在失败条目时应返回非零退出码")
	}
	if !strings.Contains(out.stdout(), `"failed": 1`) {
		t.Fatalf("刷新报告应包含 failed=1，得到 %s", out.stdout())
	}
}
