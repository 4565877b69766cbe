package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/docs-hub/internal/config"
	"github.com/any-hub/docs-hub/internal/docstore"
	"github.com/any-hub/docs-hub/internal/fetcher"
	"github.com/any-hub/docs-hub/internal/logging"
	"github.com/any-hub/docs-hub/internal/metrics"
	"github.com/any-hub/docs-hub/internal/refresh"
	"github.com/any-hub/docs-hub/internal/server"
	"github.com/any-hub/docs-hub/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	refreshOnly bool
	backupOnly  bool
	// restoreTarget 为空表示不执行恢复；"latest" 表示最新快照。
	restoreTarget string
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	if err := config.LoadEnvFiles(); err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["docs"] = len(cfg.Docs)
		fields["categories"] = config.Categories(cfg.Docs)
		fields["auto_backup"] = cfg.Backup.Enabled
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 单次命令不启动自动备份，避免与命令本身的快照交错。
	serving := !opts.refreshOnly && !opts.backupOnly && opts.restoreTarget == ""

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder, err := metrics.NewRecorder(registry)
	if err != nil {
		fmt.Fprintf(stdErr, "注册指标失败: %v\n", err)
		return 1
	}

	// 启动顺序：配置 → 文档存储 → 抓取客户端 → Fiber server，
	// 所有请求共享同一个存储与缓存实例。
	store, err := docstore.New(docstore.Options{
		Root:      cfg.Global.StoragePath,
		Backup:    backupOptions(cfg.Backup, serving),
		CacheSize: cfg.Global.MaxCacheEntries,
		Logger:    logger,
		Metrics:   recorder,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "初始化文档存储失败: %v\n", err)
		return 1
	}
	defer store.Destroy()

	docFetcher := fetcher.New(fetcher.Options{
		Timeout: cfg.Global.UpstreamTimeout.DurationValue(),
		Logger:  logging.Component(logger, "fetcher"),
	})
	sources := sourcesFromConfig(cfg.Docs)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case opts.backupOnly:
		return runBackup(ctx, store)
	case opts.restoreTarget != "":
		return runRestore(ctx, store, opts.restoreTarget)
	case opts.refreshOnly:
		return runRefresh(ctx, store, docFetcher, sources, cfg.Global.FetchConcurrency, logger)
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["docs"] = len(cfg.Docs)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["storage_path"] = cfg.Global.StoragePath
	fields["backup_dir"] = store.BackupDir()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if cfg.Global.RefreshOnStart && len(sources) > 0 {
		go refresh.Run(ctx, sources, docFetcher, store, refresh.Options{
			Concurrency: cfg.Global.FetchConcurrency,
			Logger:      logging.Component(logger, "refresh"),
		})
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:             logger,
		Store:              store,
		Fetcher:            docFetcher,
		Sources:            sources,
		RefreshConcurrency: cfg.Global.FetchConcurrency,
		Registerer:         registry,
		Gatherer:           registry,
		ListenPort:         cfg.Global.ListenPort,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "构建 HTTP 服务失败: %v\n", err)
		return 1
	}

	if err := startHTTPServer(ctx, app, cfg.Global.ListenPort, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("docs-hub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
		refreshRun bool
		backupRun  bool
		restore    string
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 DOCS_HUB_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")
	fs.BoolVar(&refreshRun, "refresh", false, "抓取配置中的全部文档后退出")
	fs.BoolVar(&backupRun, "backup", false, "创建一次快照后退出")
	fs.StringVar(&restore, "restore", "", "恢复指定时间戳的快照（latest 表示最新）后退出")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	modes := 0
	for _, on := range []bool{refreshRun, backupRun, restore != ""} {
		if on {
			modes++
		}
	}
	if modes > 1 {
		return cliOptions{}, errors.New("--refresh、--backup、--restore 只能选择一个")
	}

	path := os.Getenv("DOCS_HUB_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:    path,
		checkOnly:     checkOnly,
		showVersion:   showVer,
		refreshOnly:   refreshRun,
		backupOnly:    backupRun,
		restoreTarget: strings.TrimSpace(restore),
	}, nil
}

func backupOptions(cfg config.BackupConfig, serving bool) docstore.BackupOptions {
	return docstore.BackupOptions{
		Enabled:    cfg.Enabled && serving,
		Interval:   cfg.Interval.DurationValue(),
		MaxBackups: cfg.MaxBackups,
		Path:       cfg.Path,
	}
}

func sourcesFromConfig(docs []config.DocConfig) []refresh.Source {
	sources := make([]refresh.Source, 0, len(docs))
	for _, doc := range docs {
		sources = append(sources, refresh.Source{
			Name:        doc.Name,
			URL:         doc.URL,
			Category:    doc.Category,
			Description: doc.Description,
			Tags:        doc.Tags,
		})
	}
	return sources
}

func runBackup(ctx context.Context, store *docstore.Store) int {
	snap, err := store.CreateBackup(ctx)
	if err != nil {
		fmt.Fprintf(stdErr, "创建快照失败: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdOut, snap.Name)
	return 0
}

func runRestore(ctx context.Context, store *docstore.Store, target string) int {
	if strings.EqualFold(target, "latest") {
		target = ""
	}
	snap, err := store.RestoreFromBackup(ctx, target)
	if err != nil {
		fmt.Fprintf(stdErr, "恢复快照失败: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdOut, snap.Name)
	return 0
}

func runRefresh(ctx context.Context, store *docstore.Store, f *fetcher.Fetcher, sources []refresh.Source, concurrency int, logger *logrus.Logger) int {
	report := refresh.Run(ctx, sources, f, store, refresh.Options{
		Concurrency: concurrency,
		Logger:      logging.Component(logger, "refresh"),
	})
	enc := json.NewEncoder(stdOut)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		fmt.Fprintf(stdErr, "输出刷新结果失败: %v\n", err)
		return 1
	}
	if report.Failed > 0 {
		return 1
	}
	return 0
}

// startHTTPServer 阻塞直到 Listen 返回或 ctx 结束；ctx 结束时优雅关闭。
func startHTTPServer(ctx context.Context, app *fiber.App, port int, logger *logrus.Logger) error {
	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.WithField("action", "shutdown").Info("收到退出信号，正在关闭")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	}
}
