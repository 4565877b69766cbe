package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/docs-hub/internal/backup"
	"github.com/any-hub/docs-hub/internal/docstore"
	"github.com/any-hub/docs-hub/internal/memcache"
	"github.com/any-hub/docs-hub/internal/refresh"
)

// DocStore 是路由层依赖的存储能力，*docstore.Store 满足该接口，测试可替换。
type DocStore interface {
	SaveDoc(ctx context.Context, url, content string, overrides *docstore.PartialDocMetadata) (docstore.DocSource, error)
	GetDoc(ctx context.Context, url string) (*docstore.DocSource, error)
	ReadDoc(ctx context.Context, url string) (*docstore.Document, error)
	ListDocs(ctx context.Context) ([]docstore.DocSource, error)
	RecordAttempt(ctx context.Context, url string) error
	CreateBackup(ctx context.Context) (backup.Snapshot, error)
	RestoreFromBackup(ctx context.Context, timestamp string) (backup.Snapshot, error)
	ListBackups() ([]backup.Snapshot, error)
	ClearCache() error
	CacheStats() memcache.Stats
}

// AppOptions controls how the Fiber application is wired.
type AppOptions struct {
	Logger  *logrus.Logger
	Store   DocStore
	Fetcher refresh.Fetcher
	// Sources 是 /-/refresh 使用的文档列表。
	Sources            []refresh.Source
	RefreshConcurrency int
	// Registerer 用于注册 HTTP 请求计数器；Gatherer 为 /-/metrics 的数据源。
	// 两者都为 nil 时不暴露指标。
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	ListenPort int
}

const contextKeyRequestID = "_docshub_request_id"

// NewApp builds a Fiber application with request-id, access log and
// structured error handling.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Store == nil {
		return nil, errors.New("doc store is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		ErrorHandler:  errorHandler(opts.Logger),
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())
	app.Use(accessLogMiddleware(opts.Logger))

	if opts.Registerer != nil {
		counter, err := newRequestCounter(opts.Registerer)
		if err != nil {
			return nil, fmt.Errorf("register request metrics: %w", err)
		}
		app.Use(counter.Handler())
	}

	h := &handlers{
		store:       opts.Store,
		fetcher:     opts.Fetcher,
		sources:     opts.Sources,
		concurrency: opts.RefreshConcurrency,
		logger:      opts.Logger,
	}
	registerDocRoutes(app, h)
	registerAdminRoutes(app, h, opts.Gatherer)

	app.Use(func(c fiber.Ctx) error {
		return fiber.ErrNotFound
	})
	return app, nil
}

// requestContextMiddleware 负责生成请求 ID 并回写到响应头。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := c.Get("X-Request-ID")
		if reqID == "" || len(reqID) > 64 {
			reqID = uuid.NewString()
		}
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
