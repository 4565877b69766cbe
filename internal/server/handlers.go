package server

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/docs-hub/internal/docstore"
	"github.com/any-hub/docs-hub/internal/refresh"
	"github.com/any-hub/docs-hub/internal/version"
)

type handlers struct {
	store       DocStore
	fetcher     refresh.Fetcher
	sources     []refresh.Source
	concurrency int
	logger      *logrus.Logger
}

// saveRequest 是 PUT /docs 与 POST /docs/fetch 的请求体。
type saveRequest struct {
	URL         string   `json:"url"`
	Content     *string  `json:"content,omitempty"`
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

func (r saveRequest) overrides() *docstore.PartialDocMetadata {
	return &docstore.PartialDocMetadata{
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		Tags:        r.Tags,
	}
}

type restoreRequest struct {
	Timestamp string `json:"timestamp"`
}

func registerDocRoutes(app *fiber.App, h *handlers) {
	app.Get("/docs", h.listDocs)
	app.Get("/docs/lookup", h.lookupDoc)
	app.Put("/docs", h.saveDoc)
	app.Post("/docs/fetch", h.fetchDoc)
}

func registerAdminRoutes(app *fiber.App, h *handlers, gatherer prometheus.Gatherer) {
	app.Get("/-/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "version": version.Full()})
	})
	app.Get("/-/backups", h.listBackups)
	app.Post("/-/backups", h.createBackup)
	app.Post("/-/backups/restore", h.restoreBackup)
	app.Get("/-/cache", h.cacheStats)
	app.Delete("/-/cache", h.clearCache)
	app.Post("/-/refresh", h.refresh)

	if gatherer != nil {
		app.Get(metricsPath, adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}

func (h *handlers) listDocs(c fiber.Ctx) error {
	docs, err := h.store.ListDocs(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"docs": docs})
}

// lookupDoc: GET /docs/lookup?url=...[&content=true]
func (h *handlers) lookupDoc(c fiber.Ctx) error {
	rawURL := strings.TrimSpace(c.Query("url"))
	if rawURL == "" {
		return badRequest("url_required", "query parameter url is required")
	}

	if withContent, _ := strconv.ParseBool(c.Query("content")); withContent {
		doc, err := h.store.ReadDoc(c.Context(), rawURL)
		if err != nil {
			return err
		}
		if doc == nil {
			return docstore.ErrNotFound
		}
		return c.JSON(doc)
	}

	src, err := h.store.GetDoc(c.Context(), rawURL)
	if err != nil {
		return err
	}
	if src == nil {
		return docstore.ErrNotFound
	}
	return c.JSON(src)
}

func (h *handlers) saveDoc(c fiber.Ctx) error {
	var req saveRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest("invalid_request", "request body must be JSON: "+err.Error())
	}
	if req.URL == "" {
		return badRequest("url_required", "url is required")
	}
	if req.Content == nil {
		return badRequest("content_required", "content is required")
	}

	src, err := h.store.SaveDoc(c.Context(), req.URL, *req.Content, req.overrides())
	if err != nil {
		return err
	}
	return c.JSON(src)
}

// fetchDoc 抓取 url 并保存；抓取失败时只记录尝试时间。
func (h *handlers) fetchDoc(c fiber.Ctx) error {
	if h.fetcher == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "fetcher not configured")
	}
	var req saveRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest("invalid_request", "request body must be JSON: "+err.Error())
	}
	if req.URL == "" {
		return badRequest("url_required", "url is required")
	}

	content, err := h.fetcher.Fetch(c.Context(), req.URL)
	if err != nil {
		if attemptErr := h.store.RecordAttempt(c.Context(), req.URL); attemptErr != nil && !isNotFound(attemptErr) {
			h.logger.WithError(attemptErr).WithField("url", req.URL).Warn("记录抓取尝试失败")
		}
		return err
	}
	src, err := h.store.SaveDoc(c.Context(), req.URL, content, req.overrides())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(src)
}

func (h *handlers) listBackups(c fiber.Ctx) error {
	snaps, err := h.store.ListBackups()
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"backups": snaps})
}

func (h *handlers) createBackup(c fiber.Ctx) error {
	snap, err := h.store.CreateBackup(c.Context())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(snap)
}

// restoreBackup 的请求体可以为空，表示恢复最新快照。
func (h *handlers) restoreBackup(c fiber.Ctx) error {
	var req restoreRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest("invalid_request", "request body must be JSON: "+err.Error())
		}
	}
	snap, err := h.store.RestoreFromBackup(c.Context(), strings.TrimSpace(req.Timestamp))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"restored": snap})
}

func (h *handlers) cacheStats(c fiber.Ctx) error {
	return c.JSON(h.store.CacheStats())
}

func (h *handlers) clearCache(c fiber.Ctx) error {
	if err := h.store.ClearCache(); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handlers) refresh(c fiber.Ctx) error {
	if h.fetcher == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "fetcher not configured")
	}
	report := refresh.Run(c.Context(), h.sources, h.fetcher, h.store, refresh.Options{
		Concurrency: h.concurrency,
		Logger:      h.logger,
	})
	return c.JSON(report)
}

func isNotFound(err error) bool {
	return errors.Is(err, docstore.ErrNotFound)
}
