package server

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/docs-hub/internal/logging"
)

const metricsPath = "/-/metrics"

// accessLogMiddleware 在请求结束后输出一条结构化访问日志。
func accessLogMiddleware(logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		started := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status, _ = classify(err)
		}
		fields := logging.RequestFields(c.Method(), c.Path(), status, RequestID(c))
		fields["elapsed_ms"] = time.Since(started).Milliseconds()
		logger.WithFields(fields).Debug("request")
		return err
	}
}

// requestCounter 按 method/route/status 统计请求数。
type requestCounter struct {
	requests *prometheus.CounterVec
}

func newRequestCounter(reg prometheus.Registerer) (*requestCounter, error) {
	m := &requestCounter{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docs_http_requests_total",
				Help: "Total number of HTTP requests processed.",
			},
			[]string{"method", "path", "status"},
		),
	}
	if err := reg.Register(m.requests); err != nil {
		return nil, err
	}
	return m, nil
}

// Handler returns the fiber middleware handler.
func (m *requestCounter) Handler() fiber.Handler {
	return func(c fiber.Ctx) error {
		if c.Path() == metricsPath {
			return c.Next()
		}

		err := c.Next()

		// 使用路由模板而不是原始路径，避免标签基数失控。
		path := c.Route().Path
		if path == "" || path == "/" {
			path = "unmatched"
		}
		status := c.Response().StatusCode()
		if err != nil {
			status, _ = classify(err)
		}
		m.requests.WithLabelValues(c.Method(), path, strconv.Itoa(status)).Inc()
		return err
	}
}
