package server

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/docs-hub/internal/docstore"
	"github.com/any-hub/docs-hub/internal/fetcher"
)

// errorEnvelope 是所有错误响应的统一结构。
type errorEnvelope struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// requestError 表示请求本身不合法（缺少参数、JSON 错误等）。
type requestError struct {
	code    string
	message string
}

func (e *requestError) Error() string {
	return e.message
}

func badRequest(code, message string) error {
	return &requestError{code: code, message: message}
}

// classify 将错误映射为 HTTP 状态码与错误码。
func classify(err error) (int, string) {
	var reqErr *requestError
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &reqErr):
		return fiber.StatusBadRequest, reqErr.code
	case errors.Is(err, docstore.ErrInvalidURL):
		return fiber.StatusBadRequest, "invalid_url"
	case errors.Is(err, docstore.ErrInvalidMetadata):
		return fiber.StatusBadRequest, "invalid_metadata"
	case errors.Is(err, docstore.ErrBackupNotFound):
		return fiber.StatusNotFound, "backup_not_found"
	case errors.Is(err, docstore.ErrNotFound):
		return fiber.StatusNotFound, "doc_not_found"
	case errors.Is(err, docstore.ErrAlreadyDestroyed):
		return fiber.StatusServiceUnavailable, "store_destroyed"
	case errors.Is(err, fetcher.ErrFetchFailed):
		return fiber.StatusBadGateway, "fetch_failed"
	case errors.Is(err, docstore.ErrBackupFailed):
		return fiber.StatusInternalServerError, "backup_failed"
	case errors.Is(err, docstore.ErrRestoreFailed):
		return fiber.StatusInternalServerError, "restore_failed"
	case errors.Is(err, docstore.ErrWriteFailed):
		return fiber.StatusInternalServerError, "write_failed"
	case errors.Is(err, docstore.ErrCorrupt):
		return fiber.StatusInternalServerError, "doc_corrupt"
	case errors.As(err, &fiberErr):
		if fiberErr.Code == fiber.StatusNotFound {
			return fiberErr.Code, "route_not_found"
		}
		return fiberErr.Code, "http_error"
	default:
		return fiber.StatusInternalServerError, "internal_error"
	}
}

func errorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		status, code := classify(err)
		if status >= fiber.StatusInternalServerError {
			logger.WithFields(logrus.Fields{
				"action":     "request_failed",
				"path":       c.Path(),
				"request_id": RequestID(c),
				"error_code": code,
			}).WithError(err).Error("请求处理失败")
		}
		return c.Status(status).JSON(errorEnvelope{
			Error:     code,
			Message:   err.Error(),
			RequestID: RequestID(c),
		})
	}
}
