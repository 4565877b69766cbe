// Package fetcher downloads document bodies over HTTP. It only returns the
// body as a string; persisting it is the caller's job.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/docs-hub/internal/docid"
	"github.com/any-hub/docs-hub/internal/logging"
	"github.com/any-hub/docs-hub/internal/version"
)

// DefaultMaxBytes 限制单个文档正文大小。
const DefaultMaxBytes = 10 << 20

const acceptHeader = "text/html, text/markdown, text/plain;q=0.9, */*;q=0.5"

// ErrFetchFailed 匹配所有抓取失败（网络错误、非 2xx、正文过大）。
var ErrFetchFailed = errors.New("fetch failed")

// StatusError 表示上游返回了非 2xx 状态码。
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrFetchFailed
}

// Options 配置 Fetcher；零值可用。
type Options struct {
	Client    *http.Client
	Timeout   time.Duration
	UserAgent string
	MaxBytes  int64
	Logger    logrus.FieldLogger
}

// Fetcher 通过 GET 获取文档正文。
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	logger    logrus.FieldLogger
}

// New 创建 Fetcher；未提供 Client 时按 Timeout 构建共享客户端。
func New(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = NewClient(opts.Timeout)
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "docs-hub/" + version.Version
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Fetcher{client: client, userAgent: ua, maxBytes: maxBytes, logger: logger}
}

// Fetch 下载 rawURL 的正文。
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	normalized, err := docid.Normalize(rawURL)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, normalized, nil)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", acceptHeader)

	started := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrFetchFailed, normalized, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &StatusError{URL: normalized, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", ErrFetchFailed, normalized, err)
	}
	if int64(len(body)) > f.maxBytes {
		return "", fmt.Errorf("%w: %s exceeds %d bytes", ErrFetchFailed, normalized, f.maxBytes)
	}

	f.logger.WithFields(logging.DocFields("doc_fetch", "", normalized)).
		WithFields(logrus.Fields{
			"status":     resp.StatusCode,
			"bytes":      len(body),
			"elapsed_ms": time.Since(started).Milliseconds(),
		}).Debug("文档抓取完成")
	return string(body), nil
}
