// Package refresh re-fetches the curated document list and stores every body
// it gets. A failed fetch only records the attempt on the existing document.
package refresh

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/any-hub/docs-hub/internal/docstore"
	"github.com/any-hub/docs-hub/internal/logging"
)

// DefaultConcurrency 在 Options.Concurrency <= 0 时使用。
const DefaultConcurrency = 4

// Source 描述一个需要刷新的文档，空字段不覆盖已有元数据。
type Source struct {
	Name        string
	URL         string
	Category    string
	Description string
	Tags        []string
}

// Fetcher 获取正文。
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Store 是刷新需要的文档写入能力，*docstore.Store 满足该接口。
type Store interface {
	SaveDoc(ctx context.Context, url, content string, overrides *docstore.PartialDocMetadata) (docstore.DocSource, error)
	RecordAttempt(ctx context.Context, url string) error
}

// Options 控制并发与日志。
type Options struct {
	Concurrency int
	Logger      logrus.FieldLogger
}

// Result 是单个文档的刷新结果。
type Result struct {
	URL   string `json:"url"`
	Name  string `json:"name,omitempty"`
	Saved bool   `json:"saved"`
	Error string `json:"error,omitempty"`

	err error
}

// Err 返回原始错误。
func (r Result) Err() error {
	return r.err
}

// Report 汇总一次刷新。Results 与输入顺序一致。
type Report struct {
	Saved    int           `json:"saved"`
	Failed   int           `json:"failed"`
	Elapsed  time.Duration `json:"elapsed"`
	Results  []Result      `json:"results"`
	Canceled bool          `json:"canceled,omitempty"`
}

// Run 以有限并发刷新 sources。单个文档失败不会中断其他文档；
// ctx 取消后尚未开始的文档不再处理。
func Run(ctx context.Context, sources []Source, fetcher Fetcher, dst Store, opts Options) Report {
	limit := opts.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}

	started := time.Now()
	results := make([]Result, len(sources))
	var (
		mu     sync.Mutex
		report Report
	)

	var g errgroup.Group
	g.SetLimit(limit)
	for i, src := range sources {
		if ctx.Err() != nil {
			report.Canceled = true
			results[i] = Result{URL: src.URL, Name: src.Name, Error: ctx.Err().Error(), err: ctx.Err()}
			report.Failed++
			continue
		}
		g.Go(func() error {
			res := refreshOne(ctx, src, fetcher, dst, logger)
			results[i] = res
			mu.Lock()
			if res.Saved {
				report.Saved++
			} else {
				report.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	report.Results = results
	report.Elapsed = time.Since(started)
	logger.WithFields(logrus.Fields{
		"action":     "refresh",
		"saved":      report.Saved,
		"failed":     report.Failed,
		"elapsed_ms": report.Elapsed.Milliseconds(),
	}).Info("文档刷新完成")
	return report
}

func refreshOne(ctx context.Context, src Source, fetcher Fetcher, dst Store, logger logrus.FieldLogger) Result {
	res := Result{URL: src.URL, Name: src.Name}
	fields := logging.DocFields("refresh_doc", "", src.URL)

	content, err := fetcher.Fetch(ctx, src.URL)
	if err != nil {
		res.err = err
		res.Error = err.Error()
		if attemptErr := dst.RecordAttempt(ctx, src.URL); attemptErr != nil && !errors.Is(attemptErr, docstore.ErrNotFound) {
			logger.WithFields(fields).WithError(attemptErr).Warn("记录刷新尝试失败")
		}
		logger.WithFields(fields).WithError(err).Warn("文档抓取失败")
		return res
	}

	saved, err := dst.SaveDoc(ctx, src.URL, content, overridesFor(src))
	if err != nil {
		res.err = err
		res.Error = err.Error()
		logger.WithFields(fields).WithError(err).Error("文档保存失败")
		return res
	}
	res.Name = saved.Name
	res.Saved = true
	return res
}

func overridesFor(src Source) *docstore.PartialDocMetadata {
	var o docstore.PartialDocMetadata
	if src.Name != "" {
		o.Name = &src.Name
	}
	if src.Description != "" {
		o.Description = &src.Description
	}
	if src.Category != "" {
		o.Category = &src.Category
	}
	if len(src.Tags) > 0 {
		o.Tags = append([]string(nil), src.Tags...)
	}
	return &o
}
