package docstore

import (
	"context"
	"errors"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/docs-hub/internal/docid"
	"github.com/any-hub/docs-hub/internal/logging"
	"github.com/any-hub/docs-hub/internal/stamp"
	"github.com/any-hub/docs-hub/internal/store"
)

// SaveDoc 持久化 content 并返回合并后的 DocSource。
// 每次成功保存都会生成新的 version，旧 version 追加到 versions。
func (s *Store) SaveDoc(ctx context.Context, rawURL, content string, overrides *PartialDocMetadata) (DocSource, error) {
	normalized, id, err := identify(rawURL)
	if err != nil {
		return DocSource{}, err
	}
	if err := overrides.Validate(); err != nil {
		return DocSource{}, err
	}
	if err := s.readLock(); err != nil {
		return DocSource{}, err
	}
	defer s.opMu.RUnlock()

	defaults := DefaultMetadata(normalized, content)
	rec, err := s.files.Update(ctx, id, func(current *store.Record) (store.DocMetadata, *string, error) {
		base := store.DocMetadata{}
		if current != nil {
			base = current.Metadata
			if prev, err := stamp.Parse(base.Version); err == nil {
				s.clock.After(prev)
			}
		}

		next := MergeMetadata(base, defaults, overrides)
		next.URL = normalized
		if current != nil && current.Metadata.Version != "" {
			next.Versions = append(next.Versions, current.Metadata.Version)
		}
		now := s.clock.Next()
		next.Version = stamp.Format(now)
		next.LastUpdated = now
		next.LastSuccessfulUpdate = now
		next.LastAttemptedUpdate = now
		next.LastChecked = now
		return next, &content, nil
	}, s.cacheCommit(id))
	s.metrics.Save(err)
	if err != nil {
		s.logger.WithFields(logging.DocFields("doc_save", id.String(), normalized)).
			WithError(err).Error("文档保存失败")
		s.markAttempt(ctx, id)
		return DocSource{}, err
	}

	s.logger.WithFields(logging.DocFields("doc_save", id.String(), normalized)).
		WithFields(logrus.Fields{"version": rec.Metadata.Version, "bytes": rec.Metadata.ContentSize}).
		Info("文档已保存")
	return sourceOf(rec.Metadata), nil
}

// GetDoc 返回文档的 DocSource；文档不存在时返回 (nil, nil)。
func (s *Store) GetDoc(ctx context.Context, rawURL string) (*DocSource, error) {
	doc, err := s.ReadDoc(ctx, rawURL)
	if err != nil || doc == nil {
		return nil, err
	}
	src := doc.Source()
	return &src, nil
}

// ReadDoc 返回完整文档；文档不存在时返回 (nil, nil)。
func (s *Store) ReadDoc(ctx context.Context, rawURL string) (*Document, error) {
	_, id, err := identify(rawURL)
	if err != nil {
		return nil, err
	}
	if err := s.readLock(); err != nil {
		return nil, err
	}
	defer s.opMu.RUnlock()

	rec, err := s.load(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return documentOf(id, rec), nil
}

// ListDocs 返回全部文档，按名称排序。
func (s *Store) ListDocs(ctx context.Context) ([]DocSource, error) {
	if err := s.readLock(); err != nil {
		return nil, err
	}
	defer s.opMu.RUnlock()

	metas, err := s.files.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]DocSource, 0, len(metas))
	for _, meta := range metas {
		out = append(out, sourceOf(meta))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].URL < out[j].URL
	})
	return out, nil
}

// RecordAttempt 记录一次未产生新内容的更新尝试（例如抓取失败），
// 只推进 last_attempted_update 与 last_checked，version 不变。
func (s *Store) RecordAttempt(ctx context.Context, rawURL string) error {
	normalized, id, err := identify(rawURL)
	if err != nil {
		return err
	}
	if err := s.readLock(); err != nil {
		return err
	}
	defer s.opMu.RUnlock()

	if _, err := s.files.Update(ctx, id, s.attemptUpdate, s.cacheCommit(id)); err != nil {
		return err
	}
	s.logger.WithFields(logging.DocFields("doc_attempt", id.String(), normalized)).Debug("记录更新尝试")
	return nil
}

func (s *Store) attemptUpdate(current *store.Record) (store.DocMetadata, *string, error) {
	if current == nil {
		return store.DocMetadata{}, nil, store.ErrNotFound
	}
	meta := current.Metadata.Clone()
	now := s.clock.Next()
	meta.LastAttemptedUpdate = now
	meta.LastChecked = now
	return meta, nil, nil
}

// markAttempt 在保存失败后尽力记录尝试时间，失败只记日志。调用方持有读锁。
func (s *Store) markAttempt(ctx context.Context, id docid.ID) {
	_, err := s.files.Update(ctx, id, s.attemptUpdate, s.cacheCommit(id))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.WithFields(logging.DocFields("doc_attempt", id.String(), "")).
				WithError(err).Warn("记录更新尝试失败")
		}
		s.cache.Invalidate(id)
	}
}

// cacheCommit 在 id 的写锁内刷新缓存条目，缓存与磁盘的提交顺序一致。
func (s *Store) cacheCommit(id docid.ID) store.CommitFunc {
	return func(rec store.Record) {
		s.cache.Put(id, rec)
	}
}

// load 优先读缓存；未命中时同一 id 的并发读取只访问一次磁盘。
func (s *Store) load(ctx context.Context, id docid.ID) (store.Record, error) {
	if rec, ok := s.cache.Get(id); ok {
		s.metrics.CacheHit()
		s.logger.WithFields(logging.DocFields("cache_hit", id.String(), "")).Debug("缓存命中")
		return rec, nil
	}
	s.metrics.CacheMiss()
	s.logger.WithFields(logging.DocFields("cache_miss", id.String(), "")).Debug("缓存未命中")

	// 共享的加载不随首个调用方的取消而失败。
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := s.loads.Do(id.String(), func() (any, error) {
		gen := s.cache.Generation()
		rec, err := s.files.Read(loadCtx, id)
		if err != nil {
			return nil, err
		}
		s.cache.PutIfGeneration(gen, id, *rec)
		return rec, nil
	})
	if err != nil {
		return store.Record{}, err
	}
	shared := v.(*store.Record)
	return store.Record{Metadata: shared.Metadata.Clone(), Content: shared.Content}, nil
}

func identify(rawURL string) (string, docid.ID, error) {
	normalized, err := docid.Normalize(rawURL)
	if err != nil {
		return "", "", err
	}
	id, err := docid.Sanitize(rawURL)
	if err != nil {
		return "", "", err
	}
	return normalized, id, nil
}
