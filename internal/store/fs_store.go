package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/any-hub/docs-hub/internal/docid"
)

// NewStore 以 basePath 为根目录构建文档存储，整个进程复用一份实例。
func NewStore(basePath string, logger logrus.FieldLogger) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	for _, dir := range []string{MetadataDir, ContentDir} {
		if err := os.MkdirAll(filepath.Join(abs, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create storage path: %w", err)
		}
	}

	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}

	return &fileStore{
		basePath: abs,
		logger:   logger,
		locks:    make(map[docid.ID]*entryLock),
	}, nil
}

// fileStore 通过 entryLock 串行化同一文档的读写，不同文档之间互不阻塞。
type fileStore struct {
	basePath string
	logger   logrus.FieldLogger

	mu    sync.Mutex
	locks map[docid.ID]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func (s *fileStore) Read(ctx context.Context, id docid.ID) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateID(id); err != nil {
		return nil, err
	}

	unlock := s.lockEntry(id)
	defer unlock()

	return s.read(id)
}

func (s *fileStore) Update(ctx context.Context, id docid.ID, fn UpdateFunc, onCommit CommitFunc) (*Record, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	unlock := s.lockEntry(id)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	current, err := s.read(id)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		current = nil
	default:
		return nil, err
	}

	next, content, err := fn(current)
	if err != nil {
		return nil, err
	}
	next = next.Clone()

	var (
		body      string
		staleFile string
		freshFile string
	)
	switch {
	case content != nil:
		body = *content
		if current != nil {
			staleFile = current.Metadata.ContentFile
		}
		next.ContentFile, next.ContentSHA256, next.ContentSize = "", "", 0
		if body != "" {
			if next.Version == "" {
				return nil, writeErr("write content", "", errors.New("version required"))
			}
			name := contentFileName(id, next.Version)
			if err := writeFileAtomic(s.contentPath(name), []byte(body)); err != nil {
				return nil, writeErr("write content", s.contentPath(name), err)
			}
			next.ContentFile = name
			next.ContentSHA256 = checksum(body)
			next.ContentSize = int64(len(body))
			freshFile = name
		}
	case current != nil:
		body = current.Content
		next.ContentFile = current.Metadata.ContentFile
		next.ContentSHA256 = current.Metadata.ContentSHA256
		next.ContentSize = current.Metadata.ContentSize
	default:
		next.ContentFile, next.ContentSHA256, next.ContentSize = "", "", 0
	}

	data, err := yaml.Marshal(&next)
	if err != nil {
		return nil, writeErr("encode metadata", s.metadataPath(id), err)
	}
	if err := writeFileAtomic(s.metadataPath(id), data); err != nil {
		if freshFile != "" && freshFile != staleFile {
			os.Remove(s.contentPath(freshFile))
		}
		return nil, writeErr("write metadata", s.metadataPath(id), err)
	}

	if staleFile != "" && staleFile != next.ContentFile {
		if err := os.Remove(s.contentPath(staleFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"action": "stale_content_cleanup",
				"id":     id.String(),
				"file":   staleFile,
			}).Warn("stale_content_cleanup_failed")
		}
	}

	rec := &Record{Metadata: next.Clone(), Content: body}
	if onCommit != nil {
		onCommit(Record{Metadata: rec.Metadata.Clone(), Content: body})
	}
	return rec, nil
}

func (s *fileStore) List(ctx context.Context) ([]DocMetadata, error) {
	dir := filepath.Join(s.basePath, MetadataDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, readErr("list metadata", dir, err)
	}

	result := make([]DocMetadata, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, tempPrefix) || !strings.HasSuffix(name, metadataExt) {
			continue
		}
		id := docid.ID(strings.TrimSuffix(name, metadataExt))
		meta, err := s.readMetadata(id)
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"action": "list_metadata",
				"id":     id.String(),
			}).Warn("skip unreadable metadata")
			continue
		}
		result = append(result, meta)
	}
	return result, nil
}

func (s *fileStore) read(id docid.ID) (*Record, error) {
	meta, err := s.readMetadata(id)
	if err != nil {
		return nil, err
	}
	content, err := s.readContent(meta)
	if err != nil {
		return nil, err
	}
	return &Record{Metadata: meta, Content: content}, nil
}

func (s *fileStore) readMetadata(id docid.ID) (DocMetadata, error) {
	path := s.metadataPath(id)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DocMetadata{}, ErrNotFound
		}
		return DocMetadata{}, readErr("read metadata", path, err)
	}

	var meta DocMetadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return DocMetadata{}, corruptErr("decode metadata", path, err)
	}
	return meta, nil
}

func (s *fileStore) readContent(meta DocMetadata) (string, error) {
	if meta.ContentFile == "" {
		return "", nil
	}
	if filepath.Base(meta.ContentFile) != meta.ContentFile || strings.HasPrefix(meta.ContentFile, ".") {
		return "", corruptErr("resolve content", meta.ContentFile, errors.New("invalid content file name"))
	}

	path := s.contentPath(meta.ContentFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", corruptErr("read content", path, err)
		}
		return "", readErr("read content", path, err)
	}
	body := string(data)
	if meta.ContentSHA256 != "" && checksum(body) != meta.ContentSHA256 {
		return "", corruptErr("verify content", path, errors.New("checksum mismatch"))
	}
	return body, nil
}

func (s *fileStore) lockEntry(id docid.ID) func() {
	s.mu.Lock()
	lock := s.locks[id]
	if lock == nil {
		lock = &entryLock{}
		s.locks[id] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}

func (s *fileStore) metadataPath(id docid.ID) string {
	return filepath.Join(s.basePath, MetadataDir, id.String()+metadataExt)
}

func (s *fileStore) contentPath(name string) string {
	return filepath.Join(s.basePath, ContentDir, name)
}

func validateID(id docid.ID) error {
	raw := id.String()
	if raw == "" || strings.ContainsAny(raw, `/\`) || strings.HasPrefix(raw, ".") {
		return fmt.Errorf("invalid document id %q", raw)
	}
	return nil
}

// writeFileAtomic 写入同目录临时文件并 fsync 后 rename，读者只会看到完整文件。
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(data)
	if err == nil {
		err = tempFile.Sync()
	}
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, path); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

func checksum(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}
