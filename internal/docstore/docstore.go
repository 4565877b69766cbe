// Package docstore is the public surface of the documentation cache: it saves
// and reads documents through the on-disk store, keeps an in-memory cache in
// front of it, and creates or restores snapshots of the whole tree.
//
// Document operations run concurrently; writes to the same document are
// serialized by the underlying store. Snapshot creation, restore and Destroy
// are store-wide and exclude every document operation while they run.
package docstore

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/any-hub/docs-hub/internal/backup"
	"github.com/any-hub/docs-hub/internal/docid"
	"github.com/any-hub/docs-hub/internal/logging"
	"github.com/any-hub/docs-hub/internal/memcache"
	"github.com/any-hub/docs-hub/internal/metrics"
	"github.com/any-hub/docs-hub/internal/stamp"
	"github.com/any-hub/docs-hub/internal/store"
)

// Store 组合磁盘存储、内存缓存与快照管理。必须通过 New 创建。
type Store struct {
	root    string
	files   store.Store
	cache   *memcache.Cache
	backups *backup.Manager
	clock   *stamp.Clock
	logger  logrus.FieldLogger
	metrics *metrics.Recorder

	loads singleflight.Group

	// opMu：文档操作持读锁，快照/恢复/销毁持写锁。
	opMu      sync.RWMutex
	destroyed bool

	scheduler *scheduler
}

// New 创建目录结构并在 Backup.Enabled 时启动自动备份。
func New(opts Options) (*Store, error) {
	if opts.Root == "" {
		return nil, errors.New("docstore: root required")
	}
	if opts.Backup.Enabled && opts.Backup.Interval <= 0 {
		return nil, fmt.Errorf("docstore: auto-backup interval must be > 0, got %s", opts.Backup.Interval)
	}

	logger := opts.Logger
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}
	maxBackups := opts.Backup.MaxBackups
	if maxBackups == 0 {
		maxBackups = DefaultMaxBackups
	}
	backupPath := opts.Backup.Path
	if backupPath == "" {
		backupPath = DefaultBackupPath
	}

	files, err := store.NewStore(opts.Root, logging.Component(logger, "store"))
	if err != nil {
		return nil, err
	}
	clock := stamp.NewClock(opts.Now)
	manager, err := backup.NewManager(backup.Options{
		Root:       opts.Root,
		Dir:        backupPath,
		MaxBackups: maxBackups,
		CommitDirs: []string{store.MetadataDir},
		Logger:     logging.Component(logger, "backup"),
		Clock:      clock,
	})
	if err != nil {
		return nil, err
	}

	s := &Store{
		root:    opts.Root,
		files:   files,
		backups: manager,
		clock:   clock,
		logger:  logging.Component(logger, "docstore"),
		metrics: opts.Metrics,
	}
	s.cache = memcache.New(opts.CacheSize, func(docid.ID) {
		s.metrics.CacheEviction()
	})

	if opts.Backup.Enabled {
		s.scheduler = startScheduler(opts.Backup.Interval, s.autoBackup)
		s.logger.WithFields(logrus.Fields{
			"action":      "auto_backup_enabled",
			"interval":    opts.Backup.Interval.String(),
			"max_backups": maxBackups,
		}).Info("自动备份已启动")
	}
	return s, nil
}

// ClearCache 清空内存缓存，不触碰磁盘。
func (s *Store) ClearCache() error {
	s.opMu.RLock()
	defer s.opMu.RUnlock()
	if s.destroyed {
		return ErrAlreadyDestroyed
	}
	n := s.cache.InvalidateAll()
	s.logger.WithFields(logrus.Fields{"action": "cache_clear", "entries": n}).Info("缓存已清空")
	return nil
}

// CacheStats 返回缓存计数快照。
func (s *Store) CacheStats() memcache.Stats {
	return s.cache.Stats()
}

// BackupDir 返回快照目录绝对路径。
func (s *Store) BackupDir() string {
	return s.backups.Dir()
}

// Destroy 停止自动备份、等待进行中的操作完成并清空缓存。可重复调用。
func (s *Store) Destroy() error {
	// 先停调度器：它可能正在等待 opMu。
	s.scheduler.stop()

	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.destroyed {
		return nil
	}
	s.destroyed = true
	s.cache.InvalidateAll()
	s.logger.WithFields(logrus.Fields{"action": "docstore_destroy", "root": s.root}).Info("docs store 已关闭")
	return nil
}

// readLock 获取文档操作锁；已销毁时返回 ErrAlreadyDestroyed 且不持有锁。
func (s *Store) readLock() error {
	s.opMu.RLock()
	if s.destroyed {
		s.opMu.RUnlock()
		return ErrAlreadyDestroyed
	}
	return nil
}

func (s *Store) writeLock() error {
	s.opMu.Lock()
	if s.destroyed {
		s.opMu.Unlock()
		return ErrAlreadyDestroyed
	}
	return nil
}
