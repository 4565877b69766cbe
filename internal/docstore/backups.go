package docstore

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/docs-hub/internal/backup"
	"github.com/any-hub/docs-hub/internal/logging"
)

// CreateBackup 在所有文档写入静止时创建快照并按保留上限清理旧快照。
func (s *Store) CreateBackup(ctx context.Context) (backup.Snapshot, error) {
	if err := s.writeLock(); err != nil {
		return backup.Snapshot{}, err
	}
	defer s.opMu.Unlock()

	snap, err := s.backups.Create(ctx)
	s.metrics.Backup(err)
	if err != nil {
		s.logger.WithFields(logging.BackupFields("backup_create", "")).WithError(err).Error("创建快照失败")
		return backup.Snapshot{}, err
	}
	return snap, nil
}

// RestoreFromBackup 将 timestamp 指定的快照（空串表示最新）写回存储目录。
// 无论成功与否都会清空缓存：部分写回后缓存内容已不可信。
// 存储目录中存在而快照中没有的文件保持不变。
func (s *Store) RestoreFromBackup(ctx context.Context, timestamp string) (backup.Snapshot, error) {
	if err := s.writeLock(); err != nil {
		return backup.Snapshot{}, err
	}
	defer s.opMu.Unlock()

	snap, err := s.backups.Restore(ctx, timestamp)
	n := s.cache.InvalidateAll()
	if errors.Is(err, backup.ErrNotFound) {
		// 未找到快照不算一次恢复。
		return backup.Snapshot{}, err
	}
	s.metrics.Restore(err)
	if err != nil {
		s.logger.WithFields(logging.BackupFields("backup_restore", timestamp)).WithError(err).Error("恢复快照失败")
		return backup.Snapshot{}, err
	}
	s.logger.WithFields(logging.BackupFields("cache_clear", snap.Name)).
		WithField("entries", n).Debug("恢复后清空缓存")
	return snap, nil
}

// ListBackups 按时间升序返回现有快照。
func (s *Store) ListBackups() ([]backup.Snapshot, error) {
	if err := s.readLock(); err != nil {
		return nil, err
	}
	defer s.opMu.RUnlock()
	return s.backups.List()
}

// autoBackup 由调度器调用；错误只记录日志。
func (s *Store) autoBackup() {
	snap, err := s.CreateBackup(context.Background())
	if err != nil {
		if !errors.Is(err, ErrAlreadyDestroyed) {
			s.logger.WithFields(logging.BackupFields("auto_backup_failed", "")).WithError(err).Warn("自动备份失败")
		}
		return
	}
	s.logger.WithFields(logging.BackupFields("auto_backup", snap.Name)).
		WithFields(logrus.Fields{"files": snap.Files}).Debug("自动备份完成")
}
