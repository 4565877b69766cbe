// Package backup snapshots the document store into timestamped directories
// (<backups>/backup-<stamp>), keeps at most MaxBackups of them and restores a
// chosen snapshot over the live tree. Snapshot order always comes from the
// timestamp encoded in the name, never from directory listing order.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/docs-hub/internal/stamp"
)

const (
	namePrefix    = "backup-"
	stagingPrefix = ".staging-"
	tempPrefix    = ".tmp-"
)

// Snapshot 描述一个已发布的快照目录。
type Snapshot struct {
	Name      string    `json:"name"`
	Timestamp string    `json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`
	Path      string    `json:"-"`
	Files     int       `json:"files,omitempty"`
	Bytes     int64     `json:"bytes,omitempty"`
}

// Options 控制 Manager 的目录与保留策略。
type Options struct {
	// Root 是需要备份的存储根目录。
	Root string
	// Dir 是快照目录，相对路径基于 Root。
	Dir string
	// MaxBackups 为保留的快照上限，必须 >= 1。
	MaxBackups int
	// CommitDirs 中的文件在恢复时最后写入（例如元数据目录），
	// 保证元数据引用的正文先落盘。
	CommitDirs []string
	Logger     logrus.FieldLogger
	Clock      *stamp.Clock
}

// Manager 串行执行快照的创建、清理与恢复。
type Manager struct {
	root       string
	dir        string
	maxBackups int
	commitDirs []string
	logger     logrus.FieldLogger
	clock      *stamp.Clock

	mu sync.Mutex
}

// NewManager 校验参数并创建快照目录。
func NewManager(opts Options) (*Manager, error) {
	if opts.Root == "" {
		return nil, errors.New("backup root required")
	}
	if opts.MaxBackups < 1 {
		return nil, fmt.Errorf("max backups must be >= 1, got %d", opts.MaxBackups)
	}

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve backup root: %w", err)
	}
	dir := opts.Dir
	if dir == "" {
		dir = "backups"
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	dir = filepath.Clean(dir)
	if dir == root {
		return nil, errors.New("backup directory must differ from store root")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}
	clock := opts.Clock
	if clock == nil {
		clock = stamp.NewClock(nil)
	}

	m := &Manager{
		root:       root,
		dir:        dir,
		maxBackups: opts.MaxBackups,
		commitDirs: append([]string(nil), opts.CommitDirs...),
		logger:     logger,
		clock:      clock,
	}

	if existing, err := m.List(); err == nil && len(existing) > 0 {
		clock.After(existing[len(existing)-1].CreatedAt)
	}
	return m, nil
}

// Dir 返回快照目录的绝对路径。
func (m *Manager) Dir() string {
	return m.dir
}

// MaxBackups 返回保留上限。
func (m *Manager) MaxBackups() int {
	return m.maxBackups
}

// Create 将存储目录完整复制到新的快照中，然后按时间顺序淘汰多余快照。
// 复制先写入隐藏的 staging 目录，完成后 rename 发布。
func (m *Manager) Create(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	created := m.clock.Next()
	ts := stamp.Format(created)
	name := namePrefix + ts
	final := filepath.Join(m.dir, name)

	staging, err := os.MkdirTemp(m.dir, stagingPrefix+"*")
	if err != nil {
		return Snapshot{}, &OpError{Kind: ErrFailed, Op: "create staging", Path: m.dir, Err: err}
	}
	published := false
	defer func() {
		if !published {
			os.RemoveAll(staging)
		}
	}()

	files, size, err := m.copyTree(ctx, m.root, staging)
	if err != nil {
		return Snapshot{}, &OpError{Kind: ErrFailed, Op: "copy", Path: m.root, Err: err}
	}
	if err := os.Rename(staging, final); err != nil {
		return Snapshot{}, &OpError{Kind: ErrFailed, Op: "publish", Path: final, Err: err}
	}
	published = true

	snap := Snapshot{
		Name:      name,
		Timestamp: ts,
		CreatedAt: created,
		Path:      final,
		Files:     files,
		Bytes:     size,
	}
	m.logger.WithFields(logrus.Fields{
		"action":   "backup_create",
		"snapshot": name,
		"files":    files,
		"bytes":    size,
	}).Info("backup created")

	if err := m.prune(); err != nil {
		return snap, err
	}
	return snap, nil
}

// List 返回按时间升序排列的快照；名称无法解析的目录会被忽略。
func (m *Manager) List() ([]Snapshot, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &OpError{Kind: ErrFailed, Op: "list", Path: m.dir, Err: err}
	}

	result := make([]Snapshot, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), namePrefix) {
			continue
		}
		ts := strings.TrimPrefix(entry.Name(), namePrefix)
		created, err := stamp.Parse(ts)
		if err != nil {
			continue
		}
		result = append(result, Snapshot{
			Name:      entry.Name(),
			Timestamp: ts,
			CreatedAt: created,
			Path:      filepath.Join(m.dir, entry.Name()),
		})
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].Name < result[j].Name
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// Restore 把 timestamp 对应的快照复制回存储目录；timestamp 为空时选择最新快照。
// 快照中不存在的现存文件保持不变。
func (m *Manager) Restore(ctx context.Context, timestamp string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	snap, err := m.find(timestamp)
	if err != nil {
		return Snapshot{}, err
	}

	files, err := m.snapshotFiles(snap.Path)
	if err != nil {
		return Snapshot{}, &OpError{Kind: ErrRestoreFailed, Op: "scan", Path: snap.Path, Err: err}
	}

	var size int64
	// 开始写回后不再响应取消，避免留下半恢复的目录。
	for _, rel := range files {
		target := filepath.Join(m.root, rel)
		if m.isBackupPath(target) {
			continue
		}
		n, err := copyFileAtomic(filepath.Join(snap.Path, rel), target)
		if err != nil {
			return Snapshot{}, &OpError{Kind: ErrRestoreFailed, Op: "restore", Path: target, Err: err}
		}
		size += n
	}
	snap.Files = len(files)
	snap.Bytes = size

	m.logger.WithFields(logrus.Fields{
		"action":   "backup_restore",
		"snapshot": snap.Name,
		"files":    snap.Files,
	}).Info("backup restored")
	return snap, nil
}

func (m *Manager) find(timestamp string) (Snapshot, error) {
	snaps, err := m.List()
	if err != nil {
		return Snapshot{}, err
	}

	want := strings.TrimPrefix(strings.TrimSpace(timestamp), namePrefix)
	if want == "" {
		if len(snaps) == 0 {
			return Snapshot{}, &NotFoundError{}
		}
		return snaps[len(snaps)-1], nil
	}

	wantTime, timeErr := parseRequestedTime(want)
	for _, snap := range snaps {
		if snap.Timestamp == want {
			return snap, nil
		}
		if timeErr == nil && snap.CreatedAt.Equal(wantTime) {
			return snap, nil
		}
	}
	return Snapshot{}, &NotFoundError{Timestamp: timestamp}
}

func parseRequestedTime(raw string) (time.Time, error) {
	if t, err := stamp.Parse(raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}

// prune 删除最旧的快照直到数量不超过 maxBackups。
func (m *Manager) prune() error {
	snaps, err := m.List()
	if err != nil {
		return err
	}
	for len(snaps) > m.maxBackups {
		oldest := snaps[0]
		if err := os.RemoveAll(oldest.Path); err != nil {
			return &OpError{Kind: ErrFailed, Op: "prune", Path: oldest.Path, Err: err}
		}
		m.logger.WithFields(logrus.Fields{
			"action":   "backup_prune",
			"snapshot": oldest.Name,
		}).Info("backup pruned")
		snaps = snaps[1:]
	}
	return nil
}

// snapshotFiles 返回快照内的相对路径，CommitDirs 下的文件排在最后。
func (m *Manager) snapshotFiles(base string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(files, func(i, j int) bool {
		ci, cj := m.isCommitFile(files[i]), m.isCommitFile(files[j])
		if ci != cj {
			return cj
		}
		return files[i] < files[j]
	})
	return files, nil
}

func (m *Manager) isCommitFile(rel string) bool {
	slashed := filepath.ToSlash(rel)
	for _, dir := range m.commitDirs {
		if strings.HasPrefix(slashed, strings.Trim(filepath.ToSlash(dir), "/")+"/") {
			return true
		}
	}
	return false
}

func (m *Manager) isBackupPath(path string) bool {
	return path == m.dir || strings.HasPrefix(path, m.dir+string(filepath.Separator))
}

// copyTree 复制 src 下的普通文件到 dst，跳过快照目录与写入中的临时文件。
func (m *Manager) copyTree(ctx context.Context, src, dst string) (int, int64, error) {
	var (
		files int
		total int64
	)
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != src && (m.isBackupPath(path) || strings.HasPrefix(d.Name(), stagingPrefix)) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		n, err := copyFile(path, filepath.Join(dst, rel))
		if err != nil {
			return err
		}
		files++
		total += n
		return nil
	})
	return files, total, err
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, in)
	if err == nil {
		err = out.Sync()
	}
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		return n, err
	}
	return n, os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// copyFileAtomic 先写到目标目录下的临时文件再 rename，避免读者看到半个文件。
func copyFileAtomic(src, dst string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), tempPrefix+"*")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	tmp.Close()

	n, err := copyFile(src, tmpName)
	if err != nil {
		os.Remove(tmpName)
		return n, err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return n, err
	}
	return n, nil
}
