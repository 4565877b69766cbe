package docstore

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/docs-hub/internal/docid"
	"github.com/any-hub/docs-hub/internal/metrics"
	"github.com/any-hub/docs-hub/internal/store"
)

const (
	// DefaultMaxBackups 在 Options.Backup.MaxBackups 未设置时使用。
	DefaultMaxBackups = 5
	// DefaultBackupPath 是相对存储根目录的快照目录。
	DefaultBackupPath = "backups"
)

// Options 描述 Store 的构造参数。零值（除 Root 外）即可用于测试：
// 自动备份关闭，缓存不限容量。
type Options struct {
	Root   string
	Backup BackupOptions
	// CacheSize 为 LRU 上限，0 表示不限。
	CacheSize int
	Logger    logrus.FieldLogger
	Metrics   *metrics.Recorder
	// Now 为时间源，nil 时使用 time.Now。
	Now func() time.Time
}

// BackupOptions 对应配置文件中的 [Backup] 段。
type BackupOptions struct {
	Enabled    bool
	Interval   time.Duration
	MaxBackups int
	Path       string
}

// DocSource 是返回给调用方的精简视图。
type DocSource struct {
	Name        string         `json:"name"`
	URL         string         `json:"url"`
	Category    store.Category `json:"category"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags"`
}

// Document 包含完整元数据与正文。
type Document struct {
	ID       docid.ID          `json:"id"`
	Metadata store.DocMetadata `json:"metadata"`
	Content  string            `json:"content"`
}

// Source 投影为 DocSource。
func (d Document) Source() DocSource {
	return sourceOf(d.Metadata)
}

func sourceOf(meta store.DocMetadata) DocSource {
	tags := append([]string{}, meta.Tags...)
	return DocSource{
		Name:        meta.Name,
		URL:         meta.URL,
		Category:    meta.Category,
		Description: meta.Description,
		Tags:        tags,
	}
}

func documentOf(id docid.ID, rec store.Record) *Document {
	return &Document{
		ID:       id,
		Metadata: rec.Metadata.Clone(),
		Content:  rec.Content,
	}
}
