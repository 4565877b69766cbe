package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/any-hub/docs-hub/internal/docid"
)

const (
	// MetadataDir 存放每个文档的 YAML 元数据。
	MetadataDir = "metadata"
	// ContentDir 存放正文文件，文件名带版本号。
	ContentDir = "content"

	metadataExt = ".yaml"
	contentExt  = ".txt"
	tempPrefix  = ".tmp-"
)

// Store 负责文档元数据与正文的持久化。
type Store interface {
	// Read 返回 id 对应的记录；不存在时返回 ErrNotFound。
	Read(ctx context.Context, id docid.ID) (*Record, error)

	// Update 在 id 的写锁内执行读-改-写。fn 收到当前记录（不存在时为 nil），
	// 返回新的元数据以及可选的新正文（nil 表示沿用旧正文）。
	// onCommit 非 nil 时在元数据落盘后、释放写锁前调用。
	Update(ctx context.Context, id docid.ID, fn UpdateFunc, onCommit CommitFunc) (*Record, error)

	// List 返回所有文档的元数据，顺序不保证。
	List(ctx context.Context) ([]DocMetadata, error)
}

// UpdateFunc 计算下一版元数据；返回错误时不会写入任何文件。
type UpdateFunc func(current *Record) (DocMetadata, *string, error)

// CommitFunc 收到刚提交的记录，与同一 id 的其他写入互斥。
type CommitFunc func(committed Record)

// Record 是一次完整读取的结果。
type Record struct {
	Metadata DocMetadata
	Content  string
}

// Category 是文档分类的封闭枚举。
type Category string

const (
	CategoryAPI       Category = "api"
	CategoryFramework Category = "framework"
	CategoryLanguage  Category = "language"
	CategoryLibrary   Category = "library"
	CategoryTool      Category = "tool"
	CategoryStandard  Category = "standard"
	CategoryGuide     Category = "guide"
	CategoryOther     Category = "other"
)

var categories = []Category{
	CategoryAPI, CategoryFramework, CategoryLanguage, CategoryLibrary,
	CategoryTool, CategoryStandard, CategoryGuide, CategoryOther,
}

// Categories 返回全部合法分类。
func Categories() []Category {
	return append([]Category(nil), categories...)
}

// ParseCategory 忽略大小写与首尾空白解析分类。
func ParseCategory(raw string) (Category, error) {
	normalized := Category(strings.ToLower(strings.TrimSpace(raw)))
	for _, c := range categories {
		if c == normalized {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", raw)
}

// DocMetadata 是元数据文件的磁盘 schema。
type DocMetadata struct {
	URL         string   `yaml:"url"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Category    Category `yaml:"category"`
	Tags        []string `yaml:"tags,omitempty"`

	// Version 每次成功保存都会变化；Versions 按时间顺序记录之前的版本。
	Version  string   `yaml:"version"`
	Versions []string `yaml:"versions,omitempty"`

	// ContentFile 为空表示文档没有正文。
	ContentFile   string `yaml:"content_file,omitempty"`
	ContentSHA256 string `yaml:"content_sha256,omitempty"`
	ContentSize   int64  `yaml:"content_size"`

	LastUpdated          time.Time `yaml:"last_updated"`
	LastSuccessfulUpdate time.Time `yaml:"last_successful_update"`
	LastAttemptedUpdate  time.Time `yaml:"last_attempted_update"`
	LastChecked          time.Time `yaml:"last_checked"`
}

// Clone 返回不共享切片的副本。
func (m DocMetadata) Clone() DocMetadata {
	m.Tags = append([]string(nil), m.Tags...)
	m.Versions = append([]string(nil), m.Versions...)
	return m
}

func contentFileName(id docid.ID, version string) string {
	return id.String() + "." + version + contentExt
}
