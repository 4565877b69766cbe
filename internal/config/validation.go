package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/docs-hub/internal/docid"
	"github.com/any-hub/docs-hub/internal/store"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
		return newFieldError("Global.LogLevel", "无法识别的日志级别")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.MaxCacheEntries < 0 {
		return newFieldError("Global.MaxCacheEntries", "不能为负数")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.FetchConcurrency <= 0 {
		return newFieldError("Global.FetchConcurrency", "必须大于 0")
	}

	if err := c.Backup.validate(); err != nil {
		return err
	}

	seenURLs := map[string]string{}
	for i := range c.Docs {
		doc := &c.Docs[i]
		label := doc.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}

		normalized, err := docid.Normalize(doc.URL)
		if err != nil {
			return fmt.Errorf("%s: %w", docField(label, "URL"), err)
		}
		if prev, exists := seenURLs[normalized]; exists {
			return newFieldError(docField(label, "URL"), fmt.Sprintf("与 %s 重复", prev))
		}
		seenURLs[normalized] = label
		doc.URL = normalized

		if doc.Category != "" {
			category, err := store.ParseCategory(doc.Category)
			if err != nil {
				return newFieldError(docField(label, "Category"), "仅支持 "+categoryList())
			}
			doc.Category = string(category)
		}
		doc.Name = strings.TrimSpace(doc.Name)
	}

	return nil
}

func (b BackupConfig) validate() error {
	if b.MaxBackups < 1 {
		return newFieldError("Backup.MaxBackups", "必须大于等于 1")
	}
	if b.Enabled && b.Interval.DurationValue() <= 0 {
		return newFieldError("Backup.Interval", "启用自动备份时必须大于 0")
	}
	path := strings.TrimSpace(b.Path)
	if path == "" {
		return newFieldError("Backup.Path", "不能为空")
	}
	if filepath.IsAbs(path) {
		return newFieldError("Backup.Path", "必须是相对 StoragePath 的路径")
	}
	cleaned := filepath.Clean(path)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return newFieldError("Backup.Path", "不能指向 StoragePath 本身或其外部")
	}
	return nil
}

func categoryList() string {
	names := make([]string, 0, len(store.Categories()))
	for _, c := range store.Categories() {
		names = append(names, string(c))
	}
	return strings.Join(names, "|")
}
