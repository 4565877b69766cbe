package docstore

import (
	"fmt"
	"html"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/any-hub/docs-hub/internal/store"
)

const maxDescriptionRunes = 200

var htmlTitlePattern = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// PartialDocMetadata 是 SaveDoc 的可选覆盖项。nil 字段表示"不覆盖"。
type PartialDocMetadata struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Validate 检查覆盖项能否合并，错误均匹配 ErrInvalidMetadata。
func (p *PartialDocMetadata) Validate() error {
	if p == nil {
		return nil
	}
	if p.Category != nil {
		if _, err := store.ParseCategory(*p.Category); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
		}
	}
	return nil
}

// DefaultMetadata 从正文与 URL 推导名称、描述与分类的默认值。
func DefaultMetadata(rawURL, content string) store.DocMetadata {
	return store.DocMetadata{
		URL:         rawURL,
		Name:        defaultName(rawURL, content),
		Description: defaultDescription(content),
		Category:    store.CategoryOther,
	}
}

// MergeMetadata 按固定优先级合并：覆盖项 > base 已有值 > 默认值。
//
//	字段         覆盖项生效条件         base 为空时
//	Name         非 nil 且去空白后非空   defaults.Name
//	Description  非 nil（可置空）        defaults.Description
//	Category     非 nil 且合法           defaults.Category
//	Tags         非 nil（可置空）        保持为空
//
// 其余字段（版本、时间戳、正文引用）原样来自 base。
func MergeMetadata(base, defaults store.DocMetadata, overrides *PartialDocMetadata) store.DocMetadata {
	merged := base.Clone()

	if strings.TrimSpace(merged.Name) == "" {
		merged.Name = defaults.Name
	}
	if merged.Description == "" {
		merged.Description = defaults.Description
	}
	if _, err := store.ParseCategory(string(merged.Category)); err != nil {
		merged.Category = defaults.Category
	}
	if merged.Category == "" {
		merged.Category = store.CategoryOther
	}

	if overrides == nil {
		merged.Tags = normalizeTags(merged.Tags)
		return merged
	}

	if overrides.Name != nil {
		if name := strings.TrimSpace(*overrides.Name); name != "" {
			merged.Name = name
		}
	}
	if overrides.Description != nil {
		merged.Description = strings.TrimSpace(*overrides.Description)
	}
	if overrides.Category != nil {
		if c, err := store.ParseCategory(*overrides.Category); err == nil {
			merged.Category = c
		}
	}
	if overrides.Tags != nil {
		merged.Tags = overrides.Tags
	}
	merged.Tags = normalizeTags(merged.Tags)
	return merged
}

// normalizeTags 去空白、去重并排序；标签是集合，顺序无意义。
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

func defaultName(rawURL, content string) string {
	if m := htmlTitlePattern.FindStringSubmatch(content); m != nil {
		if title := strings.Join(strings.Fields(html.UnescapeString(m[1])), " "); title != "" {
			return title
		}
	}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			if title := strings.TrimSpace(strings.TrimPrefix(line, "# ")); title != "" {
				return title
			}
		}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if base := path.Base(parsed.Path); base != "." && base != "/" && base != "" {
		if unescaped, err := url.PathUnescape(base); err == nil {
			base = unescaped
		}
		return strings.TrimSuffix(base, path.Ext(base))
	}
	if parsed.Host != "" {
		return parsed.Host
	}
	return rawURL
}

// defaultDescription 取第一段非标题、非标记的正文行。
func defaultDescription(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "<") {
			continue
		}
		return truncateRunes(line, maxDescriptionRunes)
	}
	return ""
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit])) + "…"
}
