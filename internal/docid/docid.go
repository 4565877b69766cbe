// Package docid 将任意文档 URL 转换为确定性、可直接落盘的标识符。
package docid

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	// maxReadableLen 限制可读前缀长度，避免超过常见文件系统的文件名上限。
	maxReadableLen = 80
	hashLen        = 12
)

// ErrInvalidURL 表示输入无法解析为 http/https 绝对地址。
var ErrInvalidURL = errors.New("invalid document url")

// ID 是经过清洗的文档标识，只包含 [a-z0-9._-]。
type ID string

func (id ID) String() string {
	return string(id)
}

// Sanitize 解析 raw 并生成 <host_path>-<sha256 前缀> 形式的标识。
// 同一 URL（忽略 fragment 与 host 大小写）在任何进程中都得到相同结果。
func Sanitize(raw string) (ID, error) {
	normalized, err := Normalize(raw)
	if err != nil {
		return "", err
	}
	parsed, _ := url.Parse(normalized)

	readable := slug(parsed.Host + parsed.EscapedPath())
	if len(readable) > maxReadableLen {
		readable = strings.TrimRight(readable[:maxReadableLen], "._-")
	}

	sum := sha256.Sum256([]byte(normalized))
	return ID(readable + "-" + hex.EncodeToString(sum[:])[:hashLen]), nil
}

// Normalize 校验 URL 并返回用于计算哈希的规范形式。
func Normalize(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if strings.ContainsAny(trimmed, " \t\r\n") {
		return "", fmt.Errorf("%w: %q contains whitespace", ErrInvalidURL, raw)
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: %q requires http or https", ErrInvalidURL, raw)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidURL, raw)
	}

	parsed.Scheme = scheme
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	parsed.RawFragment = ""
	return parsed.String(), nil
}

// slug 把不安全字符折叠为单个下划线。
func slug(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._-")
	if out == "" {
		return "doc"
	}
	return out
}
