// Package stamp 提供可排序、可解析且可直接用作文件名的 UTC 时间戳。
package stamp

import (
	"fmt"
	"sync"
	"time"
)

// Layout 固定宽度的纳秒精度格式，字典序与时间序一致。
const Layout = "20060102T150405.000000000Z"

// Format 以 Layout 输出 t 的 UTC 表示。
func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}

// Parse 解析 Format 生成的字符串。
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// Clock 生成严格递增的时间，即使底层时钟分辨率不足或发生回拨。
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// NewClock 使用 now 作为时间源；now 为 nil 时使用 time.Now。
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Next 返回严格大于上一次结果的时间。
func (c *Clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Round(0)
	if !t.After(c.last) {
		t = c.last.Add(time.Nanosecond)
	}
	c.last = t
	return t
}

// After 保证后续 Next 的结果晚于 t，用于从磁盘已有记录恢复单调性。
func (c *Clock) After(t time.Time) {
	c.mu.Lock()
	if t.After(c.last) {
		c.last = t.UTC()
	}
	c.mu.Unlock()
}
