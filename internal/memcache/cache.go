// Package memcache keeps the last loaded document records in memory so repeated
// reads skip the disk. Entries are dropped per document on save and wholesale
// on restore, clear or teardown; there is no TTL.
package memcache

import (
	"container/list"
	"sync"

	"github.com/any-hub/docs-hub/internal/docid"
	"github.com/any-hub/docs-hub/internal/store"
)

// Stats 汇总命中率等计数，供诊断接口输出。
type Stats struct {
	Entries   int    `json:"entries"`
	Capacity  int    `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// Cache 是按文档 ID 索引的 LRU 缓存；capacity <= 0 表示不限容量。
type Cache struct {
	mu       sync.Mutex
	capacity int
	items    map[docid.ID]*list.Element
	lru      *list.List
	onEvict  func(docid.ID)
	// gen 在每次写入或失效时递增，用于丢弃失效前开始的磁盘加载结果。
	gen uint64

	hits      uint64
	misses    uint64
	evictions uint64
}

type cacheEntry struct {
	id     docid.ID
	record store.Record
}

// New 创建容量为 capacity 的缓存。onEvict 可为 nil，仅在容量淘汰时调用。
func New(capacity int, onEvict func(docid.ID)) *Cache {
	return &Cache{
		capacity: capacity,
		items:    make(map[docid.ID]*list.Element),
		lru:      list.New(),
		onEvict:  onEvict,
	}
}

// Get 返回记录副本；调用方修改返回值不会影响缓存。
func (c *Cache) Get(id docid.ID) (store.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[id]
	if !ok {
		c.misses++
		return store.Record{}, false
	}
	c.hits++
	c.lru.MoveToFront(elem)
	return cloneRecord(elem.Value.(*cacheEntry).record), true
}

// Put 写入或覆盖 id 的记录，超出容量时淘汰最久未使用的条目。
func (c *Cache) Put(id docid.ID, record store.Record) {
	c.mu.Lock()
	c.gen++
	evicted := c.putLocked(id, record)
	onEvict := c.onEvict
	c.mu.Unlock()

	if onEvict != nil {
		for _, id := range evicted {
			onEvict(id)
		}
	}
}

// Generation 返回当前代数，配合 PutIfGeneration 使用。
func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// PutIfGeneration 仅在 gen 之后没有发生任何写入或失效时写入，返回是否写入。
func (c *Cache) PutIfGeneration(gen uint64, id docid.ID, record store.Record) bool {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}
	evicted := c.putLocked(id, record)
	onEvict := c.onEvict
	c.mu.Unlock()

	if onEvict != nil {
		for _, id := range evicted {
			onEvict(id)
		}
	}
	return true
}

func (c *Cache) putLocked(id docid.ID, record store.Record) []docid.ID {
	if elem, ok := c.items[id]; ok {
		elem.Value.(*cacheEntry).record = cloneRecord(record)
		c.lru.MoveToFront(elem)
		return nil
	}

	var evicted []docid.ID

	c.items[id] = c.lru.PushFront(&cacheEntry{id: id, record: cloneRecord(record)})
	for c.capacity > 0 && c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		entry := oldest.Value.(*cacheEntry)
		c.lru.Remove(oldest)
		delete(c.items, entry.id)
		c.evictions++
		evicted = append(evicted, entry.id)
	}
	return evicted
}

// Invalidate 删除单个条目。
func (c *Cache) Invalidate(id docid.ID) {
	c.mu.Lock()
	c.gen++
	if elem, ok := c.items[id]; ok {
		c.lru.Remove(elem)
		delete(c.items, id)
	}
	c.mu.Unlock()
}

// InvalidateAll 清空全部条目，返回被清除的数量。计数器保留。
func (c *Cache) InvalidateAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	n := c.lru.Len()
	c.items = make(map[docid.ID]*list.Element)
	c.lru.Init()
	return n
}

// Len 返回当前条目数。
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats 返回计数快照。
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   c.lru.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

func cloneRecord(r store.Record) store.Record {
	return store.Record{Metadata: r.Metadata.Clone(), Content: r.Content}
}
