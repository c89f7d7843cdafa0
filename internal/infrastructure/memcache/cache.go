// Package memcache is a bounded in-process cache whose freshness is decided by the reader.
package memcache

import (
	"container/list"
	"sync"
	"time"
)

// Entry is a cached value with the time it was stored and the provider that produced it.
type Entry struct {
	Data       any
	StoredAt   time.Time
	Provenance string
}

type item struct {
	key   string
	entry Entry
}

// Cache maps request fingerprints to entries. When full, a new key evicts the
// oldest-inserted key. Access order is not tracked.
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	items      map[string]*list.Element
	order      *list.List
	now        func() time.Time
	onEvict    func(key string)
}

// New creates a cache holding at most maxEntries keys. maxEntries <= 0 means unbounded.
func New(maxEntries int) *Cache {
	return &Cache{
		maxEntries: maxEntries,
		items:      make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

// OnEvict registers a hook called for each capacity eviction.
func (c *Cache) OnEvict(fn func(key string)) {
	c.mu.Lock()
	c.onEvict = fn
	c.mu.Unlock()
}

// Get returns the entry for key if it is younger than ttl. An expired entry is
// deleted and reported as a miss. ttl <= 0 never expires.
func (c *Cache) Get(key string, ttl time.Duration) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return Entry{}, false
	}
	it := el.Value.(*item)
	if ttl > 0 && c.now().Sub(it.entry.StoredAt) >= ttl {
		c.removeElement(el)
		return Entry{}, false
	}
	return it.entry, true
}

// Set stores data under key. Overwriting keeps the key's original insertion position.
func (c *Cache) Set(key string, data any, provenance string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := Entry{Data: data, StoredAt: c.now(), Provenance: provenance}
	if el, ok := c.items[key]; ok {
		el.Value.(*item).entry = entry
		return
	}

	var evicted string
	if c.maxEntries > 0 && c.order.Len() >= c.maxEntries {
		if oldest := c.order.Front(); oldest != nil {
			evicted = oldest.Value.(*item).key
			c.removeElement(oldest)
		}
	}
	c.items[key] = c.order.PushBack(&item{key: key, entry: entry})

	if evicted != "" && c.onEvict != nil {
		c.onEvict(evicted)
	}
}

// Delete removes key if present.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// Size returns the number of stored entries, including ones that expired but were not read yet.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
}

func (c *Cache) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*item).key)
}
