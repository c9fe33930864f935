package transcriber

import (
	"container/list"
	"sync"
)

// cacheKey identifies one loaded model instance.
type cacheKey struct {
	path        string
	accelerator Accelerator
}

// Cache holds at most two loaded Transcriber instances — the Fast-tier and
// Refine-tier models — evicting least-recently-used on a third insert. A
// loader func is supplied by the caller so the cache itself has no opinion
// on model options; two distinct Options for the same (path, accelerator)
// still share one cached instance, per spec §9 Q2 (Fast and Refine pointing
// at the same file share a context).
type Cache struct {
	maxEntries int

	mu      sync.Mutex
	ll      *list.List // front = most recently used
	entries map[cacheKey]*list.Element
}

type cacheEntry struct {
	key   cacheKey
	value *Transcriber
}

// NewCache constructs a Cache bounded to maxEntries instances. The spec caps
// this at two (Fast tier + Refine tier); callers needing a different bound
// may pass it explicitly.
func NewCache(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 2
	}
	return &Cache{
		maxEntries: maxEntries,
		ll:         list.New(),
		entries:    make(map[cacheKey]*list.Element),
	}
}

// GetOrLoad returns the cached Transcriber for (path, accelerator), loading
// it via loader if absent. A load failure never evicts or poisons existing
// cache entries.
func (c *Cache) GetOrLoad(path string, accelerator Accelerator, loader func() (*Transcriber, error)) (*Transcriber, error) {
	key := cacheKey{path: path, accelerator: accelerator}

	c.mu.Lock()
	if elem, ok := c.entries[key]; ok {
		c.ll.MoveToFront(elem)
		value := elem.Value.(*cacheEntry).value
		c.mu.Unlock()
		return value, nil
	}
	c.mu.Unlock()

	// Load outside the lock: model loading can take seconds and must not
	// block other cache lookups or evictions.
	loaded, err := loader()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		// Lost a race against a concurrent load for the same key; keep the
		// winner and close our redundant instance.
		c.ll.MoveToFront(elem)
		value := elem.Value.(*cacheEntry).value
		_ = loaded.Close()
		return value, nil
	}

	elem := c.ll.PushFront(&cacheEntry{key: key, value: loaded})
	c.entries[key] = elem

	for c.ll.Len() > c.maxEntries {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		entry := oldest.Value.(*cacheEntry)
		delete(c.entries, entry.key)
		_ = entry.value.Close()
	}

	return loaded, nil
}

// Len reports the number of currently cached model instances.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Close evicts and closes every cached model instance.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for c.ll.Len() > 0 {
		front := c.ll.Front()
		c.ll.Remove(front)
		entry := front.Value.(*cacheEntry)
		delete(c.entries, entry.key)
		if err := entry.value.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
