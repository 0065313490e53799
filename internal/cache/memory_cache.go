package cache

import (
	"container/list"
	"image"
	"sync"
)

type memoryEntry struct {
	key  Key
	img  image.Image
	size int64
}

// MemoryCache implements an in-memory LRU cache bounded by a byte budget.
// Entries sharing a last-access time evict in list order: least recently
// moved to the front goes first.
type MemoryCache struct {
	mu       sync.Mutex
	maxBytes int64
	curBytes int64
	items    map[Key]*list.Element
	lruList  *list.List
}

// NewMemoryCache creates a new in-memory LRU cache holding at most
// maxBytes of decoded image data.
func NewMemoryCache(maxBytes int64) *MemoryCache {
	return &MemoryCache{
		maxBytes: maxBytes,
		items:    make(map[Key]*list.Element),
		lruList:  list.New(),
	}
}

func (c *MemoryCache) Get(key Key) (image.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}

	c.lruList.MoveToFront(elem)
	return elem.Value.(*memoryEntry).img, true
}

// Put inserts img under key. An entry larger than the whole budget is
// rejected rather than flushing the cache for it.
func (c *MemoryCache) Put(key Key, img image.Image, sizeBytes int64) {
	if sizeBytes <= 0 || sizeBytes > c.maxBytes {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*memoryEntry)
		c.curBytes += sizeBytes - ent.size
		ent.img = img
		ent.size = sizeBytes
		c.lruList.MoveToFront(elem)
	} else {
		ent := &memoryEntry{key: key, img: img, size: sizeBytes}
		c.items[key] = c.lruList.PushFront(ent)
		c.curBytes += sizeBytes
	}

	c.evictLocked()
}

// evictLocked drops entries from the LRU tail until the byte budget holds.
func (c *MemoryCache) evictLocked() {
	for c.curBytes > c.maxBytes {
		oldest := c.lruList.Back()
		if oldest == nil {
			return
		}
		ent := oldest.Value.(*memoryEntry)
		delete(c.items, ent.key)
		c.lruList.Remove(oldest)
		c.curBytes -= ent.size
	}
}

func (c *MemoryCache) Remove(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return
	}
	c.curBytes -= elem.Value.(*memoryEntry).size
	delete(c.items, key)
	c.lruList.Remove(elem)
}

func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[Key]*list.Element)
	c.lruList = list.New()
	c.curBytes = 0
}

func (c *MemoryCache) CurrentSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.curBytes
}
