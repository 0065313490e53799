package cache

import (
	"container/list"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	apperrors "github.com/yuriy-budiyev/image-loader-sub002/errors"
)

type storageEntry struct {
	key        Key
	size       int64
	lastAccess time.Time
}

// StorageCache implements a disk-backed LRU cache with a byte budget.
// Structure: {cacheDir}/{key}, one file per entry, written atomically.
// The index is rebuilt at startup by scanning the directory; file mtimes
// recover the access order. Entries whose backing file disappears are
// dropped from the index on the next Get (self-healing).
type StorageCache struct {
	mu       sync.Mutex
	cacheDir string
	maxBytes int64
	curBytes int64
	items    map[Key]*list.Element
	lruList  *list.List
	log      *zap.Logger
}

func NewStorageCache(cacheDir string, maxBytes int64, log *zap.Logger) (*StorageCache, error) {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	c := &StorageCache{
		cacheDir: cacheDir,
		maxBytes: maxBytes,
		items:    make(map[Key]*list.Element),
		lruList:  list.New(),
		log:      log,
	}
	c.recover()
	return c, nil
}

// recover rebuilds the index from the cache directory. Stray temp files
// from interrupted writes are removed.
func (c *StorageCache) recover() {
	dirEntries, err := os.ReadDir(c.cacheDir)
	if err != nil {
		c.log.Warn("Cache index recovery failed",
			zap.String("cache_dir", c.cacheDir), zap.Error(err))
		return
	}

	var found []storageEntry
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		if filepath.Ext(de.Name()) == ".tmp" {
			os.Remove(filepath.Join(c.cacheDir, de.Name()))
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		found = append(found, storageEntry{
			key:        Key(de.Name()),
			size:       info.Size(),
			lastAccess: info.ModTime(),
		})
	}

	// Oldest first, so the newest entry ends up at the list front.
	sort.Slice(found, func(i, j int) bool {
		return found[i].lastAccess.Before(found[j].lastAccess)
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range found {
		ent := found[i]
		c.items[ent.key] = c.lruList.PushFront(&ent)
		c.curBytes += ent.size
	}
	c.evictLocked()

	if len(found) > 0 {
		c.log.Info("Storage cache index recovered",
			zap.Int("entries", c.lruList.Len()),
			zap.Int64("bytes", c.curBytes))
	}
}

func (c *StorageCache) filePath(key Key) string {
	return filepath.Join(c.cacheDir, string(key))
}

func (c *StorageCache) Get(key Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}

	data, err := os.ReadFile(c.filePath(key))
	if err != nil {
		// Backing file removed externally: drop the index entry and miss.
		c.dropLocked(key, elem)
		c.log.Warn("Dropping stale storage cache entry",
			zap.String("key", string(key)),
			zap.Error(apperrors.New(apperrors.KindCacheIndex, "storage.get", err)))
		return nil, false
	}

	ent := elem.Value.(*storageEntry)
	ent.lastAccess = time.Now()
	c.lruList.MoveToFront(elem)
	// Keep mtime in step with the access order so recovery preserves it.
	os.Chtimes(c.filePath(key), ent.lastAccess, ent.lastAccess)

	return data, true
}

// Put stores data under key. A failed write leaves the index untouched:
// the entry is simply not recorded as present.
func (c *StorageCache) Put(key Key, data []byte) {
	if int64(len(data)) > c.maxBytes {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	filePath := c.filePath(key)

	// Write atomically
	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		c.log.Warn("Storage cache write failed",
			zap.String("key", string(key)),
			zap.Error(apperrors.New(apperrors.KindCacheWrite, "storage.put", err)))
		return
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		c.log.Warn("Storage cache write failed",
			zap.String("key", string(key)),
			zap.Error(apperrors.New(apperrors.KindCacheWrite, "storage.put", err)))
		return
	}

	size := int64(len(data))
	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*storageEntry)
		c.curBytes += size - ent.size
		ent.size = size
		ent.lastAccess = time.Now()
		c.lruList.MoveToFront(elem)
	} else {
		ent := &storageEntry{key: key, size: size, lastAccess: time.Now()}
		c.items[key] = c.lruList.PushFront(ent)
		c.curBytes += size
	}

	c.evictLocked()
}

func (c *StorageCache) evictLocked() {
	for c.curBytes > c.maxBytes {
		oldest := c.lruList.Back()
		if oldest == nil {
			return
		}
		ent := oldest.Value.(*storageEntry)
		os.Remove(c.filePath(ent.key))
		delete(c.items, ent.key)
		c.lruList.Remove(oldest)
		c.curBytes -= ent.size
	}
}

// dropLocked removes an index entry without touching the backing file.
func (c *StorageCache) dropLocked(key Key, elem *list.Element) {
	c.curBytes -= elem.Value.(*storageEntry).size
	delete(c.items, key)
	c.lruList.Remove(elem)
}

func (c *StorageCache) Remove(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return
	}
	os.Remove(c.filePath(key))
	c.dropLocked(key, elem)
}

// Clear removes every entry. Per-file removal failures are aggregated so
// a single stubborn file does not hide the rest.
func (c *StorageCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	for key := range c.items {
		if rmErr := os.Remove(c.filePath(key)); rmErr != nil && !os.IsNotExist(rmErr) {
			err = multierr.Append(err, rmErr)
		}
	}

	c.items = make(map[Key]*list.Element)
	c.lruList = list.New()
	c.curBytes = 0
	return err
}

func (c *StorageCache) CurrentSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.curBytes
}
