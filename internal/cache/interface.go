package cache

import "image"

// ImageCache is the memory tier: decoded images by key, evicted
// least-recently-used under a byte budget.
type ImageCache interface {
	Get(key Key) (image.Image, bool)
	Put(key Key, img image.Image, sizeBytes int64)
	Remove(key Key)
	Clear()
	CurrentSize() int64
}

// ByteCache is the storage tier: encoded image bytes by key, surviving
// process restarts. Same LRU byte-budget contract as ImageCache but
// measured in on-disk bytes.
type ByteCache interface {
	Get(key Key) ([]byte, bool)
	Put(key Key, data []byte)
	Remove(key Key)
	Clear() error
	CurrentSize() int64
}
