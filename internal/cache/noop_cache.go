package cache

import "image"

// NoopImageCache is the memory tier with caching disabled.
type NoopImageCache struct{}

func NewNoopImageCache() *NoopImageCache { return &NoopImageCache{} }

func (c *NoopImageCache) Get(key Key) (image.Image, bool) { return nil, false }

func (c *NoopImageCache) Put(key Key, img image.Image, sizeBytes int64) {}

func (c *NoopImageCache) Remove(key Key) {}

func (c *NoopImageCache) Clear() {}

func (c *NoopImageCache) CurrentSize() int64 { return 0 }

// NoopByteCache is the storage tier with caching disabled.
type NoopByteCache struct{}

func NewNoopByteCache() *NoopByteCache { return &NoopByteCache{} }

func (c *NoopByteCache) Get(key Key) ([]byte, bool) { return nil, false }

func (c *NoopByteCache) Put(key Key, data []byte) {}

func (c *NoopByteCache) Remove(key Key) {}

func (c *NoopByteCache) Clear() error { return nil }

func (c *NoopByteCache) CurrentSize() int64 { return 0 }
