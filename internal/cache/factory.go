package cache

import "go.uber.org/zap"

// NewImageCache creates the memory tier. A disabled tier or a non-positive
// budget yields a noop cache.
func NewImageCache(enabled bool, maxBytes int64, log *zap.Logger) ImageCache {
	if !enabled || maxBytes <= 0 {
		log.Info("Memory cache disabled")
		return NewNoopImageCache()
	}
	log.Info("Using memory cache", zap.Int64("max_bytes", maxBytes))
	return NewMemoryCache(maxBytes)
}

// NewByteCache creates the storage tier. A disabled tier or a non-positive
// budget yields a noop cache.
func NewByteCache(enabled bool, cacheDir string, maxBytes int64, log *zap.Logger) (ByteCache, error) {
	if !enabled || maxBytes <= 0 {
		log.Info("Storage cache disabled")
		return NewNoopByteCache(), nil
	}
	log.Info("Using storage cache",
		zap.String("cache_dir", cacheDir), zap.Int64("max_bytes", maxBytes))
	return NewStorageCache(cacheDir, maxBytes, log)
}
