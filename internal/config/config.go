// Package config reads the imgload CLI configuration from the
// environment. The library itself is configured programmatically.
package config

import (
	"os"
	"path/filepath"
	"strconv"
)

type Config struct {
	CacheDir            string
	MemoryCacheMB       int64
	StorageCacheMB      int64
	DisableMemoryCache  bool
	DisableStorageCache bool
	TargetWidth         int
	TargetHeight        int
	OutputDir           string
	LogLevel            string
}

func Load() *Config {
	cacheDir := getEnv("CACHE_DIR", filepath.Join(os.TempDir(), "imgload-cache"))

	cfg := &Config{
		CacheDir:            cacheDir,
		MemoryCacheMB:       getEnvInt64("MEMORY_CACHE_MB", 64),
		StorageCacheMB:      getEnvInt64("STORAGE_CACHE_MB", 256),
		DisableMemoryCache:  getEnvBool("MEMORY_CACHE_DISABLED", false),
		DisableStorageCache: getEnvBool("STORAGE_CACHE_DISABLED", false),
		TargetWidth:         getEnvInt("TARGET_WIDTH", 0),
		TargetHeight:        getEnvInt("TARGET_HEIGHT", 0),
		OutputDir:           getEnv("OUTPUT_DIR", "."),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
