package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Key identifies a cache entry across both tiers.
type Key string

// ComputeKey derives the cache key for a load. The encoding is canonical:
// every field is length-prefixed so distinct inputs never produce the same
// string, and the full SHA-256 digest keeps collisions negligible.
// Zero width/height means a full-size decode and hashes as such.
func ComputeKey(sourceID string, width, height int, transforms []string) Key {
	var b strings.Builder
	fmt.Fprintf(&b, "%d:%s|%dx%d", len(sourceID), sourceID, width, height)
	for _, t := range transforms {
		fmt.Fprintf(&b, "|%d:%s", len(t), t)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return Key(hex.EncodeToString(sum[:]))
}
