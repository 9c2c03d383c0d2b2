package cache

import (
	"errors"
	"time"
)

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheCorrupted is returned when cache data is corrupted
	ErrCacheCorrupted = errors.New("cache data corrupted")
)

// Stats holds cache performance metrics.
type Stats struct {
	Capacity  int64 // Capacity in cost units (entries or bytes)
	Size      int64 // Current cost
	ItemCount int64

	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64 // hits / (hits + misses)

	LastEvict time.Time
}

func (s *Stats) computeHitRate() {
	if s.Hits+s.Misses > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Hits+s.Misses)
	}
}

// Config holds configuration for the audio cache.
type Config struct {
	MemoryCapacity   int64  // Bytes
	DiskCapacity     int64  // Bytes, 0 disables the disk tier
	DiskPath         string // Directory for cache files
	CompressionLevel int    // Zstd level (1-22), 0 disables compression
}

// DefaultConfig returns the default audio cache configuration.
func DefaultConfig() Config {
	return Config{
		MemoryCapacity:   32 * 1024 * 1024,  // 32MB
		DiskCapacity:     256 * 1024 * 1024, // 256MB
		CompressionLevel: 3,
	}
}
