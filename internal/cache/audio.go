package cache

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/log"
)

// AudioCache stores synthesized PCM keyed by utterance text and voice
// parameters. Lookups try memory first, then disk; disk hits are promoted.
type AudioCache struct {
	memory *LRU[string, []byte]
	disk   *DiskCache
}

// NewAudioCache builds the tiers described by cfg. The disk tier is
// skipped when DiskCapacity or DiskPath is unset.
func NewAudioCache(cfg Config) (*AudioCache, error) {
	ac := &AudioCache{
		memory: NewWeightedLRU[string](cfg.MemoryCapacity, func(b []byte) int64 {
			return int64(len(b))
		}),
	}

	if cfg.DiskCapacity > 0 && cfg.DiskPath != "" {
		disk, err := NewDiskCache(cfg.DiskPath, cfg.DiskCapacity, cfg.CompressionLevel)
		if err != nil {
			return nil, fmt.Errorf("open disk cache: %w", err)
		}
		ac.disk = disk
	}
	return ac, nil
}

// AudioKey derives the cache key for an utterance.
func AudioKey(text, voice string, lengthScale float64) string {
	return voice + "|" + strconv.FormatFloat(lengthScale, 'f', 2, 64) + "|" + text
}

// Get returns cached audio.
func (ac *AudioCache) Get(key string) ([]byte, bool) {
	if data, ok := ac.memory.Get(key); ok {
		return data, true
	}
	if ac.disk == nil {
		return nil, false
	}
	data, ok := ac.disk.Get(key)
	if ok {
		_ = ac.memory.Put(key, data)
	}
	return data, ok
}

// Put stores audio in every tier. Oversized items are skipped.
func (ac *AudioCache) Put(key string, data []byte) {
	if err := ac.memory.Put(key, data); err != nil {
		log.Debug("Audio not cached in memory", "err", err, "bytes", len(data))
	}
	if ac.disk != nil {
		if err := ac.disk.Put(key, data); err != nil {
			log.Debug("Audio not cached on disk", "err", err, "bytes", len(data))
		}
	}
}

// Stats returns memory and disk statistics.
func (ac *AudioCache) Stats() (memory Stats, disk Stats) {
	memory = ac.memory.Stats()
	if ac.disk != nil {
		disk = ac.disk.Stats()
	}
	return memory, disk
}

// Close releases the disk tier.
func (ac *AudioCache) Close() error {
	if ac.disk != nil {
		return ac.disk.Close()
	}
	return nil
}
