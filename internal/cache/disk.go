package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const diskExt = ".pcm.zst"

// DiskCache persists synthesized audio across runs. Every entry is a
// zstd frame named after the SHA-256 of its key; the index is rebuilt from
// the directory listing on open.
type DiskCache struct {
	basePath string
	capacity int64
	size     int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	index map[string]*diskEntry

	mu    sync.Mutex
	stats Stats
}

type diskEntry struct {
	path       string
	size       int64
	lastAccess time.Time
}

// NewDiskCache opens (or creates) a disk cache rooted at basePath.
func NewDiskCache(basePath string, capacity int64, compressionLevel int) (*DiskCache, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if compressionLevel <= 0 {
		compressionLevel = 1
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	dc := &DiskCache{
		basePath: basePath,
		capacity: capacity,
		encoder:  encoder,
		decoder:  decoder,
		index:    make(map[string]*diskEntry),
		stats:    Stats{Capacity: capacity},
	}
	if err := dc.scan(); err != nil {
		return nil, err
	}
	return dc, nil
}

// Get reads and decompresses an entry.
func (dc *DiskCache) Get(key string) ([]byte, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	name := hashKey(key)
	entry, ok := dc.index[name]
	if !ok {
		dc.stats.Misses++
		return nil, false
	}

	data, err := os.ReadFile(entry.path)
	if err == nil {
		data, err = dc.decoder.DecodeAll(data, nil)
	}
	if err != nil {
		// Missing or corrupted file.
		dc.remove(name, entry)
		dc.stats.Misses++
		return nil, false
	}

	entry.lastAccess = time.Now()
	dc.stats.Hits++
	return data, true
}

// Put compresses and stores value under key.
func (dc *DiskCache) Put(key string, value []byte) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	data := dc.encoder.EncodeAll(value, nil)
	size := int64(len(data))
	if size > dc.capacity {
		return ErrItemTooLarge
	}

	name := hashKey(key)
	if existing, ok := dc.index[name]; ok {
		dc.remove(name, existing)
	}
	for dc.size+size > dc.capacity && len(dc.index) > 0 {
		dc.evictOldest()
	}

	path := filepath.Join(dc.basePath, name+diskExt)
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	dc.index[name] = &diskEntry{path: path, size: size, lastAccess: time.Now()}
	dc.size += size
	return nil
}

// Clear removes every cached file.
func (dc *DiskCache) Clear() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	for name, entry := range dc.index {
		dc.remove(name, entry)
	}
	return nil
}

// Stats returns cache statistics.
func (dc *DiskCache) Stats() Stats {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	stats := dc.stats
	stats.Size = dc.size
	stats.ItemCount = int64(len(dc.index))
	stats.computeHitRate()
	return stats
}

// Close releases the zstd encoder and decoder.
func (dc *DiskCache) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	dc.decoder.Close()
	return dc.encoder.Close()
}

func (dc *DiskCache) scan() error {
	entries, err := os.ReadDir(dc.basePath)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), diskExt)
		if !ok || e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		dc.index[name] = &diskEntry{
			path:       filepath.Join(dc.basePath, e.Name()),
			size:       info.Size(),
			lastAccess: info.ModTime(),
		}
		dc.size += info.Size()
	}

	// Shrink if the capacity was lowered between runs.
	for dc.size > dc.capacity && len(dc.index) > 0 {
		dc.evictOldest()
	}
	return nil
}

// evictOldest must be called with the lock held.
func (dc *DiskCache) evictOldest() {
	names := make([]string, 0, len(dc.index))
	for name := range dc.index {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return dc.index[names[i]].lastAccess.Before(dc.index[names[j]].lastAccess)
	})
	if len(names) > 0 {
		dc.remove(names[0], dc.index[names[0]])
		dc.stats.Evictions++
		dc.stats.LastEvict = time.Now()
	}
}

// remove must be called with the lock held.
func (dc *DiskCache) remove(name string, entry *diskEntry) {
	_ = os.Remove(entry.path)
	delete(dc.index, name)
	dc.size -= entry.size
}

func hashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:16])
}

func writeFileAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	return os.Rename(tempPath, path)
}
