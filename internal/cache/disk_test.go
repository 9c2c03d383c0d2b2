package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestDiskCache_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	dc, err := NewDiskCache(dir, 1<<20, 3)
	if err != nil {
		t.Fatalf("NewDiskCache failed: %v", err)
	}
	defer dc.Close()

	value := bytes.Repeat([]byte("pcm"), 1000)
	if err := dc.Put("hello", value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok := dc.Get("hello")
	if !ok {
		t.Fatal("Expected hit")
	}
	if !bytes.Equal(got, value) {
		t.Error("Expected decompressed data to match")
	}

	files, _ := filepath.Glob(filepath.Join(dir, "*"+diskExt))
	if len(files) != 1 {
		t.Fatalf("Expected 1 cache file, got %d", len(files))
	}
	info, _ := os.Stat(files[0])
	if info.Size() >= int64(len(value)) {
		t.Errorf("Expected compressed file smaller than %d, got %d", len(value), info.Size())
	}
}

func TestDiskCache_ReopenKeepsEntries(t *testing.T) {
	dir := t.TempDir()
	dc, err := NewDiskCache(dir, 1<<20, 1)
	if err != nil {
		t.Fatalf("NewDiskCache failed: %v", err)
	}
	_ = dc.Put("persisted", []byte("audio"))
	dc.Close()

	reopened, err := NewDiskCache(dir, 1<<20, 1)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer reopened.Close()

	got, ok := reopened.Get("persisted")
	if !ok || string(got) != "audio" {
		t.Errorf("Expected persisted entry, got %q (ok=%v)", got, ok)
	}
}

func TestDiskCache_CorruptedEntryIsDropped(t *testing.T) {
	dir := t.TempDir()
	dc, err := NewDiskCache(dir, 1<<20, 1)
	if err != nil {
		t.Fatalf("NewDiskCache failed: %v", err)
	}
	defer dc.Close()

	_ = dc.Put("bad", []byte("audio"))
	path := filepath.Join(dir, hashKey("bad")+diskExt)
	if err := os.WriteFile(path, []byte("not zstd"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, ok := dc.Get("bad"); ok {
		t.Error("Expected corrupted entry to miss")
	}
	if dc.Stats().ItemCount != 0 {
		t.Errorf("Expected corrupted entry to be removed from index")
	}
}

func TestAudioCache_PromotesFromDisk(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.DiskPath = dir

	ac, err := NewAudioCache(cfg)
	if err != nil {
		t.Fatalf("NewAudioCache failed: %v", err)
	}
	key := AudioKey("hello", "en_US", 1.0)
	ac.Put(key, []byte("pcm"))
	ac.Close()

	ac, err = NewAudioCache(cfg)
	if err != nil {
		t.Fatalf("NewAudioCache failed: %v", err)
	}
	defer ac.Close()

	if _, ok := ac.Get(key); !ok {
		t.Fatal("Expected disk hit")
	}
	mem, _ := ac.Stats()
	if mem.ItemCount != 1 {
		t.Errorf("Expected entry promoted to memory, got %d items", mem.ItemCount)
	}
}
