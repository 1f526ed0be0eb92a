package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCacheKey_Versioned(t *testing.T) {
	key := CacheKey("https://example.com/handbook")
	if key[:11] != "trawler:v1:" {
		t.Errorf("key missing version prefix: %s", key)
	}
	if key != CacheKey("https://example.com/handbook") {
		t.Error("same locator should produce the same key")
	}
	if key == CacheKey("https://example.com/other") {
		t.Error("different locators should produce different keys")
	}
}

func TestDiskCache_RoundTrip(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	key := CacheKey("source-a")

	if _, found := c.Get(key); found {
		t.Error("empty cache should miss")
	}

	if err := c.Set(key, []byte("content"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	val, found := c.Get(key)
	if !found || !bytes.Equal(val, []byte("content")) {
		t.Errorf("Get returned %q, %v", val, found)
	}

	if err := c.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, found := c.Get(key); found {
		t.Error("deleted entry should miss")
	}
	if err := c.Delete(key); err != nil {
		t.Errorf("deleting a missing entry should not error: %v", err)
	}
}

func TestDiskCache_Expiry(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	key := CacheKey("source-b")

	if err := c.Set(key, []byte("stale"), -time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, found := c.Get(key); found {
		t.Error("expired entry should miss")
	}
}

func TestDiskCache_CorruptEntryIsMiss(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	key := CacheKey("source-c")

	if err := c.Set(key, []byte("good"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected 1 cache file, got %d (%v)", len(entries), err)
	}
	if err := os.WriteFile(filepath.Join(dir, entries[0].Name()), []byte("{torn"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, found := c.Get(key); found {
		t.Error("corrupt entry should miss")
	}
}

func TestMemoryCache_RoundTrip(t *testing.T) {
	c := NewMemoryCache(time.Hour, time.Hour)
	key := CacheKey("completion-a")

	if err := c.Set(key, []byte("answer"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	val, found := c.Get(key)
	if !found || !bytes.Equal(val, []byte("answer")) {
		t.Errorf("Get returned %q, %v", val, found)
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, found := c.Get(key); found {
		t.Error("cleared cache should miss")
	}
}

func TestLayeredCache_PromotesFromDisk(t *testing.T) {
	dir := t.TempDir()
	key := CacheKey("source-d")

	// Seed the disk layer directly, as a previous process run would have.
	seed := NewDiskCache(dir, time.Hour)
	if err := seed.Set(key, []byte("persisted"), 0); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	layered := NewLayeredCache(time.Hour, dir, time.Hour)
	val, found := layered.Get(key)
	if !found || !bytes.Equal(val, []byte("persisted")) {
		t.Fatalf("disk layer miss: %q, %v", val, found)
	}

	// After promotion the memory layer serves it even without the disk file.
	if err := seed.Delete(key); err != nil {
		t.Fatal(err)
	}
	if _, found := layered.Get(key); !found {
		t.Error("promoted entry should survive disk deletion")
	}
}
