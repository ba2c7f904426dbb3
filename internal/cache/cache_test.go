package cache

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestMemoryLRU(t *testing.T) {
	m := NewMemory(30)
	for _, k := range []string{"a", "b", "c"} {
		if err := m.Put(k, bytes.Repeat([]byte(k), 10)); err != nil {
			t.Fatalf("Put(%q) error = %v", k, err)
		}
	}

	// Touch "a" so "b" is the least recently used.
	if _, ok := m.Get("a"); !ok {
		t.Fatal("Get(a) missed")
	}
	if err := m.Put("d", bytes.Repeat([]byte("d"), 10)); err != nil {
		t.Fatalf("Put(d) error = %v", err)
	}

	tests := []struct {
		key      string
		expected bool
	}{
		{"a", true},
		{"b", false},
		{"c", true},
		{"d", true},
	}
	for _, tt := range tests {
		if _, ok := m.Get(tt.key); ok != tt.expected {
			t.Errorf("Get(%q) found = %v, expected %v", tt.key, ok, tt.expected)
		}
	}

	s := m.Stats()
	if s.Size != 30 || s.Items != 3 || s.Evictions != 1 {
		t.Errorf("Stats() = %+v, expected size 30, 3 items, 1 eviction", s)
	}
}

func TestMemoryReplaceAndLimits(t *testing.T) {
	m := NewMemory(10)
	if err := m.Put("k", make([]byte, 11)); !errors.Is(err, ErrItemTooLarge) {
		t.Errorf("Put(oversized) error = %v, expected ErrItemTooLarge", err)
	}

	_ = m.Put("k", []byte("12345"))
	_ = m.Put("k", []byte("12"))
	if s := m.Stats(); s.Size != 2 || s.Items != 1 {
		t.Errorf("Stats() after replace = %+v, expected size 2 and 1 item", s)
	}

	m.Delete("k")
	if _, ok := m.Get("k"); ok {
		t.Error("Get() found deleted key")
	}
	if got := m.Stats().HitRate(); got != 0 {
		t.Errorf("HitRate() = %v, expected 0", got)
	}
}

func TestMemoryPrune(t *testing.T) {
	m := NewMemory(100)
	_ = m.Put("old", []byte("x"))
	time.Sleep(20 * time.Millisecond)
	_ = m.Put("new", []byte("y"))

	if n := m.Prune(10 * time.Millisecond); n != 1 {
		t.Errorf("Prune() = %d, expected 1", n)
	}
	if _, ok := m.Get("new"); !ok {
		t.Error("Prune() removed a fresh entry")
	}
}

func TestMemoryConcurrent(t *testing.T) {
	m := NewMemory(1 << 20)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", j%10)
				_ = m.Put(key, []byte(key))
				m.Get(key)
			}
		}()
	}
	wg.Wait()
	if s := m.Stats(); s.Items != 10 {
		t.Errorf("Stats().Items = %d, expected 10", s.Items)
	}
}

func TestDiskRoundTrip(t *testing.T) {
	dir := t.TempDir()
	d, err := OpenDisk(dir, 1<<20, 3)
	if err != nil {
		t.Fatalf("OpenDisk() error = %v", err)
	}

	small := []byte("tiny clip")
	large := bytes.Repeat([]byte("speech "), 1000)
	for key, value := range map[string][]byte{"small": small, "large": large} {
		if err := d.Put(key, value); err != nil {
			t.Fatalf("Put(%q) error = %v", key, err)
		}
	}

	// Compressible audio takes less space than it decodes to.
	if s := d.Stats(); s.Size >= int64(len(small)+len(large)) {
		t.Errorf("Stats().Size = %d, expected compression below %d", s.Size, len(small)+len(large))
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := OpenDisk(dir, 1<<20, 3)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer reopened.Close()
	for key, expected := range map[string][]byte{"small": small, "large": large} {
		got, ok := reopened.Get(key)
		if !ok {
			t.Errorf("Get(%q) missed after reopen", key)
			continue
		}
		if !bytes.Equal(got, expected) {
			t.Errorf("Get(%q) returned %d bytes, expected %d", key, len(got), len(expected))
		}
	}
}

func TestDiskEviction(t *testing.T) {
	d, err := OpenDisk(t.TempDir(), 20, 3)
	if err != nil {
		t.Fatalf("OpenDisk() error = %v", err)
	}
	defer d.Close()

	_ = d.Put("first", []byte("0123456789"))
	time.Sleep(5 * time.Millisecond)
	_ = d.Put("second", []byte("0123456789"))
	time.Sleep(5 * time.Millisecond)
	d.Get("first")
	_ = d.Put("third", []byte("0123456789"))

	if _, ok := d.Get("second"); ok {
		t.Error("least recently used entry survived eviction")
	}
	if _, ok := d.Get("first"); !ok {
		t.Error("recently read entry was evicted")
	}
	if err := d.Put("huge", make([]byte, 21)); !errors.Is(err, ErrItemTooLarge) {
		t.Errorf("Put(oversized) error = %v, expected ErrItemTooLarge", err)
	}
}

func TestDiskDropsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	d, err := OpenDisk(dir, 1<<20, 3)
	if err != nil {
		t.Fatalf("OpenDisk() error = %v", err)
	}
	defer d.Close()

	_ = d.Put("k", []byte("value"))
	if err := os.Remove(filepath.Join(dir, fileName("k"))); err != nil {
		t.Fatal(err)
	}
	if _, ok := d.Get("k"); ok {
		t.Error("Get() returned an entry whose file is gone")
	}
	if s := d.Stats(); s.Items != 0 || s.Size != 0 {
		t.Errorf("Stats() = %+v, expected the entry dropped", s)
	}
}

func TestDiskCorruptIndex(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, indexFile), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	d, err := OpenDisk(dir, 1<<20, 3)
	if err != nil {
		t.Fatalf("OpenDisk() error = %v", err)
	}
	defer d.Close()
	if s := d.Stats(); s.Items != 0 {
		t.Errorf("Stats().Items = %d, expected an empty cache", s.Items)
	}
}

func TestCachePromotesDiskHits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dir = t.TempDir()

	c, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := c.Put("k", []byte("audio")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	c, err = Open(cfg)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer c.Close()

	for i := 0; i < 2; i++ {
		if got, ok := c.Get("k"); !ok || string(got) != "audio" {
			t.Fatalf("Get() #%d = %q, %v", i+1, got, ok)
		}
	}
	memory, disk := c.Stats()
	if memory.Hits != 1 || disk.Hits != 1 {
		t.Errorf("memory hits = %d, disk hits = %d, expected 1 and 1", memory.Hits, disk.Hits)
	}
}

func TestCacheMemoryOnly(t *testing.T) {
	c, err := Open(Config{MemoryCapacity: 1024})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	_ = c.Put("k", []byte("v"))
	if _, ok := c.Get("k"); !ok {
		t.Error("Get() missed")
	}
	if _, disk := c.Stats(); disk != (Stats{}) {
		t.Errorf("disk Stats() = %+v, expected zero without a disk tier", disk)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
