package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
)

const (
	indexFile = "index.json"
	// Clips below this size are stored raw.
	compressThreshold = 1024
)

// Disk is a persistent cache. Values are zstd-compressed files named by the
// SHA-256 of their key; a JSON index tracks sizes and access times.
type Disk struct {
	dir      string
	capacity int64
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder

	mu     sync.Mutex
	index  map[string]*diskEntry
	size   int64
	stats  Stats
	dirty  bool
	closed bool
}

type diskEntry struct {
	File       string    `json:"file"`
	Size       int64     `json:"size"`
	Original   int64     `json:"original"`
	Compressed bool      `json:"compressed"`
	Stored     time.Time `json:"stored"`
	LastAccess time.Time `json:"last_access"`
}

// OpenDisk opens or creates a disk cache in dir. A missing or unreadable
// index starts the cache empty.
func OpenDisk(dir string, capacity int64, level int) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	if level <= 0 {
		level = 3
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	d := &Disk{
		dir:      dir,
		capacity: capacity,
		encoder:  enc,
		decoder:  dec,
		index:    make(map[string]*diskEntry),
	}
	if err := d.loadIndex(); err != nil {
		log.Warn("Ignoring unreadable cache index", "dir", dir, "error", err)
		d.index = make(map[string]*diskEntry)
	}
	for _, e := range d.index {
		d.size += e.Size
	}
	return d, nil
}

// Get reads and decompresses the value for key. Entries whose file has
// gone missing or fails to decode are dropped.
func (d *Disk) Get(key string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.index[key]
	if !ok || d.closed {
		d.stats.Misses++
		return nil, false
	}
	data, err := os.ReadFile(filepath.Join(d.dir, e.File))
	if err == nil && e.Compressed {
		data, err = d.decoder.DecodeAll(data, nil)
	}
	if err != nil {
		log.Debug("Dropping unreadable cache entry", "file", e.File, "error", err)
		d.drop(key, e)
		d.stats.Misses++
		return nil, false
	}

	e.LastAccess = time.Now()
	d.dirty = true
	d.stats.Hits++
	return data, true
}

// Put writes value, evicting the least recently accessed entries to make
// room.
func (d *Disk) Put(key string, value []byte) error {
	data, compressed := value, false
	if len(value) > compressThreshold {
		if c := d.encoder.EncodeAll(value, nil); len(c) < len(value) {
			data, compressed = c, true
		}
	}
	size := int64(len(data))
	if size > d.capacity {
		return ErrItemTooLarge
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	if e, ok := d.index[key]; ok {
		d.drop(key, e)
	}
	d.evictFor(size)

	name := fileName(key)
	if err := writeAtomic(filepath.Join(d.dir, name), data); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	now := time.Now()
	d.index[key] = &diskEntry{
		File:       name,
		Size:       size,
		Original:   int64(len(value)),
		Compressed: compressed,
		Stored:     now,
		LastAccess: now,
	}
	d.size += size
	d.dirty = true
	return nil
}

// Prune removes entries stored before now-maxAge and returns how many.
func (d *Disk) Prune(maxAge time.Duration) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	pruned := 0
	for key, e := range d.index {
		if e.Stored.Before(cutoff) {
			d.drop(key, e)
			pruned++
		}
	}
	return pruned
}

// Clear removes every entry and its file.
func (d *Disk) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, e := range d.index {
		d.drop(key, e)
	}
	return d.saveIndex()
}

// Stats returns a snapshot of the counters.
func (d *Disk) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.Capacity, s.Size, s.Items = d.capacity, d.size, len(d.index)
	return s
}

// Flush persists the index if it changed.
func (d *Disk) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.dirty {
		return nil
	}
	return d.saveIndex()
}

// Close persists the index and releases the codecs.
func (d *Disk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	err := d.saveIndex()
	d.decoder.Close()
	return errors.Join(err, d.encoder.Close())
}

// evictFor frees space for size more bytes. mu must be held.
func (d *Disk) evictFor(size int64) {
	if d.size+size <= d.capacity {
		return
	}
	keys := make([]string, 0, len(d.index))
	for k := range d.index {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		return d.index[a].LastAccess.Compare(d.index[b].LastAccess)
	})
	for _, k := range keys {
		if d.size+size <= d.capacity {
			break
		}
		d.drop(k, d.index[k])
		d.stats.Evictions++
	}
}

// drop removes an entry and its file. mu must be held.
func (d *Disk) drop(key string, e *diskEntry) {
	if err := os.Remove(filepath.Join(d.dir, e.File)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Debug("Removing cache file failed", "file", e.File, "error", err)
	}
	delete(d.index, key)
	d.size -= e.Size
	d.dirty = true
}

func (d *Disk) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(d.dir, indexFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return sonic.Unmarshal(data, &d.index)
}

// saveIndex must be called with mu held.
func (d *Disk) saveIndex() error {
	data, err := sonic.Marshal(d.index)
	if err != nil {
		return fmt.Errorf("encoding cache index: %w", err)
	}
	if err := writeAtomic(filepath.Join(d.dir, indexFile), data); err != nil {
		return fmt.Errorf("writing cache index: %w", err)
	}
	d.dirty = false
	return nil
}

func fileName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16]) + ".zst"
}

// writeAtomic writes to a temp file and renames it over path.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
