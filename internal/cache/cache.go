package cache

import (
	"github.com/charmbracelet/log"
)

// Cache layers the memory tier over the optional disk tier. Disk hits are
// promoted to memory. It satisfies the service's audio cache hook.
type Cache struct {
	memory *Memory
	disk   *Disk
}

// Open builds the tiers described by cfg and prunes expired disk entries.
func Open(cfg Config) (*Cache, error) {
	c := &Cache{memory: NewMemory(cfg.MemoryCapacity)}
	if cfg.Dir == "" || cfg.DiskCapacity <= 0 {
		return c, nil
	}

	disk, err := OpenDisk(cfg.Dir, cfg.DiskCapacity, cfg.CompressionLevel)
	if err != nil {
		return nil, err
	}
	if cfg.TTL > 0 {
		if n := disk.Prune(cfg.TTL); n > 0 {
			log.Debug("Pruned expired audio", "entries", n, "dir", cfg.Dir)
		}
	}
	c.disk = disk
	return c, nil
}

// Get looks in memory, then on disk.
func (c *Cache) Get(key string) ([]byte, bool) {
	if v, ok := c.memory.Get(key); ok {
		return v, true
	}
	if c.disk == nil {
		return nil, false
	}
	v, ok := c.disk.Get(key)
	if ok {
		_ = c.memory.Put(key, v)
	}
	return v, ok
}

// Put stores value in every tier. A value too large for memory still goes
// to disk.
func (c *Cache) Put(key string, value []byte) error {
	memErr := c.memory.Put(key, value)
	if c.disk == nil {
		return memErr
	}
	return c.disk.Put(key, value)
}

// Clear empties every tier.
func (c *Cache) Clear() error {
	c.memory.Clear()
	if c.disk == nil {
		return nil
	}
	return c.disk.Clear()
}

// Stats returns the memory and disk counters. disk is zero when the disk
// tier is disabled.
func (c *Cache) Stats() (memory, disk Stats) {
	memory = c.memory.Stats()
	if c.disk != nil {
		disk = c.disk.Stats()
	}
	return memory, disk
}

// Close persists the disk index.
func (c *Cache) Close() error {
	if c.disk == nil {
		return nil
	}
	return c.disk.Close()
}
