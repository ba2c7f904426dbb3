package cache

import (
	"errors"
	"time"
)

var (
	// ErrItemTooLarge is returned when an item exceeds a tier's capacity.
	ErrItemTooLarge = errors.New("item too large for cache")
	// ErrClosed is returned by a cache used after Close.
	ErrClosed = errors.New("cache closed")
)

// Stats holds counters for one tier.
type Stats struct {
	Capacity  int64
	Size      int64
	Items     int
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// Config sizes the tiers. An empty Dir disables the disk tier.
type Config struct {
	MemoryCapacity   int64         `mapstructure:"memory_bytes" yaml:"memory_bytes"`
	DiskCapacity     int64         `mapstructure:"disk_bytes" yaml:"disk_bytes"`
	Dir              string        `mapstructure:"dir" yaml:"dir"`
	CompressionLevel int           `mapstructure:"compression_level" yaml:"compression_level"`
	TTL              time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// DefaultConfig returns a 32MB memory tier and a 512MB disk tier whose
// entries expire after a week. Dir is left for the caller to fill in.
func DefaultConfig() Config {
	return Config{
		MemoryCapacity:   32 << 20,
		DiskCapacity:     512 << 20,
		CompressionLevel: 3,
		TTL:              7 * 24 * time.Hour,
	}
}
