// Package config loads the alouette-tts configuration from YAML, the
// environment and command-line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/alouette/tts/internal/cache"
	"github.com/alouette/tts/pkg/tts"
	"github.com/alouette/tts/pkg/tts/engine"
)

// AppName names the config, cache and log directories.
const AppName = "alouette-tts"

// EnvPrefix prefixes environment overrides, e.g. ALOUETTE_TTS_VOICE_RATE.
const EnvPrefix = "ALOUETTE_TTS"

// Config is the full application configuration.
type Config struct {
	// Engine pins the engine to start with; empty picks the recommended one.
	Engine   string        `mapstructure:"engine" yaml:"engine"`
	Fallback bool          `mapstructure:"fallback" yaml:"fallback"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`

	Voice   tts.Config    `mapstructure:"voice" yaml:"voice"`
	Edge    EdgeConfig    `mapstructure:"edge" yaml:"edge"`
	Native  NativeConfig  `mapstructure:"native" yaml:"native"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Sentry  SentryConfig  `mapstructure:"sentry" yaml:"sentry"`
}

// EdgeConfig configures the edge-tts process engine.
type EdgeConfig struct {
	Binary            string `mapstructure:"binary" yaml:"binary"`
	DefaultVoice      string `mapstructure:"default_voice" yaml:"default_voice"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// NativeConfig configures the OS speech engine.
type NativeConfig struct {
	// Binary overrides espeak-ng, say or powershell.
	Binary string `mapstructure:"binary" yaml:"binary"`
}

// CacheConfig enables the synthesis cache.
type CacheConfig struct {
	Enabled      bool `mapstructure:"enabled" yaml:"enabled"`
	cache.Config `mapstructure:",squash" yaml:",inline"`
}

// MetricsConfig sets where `serve` exposes Prometheus metrics.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// SentryConfig enables error reporting when DSN is set.
type SentryConfig struct {
	DSN         string `mapstructure:"dsn" yaml:"dsn"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// Default returns the built-in configuration.
func Default() Config {
	c := cache.DefaultConfig()
	return Config{
		Fallback: true,
		Voice:    tts.DefaultConfig(),
		Edge: EdgeConfig{
			Binary:            "edge-tts",
			DefaultVoice:      "en-US-AriaNeural",
			RequestsPerMinute: 60,
		},
		Cache:   CacheConfig{Enabled: true, Config: c},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9464"},
		Sentry:  SentryConfig{Environment: "production"},
	}
}

// New returns a viper instance with defaults and environment overrides.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers every key so environment overrides and Unmarshal
// see the full tree.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("engine", d.Engine)
	v.SetDefault("fallback", d.Fallback)
	v.SetDefault("timeout", d.Timeout)

	v.SetDefault("voice.rate", d.Voice.SpeechRate)
	v.SetDefault("voice.pitch", d.Voice.Pitch)
	v.SetDefault("voice.volume", d.Voice.Volume)
	v.SetDefault("voice.voice", d.Voice.VoiceID)
	v.SetDefault("voice.format", d.Voice.AudioFormat)

	v.SetDefault("edge.binary", d.Edge.Binary)
	v.SetDefault("edge.default_voice", d.Edge.DefaultVoice)
	v.SetDefault("edge.requests_per_minute", d.Edge.RequestsPerMinute)
	v.SetDefault("native.binary", d.Native.Binary)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.memory_bytes", d.Cache.MemoryCapacity)
	v.SetDefault("cache.disk_bytes", d.Cache.DiskCapacity)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.compression_level", d.Cache.CompressionLevel)
	v.SetDefault("cache.ttl", d.Cache.TTL)

	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("sentry.dsn", d.Sentry.DSN)
	v.SetDefault("sentry.environment", d.Sentry.Environment)
}

// ConfigDirs lists the directories searched for config.yml, most specific
// first. ALOUETTE_TTS_CONFIG_HOME and XDG_CONFIG_HOME take precedence.
func ConfigDirs() ([]string, error) {
	dirs, err := gap.NewScope(gap.User, AppName).ConfigDirs()
	if err != nil {
		return nil, fmt.Errorf("locating config directories: %w", err)
	}
	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, AppName)}, dirs...)
	}
	if c := os.Getenv(EnvPrefix + "_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}
	return dirs, nil
}

// CacheDir returns the per-user cache directory for synthesized audio.
func CacheDir() (string, error) {
	dir, err := gap.NewScope(gap.User, AppName).CacheDir()
	if err != nil {
		return "", fmt.Errorf("locating cache directory: %w", err)
	}
	return filepath.Join(dir, "audio"), nil
}

// Read loads the config file into v. With an explicit path only that file
// is read. Otherwise the standard directories are searched. It returns the
// file in use, or the path a new file should be written to when none was
// found.
func Read(v *viper.Viper, explicit string) (string, error) {
	if explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return explicit, fmt.Errorf("reading %s: %w", explicit, err)
		}
		return explicit, nil
	}

	dirs, err := ConfigDirs()
	if err != nil {
		return "", err
	}
	for _, dir := range dirs {
		v.AddConfigPath(dir)
	}
	v.SetConfigName("config")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return "", fmt.Errorf("reading config: %w", err)
		}
		return filepath.Join(dirs[0], "config.yml"), nil
	}
	return v.ConfigFileUsed(), nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.Cache.Enabled && cfg.Cache.Dir == "" {
		if dir, err := CacheDir(); err == nil {
			cfg.Cache.Dir = dir
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	if c.Engine != "" {
		if _, err := engine.ParseID(c.Engine); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %v", c.Timeout))
	}

	check := func(name string, v float64, r engine.Range) {
		if !r.Contains(v) {
			errs = append(errs, fmt.Errorf("voice.%s must be between %.1f and %.1f, got %.2f", name, r.Min, r.Max, v))
		}
	}
	check("rate", c.Voice.SpeechRate, engine.GlobalRateRange)
	check("pitch", c.Voice.Pitch, engine.GlobalPitchRange)
	check("volume", c.Voice.Volume, engine.GlobalVolumeRange)

	switch c.Voice.AudioFormat {
	case "", engine.FormatMP3, engine.FormatWAV:
	default:
		errs = append(errs, fmt.Errorf("voice.format must be mp3 or wav, got %q", c.Voice.AudioFormat))
	}
	if c.Edge.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("edge.requests_per_minute must not be negative, got %d", c.Edge.RequestsPerMinute))
	}
	if c.Cache.Enabled {
		if c.Cache.MemoryCapacity <= 0 {
			errs = append(errs, fmt.Errorf("cache.memory_bytes must be positive, got %d", c.Cache.MemoryCapacity))
		}
		if c.Cache.CompressionLevel < 1 || c.Cache.CompressionLevel > 22 {
			errs = append(errs, fmt.Errorf("cache.compression_level must be between 1 and 22, got %d", c.Cache.CompressionLevel))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Write encodes cfg as YAML to w.
func Write(w io.Writer, cfg Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return enc.Close()
}

// Save writes cfg as YAML to path, creating its directory.
func Save(cfg Config, path string) error {
	var buf bytes.Buffer
	if err := Write(&buf, cfg); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// EnsureFile writes the commented default file to path if nothing is there.
func EnsureFile(path string) error {
	if ext := filepath.Ext(path); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '.yaml' or '.yml'", ext)
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("unable to create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultFile), 0o600); err != nil {
		return fmt.Errorf("unable to write config file: %w", err)
	}
	return nil
}

const defaultFile = `# Engine to start with: "process" (edge-tts), "native" (OS speech) or
# empty for the platform's recommendation.
engine: ""
# Fall back to the next engine when the chosen one cannot start.
fallback: true
# Per-call engine timeout; 0 uses the engine's own limit.
timeout: 0s

voice:
  # Speech rate, 1.0 is normal (0.1 to 3.0).
  rate: 1.0
  # Pitch, 1.0 is normal (0.5 to 2.0).
  pitch: 1.0
  # Volume (0.0 to 1.0).
  volume: 1.0
  # Voice id; empty uses the engine default.
  voice: ""
  # Output format: mp3, wav or empty for the engine default.
  format: ""

edge:
  binary: "edge-tts"
  default_voice: "en-US-AriaNeural"
  requests_per_minute: 60

native:
  # Override espeak-ng, say or powershell.
  binary: ""

cache:
  enabled: true
  memory_bytes: 33554432
  disk_bytes: 536870912
  # Empty uses the user cache directory.
  dir: ""
  compression_level: 3
  ttl: 168h

metrics:
  addr: "127.0.0.1:9464"

sentry:
  dsn: ""
  environment: "production"
`
