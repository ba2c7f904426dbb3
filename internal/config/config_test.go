package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alouette/tts/pkg/tts"
)

func TestDefaultsValidate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestLoadDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := EnsureFile(path); err != nil {
		t.Fatalf("EnsureFile() error = %v", err)
	}

	v := New()
	used, err := Read(v, path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if used != path {
		t.Errorf("Read() = %q, expected %q", used, path)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	expected := Default()
	if cfg.Voice != expected.Voice {
		t.Errorf("Voice = %v, expected %v", cfg.Voice, expected.Voice)
	}
	if cfg.Edge != expected.Edge {
		t.Errorf("Edge = %+v, expected %+v", cfg.Edge, expected.Edge)
	}
	if cfg.Cache.TTL != 168*time.Hour || cfg.Cache.MemoryCapacity != 32<<20 {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Cache.Dir == "" {
		t.Error("Cache.Dir was not filled in")
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	yml := "engine: native\nvoice:\n  rate: 1.5\n  voice: fr-FR-DeniseNeural\ntimeout: 12s\n"
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ALOUETTE_TTS_VOICE_VOLUME", "0.4")

	v := New()
	if _, err := Read(v, path); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	expected := tts.Config{SpeechRate: 1.5, Pitch: 1, Volume: 0.4, VoiceID: "fr-FR-DeniseNeural"}
	if cfg.Voice != expected {
		t.Errorf("Voice = %v, expected %v", cfg.Voice, expected)
	}
	if cfg.Engine != "native" || cfg.Timeout != 12*time.Second {
		t.Errorf("Engine = %q, Timeout = %v", cfg.Engine, cfg.Timeout)
	}
	if !cfg.Fallback {
		t.Error("Fallback default was lost")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown engine", func(c *Config) { c.Engine = "piper" }, "piper"},
		{"rate too high", func(c *Config) { c.Voice.SpeechRate = 4 }, "voice.rate"},
		{"volume negative", func(c *Config) { c.Voice.Volume = -0.1 }, "voice.volume"},
		{"bad format", func(c *Config) { c.Voice.AudioFormat = "ogg" }, "voice.format"},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }, "timeout"},
		{"bad compression", func(c *Config) { c.Cache.CompressionLevel = 30 }, "compression_level"},
		{"disabled cache is not checked", func(c *Config) { c.Cache.Enabled = false; c.Cache.CompressionLevel = 0 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, expected nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %v, expected mention of %q", err, tt.errMsg)
			}
		})
	}
}

func TestReadMissingFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ALOUETTE_TTS_CONFIG_HOME", dir)

	used, err := Read(New(), "")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if expected := filepath.Join(dir, "config.yml"); used != expected {
		t.Errorf("Read() = %q, expected %q", used, expected)
	}
}

func TestEnsureFileRejectsExtension(t *testing.T) {
	if err := EnsureFile(filepath.Join(t.TempDir(), "config.toml")); err == nil {
		t.Error("EnsureFile(.toml) succeeded, expected an error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yml")
	cfg := Default()
	cfg.Engine = "process"
	cfg.Voice = cfg.Voice.WithPitch(1.3)
	cfg.Cache.Dir = "/tmp/alouette"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	v := New()
	if _, err := Read(v, path); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	got, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Engine != "process" || got.Voice.Pitch != 1.3 || got.Cache.Dir != "/tmp/alouette" {
		t.Errorf("round trip = %+v", got)
	}
}

func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := EnsureFile(path); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, 20*time.Millisecond, func(c Config) { changes <- c })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("voice:\n  rate: 2.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-changes:
		if c.Voice.SpeechRate != 2.0 {
			t.Errorf("reloaded rate = %v, expected 2.0", c.Voice.SpeechRate)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after write")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch() error = %v", err)
	}
}
