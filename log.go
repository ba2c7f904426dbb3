package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
)

type logConfig struct {
	Debug bool   `env:"ALOUETTE_TTS_DEBUG"`
	Level string `env:"ALOUETTE_TTS_LOG_LEVEL" envDefault:"warn"`
	File  string `env:"ALOUETTE_TTS_LOG_FILE"`
}

// setupLog configures the default logger from the environment. Logs go to
// stderr unless ALOUETTE_TTS_LOG_FILE names a file. The returned func
// closes the file.
func setupLog() (func() error, error) {
	cfg, err := env.ParseAs[logConfig]()
	if err != nil {
		return nil, fmt.Errorf("error parsing log config: %w", err)
	}

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	if cfg.Debug {
		level = log.DebugLevel
	}

	if cfg.File == "" {
		log.SetOutput(os.Stderr)
		log.SetLevel(level)
		return func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	log.SetDefault(log.NewWithOptions(f, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	}))
	return f.Close, nil
}
