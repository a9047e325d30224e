package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	corelogger "github.com/kilianp07/trena/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// NopLogger discards every message.
type NopLogger = corelogger.NopLogger

// Config controls the level and destination of the process logs.
type Config struct {
	// Level is one of trace, debug, info, warn, error. Defaults to info.
	Level string `json:"level"`
	// File optionally duplicates the logs to a rotated file.
	File string `json:"file"`
	// MaxSizeMB triggers rotation when the file exceeds this size in megabytes.
	MaxSizeMB int `json:"max_size_mb"`
	// MaxBackups limits the number of rotated files to keep.
	MaxBackups int `json:"max_backups"`
	// MaxAgeDays removes rotated files older than this number of days.
	MaxAgeDays int `json:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.File != "" && c.MaxSizeMB == 0 {
		c.MaxSizeMB = 10
	}
}

// Validate checks the level name.
func (c Config) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Level)); err != nil {
		return fmt.Errorf("unknown log level %q", c.Level)
	}
	return nil
}

var (
	mu     sync.RWMutex
	output io.Writer = os.Stdout
	closer io.Closer
)

// Configure sets the global level and output used by loggers created afterwards.
func Configure(cfg Config) error {
	cfg.SetDefaults()
	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	zerolog.SetGlobalLevel(lvl)

	mu.Lock()
	defer mu.Unlock()
	if closer != nil {
		_ = closer.Close()
		closer = nil
	}
	output = os.Stdout
	if cfg.File == "" {
		return nil
	}
	if dir := filepath.Dir(cfg.File); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("log dir: %w", err)
		}
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
	output = io.MultiWriter(os.Stdout, lj)
	closer = lj
	return nil
}

// Close flushes and closes the rotated log file if one is configured.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	output = os.Stdout
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	return err
}

func currentOutput() io.Writer {
	mu.RLock()
	defer mu.RUnlock()
	return output
}

// New returns a Logger for the given component. The environment is detected via
// the APP_ENV variable.
func New(component string) Logger {
	return NewZerologLogger(component)
}
