// Package logging points the process-wide slog logger at stderr or a
// size-rotated file. The synchronization layer logs fetch, cache and
// stream activity through slog; this is the one place that decides
// where those lines go.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the global logger.
type Config struct {
	Level      string // minimum level: debug, info, warn, error
	FilePath   string // rotated log file; empty logs to stderr
	MaxSizeMB  int    // rotation threshold per file
	MaxBackups int    // rotated files kept around
	MaxAgeDays int    // days before rotated files are pruned
	Compress   bool   // gzip rotated files
}

// Setup installs the default slog logger. The returned cleanup closes
// the log file, if any, and should run at shutdown.
func Setup(cfg Config) (func() error, error) {
	writer, cleanup, err := newWriter(cfg)
	if err != nil {
		return nil, err
	}

	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})
	slog.SetDefault(slog.New(handler))
	return cleanup, nil
}

func newWriter(cfg Config) (io.Writer, func() error, error) {
	if cfg.FilePath == "" {
		return os.Stderr, func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
		return nil, nil, err
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}
	return lj, lj.Close, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
