package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Config selects where and how logs are written
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // text or json
	Output     string // stderr, stdout, or a file path rotated with lumberjack
	MaxSizeMB  int
	MaxAgeDays int
}

// ParseLevel maps a level name to a slog level
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func output(cfg Config) io.WriteCloser {
	switch cfg.Output {
	case "", "stderr":
		return nopCloser{os.Stderr}
	case "stdout":
		return nopCloser{os.Stdout}
	}
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}
	return &lumberjack.Logger{
		Filename: cfg.Output,
		MaxSize:  maxSize,
		MaxAge:   cfg.MaxAgeDays,
		Compress: true,
	}
}

// New builds a logger from cfg. The returned closer flushes and closes a log file.
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	w := output(cfg)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		w.Close()
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return slog.New(handler), w, nil
}
