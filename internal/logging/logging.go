// Package logging points the standard logger at stderr and a rotating file.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/unklstewy/ads-bturns/pkg/config"
)

// Setup configures the standard logger. The returned closer flushes and
// closes the log file; it is a no-op when cfg.Path is empty.
func Setup(cfg config.LogConfig) (io.Closer, error) {
	return setup(cfg, os.Stderr)
}

func setup(cfg config.LogConfig, console io.Writer) (io.Closer, error) {
	log.SetFlags(log.LstdFlags)

	if cfg.Path == "" {
		log.SetOutput(console)
		return nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	w := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB, // MB
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(console, w))

	return w, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
