// Package logger configures the process-wide zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log file rotation limits.
const (
	maxFileSizeMB  = 10
	maxFileBackups = 3
	maxFileAgeDays = 7
)

var (
	mu     sync.RWMutex
	logger = zerolog.Nop()
	file   *lumberjack.Logger
)

// ParseLevel maps a level name to a zerolog level. Unknown names are an
// error; the empty string means info.
func ParseLevel(level string) (zerolog.Level, error) {
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

// Init builds a console logger on stderr, also writing JSON lines to path
// when it is set. The file is rotated by size. Calling Init again replaces
// the logger.
func Init(level, path string) error {
	return InitWriter(os.Stderr, level, path)
}

// InitWriter is Init with an explicit console writer.
func InitWriter(console io.Writer, level, path string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	var out io.Writer = zerolog.ConsoleWriter{Out: console, TimeFormat: "15:04:05"}
	var f *lumberjack.Logger
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxFileSizeMB,
			MaxBackups: maxFileBackups,
			MaxAge:     maxFileAgeDays,
		}
		out = zerolog.MultiLevelWriter(out, f)
	}

	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Close()
	}
	file = f
	logger = zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	return nil
}

// Get returns the configured logger, or a no-op logger before Init.
func Get() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Close releases the log file, if any, and reverts to the no-op logger.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	logger = zerolog.Nop()
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}
