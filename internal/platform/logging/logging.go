package logging

import (
	"fmt"
	"io"
	"log/slog"

	"imgrelay-server-go/internal/platform/config"
	"imgrelay-server-go/internal/utils"
)

// Config captures logging configuration options.
type Config struct {
	Level    string
	Dir      string
	Filename string
	Console  io.Writer
}

// FromConfig maps the log section of the service configuration.
func FromConfig(cfg config.LogConfig) Config {
	return Config{
		Level:    cfg.Level,
		Dir:      cfg.Dir,
		Filename: cfg.File,
	}
}

// Logger provides access to both slog and the tagged utils logger.
type Logger struct {
	tagged *utils.Logger
}

// New creates a Logger backed by a file-rotating utils logger.
func New(cfg Config) (*Logger, error) {
	tagged, err := utils.NewLogger(&utils.LogCfg{
		LogLevel: cfg.Level,
		LogDir:   cfg.Dir,
		LogFile:  cfg.Filename,
		Console:  cfg.Console,
	})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	return &Logger{tagged: tagged}, nil
}

// Tagged exposes the tagged logger used by domain packages.
func (l *Logger) Tagged() *utils.Logger {
	return l.tagged
}

// Slog exposes the structured logger for middleware and observability hooks.
func (l *Logger) Slog() *slog.Logger {
	return l.tagged.Slog()
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	if l == nil || l.tagged == nil {
		return nil
	}
	return l.tagged.Close()
}
