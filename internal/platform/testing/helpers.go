package testing

import (
	"io"
	"testing"

	"imgrelay-server-go/internal/platform/config"
	"imgrelay-server-go/internal/platform/logging"
	"imgrelay-server-go/internal/utils"
)

// SetupTestConfig returns defaults pointed at a per-test log directory.
func SetupTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Server.IP = "127.0.0.1"
	cfg.Log = config.LogConfig{
		Level: "DEBUG",
		Dir:   t.TempDir(),
		File:  "test.log",
	}
	return cfg
}

// SetupTestLogger returns a quiet logger that writes to a temp dir.
func SetupTestLogger(t *testing.T) *logging.Logger {
	t.Helper()

	cfg := SetupTestConfig(t)
	logger, err := logging.New(logging.Config{
		Level:    cfg.Log.Level,
		Dir:      cfg.Log.Dir,
		Filename: cfg.Log.File,
		Console:  io.Discard,
	})
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })

	return logger
}

// SetupTaggedLogger is a shorthand for domain packages that take *utils.Logger.
func SetupTaggedLogger(t *testing.T) *utils.Logger {
	t.Helper()
	return SetupTestLogger(t).Tagged()
}
