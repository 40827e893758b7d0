package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"imgrelay-server-go/internal/platform/errors"
)

const (
	// EnvPrefix prefixes every environment override, e.g. IMGRELAY_RELAY_DEFAULT_QUALITY.
	EnvPrefix = "IMGRELAY"

	defaultConfigPath = "config.yaml"
)

// Loader resolves configuration from defaults, an optional YAML file and the environment.
type Loader struct {
	useDotEnv bool
	dotEnv    []string
	path      string
	envPrefix string
}

// NewLoader creates a loader that reads config.yaml from the working directory if present.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		envPrefix: EnvPrefix,
	}
}

// WithDotEnv toggles loading variables from .env files before reading config.
func (l *Loader) WithDotEnv(enabled bool, files ...string) *Loader {
	l.useDotEnv = enabled
	l.dotEnv = files
	return l
}

// WithPath sets an explicit YAML file. An explicit path must exist.
func (l *Loader) WithPath(path string) *Loader {
	l.path = strings.TrimSpace(path)
	return l
}

// WithEnvPrefix overrides the environment variable prefix (useful for tests).
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

// Load builds the effective configuration.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		// A missing .env is normal outside development.
		_ = godotenv.Load(l.dotEnv...)
	}

	cfg := DefaultConfig()

	path, err := l.readFile(cfg)
	if err != nil {
		return nil, err
	}

	if err := envconfig.Process(l.envPrefix, cfg); err != nil {
		return nil, errors.Wrap(errors.KindConfig, "config.env", "failed to apply environment overrides", err)
	}

	if err := l.validate(cfg); err != nil {
		return nil, err
	}

	return &Result{
		Config: cfg,
		Path:   path,
	}, nil
}

func (l *Loader) readFile(cfg *Config) (string, error) {
	path := l.path
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && stderrors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", errors.Wrap(errors.KindConfig, "config.read", fmt.Sprintf("failed to read %s", path), err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return "", errors.Wrap(errors.KindConfig, "config.parse", fmt.Sprintf("failed to parse %s", path), err)
	}
	return path, nil
}

func (l *Loader) validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New(errors.KindConfig, "config.validate", fmt.Sprintf("invalid server port %d", cfg.Server.Port))
	}
	if cfg.Storage.Enabled && strings.TrimSpace(cfg.Storage.Path) == "" {
		return errors.New(errors.KindConfig, "config.validate", "storage.path is required when storage is enabled")
	}
	if cfg.Storage.Retention < 0 {
		return errors.New(errors.KindConfig, "config.validate", "storage.retention must not be negative")
	}
	return ValidateRelay(&cfg.Relay)
}

// ValidateRelay checks relay tunables for internal consistency.
func ValidateRelay(r *RelayConfig) error {
	const op = "config.validate"
	switch {
	case r.DefaultQuality < 0 || r.DefaultQuality > 100:
		return errors.New(errors.KindConfig, op, fmt.Sprintf("default_quality %d outside 0..100", r.DefaultQuality))
	case r.MaxSourceSize <= 0:
		return errors.New(errors.KindConfig, op, "max_source_size must be positive")
	case r.MinCompressLength <= 0 || r.MinTransparentCompressLength <= 0:
		return errors.New(errors.KindConfig, op, "compress thresholds must be positive")
	case r.MinTransparentCompressLength < r.MinCompressLength:
		return errors.New(errors.KindConfig, op, "min_transparent_compress_length must not be below min_compress_length")
	case r.TargetWidth <= 0 || r.MaxWebPDimension <= 0 || r.MaxSourceDimension <= 0:
		return errors.New(errors.KindConfig, op, "dimensions must be positive")
	case r.BinarizeThreshold < 0 || r.BinarizeThreshold > 255:
		return errors.New(errors.KindConfig, op, fmt.Sprintf("binarize_threshold %d outside 0..255", r.BinarizeThreshold))
	case r.NetworkTimeout <= 0 || r.PreflightTimeout <= 0 || r.FetchTimeout <= 0 || r.TranscodeTimeout <= 0:
		return errors.New(errors.KindConfig, op, "timeouts must be positive")
	case r.MaxConcurrentTranscodes < 0:
		return errors.New(errors.KindConfig, op, "max_concurrent_transcodes must not be negative")
	}
	return nil
}
