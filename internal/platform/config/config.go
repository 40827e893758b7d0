package config

import (
	"time"
)

type Config struct {
	Server        ServerConfig        `yaml:"server" envconfig:"SERVER"`
	Log           LogConfig           `yaml:"log" envconfig:"LOG"`
	Observability ObservabilityConfig `yaml:"observability" envconfig:"OBSERVABILITY"`
	Storage       StorageConfig       `yaml:"storage" envconfig:"STORAGE"`
	Relay         RelayConfig         `yaml:"relay" envconfig:"RELAY"`
}

type ServerConfig struct {
	IP              string        `yaml:"ip" envconfig:"IP"`
	Port            int           `yaml:"port" envconfig:"PORT"`
	TrustedProxies  []string      `yaml:"trusted_proxies" envconfig:"TRUSTED_PROXIES"`
	CORSOrigins     []string      `yaml:"cors_origins" envconfig:"CORS_ORIGINS"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

type LogConfig struct {
	Level string `yaml:"log_level" envconfig:"LEVEL"`
	Dir   string `yaml:"log_dir" envconfig:"DIR"`
	File  string `yaml:"log_file" envconfig:"FILE"`
}

type ObservabilityConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"ENABLED"`
}

// StorageConfig controls the optional SQLite journal of relay events.
type StorageConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"ENABLED"`
	Path    string `yaml:"path" envconfig:"DB_PATH"`
	// Retention bounds how long journaled events are kept; 0 keeps them forever.
	Retention time.Duration `yaml:"retention" envconfig:"RETENTION"`
}

// RelayConfig holds every tunable of the fetch/decide/plan/transcode path.
type RelayConfig struct {
	// DefaultQuality applies when the client sends no usable "l" parameter.
	DefaultQuality int `yaml:"default_quality" envconfig:"DEFAULT_QUALITY"`
	// LivenessBody is returned when a request carries no url.
	LivenessBody string `yaml:"liveness_body" envconfig:"LIVENESS_BODY"`

	MaxSourceSize                int64 `yaml:"max_source_size" envconfig:"MAX_SOURCE_SIZE"`
	MinCompressLength            int64 `yaml:"min_compress_length" envconfig:"MIN_COMPRESS_LENGTH"`
	MinTransparentCompressLength int64 `yaml:"min_transparent_compress_length" envconfig:"MIN_TRANSPARENT_COMPRESS_LENGTH"`

	TargetWidth        int `yaml:"target_width" envconfig:"TARGET_WIDTH"`
	MaxWebPDimension   int `yaml:"max_webp_dimension" envconfig:"MAX_WEBP_DIMENSION"`
	MaxSourceDimension int `yaml:"max_source_dimension" envconfig:"MAX_SOURCE_DIMENSION"`
	BinarizeThreshold  int `yaml:"binarize_threshold" envconfig:"BINARIZE_THRESHOLD"`

	// NetworkTimeout bounds preflight and download together.
	NetworkTimeout   time.Duration `yaml:"network_timeout" envconfig:"NETWORK_TIMEOUT"`
	PreflightTimeout time.Duration `yaml:"preflight_timeout" envconfig:"PREFLIGHT_TIMEOUT"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout" envconfig:"FETCH_TIMEOUT"`
	TranscodeTimeout time.Duration `yaml:"transcode_timeout" envconfig:"TRANSCODE_TIMEOUT"`
	// MaxConcurrentTranscodes caps CPU-bound work; 0 means one per CPU.
	MaxConcurrentTranscodes int `yaml:"max_concurrent_transcodes" envconfig:"MAX_CONCURRENT_TRANSCODES"`

	// ForwardHeaders is the allow-list of client headers sent upstream.
	ForwardHeaders []string `yaml:"forward_headers" envconfig:"FORWARD_HEADERS"`
}
