package config

import "time"

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:              "0.0.0.0",
			Port:            8080,
			CORSOrigins:     []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level: "INFO",
			Dir:   "data/logs",
			File:  "server.log",
		},
		Observability: ObservabilityConfig{
			Enabled: false,
		},
		Storage: StorageConfig{
			Enabled:   false,
			Path:      "data/relay.db",
			Retention: 7 * 24 * time.Hour,
		},
		Relay: DefaultRelayConfig(),
	}
}

// DefaultRelayConfig returns the relay tunables used when nothing overrides them.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		DefaultQuality:               40,
		LivenessBody:                 "bandwidth-hero-proxy",
		MaxSourceSize:                25 * 1024 * 1024,
		MinCompressLength:            1024,
		MinTransparentCompressLength: 10 * 1024,
		TargetWidth:                  854,
		MaxWebPDimension:             16383,
		MaxSourceDimension:           32768,
		BinarizeThreshold:            128,
		NetworkTimeout:               45 * time.Second,
		PreflightTimeout:             10 * time.Second,
		FetchTimeout:                 30 * time.Second,
		TranscodeTimeout:             30 * time.Second,
		ForwardHeaders: []string{
			"cookie",
			"dnt",
			"referer",
			"user-agent",
			"accept",
			"accept-language",
			"accept-encoding",
		},
	}
}
