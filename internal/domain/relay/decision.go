package relay

import (
	"strings"

	"imgrelay-server-go/internal/platform/config"
)

// Thresholds are the minimum source sizes worth transcoding.
type Thresholds struct {
	MinCompressLength            int64
	MinTransparentCompressLength int64
}

func ThresholdsFrom(cfg *config.RelayConfig) Thresholds {
	return Thresholds{
		MinCompressLength:            cfg.MinCompressLength,
		MinTransparentCompressLength: cfg.MinTransparentCompressLength,
	}
}

// ShouldCompress reports whether a source of the given type and size is worth
// re-encoding. PNG and GIF sources headed for JPEG use the transparent threshold.
func ShouldCompress(contentType string, size int64, wantWebP bool, t Thresholds) bool {
	mediaType := baseMediaType(contentType)
	if mediaType == "" || !strings.HasPrefix(mediaType, "image/") || size <= 0 {
		return false
	}

	if wantWebP {
		return size >= t.MinCompressLength
	}

	if isTransparentCapable(mediaType) {
		return size >= t.MinTransparentCompressLength
	}
	return size >= t.MinCompressLength
}

func isTransparentCapable(mediaType string) bool {
	return strings.HasSuffix(mediaType, "png") || strings.HasSuffix(mediaType, "gif")
}

// baseMediaType lowercases the type and drops parameters.
func baseMediaType(contentType string) string {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mediaType))
}
