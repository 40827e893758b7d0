package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"imgrelay-server-go/internal/platform/config"
)

func TestShouldCompress(t *testing.T) {
	th := Thresholds{MinCompressLength: 1024, MinTransparentCompressLength: 10240}

	tests := []struct {
		name        string
		contentType string
		size        int64
		wantWebP    bool
		want        bool
	}{
		{"empty type", "", 50000, true, false},
		{"not an image", "text/html", 50000, true, false},
		{"zero size", "image/jpeg", 0, true, false},
		{"webp below minimum", "image/jpeg", 1023, true, false},
		{"webp at minimum", "image/jpeg", 1024, true, true},
		{"webp small png still compresses", "image/png", 2048, true, true},
		{"jpeg small png bypasses", "image/png", 5 * 1024, false, false},
		{"jpeg png at transparent threshold", "image/png", 10240, false, true},
		{"jpeg large png", "image/png", 50 * 1024, false, true},
		{"jpeg gif below transparent threshold", "image/gif", 9000, false, false},
		{"jpeg plain jpeg", "image/jpeg", 2048, false, true},
		{"parameters and case ignored", "Image/PNG; charset=binary", 50 * 1024, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldCompress(tt.contentType, tt.size, tt.wantWebP, th))
		})
	}
}

func TestShouldCompress_Monotonic(t *testing.T) {
	th := ThresholdsFrom(&config.RelayConfig{MinCompressLength: 1024, MinTransparentCompressLength: 100 * 1024})

	for _, ct := range []string{"image/jpeg", "image/png", "image/gif", "image/webp"} {
		for _, webp := range []bool{true, false} {
			seenTrue := false
			for size := int64(1); size <= 200*1024; size += 512 {
				got := ShouldCompress(ct, size, webp, th)
				if seenTrue {
					assert.True(t, got, "type=%s webp=%t size=%d flipped back to bypass", ct, webp, size)
				}
				seenTrue = seenTrue || got
			}
			assert.True(t, seenTrue, "type=%s webp=%t never compressed", ct, webp)
		}
	}
}
