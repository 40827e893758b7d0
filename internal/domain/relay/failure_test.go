package relay

import (
	stderrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"imgrelay-server-go/internal/platform/errors"
)

func TestSanitizeReason(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Input buffer contains unsupported image format", "Input buffer contains unsupported image format"},
		{"vips: bad\r\nheader", "vips_ bad__header"},
		{"ümlaut", "_mlaut"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeReason(tt.in), "input %q", tt.in)
	}

	long := SanitizeReason(strings.Repeat("a", 500))
	assert.Len(t, long, 200)
}

func TestRedirectReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"transcode failure", errors.New(errors.KindTranscode, "relay.transcode", "input image header is corrupt: EOF"), "input image header is corrupt_ EOF"},
		{"untyped", stderrors.New("secret internal path /var/x"), "unhandled_error"},
		{"unknown kind", errors.Wrap(errors.KindUnknown, "fetch", "upstream request failed", stderrors.New("boom")), "unhandled_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RedirectReason(tt.err))
		})
	}
}
