package relay

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeaders_OrderAndCase(t *testing.T) {
	h := NewHeaders()
	h.Set("Content-Type", "image/png")
	h.Set("ETag", `"abc"`)
	h.Set("content-type", "image/webp")

	assert.Equal(t, []string{"content-type", "etag"}, h.Names())
	assert.Equal(t, "image/webp", h.Get("CONTENT-TYPE"))
	assert.True(t, h.Has("etag"))

	h.Del("ETag")
	assert.False(t, h.Has("etag"))
	assert.Equal(t, 1, h.Len())
}

func TestHeaders_Merge(t *testing.T) {
	base := NewHeaders()
	base.Set("content-type", "image/png")
	base.Set("last-modified", "yesterday")

	over := NewHeaders()
	over.Set("content-type", "image/webp")
	over.Set("x-bytes-saved", "100")

	merged := base.Clone().Merge(over)
	assert.Equal(t, []string{"content-type", "last-modified", "x-bytes-saved"}, merged.Names())
	assert.Equal(t, "image/webp", merged.Get("content-type"))
	assert.Equal(t, "image/png", base.Get("content-type"), "clone must not alias")
	assert.Same(t, merged, merged.Merge(nil))
}

func TestFilterResponseHeaders(t *testing.T) {
	src := http.Header{}
	src.Set("Content-Type", "image/png")
	src.Set("Content-Length", "5000")
	src.Set("Content-Encoding", "gzip")
	src.Set("Transfer-Encoding", "chunked")
	src.Set("Connection", "keep-alive")
	src.Set("X-Original-Size", "1")
	src.Set("X-Bytes-Saved", "1")
	src.Set("Cache-Control", "max-age=60")
	src.Add("Set-Cookie", "a=1")
	src.Add("Set-Cookie", "b=2")

	out := FilterResponseHeaders(src)

	assert.Equal(t, []string{"cache-control", "content-type", "set-cookie"}, out.Names())
	assert.Equal(t, []string{"a=1", "b=2"}, out.Values("set-cookie"))
	for _, name := range out.Names() {
		_, excluded := excludedResponseHeaders[name]
		assert.False(t, excluded, "%s must be filtered", name)
	}
}

func TestPickForwardHeaders(t *testing.T) {
	client := http.Header{}
	client.Set("Cookie", "session=1")
	client.Set("User-Agent", "test-agent")
	client.Set("Accept-Encoding", "gzip, deflate, br")
	client.Set("Authorization", "Bearer secret")
	client.Set("X-Forwarded-For", "10.0.0.9")

	allow := []string{"cookie", "dnt", "referer", "user-agent", "accept", "accept-language", "accept-encoding"}
	out := PickForwardHeaders(client, allow, "203.0.113.7")

	assert.Equal(t, "session=1", out.Get("Cookie"))
	assert.Equal(t, "test-agent", out.Get("User-Agent"))
	assert.Equal(t, "gzip, deflate", out.Get("Accept-Encoding"))
	assert.Equal(t, "203.0.113.7", out.Get("X-Forwarded-For"))
	assert.Empty(t, out.Get("Authorization"))
	assert.Empty(t, out.Get("Dnt"))
}

func TestRestrictCodings(t *testing.T) {
	assert.Equal(t, "gzip;q=1.0, zstd", restrictCodings("br, gzip;q=1.0, zstd"))
	assert.Equal(t, "", restrictCodings("br"))
}
