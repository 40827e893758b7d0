package relay

import (
	"net/http"
	"sort"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// excludedResponseHeaders never travel from upstream to the client.
var excludedResponseHeaders = map[string]struct{}{
	"content-encoding":  {},
	"content-length":    {},
	"transfer-encoding": {},
	"connection":        {},
	"x-original-size":   {},
	"x-bytes-saved":     {},
}

// Headers is an insertion-ordered header set with lower-cased names.
// Setting an existing name replaces its values in place.
type Headers struct {
	m *orderedmap.OrderedMap[string, []string]
}

func NewHeaders() *Headers {
	return &Headers{m: orderedmap.New[string, []string]()}
}

func (h *Headers) Set(name string, values ...string) {
	h.m.Set(strings.ToLower(name), values)
}

// Get returns the first value for name.
func (h *Headers) Get(name string) string {
	values, ok := h.m.Get(strings.ToLower(name))
	if !ok || len(values) == 0 {
		return ""
	}
	return values[0]
}

func (h *Headers) Values(name string) []string {
	values, _ := h.m.Get(strings.ToLower(name))
	return values
}

func (h *Headers) Has(name string) bool {
	_, ok := h.m.Get(strings.ToLower(name))
	return ok
}

func (h *Headers) Del(name string) {
	h.m.Delete(strings.ToLower(name))
}

func (h *Headers) Len() int {
	return h.m.Len()
}

// Each visits headers in insertion order.
func (h *Headers) Each(fn func(name string, values []string)) {
	for pair := h.m.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Key, pair.Value)
	}
}

// Names returns header names in insertion order.
func (h *Headers) Names() []string {
	names := make([]string, 0, h.m.Len())
	for pair := h.m.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Merge copies other into h; names present in both take other's values.
func (h *Headers) Merge(other *Headers) *Headers {
	if other == nil {
		return h
	}
	other.Each(func(name string, values []string) {
		h.m.Set(name, values)
	})
	return h
}

func (h *Headers) Clone() *Headers {
	return NewHeaders().Merge(h)
}

// HTTPHeader converts h into canonical net/http form.
func (h *Headers) HTTPHeader() http.Header {
	out := make(http.Header, h.Len())
	h.Each(func(name string, values []string) {
		for _, v := range values {
			out.Add(name, v)
		}
	})
	return out
}

// FilterResponseHeaders lower-cases upstream header names and drops the
// excluded set. Names are visited alphabetically so output order is stable.
func FilterResponseHeaders(src http.Header) *Headers {
	names := make([]string, 0, len(src))
	for name := range src {
		names = append(names, name)
	}
	sort.Strings(names)

	out := NewHeaders()
	for _, name := range names {
		lower := strings.ToLower(name)
		if _, excluded := excludedResponseHeaders[lower]; excluded {
			continue
		}
		values := append(append([]string(nil), out.Values(lower)...), src[name]...)
		out.Set(lower, values...)
	}
	return out
}

// acceptedContentCodings are the upstream encodings decodeBody understands.
var acceptedContentCodings = map[string]struct{}{
	"gzip":     {},
	"x-gzip":   {},
	"deflate":  {},
	"zstd":     {},
	"identity": {},
}

// PickForwardHeaders copies the allow-listed client headers and sets
// x-forwarded-for to the client address.
func PickForwardHeaders(client http.Header, allow []string, clientIP string) http.Header {
	out := make(http.Header, len(allow)+1)
	for _, name := range allow {
		value := client.Get(name)
		if value == "" {
			continue
		}
		if strings.EqualFold(name, "accept-encoding") {
			value = restrictCodings(value)
			if value == "" {
				continue
			}
		}
		out.Set(name, value)
	}
	if clientIP != "" {
		out.Set("X-Forwarded-For", clientIP)
	}
	return out
}

// restrictCodings keeps only the codings decodeBody can undo.
func restrictCodings(value string) string {
	var kept []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		coding, _, _ := strings.Cut(part, ";")
		if _, ok := acceptedContentCodings[strings.ToLower(strings.TrimSpace(coding))]; ok {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, ", ")
}
