package relay

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"imgrelay-server-go/internal/utils"
)

// TransformRequest is the canonical form of one relay call.
type TransformRequest struct {
	TargetURL string
	WantWebP  bool
	Grayscale bool
	Quality   int
}

// proxyPrefix matches the sentinel prefix some clients put in front of the real URL.
var proxyPrefix = regexp.MustCompile(`(?i)http://1\.1\.\d\.\d/bmi/(https?://)?`)

// NormalizeRequest parses query parameters url, jpeg, bw and l.
// ok is false when no url was given; the caller answers with a liveness body.
func NormalizeRequest(q url.Values, defaultQuality int) (TransformRequest, bool) {
	raw := q.Get("url")
	if raw == "" {
		return TransformRequest{}, false
	}

	// Zero counts as absent, like a missing or non-numeric value.
	quality, parsed := parseLeadingInt(q.Get("l"))
	if !parsed || quality == 0 {
		quality = defaultQuality
	}

	bw := q.Get("bw")
	return TransformRequest{
		TargetURL: NormalizeURL(raw),
		WantWebP:  !q.Has("jpeg"),
		Grayscale: bw != "" && bw != "0",
		Quality:   utils.ClampInt(quality, 0, 100),
	}, true
}

// NormalizeURL decodes JSON-encoded input and strips the sentinel prefix.
func NormalizeURL(raw string) string {
	target := raw

	var decoded interface{}
	if err := sonic.UnmarshalString(raw, &decoded); err == nil {
		switch v := decoded.(type) {
		case string:
			target = v
		case []interface{}:
			parts := make([]string, len(v))
			for i, item := range v {
				parts[i] = jsonScalar(item)
			}
			target = strings.Join(parts, "&url=")
		}
	}

	if loc := proxyPrefix.FindStringIndex(target); loc != nil {
		target = target[:loc[0]] + "http://" + target[loc[1]:]
	}
	return target
}

func jsonScalar(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// parseLeadingInt reads an optionally signed run of digits after leading
// whitespace, ignoring whatever follows ("85abc" -> 85).
func parseLeadingInt(s string) (int, bool) {
	s = strings.TrimLeft(s, " \t\n\r\v\f")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digitsStart := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digitsStart {
		return 0, false
	}

	n, err := strconv.Atoi(s[:end])
	if err != nil {
		// Out of range: saturate, the caller clamps anyway.
		if s[0] == '-' {
			return math.MinInt, true
		}
		return math.MaxInt, true
	}
	return n, true
}
