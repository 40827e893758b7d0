package eventbus

import "time"

const (
	EventRelayBypassed   = "relay:bypassed"
	EventRelayTranscoded = "relay:transcoded"
	EventRelayFailed     = "relay:failed"
)

// RelayEventData describes the outcome of one relay request.
type RelayEventData struct {
	RequestID       string        `json:"request_id,omitempty"`
	URL             string        `json:"url"`
	ContentType     string        `json:"content_type,omitempty"`
	OriginalSize    int64         `json:"original_size,omitempty"`
	OutputSize      int64         `json:"output_size,omitempty"`
	Format          string        `json:"format,omitempty"`
	FallbackApplied bool          `json:"fallback_applied,omitempty"`
	Duration        time.Duration `json:"duration,omitempty"`
	Kind            string        `json:"kind,omitempty"`
	Reason          string        `json:"reason,omitempty"`
}

// BytesSaved may be negative when re-encoding grew the image.
func (d RelayEventData) BytesSaved() int64 {
	return d.OriginalSize - d.OutputSize
}
