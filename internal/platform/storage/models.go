package storage

import (
	"time"

	"gorm.io/datatypes"
)

// RelayEvent is one journaled relay outcome.
type RelayEvent struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Topic           string         `gorm:"index;not null" json:"topic"`
	RequestID       string         `json:"request_id,omitempty"`
	URL             string         `gorm:"not null" json:"url"`
	ContentType     string         `json:"content_type,omitempty"`
	Kind            string         `json:"kind,omitempty"`
	Format          string         `json:"format,omitempty"`
	OriginalSize    int64          `json:"original_size"`
	OutputSize      int64          `json:"output_size"`
	BytesSaved      int64          `json:"bytes_saved"`
	FallbackApplied bool           `json:"fallback_applied"`
	DurationMS      int64          `gorm:"column:duration_ms" json:"duration_ms"`
	Data            datatypes.JSON `json:"data,omitempty"`
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`
}

func (RelayEvent) TableName() string {
	return "relay_events"
}

// EventSummary aggregates the journal over a time window.
type EventSummary struct {
	Since          time.Time        `json:"since"`
	Bypassed       int64            `json:"bypassed"`
	Transcoded     int64            `json:"transcoded"`
	Failed         int64            `json:"failed"`
	Fallbacks      int64            `json:"fallbacks"`
	OriginalBytes  int64            `json:"original_bytes"`
	BytesSaved     int64            `json:"bytes_saved"`
	FailuresByKind map[string]int64 `json:"failures_by_kind"`
}
