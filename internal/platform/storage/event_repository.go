package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"imgrelay-server-go/internal/domain/eventbus"
	"imgrelay-server-go/internal/platform/errors"
)

// EventRepository persists and aggregates relay events.
type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Save journals one event under topic.
func (r *EventRepository) Save(ctx context.Context, topic string, ev eventbus.RelayEventData) error {
	raw, err := sonic.Marshal(ev)
	if err != nil {
		return errors.Wrap(errors.KindStorage, "relay_event.encode", "failed to encode event", err)
	}

	model := &RelayEvent{
		Topic:           topic,
		RequestID:       ev.RequestID,
		URL:             ev.URL,
		ContentType:     ev.ContentType,
		Kind:            ev.Kind,
		Format:          ev.Format,
		OriginalSize:    ev.OriginalSize,
		OutputSize:      ev.OutputSize,
		FallbackApplied: ev.FallbackApplied,
		DurationMS:      ev.Duration.Milliseconds(),
		Data:            datatypes.JSON(raw),
	}
	if topic == eventbus.EventRelayTranscoded {
		model.BytesSaved = ev.BytesSaved()
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "relay_event.save", "failed to save relay event", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (r *EventRepository) Recent(ctx context.Context, limit int) ([]RelayEvent, error) {
	var events []RelayEvent
	if err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "relay_event.recent", "failed to list relay events", err)
	}
	return events, nil
}

type topicTotals struct {
	Topic         string
	Count         int64
	Fallbacks     int64
	OriginalBytes int64
	BytesSaved    int64
}

type kindCount struct {
	Kind  string
	Count int64
}

// Summary aggregates events recorded at or after since.
func (r *EventRepository) Summary(ctx context.Context, since time.Time) (*EventSummary, error) {
	since = since.UTC()
	summary := &EventSummary{Since: since, FailuresByKind: map[string]int64{}}

	var totals []topicTotals
	if err := r.db.WithContext(ctx).Model(&RelayEvent{}).
		Select("topic, COUNT(*) AS count, " +
			"COALESCE(SUM(CASE WHEN fallback_applied THEN 1 ELSE 0 END), 0) AS fallbacks, " +
			"COALESCE(SUM(original_size), 0) AS original_bytes, " +
			"COALESCE(SUM(bytes_saved), 0) AS bytes_saved").
		Where("created_at >= ?", since).
		Group("topic").
		Scan(&totals).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "relay_event.summary", "failed to aggregate relay events", err)
	}

	for _, t := range totals {
		switch t.Topic {
		case eventbus.EventRelayBypassed:
			summary.Bypassed = t.Count
		case eventbus.EventRelayTranscoded:
			summary.Transcoded = t.Count
			summary.Fallbacks = t.Fallbacks
			summary.BytesSaved = t.BytesSaved
		case eventbus.EventRelayFailed:
			summary.Failed = t.Count
		}
		summary.OriginalBytes += t.OriginalBytes
	}

	var kinds []kindCount
	if err := r.db.WithContext(ctx).Model(&RelayEvent{}).
		Select("kind, COUNT(*) AS count").
		Where("topic = ? AND created_at >= ?", eventbus.EventRelayFailed, since).
		Group("kind").
		Scan(&kinds).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "relay_event.summary", "failed to aggregate failures", err)
	}
	for _, k := range kinds {
		summary.FailuresByKind[k.Kind] = k.Count
	}

	return summary, nil
}

// Prune deletes events older than before and reports how many went.
func (r *EventRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", before.UTC()).Delete(&RelayEvent{})
	if res.Error != nil {
		return 0, errors.Wrap(errors.KindStorage, "relay_event.prune", "failed to prune relay events", res.Error)
	}
	return res.RowsAffected, nil
}
