package eventbus

import (
	"imgrelay-server-go/internal/utils"
)

// EventHandler handles one event by topic.
type EventHandler interface {
	Handle(eventType string, data interface{})
}

// LogEventHandler writes relay events to the operator log.
type LogEventHandler struct {
	logger *utils.Logger
}

func NewLogEventHandler(logger *utils.Logger) *LogEventHandler {
	return &LogEventHandler{logger: logger}
}

func (h *LogEventHandler) Handle(eventType string, data interface{}) {
	ev, ok := data.(RelayEventData)
	if !ok {
		h.logger.WarnTag("EVENT", "unexpected payload %T for %s", data, eventType)
		return
	}

	switch eventType {
	case EventRelayBypassed:
		h.logger.InfoTag("RELAY", "bypass id=%s url=%s type=%s size=%d",
			ev.RequestID, ev.URL, ev.ContentType, ev.OriginalSize)
	case EventRelayTranscoded:
		h.logger.InfoTag("RELAY", "transcoded id=%s url=%s format=%s fallback=%t %d -> %d bytes (saved %d) in %dms",
			ev.RequestID, ev.URL, ev.Format, ev.FallbackApplied, ev.OriginalSize, ev.OutputSize,
			ev.BytesSaved(), ev.Duration.Milliseconds())
	case EventRelayFailed:
		h.logger.WarnTag("RELAY", "failed id=%s url=%s kind=%s reason=%s",
			ev.RequestID, ev.URL, ev.Kind, ev.Reason)
	default:
		h.logger.DebugTag("EVENT", "unhandled event type %s", eventType)
	}
}

// SetupEventHandlers subscribes handler to every relay topic.
func SetupEventHandlers(bus *AsyncEventBus, handler EventHandler) error {
	for _, topic := range []string{EventRelayBypassed, EventRelayTranscoded, EventRelayFailed} {
		topic := topic
		if err := bus.Subscribe(topic, func(data RelayEventData) {
			handler.Handle(topic, data)
		}); err != nil {
			return err
		}
	}
	return nil
}
