package storage

import (
	"context"
	"time"

	"imgrelay-server-go/internal/domain/eventbus"
	"imgrelay-server-go/internal/utils"
)

const journalWriteTimeout = 5 * time.Second

// JournalHandler writes relay events to the repository. It satisfies
// eventbus.EventHandler and runs on the event bus workers.
type JournalHandler struct {
	repo   *EventRepository
	logger *utils.Logger
}

func NewJournalHandler(repo *EventRepository, logger *utils.Logger) *JournalHandler {
	return &JournalHandler{repo: repo, logger: logger}
}

func (h *JournalHandler) Handle(eventType string, data interface{}) {
	ev, ok := data.(eventbus.RelayEventData)
	if !ok {
		h.logger.WarnTag("STORAGE", "unexpected payload %T for %s", data, eventType)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	defer cancel()

	if err := h.repo.Save(ctx, eventType, ev); err != nil {
		h.logger.ErrorTag("STORAGE", "journal write failed for %s: %v", eventType, err)
	}
}
