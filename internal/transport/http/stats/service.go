package stats

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"imgrelay-server-go/internal/platform/errors"
	"imgrelay-server-go/internal/platform/storage"
	httptransport "imgrelay-server-go/internal/transport/http"
	"imgrelay-server-go/internal/utils"
)

const (
	defaultWindow = 24 * time.Hour
	defaultLimit  = 20
	maxLimit      = 500
)

// Reader is the read side of the relay event journal.
type Reader interface {
	Summary(ctx context.Context, since time.Time) (*storage.EventSummary, error)
	Recent(ctx context.Context, limit int) ([]storage.RelayEvent, error)
}

// Service exposes host load and, when a journal is configured, relay
// aggregates over HTTP.
type Service struct {
	logger  *utils.Logger
	reader  Reader
	sampler SystemSampler
}

// NewService requires a sampler; reader may be nil when no journal exists.
func NewService(logger *utils.Logger, sampler SystemSampler, reader Reader) (*Service, error) {
	if logger == nil {
		return nil, errors.New(errors.KindConfig, "stats.new", "logger is required")
	}
	if sampler == nil {
		return nil, errors.New(errors.KindConfig, "stats.new", "system sampler is required")
	}
	return &Service{logger: logger, reader: reader, sampler: sampler}, nil
}

func (s *Service) Register(ctx context.Context, router *gin.RouterGroup) error {
	group := router.Group("/stats")
	group.GET("/system", s.handleSystem)
	if s.reader != nil {
		group.GET("", s.handleSummary)
		group.GET("/recent", s.handleRecent)
	}

	s.logger.InfoTag("HTTP", "stats routes registered (journal=%t)", s.reader != nil)
	return nil
}

// handleSystem answers GET /stats/system.
func (s *Service) handleSystem(c *gin.Context) {
	status, err := s.sampler.Sample(c.Request.Context())
	if err != nil {
		s.logger.ErrorTag("HTTP", "system sample failed: %v", err)
		httptransport.RespondError(c, http.StatusInternalServerError, "failed to sample system status", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, status, "")
}

// handleSummary answers GET /stats?window=24h.
func (s *Service) handleSummary(c *gin.Context) {
	window := defaultWindow
	if raw := c.Query("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			httptransport.RespondError(c, http.StatusBadRequest, "window must be a positive duration such as 1h", nil)
			return
		}
		window = parsed
	}

	summary, err := s.reader.Summary(c.Request.Context(), time.Now().Add(-window))
	if err != nil {
		s.logger.ErrorTag("HTTP", "stats summary failed: %v", err)
		httptransport.RespondError(c, http.StatusInternalServerError, "failed to read relay statistics", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, summary, "")
}

// handleRecent answers GET /stats/recent?limit=20.
func (s *Service) handleRecent(c *gin.Context) {
	limit := defaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httptransport.RespondError(c, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		limit = utils.ClampInt(n, 1, maxLimit)
	}

	events, err := s.reader.Recent(c.Request.Context(), limit)
	if err != nil {
		s.logger.ErrorTag("HTTP", "stats recent failed: %v", err)
		httptransport.RespondError(c, http.StatusInternalServerError, "failed to read relay events", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, events, "")
}
