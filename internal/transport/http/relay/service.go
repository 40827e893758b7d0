package relay

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainrelay "imgrelay-server-go/internal/domain/relay"
	"imgrelay-server-go/internal/platform/config"
	"imgrelay-server-go/internal/platform/errors"
	httptransport "imgrelay-server-go/internal/transport/http"
	"imgrelay-server-go/internal/utils"
)

// StatusClientClosedRequest is the non-standard status for an aborted fetch.
const StatusClientClosedRequest = 499

// Processor runs one relay request.
type Processor interface {
	Process(ctx context.Context, req domainrelay.TransformRequest, client domainrelay.ClientInfo) (*domainrelay.Result, error)
}

// Service is the HTTP face of the relay.
type Service struct {
	logger    *utils.Logger
	config    *config.RelayConfig
	processor Processor
}

// NewService validates its collaborators.
func NewService(cfg *config.RelayConfig, logger *utils.Logger, processor Processor) (*Service, error) {
	if cfg == nil {
		return nil, errors.New(errors.KindConfig, "relay_http.new", "relay config is required")
	}
	if logger == nil {
		return nil, errors.New(errors.KindConfig, "relay_http.new", "logger is required")
	}
	if processor == nil {
		return nil, errors.New(errors.KindConfig, "relay_http.new", "relay processor is required")
	}

	return &Service{
		logger:    logger,
		config:    cfg,
		processor: processor,
	}, nil
}

// Register mounts the relay on the root path.
func (s *Service) Register(ctx context.Context, router *gin.RouterGroup) error {
	router.GET("/", s.handleRelay)

	s.logger.InfoTag("HTTP", "relay routes registered")
	return nil
}

// handleRelay answers GET /?url=...&jpeg&bw=1&l=40.
// Without a url it serves as a liveness probe.
func (s *Service) handleRelay(c *gin.Context) {
	req, ok := domainrelay.NormalizeRequest(c.Request.URL.Query(), s.config.DefaultQuality)
	if !ok {
		httptransport.RespondText(c, http.StatusOK, s.config.LivenessBody)
		return
	}

	client := domainrelay.ClientInfo{
		Headers:   c.Request.Header,
		IP:        c.ClientIP(),
		RequestID: httptransport.RequestID(c),
	}

	res, err := s.processor.Process(c.Request.Context(), req, client)
	if err != nil {
		s.respondFailure(c, req, err)
		return
	}

	headers := res.Source.Headers.Clone()
	body := res.Source.Bytes
	if res.Bypassed() {
		s.logger.DebugTag("RELAY", "bypass %s (%s, %d bytes)", req.TargetURL, res.Source.ContentType, res.Source.Size())
	} else {
		headers.Merge(res.Transcoded.Headers)
		body = res.Transcoded.Bytes
		s.logger.InfoTag("RELAY", "transcoded %s to %s: %d -> %d bytes in %s",
			req.TargetURL, res.Transcoded.Plan.Format, res.Source.Size(), len(body), res.Transcoded.Duration)
	}

	httptransport.RespondImage(c, headers.HTTPHeader(), body)
}

// respondFailure maps an error kind to its HTTP answer. Kinds that mean the
// original might still be usable redirect the client to it.
func (s *Service) respondFailure(c *gin.Context, req domainrelay.TransformRequest, err error) {
	kind := errors.KindOf(err)
	message := errors.MessageOf(err)
	_ = c.Error(err)

	switch kind {
	case errors.KindInvalidContentType, errors.KindSourceTooLarge, errors.KindInvalidTarget:
		s.logger.WarnTag("RELAY", "rejected %s: %s", req.TargetURL, message)
		httptransport.SetNoCache(c)
		httptransport.RespondText(c, http.StatusBadRequest, message)
		return

	case errors.KindUpstreamFetch:
		status := http.StatusBadGateway
		var statusErr *domainrelay.UpstreamStatusError
		if stderrors.As(err, &statusErr) {
			status = statusErr.Status
		}
		s.logger.WarnTag("RELAY", "upstream failure for %s: %s", req.TargetURL, message)
		httptransport.SetNoCache(c)
		httptransport.RespondText(c, status, message)
		return

	case errors.KindUpstreamAborted:
		s.logger.WarnTag("RELAY", "aborted %s: %v", req.TargetURL, err)
		httptransport.SetNoCache(c)
		httptransport.RespondText(c, StatusClientClosedRequest, "Request cancelled by client or timed out")
		return
	}

	if req.TargetURL == "" {
		s.logger.ErrorTag("RELAY", "unhandled error without target: %v", err)
		httptransport.SetNoCache(c)
		httptransport.RespondText(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	reason := domainrelay.RedirectReason(err)
	s.logger.ErrorTag("RELAY", "redirecting to original %s (%s): %v", req.TargetURL, reason, err)
	httptransport.RespondRedirect(c, req.TargetURL, reason)
}
