package relay

import (
	"context"
	"strconv"
	"time"

	"imgrelay-server-go/internal/domain/eventbus"
	"imgrelay-server-go/internal/domain/image"
	"imgrelay-server-go/internal/platform/config"
	"imgrelay-server-go/internal/platform/errors"
	"imgrelay-server-go/internal/platform/observability"
	"imgrelay-server-go/internal/utils"
)

// SourceFetcher downloads a validated source image.
type SourceFetcher interface {
	Fetch(ctx context.Context, target string, client ClientInfo) (*SourceImage, error)
}

// Transcoder probes and executes plans.
type Transcoder interface {
	Probe(data []byte) (image.Metadata, error)
	Execute(ctx context.Context, data []byte, plan image.Plan) (*image.Output, error)
}

// Publisher receives relay events. *eventbus.AsyncEventBus satisfies it.
type Publisher interface {
	PublishAsync(topic string, args ...interface{})
}

// TranscodeResult is a successful re-encode with its stats headers.
type TranscodeResult struct {
	Bytes    []byte
	Headers  *Headers
	Duration time.Duration
	Plan     image.Plan
}

// Result is either a bypass (Transcoded nil) or a transcode.
type Result struct {
	Request    TransformRequest
	Source     *SourceImage
	Transcoded *TranscodeResult
}

func (r *Result) Bypassed() bool {
	return r.Transcoded == nil
}

// Options wires a Service.
type Options struct {
	Config   *config.RelayConfig
	Fetcher  SourceFetcher
	Pipeline Transcoder
	Logger   *utils.Logger
	Events   Publisher
}

// Service runs fetch, decide, plan and transcode for one request at a time.
// It holds no per-request state and is safe for concurrent use.
type Service struct {
	cfg        *config.RelayConfig
	thresholds Thresholds
	fetcher    SourceFetcher
	pipeline   Transcoder
	logger     *utils.Logger
	events     Publisher
}

func NewService(opts Options) (*Service, error) {
	const op = "relay.new"
	switch {
	case opts.Config == nil:
		return nil, errors.New(errors.KindConfig, op, "relay config is required")
	case opts.Fetcher == nil:
		return nil, errors.New(errors.KindConfig, op, "fetcher is required")
	case opts.Pipeline == nil:
		return nil, errors.New(errors.KindConfig, op, "pipeline is required")
	}
	if opts.Logger == nil {
		opts.Logger = utils.DefaultLogger
	}

	return &Service{
		cfg:        opts.Config,
		thresholds: ThresholdsFrom(opts.Config),
		fetcher:    opts.Fetcher,
		pipeline:   opts.Pipeline,
		logger:     opts.Logger,
		events:     opts.Events,
	}, nil
}

// Process fetches req.TargetURL and either passes it through or transcodes it.
// Returned errors are typed with the relay kinds of platform/errors.
func (s *Service) Process(ctx context.Context, req TransformRequest, client ClientInfo) (*Result, error) {
	ctx, end := observability.StartSpan(ctx, "relay.service", "process")

	res, err := s.process(ctx, req, client)
	if err != nil {
		s.publish(eventbus.EventRelayFailed, eventbus.RelayEventData{
			RequestID: client.RequestID,
			URL:       req.TargetURL,
			Kind:      string(errors.KindOf(err)),
			Reason:    errors.MessageOf(err),
		})
	}
	end(err)
	return res, err
}

func (s *Service) process(ctx context.Context, req TransformRequest, client ClientInfo) (*Result, error) {
	src, err := s.fetcher.Fetch(ctx, req.TargetURL, client)
	if err != nil {
		return nil, errors.Wrap(errors.KindUnknown, "relay.fetch", "fetch failed", err)
	}

	result := &Result{Request: req, Source: src}

	if !ShouldCompress(src.ContentType, src.Size(), req.WantWebP, s.thresholds) {
		s.publish(eventbus.EventRelayBypassed, eventbus.RelayEventData{
			RequestID:    client.RequestID,
			URL:          req.TargetURL,
			ContentType:  src.ContentType,
			OriginalSize: src.Size(),
		})
		return result, nil
	}

	meta, err := s.pipeline.Probe(src.Bytes)
	if err != nil {
		return nil, errors.Wrap(errors.KindTranscode, "relay.probe", err.Error(), err)
	}
	if err := CheckSourceLimits(meta, s.cfg); err != nil {
		return nil, err
	}

	plan, err := PlanTranscode(meta, req, s.cfg)
	if err != nil {
		return nil, err
	}
	if plan.FallbackApplied {
		s.logger.WarnTag("CODEC", "WebP limit of %dpx exceeded for %s (%dx%d), encoding JPEG instead",
			s.cfg.MaxWebPDimension, req.TargetURL, meta.Width, meta.Height)
	}

	out, err := s.pipeline.Execute(ctx, src.Bytes, plan)
	if err != nil {
		return nil, errors.Wrap(errors.KindTranscode, "relay.transcode", err.Error(), err)
	}

	result.Transcoded = &TranscodeResult{
		Bytes:    out.Bytes,
		Headers:  transcodeHeaders(plan.Format, src.Size(), int64(out.Size)),
		Duration: out.Duration,
		Plan:     plan,
	}

	observability.RecordMetric(ctx, "relay.bytes_saved", float64(src.Size()-int64(out.Size)), map[string]string{
		"format": string(plan.Format),
	})
	s.publish(eventbus.EventRelayTranscoded, eventbus.RelayEventData{
		RequestID:       client.RequestID,
		URL:             req.TargetURL,
		ContentType:     src.ContentType,
		OriginalSize:    src.Size(),
		OutputSize:      int64(out.Size),
		Format:          string(plan.Format),
		FallbackApplied: plan.FallbackApplied,
		Duration:        out.Duration,
	})
	return result, nil
}

// transcodeHeaders reports the output type and size-saving statistics.
func transcodeHeaders(format image.Format, originalSize, outputSize int64) *Headers {
	h := NewHeaders()
	h.Set("content-type", format.ContentType())
	h.Set("content-length", strconv.FormatInt(outputSize, 10))
	h.Set("x-original-size", strconv.FormatInt(originalSize, 10))
	h.Set("x-bytes-saved", strconv.FormatInt(originalSize-outputSize, 10))
	return h
}

func (s *Service) publish(topic string, data eventbus.RelayEventData) {
	if s.events == nil {
		return
	}
	s.events.PublishAsync(topic, data)
}
