package image

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/sync/semaphore"

	"imgrelay-server-go/internal/platform/errors"
	"imgrelay-server-go/internal/platform/observability"
	"imgrelay-server-go/internal/utils"
)

const defaultTranscodeTimeout = 30 * time.Second

// Pipeline probes and executes plans against a Codec under its own deadline.
type Pipeline struct {
	codec   Codec
	logger  *utils.Logger
	timeout time.Duration
	slots   *semaphore.Weighted
}

// Options configures the pipeline behaviour.
type Options struct {
	Codec   Codec
	Logger  *utils.Logger
	Timeout time.Duration
	// MaxConcurrent caps simultaneous transforms; 0 means one per CPU.
	MaxConcurrent int
}

// NewPipeline constructs a transcode pipeline.
func NewPipeline(opts Options) (*Pipeline, error) {
	if opts.Codec == nil {
		return nil, errors.New(errors.KindConfig, "image.pipeline", "codec is required")
	}
	if opts.Logger == nil {
		opts.Logger = utils.DefaultLogger
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTranscodeTimeout
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = runtime.NumCPU()
	}

	return &Pipeline{
		codec:   opts.Codec,
		logger:  opts.Logger,
		timeout: opts.Timeout,
		slots:   semaphore.NewWeighted(int64(opts.MaxConcurrent)),
	}, nil
}

// Probe returns source metadata. Failures are transcode errors.
func (p *Pipeline) Probe(data []byte) (Metadata, error) {
	meta, err := p.codec.Probe(data)
	if err != nil {
		return meta, errors.Wrap(errors.KindTranscode, "image.probe", err.Error(), err)
	}
	if meta.Format == "" {
		return meta, errors.New(errors.KindTranscode, "image.probe", ErrUnsupportedFormat.Error())
	}
	return meta, nil
}

type transformResult struct {
	encoded Encoded
	err     error
}

// Execute runs plan on data. The deadline is detached from ctx cancellation
// so a transcode already underway is bounded only by the pipeline timeout.
// Waiting for a free slot counts against that timeout.
func (p *Pipeline) Execute(ctx context.Context, data []byte, plan Plan) (*Output, error) {
	ctx, end := observability.StartSpan(ctx, "image.pipeline", "transcode")

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	start := time.Now()
	if err := p.slots.Acquire(runCtx, 1); err != nil {
		err := errors.New(errors.KindTranscode, "image.transform",
			fmt.Sprintf("no transcode slot free within %s", p.timeout))
		end(err)
		return nil, err
	}

	done := make(chan transformResult, 1)
	go func() {
		defer p.slots.Release(1)
		defer func() {
			if r := recover(); r != nil {
				done <- transformResult{err: fmt.Errorf("codec panic: %v", r)}
			}
		}()
		encoded, err := p.codec.Transform(data, plan)
		done <- transformResult{encoded: encoded, err: err}
	}()

	var res transformResult
	select {
	case res = <-done:
	case <-runCtx.Done():
		err := errors.New(errors.KindTranscode, "image.transform",
			fmt.Sprintf("transcode timed out after %s", p.timeout))
		end(err)
		return nil, err
	}
	elapsed := time.Since(start)

	if res.err != nil {
		err := errors.Wrap(errors.KindTranscode, "image.transform", res.err.Error(), res.err)
		end(err)
		return nil, err
	}
	end(nil)

	observability.RecordMetric(ctx, "image.transcode_ms", float64(elapsed.Milliseconds()), map[string]string{
		"format":   string(plan.Format),
		"fallback": strconv.FormatBool(plan.FallbackApplied),
	})
	p.logger.DebugTag("CODEC", "encoded %s in %dms: %d -> %d bytes",
		plan.Format, elapsed.Milliseconds(), len(data), res.encoded.Size)

	return &Output{
		Bytes:    res.encoded.Bytes,
		Size:     res.encoded.Size,
		Format:   plan.Format,
		Duration: elapsed,
	}, nil
}
