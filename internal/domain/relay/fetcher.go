package relay

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"

	"imgrelay-server-go/internal/platform/config"
	"imgrelay-server-go/internal/platform/errors"
	"imgrelay-server-go/internal/utils"
)

// ClientInfo is what the fetcher may pass on about the calling client.
type ClientInfo struct {
	Headers   http.Header
	IP        string
	RequestID string
}

// SourceImage is a fully downloaded upstream image.
type SourceImage struct {
	Bytes       []byte
	ContentType string
	// DeclaredLength is the preflight content-length, -1 when absent.
	DeclaredLength int64
	Headers        *Headers
}

func (s *SourceImage) Size() int64 {
	return int64(len(s.Bytes))
}

// UpstreamStatusError carries a non-2xx upstream answer.
type UpstreamStatusError struct {
	Status     int
	StatusText string
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream returned %d %s", e.Status, e.StatusText)
}

// Fetcher performs the bounded preflight and download of a source image.
type Fetcher struct {
	client *http.Client
	cfg    *config.RelayConfig
	logger *utils.Logger
}

// NewFetcher uses http.DefaultClient when client is nil. Deadlines come from
// contexts, so the client itself should carry no Timeout.
func NewFetcher(cfg *config.RelayConfig, client *http.Client, logger *utils.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client, cfg: cfg, logger: logger}
}

// Fetch validates target with a HEAD request, then downloads it. Both phases
// share one network context derived from ctx, so a client abort or the
// network deadline stops whichever phase is running.
func (f *Fetcher) Fetch(ctx context.Context, target string, client ClientInfo) (*SourceImage, error) {
	if err := validateTarget(target); err != nil {
		return nil, err
	}

	netCtx, cancelNet := context.WithTimeout(ctx, f.cfg.NetworkTimeout)
	defer cancelNet()

	headers := PickForwardHeaders(client.Headers, f.cfg.ForwardHeaders, client.IP)

	declared, err := f.preflight(netCtx, target, headers)
	if err != nil {
		return nil, err
	}

	return f.download(netCtx, target, headers, declared)
}

func (f *Fetcher) preflight(ctx context.Context, target string, headers http.Header) (int64, error) {
	const op = "fetch.preflight"

	ctx, cancel := context.WithTimeout(ctx, f.cfg.PreflightTimeout)
	defer cancel()

	resp, err := f.do(ctx, http.MethodHead, target, headers)
	if err != nil {
		return 0, f.classify(ctx, op, err)
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.logger.WarnTag("FETCH", "HEAD %s returned %s", target, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(baseMediaType(contentType), "image/") {
		return 0, errors.New(errors.KindInvalidContentType, op,
			fmt.Sprintf("Invalid content type: %s. Only image types are supported.", contentType))
	}

	// For HEAD responses ContentLength is the declared header value, or -1.
	declared := resp.ContentLength
	if declared > f.cfg.MaxSourceSize {
		return 0, errors.New(errors.KindSourceTooLarge, op,
			fmt.Sprintf("Image too large: %s MB. Maximum allowed: %s MB.", megabytes(declared), megabytes(f.cfg.MaxSourceSize)))
	}
	return declared, nil
}

func (f *Fetcher) download(ctx context.Context, target string, headers http.Header, declared int64) (*SourceImage, error) {
	const op = "fetch.download"

	ctx, cancel := context.WithTimeout(ctx, f.cfg.FetchTimeout)
	defer cancel()

	resp, err := f.do(ctx, http.MethodGet, target, headers)
	if err != nil {
		return nil, f.classify(ctx, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &UpstreamStatusError{Status: resp.StatusCode, StatusText: statusText(resp)}
		f.logger.WarnTag("FETCH", "GET %s failed: %s", target, resp.Status)
		return nil, errors.Wrap(errors.KindUpstreamFetch, op,
			fmt.Sprintf("Failed to fetch image: %s", statusErr.StatusText), statusErr)
	}

	body, err := decodeBody(resp)
	if err != nil {
		return nil, errors.Wrap(errors.KindUnknown, op, "failed to decode upstream body", err)
	}
	defer body.Close()

	limited := &io.LimitedReader{R: body, N: f.cfg.MaxSourceSize + 1}
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, f.classify(ctx, op, err)
	}
	if int64(len(data)) > f.cfg.MaxSourceSize {
		return nil, errors.New(errors.KindSourceTooLarge, op,
			fmt.Sprintf("Image too large after download: more than %s MB. Maximum allowed: %s MB.",
				megabytes(f.cfg.MaxSourceSize), megabytes(f.cfg.MaxSourceSize)))
	}

	contentType := resp.Header.Get("Content-Type")
	f.logger.DebugTag("FETCH", "downloaded %s: type=%s size=%d declared=%d", target, contentType, len(data), declared)

	return &SourceImage{
		Bytes:          data,
		ContentType:    contentType,
		DeclaredLength: declared,
		Headers:        FilterResponseHeaders(resp.Header),
	}, nil
}

func (f *Fetcher) do(ctx context.Context, method, target string, headers http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header = headers.Clone()
	return f.client.Do(req)
}

// classify separates cancellations and timeouts from other transport failures.
func (f *Fetcher) classify(ctx context.Context, op string, err error) error {
	var netErr net.Error
	if ctx.Err() != nil ||
		stderrors.Is(err, context.Canceled) ||
		stderrors.Is(err, context.DeadlineExceeded) ||
		(stderrors.As(err, &netErr) && netErr.Timeout()) {
		return errors.Wrap(errors.KindUpstreamAborted, op, "Request cancelled by client or timed out", err)
	}
	return errors.Wrap(errors.KindUnknown, op, "upstream request failed", err)
}

func validateTarget(target string) error {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New(errors.KindInvalidTarget, "fetch.validate",
			fmt.Sprintf("Invalid image URL: %s", target))
	}
	return nil
}

// decodeBody undoes the content codings restrictCodings allowed upstream to use.
func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "", "identity":
		return io.NopCloser(resp.Body), nil
	case "gzip", "x-gzip":
		return gzip.NewReader(resp.Body)
	case "deflate":
		return zlib.NewReader(resp.Body)
	case "zstd":
		dec, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", resp.Header.Get("Content-Encoding"))
	}
}

func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

func megabytes(n int64) string {
	return strconv.FormatFloat(float64(n)/1024/1024, 'f', 2, 64)
}
