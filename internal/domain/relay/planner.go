package relay

import (
	"fmt"
	"math"

	"imgrelay-server-go/internal/domain/image"
	"imgrelay-server-go/internal/platform/config"
	"imgrelay-server-go/internal/platform/errors"
)

// PlanTranscode derives concrete transcode parameters from probed metadata.
// It never enlarges and always plans JPEG when WebP cannot hold the output.
func PlanTranscode(meta image.Metadata, req TransformRequest, cfg *config.RelayConfig) (image.Plan, error) {
	const op = "relay.plan"

	if meta.Format == "" {
		return image.Plan{}, errors.New(errors.KindTranscode, op, image.ErrUnsupportedFormat.Error())
	}

	plan := image.Plan{
		Format:    image.FormatJPEG,
		Grayscale: req.Grayscale || meta.Channels <= 2 || meta.BitDepth == 1,
		Quality:   req.Quality,
		JPEG:      image.DefaultJPEGOptions(),
	}
	if req.WantWebP {
		plan.Format = image.FormatWebP
	}

	outputHeight := meta.Height
	if meta.Width > cfg.TargetWidth {
		factor := float64(cfg.TargetWidth) / float64(meta.Width)
		outputHeight = max(1, int(math.Round(float64(meta.Height)*factor)))
		plan.Resize = &image.Size{Width: cfg.TargetWidth, Height: outputHeight}

		sharpen := image.ColorSharpen
		if plan.Grayscale {
			sharpen = image.GraySharpen
		}
		plan.Sharpen = &sharpen
	}

	if plan.Format == image.FormatWebP && outputHeight > cfg.MaxWebPDimension {
		plan.Format = image.FormatJPEG
		plan.FallbackApplied = true
	}

	if plan.Grayscale {
		plan.Binarize = true
		plan.Threshold = uint8(cfg.BinarizeThreshold)
	}

	plan.WebP = image.WebPOptions{
		Lossless: false,
		Effort:   6,
		SharpYUV: !plan.Grayscale,
	}
	return plan, nil
}

// CheckSourceLimits rejects images too large to decode safely.
func CheckSourceLimits(meta image.Metadata, cfg *config.RelayConfig) error {
	const op = "relay.limits"

	if meta.Width <= 0 || meta.Height <= 0 {
		return errors.New(errors.KindTranscode, op,
			fmt.Sprintf("invalid image dimensions %dx%d", meta.Width, meta.Height))
	}
	if meta.Width > cfg.MaxSourceDimension || meta.Height > cfg.MaxSourceDimension {
		return errors.New(errors.KindTranscode, op,
			fmt.Sprintf("image dimensions %dx%d exceed the %dx%d limit",
				meta.Width, meta.Height, cfg.MaxSourceDimension, cfg.MaxSourceDimension))
	}
	return nil
}
