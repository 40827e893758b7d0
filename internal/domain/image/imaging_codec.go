package image

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"

	"imgrelay-server-go/internal/utils"
)

// ImagingCodec is the production Codec: imaging for pixel work and JPEG,
// libwebp (via go-webp) for WebP.
type ImagingCodec struct {
	prober *Prober
	logger *utils.Logger
}

func NewImagingCodec(logger *utils.Logger) *ImagingCodec {
	return &ImagingCodec{
		prober: NewProber(logger),
		logger: logger,
	}
}

func (c *ImagingCodec) Probe(data []byte) (Metadata, error) {
	return c.prober.Probe(data)
}

// Transform runs resize, sharpen, grayscale and threshold, then encodes.
func (c *ImagingCodec) Transform(data []byte, plan Plan) (Encoded, error) {
	src, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		if err == image.ErrFormat {
			return Encoded{}, ErrUnsupportedFormat
		}
		return Encoded{}, fmt.Errorf("decode: %w", err)
	}

	var img image.Image = src
	if plan.Resize != nil {
		img = imaging.Resize(img, plan.Resize.Width, plan.Resize.Height, imaging.Lanczos)
		if plan.Sharpen != nil {
			img = sharpen(img, *plan.Sharpen)
		}
	}

	if plan.Grayscale {
		img = imaging.Grayscale(img)
		if plan.Binarize {
			img = binarize(img, plan.Threshold)
		}
	}

	var buf bytes.Buffer
	switch plan.Format {
	case FormatJPEG:
		if plan.Grayscale {
			img = toGray(img)
		}
		// image/jpeg always subsamples chroma 4:2:0; scan and trellis options have no equivalent.
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(plan.Quality))
	case FormatWebP:
		err = encodeWebP(&buf, img, plan)
	default:
		return Encoded{}, fmt.Errorf("unsupported output format %q", plan.Format)
	}
	if err != nil {
		return Encoded{}, fmt.Errorf("encode %s: %w", plan.Format, err)
	}

	return Encoded{Bytes: buf.Bytes(), Size: buf.Len()}, nil
}

func encodeWebP(buf *bytes.Buffer, img image.Image, plan Plan) error {
	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(plan.Quality))
	if err != nil {
		return fmt.Errorf("webp options: %w", err)
	}
	options.Method = plan.WebP.Effort
	options.UseSharpYuv = plan.WebP.SharpYUV

	return webp.Encode(buf, imaging.Clone(img), options)
}

// sharpen applies an unsharp mask with the piecewise-linear gain curve of
// SharpenParams. Deltas are measured on a 0..100 lightness scale.
func sharpen(img image.Image, p SharpenParams) *image.NRGBA {
	orig := imaging.Clone(img)
	blurred := imaging.Blur(orig, p.Sigma)

	const scale = 255.0 / 100.0
	out := image.NewNRGBA(orig.Rect)
	for i := 0; i+3 < len(orig.Pix); i += 4 {
		for ch := 0; ch < 3; ch++ {
			o := float64(orig.Pix[i+ch])
			delta := (o - float64(blurred.Pix[i+ch])) / scale
			out.Pix[i+ch] = clampByte(o + sharpenGain(delta, p)*scale)
		}
		out.Pix[i+3] = orig.Pix[i+3]
	}
	return out
}

func sharpenGain(delta float64, p SharpenParams) float64 {
	abs := math.Abs(delta)
	var gain float64
	if abs <= p.X1 {
		gain = p.M1 * abs
	} else {
		gain = p.M1*p.X1 + p.M2*(abs-p.X1)
	}
	if delta < 0 {
		return -math.Min(gain, p.Y3)
	}
	return math.Min(gain, p.Y2)
}

func clampByte(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}

// binarize maps luminance >= threshold to white and the rest to black.
func binarize(img image.Image, threshold uint8) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		v := uint8(0)
		if c.R >= threshold {
			v = 255
		}
		return color.NRGBA{R: v, G: v, B: v, A: c.A}
	})
}

// toGray converts an already-grayscale image to a single channel. For
// *image.NRGBA the R channel is copied as is.
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(b)
	if src, ok := img.(*image.NRGBA); ok {
		w := b.Dx()
		for y := 0; y < b.Dy(); y++ {
			srcRow := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
			dstRow := gray.Pix[y*gray.Stride:]
			for x := 0; x < w; x++ {
				dstRow[x] = srcRow[x*4]
			}
		}
		return gray
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray.Set(x, y, img.At(x, y))
		}
	}
	return gray
}
