package image

import "time"

// Format is an output encoding the relay can produce.
type Format string

const (
	FormatWebP Format = "webp"
	FormatJPEG Format = "jpeg"
)

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	return "image/" + string(f)
}

// Metadata is what a probe learns about a source image before any mutation.
type Metadata struct {
	Width    int
	Height   int
	Channels int
	BitDepth int
	// Format is the decoder name ("jpeg", "png", "gif", "webp", ...). Empty means undecodable.
	Format string
	MIME   string
}

// Size is a target geometry in pixels.
type Size struct {
	Width  int
	Height int
}

// SharpenParams follows the libvips sharpen model: a gaussian of Sigma, slope
// M1 for flat areas (|delta| <= X1) and M2 for jagged ones, with brightening
// capped at Y2 and darkening at Y3.
type SharpenParams struct {
	Sigma float64
	M1    float64
	M2    float64
	X1    float64
	Y2    float64
	Y3    float64
}

var (
	ColorSharpen = SharpenParams{Sigma: 0.5, M1: 0.5, M2: 3, X1: 2, Y2: 10, Y3: 20}
	GraySharpen  = SharpenParams{Sigma: 0.7, M1: 0.5, M2: 3.0, X1: 2.0, Y2: 12, Y3: 25}
)

// JPEGOptions records the mozjpeg-style settings of a plan. ImagingCodec encodes
// through image/jpeg, which ignores all of them.
type JPEGOptions struct {
	Progressive        bool
	Trellis            bool
	OvershootDeringing bool
	OptimizeScans      bool
	ChromaSubsampling  string
}

// DefaultJPEGOptions is the static JPEG parameter table.
func DefaultJPEGOptions() JPEGOptions {
	return JPEGOptions{
		Progressive:        true,
		Trellis:            true,
		OvershootDeringing: true,
		OptimizeScans:      true,
		ChromaSubsampling:  "4:2:0",
	}
}

type WebPOptions struct {
	Lossless bool
	Effort   int
	SharpYUV bool
}

// Plan is the concrete set of transforms for one source image.
type Plan struct {
	Format Format
	// Resize is nil when the source is already narrow enough.
	Resize          *Size
	Sharpen         *SharpenParams
	Grayscale       bool
	Binarize        bool
	Threshold       uint8
	Quality         int
	FallbackApplied bool
	JPEG            JPEGOptions
	WebP            WebPOptions
}

// Encoded is the raw codec result.
type Encoded struct {
	Bytes []byte
	Size  int
}

// Output is an executed plan.
type Output struct {
	Bytes    []byte
	Size     int
	Format   Format
	Duration time.Duration
}
