package image

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"imgrelay-server-go/internal/utils"
)

// ErrUnsupportedFormat is returned when no registered decoder recognises the input.
var ErrUnsupportedFormat = errors.New("input buffer contains unsupported image format")

var imageSignatures = map[string][]byte{
	"jpeg": {0xFF, 0xD8},
	"png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"gif":  {0x47, 0x49, 0x46, 0x38},
	"webp": {0x52, 0x49, 0x46, 0x46},
	"bmp":  {0x42, 0x4D},
}

// Prober extracts Metadata from encoded bytes.
type Prober struct {
	logger *utils.Logger
}

func NewProber(logger *utils.Logger) *Prober {
	return &Prober{logger: logger}
}

// Probe decodes only the image header.
func (p *Prober) Probe(data []byte) (Metadata, error) {
	if len(data) == 0 {
		return Metadata{}, errors.New("input buffer is empty")
	}

	meta := Metadata{MIME: mimetype.Detect(data).String()}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			p.logger.DebugTag("CODEC", "no decoder for mime=%s header=%x", meta.MIME, data[:min(len(data), 16)])
			return meta, ErrUnsupportedFormat
		}
		if sig, ok := imageSignatures[format]; ok && !bytes.HasPrefix(data, sig) {
			p.logger.WarnTag("CODEC", "signature mismatch: format=%s header=%x", format, data[:min(len(data), 16)])
		}
		return meta, fmt.Errorf("input image header is corrupt: %w", err)
	}

	meta.Format = format
	meta.Width = cfg.Width
	meta.Height = cfg.Height
	meta.Channels, meta.BitDepth = describeColorModel(cfg.ColorModel)

	if format == "png" {
		if ch, depth, ok := pngHeader(data); ok {
			meta.Channels, meta.BitDepth = ch, depth
		}
	}

	p.logger.DebugTag("CODEC", "probe: format=%s %dx%d channels=%d depth=%d",
		meta.Format, meta.Width, meta.Height, meta.Channels, meta.BitDepth)
	return meta, nil
}

// describeColorModel maps a decoder color model to (channels, bits per sample).
func describeColorModel(m color.Model) (int, int) {
	if palette, ok := m.(color.Palette); ok {
		channels := 3
		for _, c := range palette {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				channels = 4
				break
			}
		}
		return channels, paletteDepth(len(palette))
	}

	switch m {
	case color.GrayModel, color.AlphaModel:
		return 1, 8
	case color.Gray16Model, color.Alpha16Model:
		return 1, 16
	case color.YCbCrModel:
		return 3, 8
	case color.NYCbCrAModel, color.CMYKModel, color.RGBAModel, color.NRGBAModel:
		return 4, 8
	case color.RGBA64Model, color.NRGBA64Model:
		return 4, 16
	}
	return 3, 8
}

func paletteDepth(n int) int {
	switch {
	case n <= 2:
		return 1
	case n <= 4:
		return 2
	case n <= 16:
		return 4
	default:
		return 8
	}
}

// pngHeader reads channels and bit depth straight from IHDR, which keeps
// gray+alpha and low-depth palettes distinct.
func pngHeader(data []byte) (int, int, bool) {
	if len(data) < 26 || !bytes.HasPrefix(data, imageSignatures["png"]) {
		return 0, 0, false
	}
	if string(data[12:16]) != "IHDR" || binary.BigEndian.Uint32(data[8:12]) < 13 {
		return 0, 0, false
	}
	depth := int(data[24])
	switch data[25] {
	case 0:
		return 1, depth, true
	case 2:
		return 3, depth, true
	case 3:
		return 3, depth, true
	case 4:
		return 2, depth, true
	case 6:
		return 4, depth, true
	}
	return 0, 0, false
}
