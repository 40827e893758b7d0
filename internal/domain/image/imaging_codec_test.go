package image

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImagingCodec_TransformJPEG(t *testing.T) {
	codec := NewImagingCodec(nil)
	src := encodePNG(t, gradient(1200, 600))

	out, err := codec.Transform(src, Plan{
		Format:  FormatJPEG,
		Resize:  &Size{Width: 854, Height: 427},
		Sharpen: &ColorSharpen,
		Quality: 40,
		JPEG:    DefaultJPEGOptions(),
	})
	require.NoError(t, err)
	assert.Equal(t, len(out.Bytes), out.Size)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out.Bytes))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 854, cfg.Width)
	assert.Equal(t, 427, cfg.Height)
	assert.Equal(t, color.YCbCrModel, cfg.ColorModel)
}

func TestImagingCodec_TransformGrayscaleJPEG(t *testing.T) {
	codec := NewImagingCodec(nil)
	src := encodePNG(t, gradient(100, 50))

	out, err := codec.Transform(src, Plan{
		Format:    FormatJPEG,
		Grayscale: true,
		Binarize:  true,
		Threshold: 128,
		Quality:   80,
	})
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(out.Bytes))
	require.NoError(t, err)
	_, isGray := decoded.(*image.Gray)
	assert.True(t, isGray, "grayscale output should be single channel")
	assert.Equal(t, 100, decoded.Bounds().Dx())
}

func TestImagingCodec_TransformCorrupt(t *testing.T) {
	codec := NewImagingCodec(nil)

	_, err := codec.Transform([]byte("definitely not an image"), Plan{Format: FormatJPEG, Quality: 40})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	truncated := encodeJPEG(t, gradient(64, 64))[:200]
	_, err = codec.Transform(truncated, Plan{Format: FormatJPEG, Quality: 40})
	assert.Error(t, err)
}

func TestSharpenGain(t *testing.T) {
	p := ColorSharpen

	assert.InDelta(t, 0.5, sharpenGain(1, p), 1e-9, "flat region uses m1")
	assert.InDelta(t, -0.5, sharpenGain(-1, p), 1e-9)
	assert.InDelta(t, 1+3*2, sharpenGain(4, p), 1e-9, "jagged region uses m2")
	assert.InDelta(t, p.Y2, sharpenGain(50, p), 1e-9, "brightening capped at y2")
	assert.InDelta(t, -p.Y3, sharpenGain(-50, p), 1e-9, "darkening capped at y3")
}

func TestSharpen_PreservesFlatImage(t *testing.T) {
	flat := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for i := range flat.Pix {
		flat.Pix[i] = 100
	}

	out := sharpen(flat, GraySharpen)
	assert.Equal(t, flat.Bounds(), out.Bounds())
	assert.Equal(t, uint8(100), out.Pix[4*17])
	assert.Equal(t, uint8(100), out.Pix[4*17+3], "alpha untouched")
}

func TestBinarize(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.NRGBA{R: 127, G: 127, B: 127, A: 255})
	img.Set(1, 0, color.NRGBA{R: 128, G: 128, B: 128, A: 255})

	out := binarize(img, 128)
	assert.Equal(t, color.NRGBA{A: 255}, out.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, out.NRGBAAt(1, 0))
}

func TestToGray(t *testing.T) {
	full := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			v := uint8(x*60 + y*5)
			full.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}

	tests := []struct {
		name string
		img  image.Image
	}{
		{"nrgba", full},
		{"nrgba sub image", full.SubImage(image.Rect(1, 1, 4, 3))},
		{"other model", func() image.Image {
			rgba := image.NewRGBA(full.Bounds())
			for y := 0; y < 3; y++ {
				for x := 0; x < 4; x++ {
					rgba.Set(x, y, full.At(x, y))
				}
			}
			return rgba
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gray := toGray(tt.img)
			b := tt.img.Bounds()
			require.Equal(t, b, gray.Bounds())
			for y := b.Min.Y; y < b.Max.Y; y++ {
				for x := b.Min.X; x < b.Max.X; x++ {
					assert.Equal(t, full.NRGBAAt(x, y).R, gray.GrayAt(x, y).Y, "pixel %d,%d", x, y)
				}
			}
		})
	}
}
