package processor

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"

	"github.com/ds124wfegd/imgsqueeze/internal/entity"
	"github.com/ericpauley/go-quantize/quantize"
)

// EncodeJPEG writes baseline 4:2:0 JPEG with the standard library encoder.
// Plans asking for more go through jpegEncoder.
func EncodeJPEG(img image.Image, params entity.JPEGParams) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(256 * 1024)

	err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: entity.ClampQuality(params.Quality)})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func EncodePNG(img image.Image, params entity.PNGParams) ([]byte, error) {
	if params.Palette && params.Colors > 0 {
		img = reducePalette(img, params.Colors, params.Dithering)
	}

	var buf bytes.Buffer
	buf.Grow(512 * 1024)

	enc := &png.Encoder{CompressionLevel: pngLevel(params.CompressionLevel)}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// pngLevel maps a zlib-style 0..9 effort onto the encoder's presets.
func pngLevel(level int) png.CompressionLevel {
	switch {
	case level <= 0:
		return png.NoCompression
	case level <= 3:
		return png.BestSpeed
	case level <= 6:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

// reducePalette quantizes img to at most colors entries with median cut.
// Any positive dithering selects Floyd-Steinberg error diffusion.
func reducePalette(img image.Image, colors int, dithering float64) *image.Paletted {
	if colors > 256 {
		colors = 256
	}
	b := img.Bounds()

	q := quantize.MedianCutQuantizer{AddTransparent: !isOpaque(img)}
	pal := q.Quantize(make(color.Palette, 0, colors), img)

	dst := image.NewPaletted(b, pal)
	if dithering > 0 {
		draw.FloydSteinberg.Draw(dst, b, img, b.Min)
	} else {
		draw.Draw(dst, b, img, b.Min, draw.Src)
	}
	return dst
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}
