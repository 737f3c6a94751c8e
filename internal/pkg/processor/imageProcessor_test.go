package processor

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os/exec"
	"testing"

	"github.com/ds124wfegd/imgsqueeze/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// TestProbe checks format, size and alpha detection for encoded inputs
func TestProbe(t *testing.T) {
	p := NewImageProcessor(Options{})

	opaque := image.NewRGBA(image.Rect(0, 0, 40, 30))
	fillImageWithColor(opaque, color.RGBA{R: 100, G: 150, B: 200, A: 255})

	transparent := image.NewNRGBA(image.Rect(0, 0, 20, 10))
	draw.Draw(transparent, transparent.Bounds(), image.NewUniform(color.NRGBA{R: 10, G: 20, B: 30, A: 128}), image.Point{}, draw.Src)

	cutout := image.NewPaletted(image.Rect(0, 0, 64, 64), color.Palette{
		color.RGBA{},
		color.RGBA{R: 200, A: 255},
	})
	for y := 16; y < 48; y++ {
		for x := 16; x < 48; x++ {
			cutout.SetColorIndex(x, y, 1)
		}
	}

	tests := []struct {
		name string
		data []byte
		want entity.ImageMetadata
	}{
		{
			name: "opaque png",
			data: encodePNG(t, opaque),
			want: entity.ImageMetadata{Format: entity.FormatPNG, Width: 40, Height: 30},
		},
		{
			name: "transparent png",
			data: encodePNG(t, transparent),
			want: entity.ImageMetadata{Format: entity.FormatPNG, Width: 20, Height: 10, HasAlpha: true},
		},
		{
			name: "jpeg",
			data: encodeJPEG(t, opaque),
			want: entity.ImageMetadata{Format: entity.FormatJPEG, Width: 40, Height: 30},
		},
		{
			name: "gif",
			data: encodeGIF(t, opaque),
			want: entity.ImageMetadata{Format: entity.FormatGIF, Width: 40, Height: 30},
		},
		{
			name: "transparent gif",
			data: encodeGIF(t, cutout),
			want: entity.ImageMetadata{Format: entity.FormatGIF, Width: 64, Height: 64, HasAlpha: true},
		},
		{
			name: "paletted png with transparent entry",
			data: encodePNG(t, cutout),
			want: entity.ImageMetadata{Format: entity.FormatPNG, Width: 64, Height: 64, HasAlpha: true},
		},
		{
			name: "bmp",
			data: encodeBMP(t, opaque),
			want: entity.ImageMetadata{Format: entity.FormatBMP, Width: 40, Height: 30},
		},
		{
			name: "tiff with alpha",
			data: encodeTIFF(t, transparent),
			want: entity.ImageMetadata{Format: entity.FormatTIFF, Width: 20, Height: 10, HasAlpha: true},
		},
		{
			name: "svg",
			data: []byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 120 80" width="120" height="80"><rect x="10" y="10" width="50" height="50" fill="#ff0000"/></svg>`),
			want: entity.ImageMetadata{Format: entity.FormatSVG, Width: 120, Height: 80, HasAlpha: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := p.Probe(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, meta)
		})
	}
}

func TestProbeRejectsNonImages(t *testing.T) {
	p := NewImageProcessor(Options{})

	for name, data := range map[string][]byte{
		"empty":     nil,
		"text":      []byte("hello, this is not an image"),
		"truncated": encodePNG(t, image.NewRGBA(image.Rect(0, 0, 4, 4)))[:12],
	} {
		t.Run(name, func(t *testing.T) {
			_, err := p.Probe(data)
			assert.ErrorIs(t, err, entity.ErrUnsupportedType)
		})
	}
}

func TestProbePixelLimit(t *testing.T) {
	p := NewImageProcessor(Options{MaxPixels: 100})
	_, err := p.Probe(encodePNG(t, image.NewRGBA(image.Rect(0, 0, 20, 20))))
	assert.ErrorIs(t, err, entity.ErrTooLarge)
}

// TestResize checks that the planner's target size is applied exactly
func TestResize(t *testing.T) {
	tests := []struct {
		name           string
		originalWidth  int
		originalHeight int
		bounds         *entity.ResizeBounds
		wantWidth      int
		wantHeight     int
	}{
		{
			name:           "downscale landscape",
			originalWidth:  800,
			originalHeight: 600,
			bounds:         &entity.ResizeBounds{MaxWidth: 400, MaxHeight: 400, Width: 400, Height: 300},
			wantWidth:      400,
			wantHeight:     300,
		},
		{
			name:           "no bounds keeps size",
			originalWidth:  200,
			originalHeight: 150,
			bounds:         nil,
			wantWidth:      200,
			wantHeight:     150,
		},
		{
			name:           "larger target never upscales",
			originalWidth:  200,
			originalHeight: 150,
			bounds:         &entity.ResizeBounds{MaxWidth: 800, MaxHeight: 800, Width: 800, Height: 600},
			wantWidth:      200,
			wantHeight:     150,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := image.NewRGBA(image.Rect(0, 0, tt.originalWidth, tt.originalHeight))
			fillImageWithColor(original, color.RGBA{R: 100, G: 150, B: 200, A: 255})

			resized := Resize(original, tt.bounds)

			require.NotNil(t, resized)
			assert.Equal(t, tt.wantWidth, resized.Bounds().Dx())
			assert.Equal(t, tt.wantHeight, resized.Bounds().Dy())
		})
	}
}

// TestFlatten checks that transparency is replaced by the background colour
func TestFlatten(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	img.SetNRGBA(5, 5, color.NRGBA{R: 255, A: 255})

	flat := Flatten(img, entity.White)
	require.NotNil(t, flat)

	r, g, b, a := flat.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0xffff), g)
	assert.Equal(t, uint32(0xffff), b)
	assert.Equal(t, uint32(0xffff), a)

	r, g, b, _ = flat.At(5, 5).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0), g)
	assert.Equal(t, uint32(0), b)
}

func TestEncodePNGPalette(t *testing.T) {
	img := gradient(64, 64, 255)

	tests := []struct {
		name   string
		params entity.PNGParams
	}{
		{name: "palette dithered", params: entity.PNGParams{CompressionLevel: 9, Palette: true, Colors: 16, Dithering: 1}},
		{name: "palette flat", params: entity.PNGParams{CompressionLevel: 9, Palette: true, Colors: 32}},
		{name: "truecolor", params: entity.PNGParams{CompressionLevel: 9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodePNG(img, tt.params)
			require.NoError(t, err)

			decoded, err := png.Decode(bytes.NewReader(data))
			require.NoError(t, err)
			assert.Equal(t, 64, decoded.Bounds().Dx())

			if tt.params.Palette {
				paletted, ok := decoded.(*image.Paletted)
				require.True(t, ok, "expected paletted output, got %T", decoded)
				assert.LessOrEqual(t, len(paletted.Palette), tt.params.Colors+1)
			}
		})
	}
}

func TestEncodePNGPaletteKeepsTransparency(t *testing.T) {
	img := gradient(32, 32, 0)
	img.SetNRGBA(0, 0, color.NRGBA{R: 200, G: 10, B: 10, A: 255})

	data, err := EncodePNG(img, entity.PNGParams{CompressionLevel: 9, Palette: true, Colors: 16})
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	_, _, _, a := decoded.At(16, 16).RGBA()
	assert.Less(t, a, uint32(0xffff))
}

func TestEncodeJPEGQuality(t *testing.T) {
	img := noise(128, 128)

	low, err := EncodeJPEG(img, entity.JPEGParams{Quality: 10})
	require.NoError(t, err)
	high, err := EncodeJPEG(img, entity.JPEGParams{Quality: 95})
	require.NoError(t, err)

	assert.Less(t, len(low), len(high))
	_, err = jpeg.Decode(bytes.NewReader(low))
	assert.NoError(t, err)
}

func TestEncodeStep(t *testing.T) {
	p := NewImageProcessor(Options{})
	img := noise(300, 200)

	step := &entity.EncodingPlan{
		TargetFormat: entity.FormatJPEG,
		Resize:       &entity.ResizeBounds{MaxWidth: 150, MaxHeight: 150, Width: 150, Height: 100},
		Params:       entity.EncoderParams{JPEG: &entity.JPEGParams{Quality: 70}},
		Flatten:      &entity.White,
	}

	data, err := p.Encode(context.Background(), img, step)
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 150, cfg.Width)
	assert.Equal(t, 100, cfg.Height)
}

func TestEncodeStepErrors(t *testing.T) {
	p := NewImageProcessor(Options{CwebpPath: "/nonexistent/cwebp"})
	img := noise(8, 8)

	tests := []struct {
		name string
		step *entity.EncodingPlan
	}{
		{name: "missing jpeg params", step: &entity.EncodingPlan{TargetFormat: entity.FormatJPEG}},
		{name: "missing png params", step: &entity.EncodingPlan{TargetFormat: entity.FormatPNG}},
		{name: "gif is not encodable", step: &entity.EncodingPlan{TargetFormat: entity.FormatGIF}},
		{name: "webp without cwebp", step: &entity.EncodingPlan{
			TargetFormat: entity.FormatWebP,
			Params:       entity.EncoderParams{WebP: &entity.WebPParams{Quality: 80}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Encode(context.Background(), img, tt.step)
			assert.ErrorIs(t, err, entity.ErrEncode)
		})
	}
}

func TestDecodeSVG(t *testing.T) {
	p := NewImageProcessor(Options{})
	data := []byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 64 64"><rect x="0" y="0" width="32" height="64" fill="#0000ff"/></svg>`)

	meta, err := p.Probe(data)
	require.NoError(t, err)

	img, err := p.Decode(data, meta)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())

	_, _, _, a := img.At(60, 10).RGBA()
	assert.Equal(t, uint32(0), a, "unpainted area stays transparent")
	_, _, b, _ := img.At(10, 10).RGBA()
	assert.Greater(t, b, uint32(0))
}

func TestWebPArgs(t *testing.T) {
	args := webpArgs(entity.WebPParams{Quality: 120, AlphaQuality: 90, Effort: 6}, "in.png", "out.webp")
	assert.Equal(t, []string{
		"-q", "100", "-m", "6", "-alpha_q", "90",
		"-mt", "-quiet", "-metadata", "none", "in.png", "-o", "out.webp",
	}, args)

	args = webpArgs(entity.WebPParams{Quality: 50, Effort: 4}, "a", "b")
	assert.NotContains(t, args, "-alpha_q")
}

func TestCjpegArgs(t *testing.T) {
	tests := []struct {
		name   string
		params entity.JPEGParams
		want   []string
	}{
		{
			name:   "progressive 444",
			params: entity.JPEGParams{Quality: 95, Subsampling: entity.Chroma444, Progressive: true},
			want:   []string{"-quality", "95", "-sample", "1x1", "-optimize", "-progressive", "-outfile", "out.jpg", "in.bmp"},
		},
		{
			name:   "baseline 420 clamps quality",
			params: entity.JPEGParams{Quality: 0, Subsampling: entity.Chroma420},
			want:   []string{"-quality", "1", "-sample", "2x2", "-optimize", "-outfile", "out.jpg", "in.bmp"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cjpegArgs(tt.params, "in.bmp", "out.jpg"))
		})
	}
}

// sofMarker reports which start-of-frame marker the stream uses.
func sofMarker(data []byte) byte {
	switch {
	case bytes.Contains(data, []byte{0xff, 0xc2}):
		return 0xc2
	case bytes.Contains(data, []byte{0xff, 0xc0}):
		return 0xc0
	}
	return 0
}

func TestEncodeJPEGHighFidelity(t *testing.T) {
	img := noise(96, 64)
	params := &entity.JPEGParams{Quality: 95, Subsampling: entity.Chroma444, Progressive: true}
	step := &entity.EncodingPlan{TargetFormat: entity.FormatJPEG, Params: entity.EncoderParams{JPEG: params}}

	t.Run("without cjpeg", func(t *testing.T) {
		p := NewImageProcessor(Options{CjpegPath: "/nonexistent/cjpeg"})
		data, err := p.Encode(context.Background(), img, step)
		require.NoError(t, err)

		cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, 96, cfg.Width)
		assert.Equal(t, byte(0xc0), sofMarker(data))
	})

	t.Run("with cjpeg", func(t *testing.T) {
		if _, err := exec.LookPath("cjpeg"); err != nil {
			t.Skip("cjpeg not installed")
		}
		p := NewImageProcessor(Options{})
		data, err := p.Encode(context.Background(), img, step)
		require.NoError(t, err)

		decoded, err := jpeg.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, 64, decoded.Bounds().Dy())
		assert.Equal(t, byte(0xc2), sofMarker(data))
		if ycc, ok := decoded.(*image.YCbCr); ok {
			assert.Equal(t, image.YCbCrSubsampleRatio444, ycc.SubsampleRatio)
		}
	})
}

func TestPNGLevel(t *testing.T) {
	assert.Equal(t, png.NoCompression, pngLevel(0))
	assert.Equal(t, png.BestSpeed, pngLevel(1))
	assert.Equal(t, png.DefaultCompression, pngLevel(6))
	assert.Equal(t, png.BestCompression, pngLevel(9))
}

// fillImageWithColor заполняет изображение одним цветом
func fillImageWithColor(img *image.RGBA, color color.RGBA) {
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			img.Set(x, y, color)
		}
	}
}

func gradient(w, h int, alpha uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: alpha})
		}
	}
	return img
}

func noise(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	seed := uint32(2463534242)
	for i := range img.Pix {
		seed ^= seed << 13
		seed ^= seed >> 17
		seed ^= seed << 5
		img.Pix[i] = uint8(seed)
		if i%4 == 3 {
			img.Pix[i] = 255
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func encodeBMP(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, img))
	return buf.Bytes()
}

func encodeTIFF(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, tiff.Encode(&buf, img, nil))
	return buf.Bytes()
}

func encodeGIF(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, img, nil))
	return buf.Bytes()
}
