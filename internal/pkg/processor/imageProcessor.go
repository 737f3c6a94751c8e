package processor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/ds124wfegd/imgsqueeze/internal/entity"
	"github.com/gabriel-vasile/mimetype"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageProcessor is the codec behind the pipeline: it probes, decodes,
// resizes and encodes, and knows nothing about batches or requests.
type ImageProcessor interface {
	Probe(data []byte) (entity.ImageMetadata, error)
	Decode(data []byte, meta entity.ImageMetadata) (image.Image, error)
	Encode(ctx context.Context, img image.Image, step *entity.EncodingPlan) ([]byte, error)
	Supports(format entity.Format) bool
}

type Options struct {
	CwebpPath string
	CjpegPath string
	// MaxPixels bounds width*height of anything we agree to decode.
	MaxPixels int
}

type imageProcessor struct {
	opts Options
	webp *webpEncoder
	jpeg *jpegEncoder
}

func NewImageProcessor(opts Options) ImageProcessor {
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = 100_000_000
	}
	return &imageProcessor{
		opts: opts,
		webp: newWebPEncoder(opts.CwebpPath),
		jpeg: newJPEGEncoder(opts.CjpegPath),
	}
}

func (p *imageProcessor) Probe(data []byte) (entity.ImageMetadata, error) {
	var meta entity.ImageMetadata
	if len(data) == 0 {
		return meta, fmt.Errorf("%w: empty file", entity.ErrUnsupportedType)
	}

	if mimetype.Detect(data).Is("image/svg+xml") {
		return probeSVG(data)
	}

	cfg, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return meta, fmt.Errorf("%w: %v", entity.ErrUnsupportedType, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return meta, fmt.Errorf("%w: invalid dimensions %dx%d", entity.ErrUnsupportedType, cfg.Width, cfg.Height)
	}
	if cfg.Width*cfg.Height > p.opts.MaxPixels {
		return meta, fmt.Errorf("%w: %dx%d exceeds %d pixels", entity.ErrTooLarge, cfg.Width, cfg.Height, p.opts.MaxPixels)
	}

	meta = entity.ImageMetadata{
		Format:   entity.ParseFormat(name),
		Width:    cfg.Width,
		Height:   cfg.Height,
		HasAlpha: hasAlphaModel(cfg.ColorModel),
	}
	if meta.Format == entity.FormatGIF && !meta.HasAlpha {
		meta.HasAlpha = gifHasAlpha(data)
	}
	return meta, nil
}

// gifHasAlpha looks at the first frame. The config only carries the global
// colour table, the transparent index lives in the frame's control block.
func gifHasAlpha(data []byte) bool {
	img, err := gif.Decode(bytes.NewReader(data))
	if err != nil {
		return false
	}
	if pm, ok := img.(*image.Paletted); ok {
		return hasAlphaModel(pm.Palette)
	}
	return !isOpaque(img)
}

func (p *imageProcessor) Decode(data []byte, meta entity.ImageMetadata) (image.Image, error) {
	if meta.Format == entity.FormatSVG {
		return rasterizeSVG(data, meta.Width, meta.Height)
	}

	// GIF yields its first frame here
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", entity.ErrEncode, err)
	}
	return img, nil
}

// Encode applies one plan step: resize, optional flatten, then the encoder
// for the target format. Fallbacks are the caller's business.
func (p *imageProcessor) Encode(ctx context.Context, img image.Image, step *entity.EncodingPlan) ([]byte, error) {
	if step.Resize != nil {
		img = Resize(img, step.Resize)
	}
	if step.Flatten != nil {
		img = Flatten(img, *step.Flatten)
	}

	var (
		out []byte
		err error
	)
	switch step.TargetFormat {
	case entity.FormatJPEG:
		if step.Params.JPEG == nil {
			return nil, fmt.Errorf("%w: missing jpeg params", entity.ErrEncode)
		}
		out, err = p.jpeg.Encode(ctx, img, *step.Params.JPEG)
	case entity.FormatPNG:
		if step.Params.PNG == nil {
			return nil, fmt.Errorf("%w: missing png params", entity.ErrEncode)
		}
		out, err = EncodePNG(img, *step.Params.PNG)
	case entity.FormatWebP:
		if step.Params.WebP == nil {
			return nil, fmt.Errorf("%w: missing webp params", entity.ErrEncode)
		}
		out, err = p.webp.Encode(ctx, img, *step.Params.WebP)
	default:
		return nil, fmt.Errorf("%w: cannot encode %q", entity.ErrEncode, step.TargetFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", entity.ErrEncode, step.TargetFormat, err)
	}
	return out, nil
}

func (p *imageProcessor) Supports(format entity.Format) bool {
	switch format {
	case entity.FormatJPEG, entity.FormatPNG:
		return true
	case entity.FormatWebP:
		return p.webp.Available()
	default:
		return false
	}
}

// Resize scales to the exact target size the planner computed.
func Resize(img image.Image, r *entity.ResizeBounds) image.Image {
	b := img.Bounds()
	if r == nil || r.Width <= 0 || r.Height <= 0 || (r.Width >= b.Dx() && r.Height >= b.Dy()) {
		return img
	}
	return imaging.Resize(img, r.Width, r.Height, imaging.Lanczos)
}

// Flatten composites img over an opaque background of the given colour.
func Flatten(img image.Image, bg entity.RGB) image.Image {
	b := img.Bounds()
	dst := imaging.New(b.Dx(), b.Dy(), color.NRGBA{R: bg.R, G: bg.G, B: bg.B, A: 0xff})
	return imaging.Overlay(dst, imaging.Clone(img), image.Pt(0, 0), 1.0)
}

// hasAlphaModel reports whether the decoder's colour model carries
// transparency. Opaque truecolor PNGs decode with RGBAModel, so that one
// does not count.
func hasAlphaModel(m color.Model) bool {
	switch m {
	case color.NRGBAModel, color.NRGBA64Model, color.AlphaModel, color.Alpha16Model, color.NYCbCrAModel:
		return true
	}
	if pal, ok := m.(color.Palette); ok {
		for _, c := range pal {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return true
			}
		}
	}
	return false
}
