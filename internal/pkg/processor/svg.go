package processor

import (
	"bytes"
	"fmt"
	"image"
	"math"

	"github.com/ds124wfegd/imgsqueeze/internal/entity"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// svgMaxSide caps the raster size of vector input, which has no pixel size
// of its own.
const svgMaxSide = 4096

func probeSVG(data []byte) (entity.ImageMetadata, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return entity.ImageMetadata{}, fmt.Errorf("%w: svg: %v", entity.ErrUnsupportedType, err)
	}
	w := int(math.Ceil(icon.ViewBox.W))
	h := int(math.Ceil(icon.ViewBox.H))
	if w <= 0 || h <= 0 {
		return entity.ImageMetadata{}, fmt.Errorf("%w: svg without a usable viewBox", entity.ErrUnsupportedType)
	}
	if w > svgMaxSide || h > svgMaxSide {
		scale := math.Min(float64(svgMaxSide)/float64(w), float64(svgMaxSide)/float64(h))
		w = max(1, int(float64(w)*scale))
		h = max(1, int(float64(h)*scale))
	}
	return entity.ImageMetadata{Format: entity.FormatSVG, Width: w, Height: h, HasAlpha: true}, nil
}

func rasterizeSVG(data []byte, w, h int) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: svg: %v", entity.ErrEncode, err)
	}
	icon.SetTarget(0, 0, float64(w), float64(h))

	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, rgba, rgba.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1)
	return rgba, nil
}
