// Package planner maps probed image metadata and a compression request to a
// concrete encoding plan. Plan is pure: the same inputs and tunables always
// produce the same plan.
package planner

import (
	"math"

	"github.com/ds124wfegd/imgsqueeze/internal/entity"
)

// Tunables are the numeric knobs of the decision rules.
type Tunables struct {
	MaxDimension            int
	LossyQualityOffset      int
	QualityFloor            int
	LosslessJPEGQuality     int
	LosslessPNGLevel        int
	LossyPNGLevel           int
	WebPEffort              int
	WebPAlphaQuality        int
	PaletteMinColors        int
	PaletteMaxColors        int
	Dithering               float64
	ProgressiveMinDimension int
	HighFidelityQuality     int
	FlattenBackground       entity.RGB
}

func DefaultTunables() Tunables {
	return Tunables{
		MaxDimension:            1920,
		LossyQualityOffset:      15,
		QualityFloor:            10,
		LosslessJPEGQuality:     95,
		LosslessPNGLevel:        9,
		LossyPNGLevel:           9,
		WebPEffort:              6,
		WebPAlphaQuality:        90,
		PaletteMinColors:        16,
		PaletteMaxColors:        256,
		Dithering:               1.0,
		ProgressiveMinDimension: 512,
		HighFidelityQuality:     90,
		FlattenBackground:       entity.White,
	}
}

type Planner struct {
	t Tunables
}

func New(t Tunables) *Planner {
	return &Planner{t: t}
}

// Plan never fails. Formats outside the recognised set get the safe default,
// JPEG at the requested quality with no resize, unless the request is
// lossless or the source carries alpha. Those still go through the mode rules
// so a decodable source is never degraded or flattened.
//
// Order of precedence:
//  1. explicit target format
//  2. opaque unrecognised source outside lossless mode
//  3. lossless, custom, lossy
func (p *Planner) Plan(meta entity.ImageMetadata, req entity.CompressionRequest) *entity.EncodingPlan {
	req = req.Normalize()

	if req.ExplicitFormat.Encodable() {
		return p.explicit(meta, req)
	}
	if p.unrecognised(meta) && req.Mode != entity.ModeLossless && !meta.HasAlpha {
		return p.safeDefault(meta, req)
	}

	switch req.Mode {
	case entity.ModeLossless:
		return p.lossless(meta)
	case entity.ModeCustom:
		return p.reduce(meta, req.Quality, entity.ModeCustom)
	default:
		return p.reduce(meta, p.lossyQuality(req.Quality), entity.ModeLossy)
	}
}

func (p *Planner) unrecognised(meta entity.ImageMetadata) bool {
	return meta.Format == entity.FormatOther || meta.Format == entity.FormatAuto
}

func (p *Planner) safeDefault(meta entity.ImageMetadata, req entity.CompressionRequest) *entity.EncodingPlan {
	plan := &entity.EncodingPlan{
		TargetFormat: entity.FormatJPEG,
		Params:       entity.EncoderParams{JPEG: p.jpegParams(req.Quality, meta.Width, meta.Height)},
	}
	if meta.HasAlpha {
		plan.Flatten = p.background()
	}
	return plan
}

// lossless keeps dimensions and uses fixed high-fidelity settings.
func (p *Planner) lossless(meta entity.ImageMetadata) *entity.EncodingPlan {
	if meta.Format == entity.FormatJPEG {
		return &entity.EncodingPlan{
			TargetFormat: entity.FormatJPEG,
			Params: entity.EncoderParams{JPEG: &entity.JPEGParams{
				Quality:     entity.ClampQuality(p.t.LosslessJPEGQuality),
				Subsampling: entity.Chroma444,
				Progressive: true,
			}},
		}
	}
	return &entity.EncodingPlan{
		TargetFormat: entity.FormatPNG,
		Params:       entity.EncoderParams{PNG: &entity.PNGParams{CompressionLevel: p.t.LosslessPNGLevel}},
	}
}

// reduce covers lossy and custom: alpha sources go to WebP with a PNG palette
// fallback, everything else to JPEG. Both are bounded by MaxDimension.
func (p *Planner) reduce(meta entity.ImageMetadata, quality int, mode entity.Mode) *entity.EncodingPlan {
	resize := p.fit(meta.Width, meta.Height)
	w, h := targetSize(meta, resize)

	if meta.HasAlpha {
		fallback := &entity.EncodingPlan{
			TargetFormat: entity.FormatPNG,
			Resize:       resize,
			Params:       entity.EncoderParams{PNG: p.paletteParams(quality)},
		}
		return &entity.EncodingPlan{
			TargetFormat: entity.FormatWebP,
			Resize:       resize,
			Params:       entity.EncoderParams{WebP: p.webpParams(quality, true)},
			Fallback:     fallback,
		}
	}

	jpeg := p.jpegParams(quality, w, h)
	if mode == entity.ModeCustom && quality >= p.t.HighFidelityQuality {
		jpeg.Subsampling = entity.Chroma444
	}
	return &entity.EncodingPlan{
		TargetFormat: entity.FormatJPEG,
		Resize:       resize,
		Params:       entity.EncoderParams{JPEG: jpeg},
	}
}

// explicit honours the requested format. Lossless requests are not resized.
func (p *Planner) explicit(meta entity.ImageMetadata, req entity.CompressionRequest) *entity.EncodingPlan {
	var resize *entity.ResizeBounds
	if req.Mode != entity.ModeLossless {
		resize = p.fit(meta.Width, meta.Height)
	}
	w, h := targetSize(meta, resize)

	plan := &entity.EncodingPlan{TargetFormat: req.ExplicitFormat, Resize: resize}
	switch req.ExplicitFormat {
	case entity.FormatJPEG:
		plan.Params.JPEG = p.jpegParams(req.Quality, w, h)
		if meta.HasAlpha {
			plan.Flatten = p.background()
		}
	case entity.FormatPNG:
		if req.Mode == entity.ModeLossless {
			plan.Params.PNG = &entity.PNGParams{CompressionLevel: p.t.LosslessPNGLevel}
		} else {
			plan.Params.PNG = p.paletteParams(req.Quality)
		}
	case entity.FormatWebP:
		plan.Params.WebP = p.webpParams(req.Quality, meta.HasAlpha)
		fallback := &entity.EncodingPlan{TargetFormat: entity.FormatPNG, Resize: resize}
		if req.Mode == entity.ModeLossless {
			fallback.Params.PNG = &entity.PNGParams{CompressionLevel: p.t.LosslessPNGLevel}
		} else {
			fallback.Params.PNG = p.paletteParams(req.Quality)
		}
		plan.Fallback = fallback
	}
	return plan
}

func (p *Planner) lossyQuality(q int) int {
	q -= p.t.LossyQualityOffset
	if q < p.t.QualityFloor {
		q = p.t.QualityFloor
	}
	return entity.ClampQuality(q)
}

func (p *Planner) jpegParams(quality, w, h int) *entity.JPEGParams {
	return &entity.JPEGParams{
		Quality:     entity.ClampQuality(quality),
		Subsampling: entity.Chroma420,
		Progressive: max(w, h) >= p.t.ProgressiveMinDimension,
	}
}

func (p *Planner) webpParams(quality int, alpha bool) *entity.WebPParams {
	params := &entity.WebPParams{
		Quality: entity.ClampQuality(quality),
		Effort:  clampInt(p.t.WebPEffort, 0, 6),
	}
	if alpha {
		// alpha edges show banding long before colour does
		params.AlphaQuality = entity.ClampQuality(max(quality, p.t.WebPAlphaQuality))
	}
	return params
}

// paletteParams scales the colour count linearly with quality.
func (p *Planner) paletteParams(quality int) *entity.PNGParams {
	lo, hi := p.t.PaletteMinColors, p.t.PaletteMaxColors
	if lo < 2 {
		lo = 2
	}
	if hi > 256 {
		hi = 256
	}
	if hi < lo {
		hi = lo
	}
	colors := lo + (hi-lo)*entity.ClampQuality(quality)/entity.MaxQuality
	return &entity.PNGParams{
		CompressionLevel: p.t.LossyPNGLevel,
		Palette:          true,
		Colors:           colors,
		Dithering:        math.Max(0, math.Min(1, p.t.Dithering)),
	}
}

func (p *Planner) background() *entity.RGB {
	bg := p.t.FlattenBackground
	return &bg
}

// fit returns nil when the source already fits inside MaxDimension.
func (p *Planner) fit(w, h int) *entity.ResizeBounds {
	return FitInside(w, h, p.t.MaxDimension, p.t.MaxDimension)
}

// FitInside scales w×h by a single factor so both sides fit within
// maxW×maxH. It never enlarges and returns nil when no resize is needed.
func FitInside(w, h, maxW, maxH int) *entity.ResizeBounds {
	if w <= 0 || h <= 0 || maxW <= 0 || maxH <= 0 {
		return nil
	}
	if w <= maxW && h <= maxH {
		return nil
	}
	// integer arithmetic keeps the floor exact
	var tw, th int
	if int64(w)*int64(maxH) >= int64(h)*int64(maxW) {
		tw = maxW
		th = int(int64(h) * int64(maxW) / int64(w))
	} else {
		th = maxH
		tw = int(int64(w) * int64(maxH) / int64(h))
	}
	return &entity.ResizeBounds{
		MaxWidth:  maxW,
		MaxHeight: maxH,
		Width:     clampInt(tw, 1, w),
		Height:    clampInt(th, 1, h),
	}
}

func targetSize(meta entity.ImageMetadata, r *entity.ResizeBounds) (int, int) {
	if r == nil {
		return meta.Width, meta.Height
	}
	return r.Width, r.Height
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
