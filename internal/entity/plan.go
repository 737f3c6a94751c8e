package entity

type ChromaSubsampling string

const (
	Chroma420 ChromaSubsampling = "4:2:0"
	Chroma444 ChromaSubsampling = "4:4:4"
)

// ResizeBounds is a fit-inside box together with the concrete target size it
// yields for the probed source.
type ResizeBounds struct {
	MaxWidth  int `json:"max_width"`
	MaxHeight int `json:"max_height"`
	Width     int `json:"width"`
	Height    int `json:"height"`
}

type JPEGParams struct {
	Quality     int               `json:"quality"`
	Subsampling ChromaSubsampling `json:"chroma_subsampling"`
	Progressive bool              `json:"progressive"`
}

type PNGParams struct {
	CompressionLevel int     `json:"compression_level"`
	Palette          bool    `json:"palette"`
	Colors           int     `json:"colors,omitempty"`
	Dithering        float64 `json:"dithering,omitempty"`
}

type WebPParams struct {
	Quality      int `json:"quality"`
	AlphaQuality int `json:"alpha_quality,omitempty"`
	Effort       int `json:"effort"`
}

// EncoderParams holds exactly one non-nil member matching the target format.
type EncoderParams struct {
	JPEG *JPEGParams `json:"jpeg,omitempty"`
	PNG  *PNGParams  `json:"png,omitempty"`
	WebP *WebPParams `json:"webp,omitempty"`
}

// Quality returns the 1..100 quality carried by the params, or 0 for PNG.
func (p EncoderParams) Quality() int {
	switch {
	case p.JPEG != nil:
		return p.JPEG.Quality
	case p.WebP != nil:
		return p.WebP.Quality
	default:
		return 0
	}
}

type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

var White = RGB{R: 0xff, G: 0xff, B: 0xff}

// EncodingPlan is one encoding attempt plus an optional declared fallback the
// pipeline tries when the primary attempt fails.
type EncodingPlan struct {
	TargetFormat Format        `json:"target_format"`
	Resize       *ResizeBounds `json:"resize,omitempty"`
	Params       EncoderParams `json:"params"`
	// Flatten is set when transparency is dropped onto a solid background.
	Flatten  *RGB          `json:"flatten,omitempty"`
	Fallback *EncodingPlan `json:"fallback,omitempty"`
}

// Steps returns the primary plan followed by every declared fallback.
func (p *EncodingPlan) Steps() []*EncodingPlan {
	var steps []*EncodingPlan
	for s := p; s != nil; s = s.Fallback {
		steps = append(steps, s)
	}
	return steps
}
