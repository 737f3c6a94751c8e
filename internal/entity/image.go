package entity

import "strings"

type Format string

const (
	FormatAuto  Format = ""
	FormatPNG   Format = "png"
	FormatJPEG  Format = "jpeg"
	FormatWebP  Format = "webp"
	FormatGIF   Format = "gif"
	FormatSVG   Format = "svg"
	FormatBMP   Format = "bmp"
	FormatTIFF  Format = "tiff"
	FormatOther Format = "other"
)

// ParseFormat maps user and codec spellings onto the closed format set.
// Anything unrecognised becomes FormatOther.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatAuto
	case "png":
		return FormatPNG
	case "jpg", "jpeg":
		return FormatJPEG
	case "webp":
		return FormatWebP
	case "gif":
		return FormatGIF
	case "svg", "svg+xml":
		return FormatSVG
	case "bmp":
		return FormatBMP
	case "tif", "tiff":
		return FormatTIFF
	default:
		return FormatOther
	}
}

// Encodable reports whether the format can be produced by the encoders.
func (f Format) Encodable() bool {
	return f == FormatPNG || f == FormatJPEG || f == FormatWebP
}

func (f Format) SupportsAlpha() bool {
	return f == FormatPNG || f == FormatWebP
}

func (f Format) Extension() string {
	switch f {
	case FormatJPEG:
		return "jpg"
	case FormatAuto:
		return "bin"
	default:
		return string(f)
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatJPEG:
		return "image/jpeg"
	case FormatWebP:
		return "image/webp"
	case FormatGIF:
		return "image/gif"
	case FormatSVG:
		return "image/svg+xml"
	case FormatBMP:
		return "image/bmp"
	case FormatTIFF:
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}

// ImageMetadata is what the codec probe reports about an upload.
type ImageMetadata struct {
	Format   Format `json:"format"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	HasAlpha bool   `json:"has_alpha"`
}
