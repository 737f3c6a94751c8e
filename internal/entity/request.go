package entity

import (
	"fmt"
	"strings"
)

type Mode string

const (
	ModeLossy    Mode = "lossy"
	ModeLossless Mode = "lossless"
	ModeCustom   Mode = "custom"
)

const (
	DefaultQuality     = 80
	DefaultMaxFileSize = 10 << 20
	DefaultMaxFiles    = 50
	MinQuality         = 1
	MaxQuality         = 100
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return ModeLossy, nil
	case ModeLossy:
		return ModeLossy, nil
	case ModeLossless:
		return ModeLossless, nil
	case ModeCustom:
		return ModeCustom, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// CompressionRequest carries the caller's settings for a single upload or a
// whole batch. Limits travel with the request so the pipeline has no
// process-wide knobs.
type CompressionRequest struct {
	Quality        int    `json:"quality"`
	Mode           Mode   `json:"mode"`
	ExplicitFormat Format `json:"format,omitempty"`
	MaxFileSize    int64  `json:"max_file_size"`
	MaxFiles       int    `json:"max_files"`
}

func NewCompressionRequest() CompressionRequest {
	return CompressionRequest{
		Quality:     DefaultQuality,
		Mode:        ModeLossy,
		MaxFileSize: DefaultMaxFileSize,
		MaxFiles:    DefaultMaxFiles,
	}
}

// Normalize fills zero values with defaults and clamps quality.
func (r CompressionRequest) Normalize() CompressionRequest {
	if r.Quality == 0 {
		r.Quality = DefaultQuality
	}
	r.Quality = ClampQuality(r.Quality)
	if r.Mode == "" {
		r.Mode = ModeLossy
	}
	if r.MaxFileSize <= 0 {
		r.MaxFileSize = DefaultMaxFileSize
	}
	if r.MaxFiles <= 0 {
		r.MaxFiles = DefaultMaxFiles
	}
	return r
}

func ClampQuality(q int) int {
	if q < MinQuality {
		return MinQuality
	}
	if q > MaxQuality {
		return MaxQuality
	}
	return q
}
