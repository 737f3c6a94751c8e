package transport

import (
	"github.com/ds124wfegd/imgsqueeze/internal/entity"
	"github.com/ds124wfegd/imgsqueeze/internal/service"
)

// Limits are the request ceilings the handler enforces before any file is
// handed to the service.
type Limits struct {
	MaxFileSize     int64
	MaxFiles        int
	DefaultQuality  int
	MaxRequestBytes int64
}

func DefaultLimits() Limits {
	return Limits{
		MaxFileSize:     entity.DefaultMaxFileSize,
		MaxFiles:        entity.DefaultMaxFiles,
		DefaultQuality:  entity.DefaultQuality,
		MaxRequestBytes: entity.DefaultMaxFiles*entity.DefaultMaxFileSize + 1<<20,
	}
}

type CompressHandler struct {
	service service.CompressService
	limits  Limits
}

func NewCompressHandler(service service.CompressService, limits Limits) *CompressHandler {
	def := DefaultLimits()
	if limits.MaxFileSize <= 0 {
		limits.MaxFileSize = def.MaxFileSize
	}
	if limits.MaxFiles <= 0 {
		limits.MaxFiles = def.MaxFiles
	}
	if limits.DefaultQuality <= 0 {
		limits.DefaultQuality = def.DefaultQuality
	}
	if limits.MaxRequestBytes <= 0 {
		limits.MaxRequestBytes = int64(limits.MaxFiles)*limits.MaxFileSize + 1<<20
	}
	return &CompressHandler{service: service, limits: limits}
}
