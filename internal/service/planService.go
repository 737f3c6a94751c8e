package service

import (
	"fmt"

	"github.com/ds124wfegd/imgsqueeze/internal/entity"
)

func (s *compressService) Plan(data []byte, req entity.CompressionRequest) (*PlanResult, error) {
	if len(data) == 0 {
		return nil, entity.ErrNoInput
	}
	req = req.Normalize()
	if int64(len(data)) > req.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes, limit is %d", entity.ErrTooLarge, len(data), req.MaxFileSize)
	}
	if detected := sniff(data); detected != "" {
		return nil, fmt.Errorf("%w: content is %s", entity.ErrUnsupportedType, detected)
	}

	meta, err := s.processor.Probe(data)
	if err != nil {
		return nil, err
	}
	return &PlanResult{Metadata: meta, Plan: s.planner.Plan(meta, req)}, nil
}

func (s *compressService) Formats() FormatsInfo {
	return FormatsInfo{
		Inputs: []string{"png", "jpeg", "webp", "gif", "svg", "bmp", "tiff"},
		Outputs: map[string]bool{
			string(entity.FormatJPEG): s.processor.Supports(entity.FormatJPEG),
			string(entity.FormatPNG):  s.processor.Supports(entity.FormatPNG),
			string(entity.FormatWebP): s.processor.Supports(entity.FormatWebP),
		},
		Modes: []entity.Mode{entity.ModeLossy, entity.ModeLossless, entity.ModeCustom},
	}
}
