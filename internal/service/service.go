package service

import (
	"context"
	"runtime"
	"time"

	"github.com/ds124wfegd/imgsqueeze/internal/entity"
	"github.com/ds124wfegd/imgsqueeze/internal/pkg/archive"
	"github.com/ds124wfegd/imgsqueeze/internal/pkg/kafka"
	"github.com/ds124wfegd/imgsqueeze/internal/pkg/planner"
	"github.com/ds124wfegd/imgsqueeze/internal/pkg/processor"
)

type CompressService interface {
	// Process runs the batch pipeline. With a non-nil sink every success is
	// written to it in input order and its bytes are released afterwards.
	Process(ctx context.Context, files []entity.UploadedFile, req entity.CompressionRequest, sink archive.Sink) (*entity.BatchResult, error)
	// Plan probes one upload and returns the plan without encoding.
	Plan(data []byte, req entity.CompressionRequest) (*PlanResult, error)
	Formats() FormatsInfo
}

type PlanResult struct {
	Metadata entity.ImageMetadata `json:"metadata"`
	Plan     *entity.EncodingPlan `json:"plan"`
}

type FormatsInfo struct {
	Inputs  []string        `json:"inputs"`
	Outputs map[string]bool `json:"outputs"`
	Modes   []entity.Mode   `json:"modes"`
}

type Options struct {
	Workers      int
	BatchTimeout time.Duration
	// KeepOriginalIfLarger returns the upload unchanged when re-encoding to
	// the same format does not make it smaller.
	KeepOriginalIfLarger bool
}

type compressService struct {
	planner   *planner.Planner
	processor processor.ImageProcessor
	producer  kafka.Producer
	opts      Options
}

func NewCompressService(planner *planner.Planner, processor processor.ImageProcessor, producer kafka.Producer, opts Options) CompressService {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if producer == nil {
		producer = kafka.NewMockProducer()
	}
	return &compressService{
		planner:   planner,
		processor: processor,
		producer:  producer,
		opts:      opts,
	}
}
