package entity

import (
	"math"
	"time"
)

// UploadedFile is one multipart part (or local file) waiting to be processed.
// Open is called at most once, when the file's turn comes.
type UploadedFile struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() ([]byte, error)
}

type FileSuccess struct {
	CompressedSize int64  `json:"compressed_size"`
	OutputFormat   Format `json:"output_format"`
	OutputName     string `json:"output_name"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	// UsedFallback is true when the primary plan failed and its fallback won.
	UsedFallback bool `json:"used_fallback,omitempty"`
	// KeptOriginal is true when re-encoding did not shrink the file.
	KeptOriginal bool `json:"kept_original,omitempty"`
	// Data is nil once it has been handed to an archive sink.
	Data []byte `json:"-"`
}

type FileFailure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// FileOutcome has exactly one of Success or Failure set.
type FileOutcome struct {
	Index        int          `json:"index"`
	OriginalName string       `json:"original_name"`
	OriginalSize int64        `json:"original_size"`
	Success      *FileSuccess `json:"success,omitempty"`
	Failure      *FileFailure `json:"failure,omitempty"`
}

func (o *FileOutcome) Succeeded() bool { return o.Success != nil }

// Ratio is the percentage saved for a successful outcome.
func (o *FileOutcome) Ratio() float64 {
	if o.Success == nil {
		return 0
	}
	return CompressionRatio(o.OriginalSize, o.Success.CompressedSize)
}

type BatchResult struct {
	Outcomes             []*FileOutcome `json:"outcomes"`
	TotalOriginalBytes   int64          `json:"total_original_bytes"`
	TotalCompressedBytes int64          `json:"total_compressed_bytes"`
	SuccessCount         int            `json:"success_count"`
	FailureCount         int            `json:"failure_count"`
	Duration             time.Duration  `json:"duration"`
}

// Aggregate recomputes the totals. Only successes contribute bytes.
func (b *BatchResult) Aggregate() {
	b.TotalOriginalBytes, b.TotalCompressedBytes = 0, 0
	b.SuccessCount, b.FailureCount = 0, 0
	for _, o := range b.Outcomes {
		if o == nil {
			continue
		}
		if o.Succeeded() {
			b.SuccessCount++
			b.TotalOriginalBytes += o.OriginalSize
			b.TotalCompressedBytes += o.Success.CompressedSize
		} else {
			b.FailureCount++
		}
	}
}

func (b *BatchResult) Ratio() float64 {
	return CompressionRatio(b.TotalOriginalBytes, b.TotalCompressedBytes)
}

// CompressionRatio returns (original-compressed)/original*100, or 0 when the
// original is empty.
func CompressionRatio(original, compressed int64) float64 {
	if original <= 0 {
		return 0
	}
	r := float64(original-compressed) / float64(original) * 100
	return math.Round(r*10) / 10
}

// CompressionEvent is the statistics-only record published after a request.
type CompressionEvent struct {
	RequestID            string        `json:"request_id"`
	Mode                 Mode          `json:"mode"`
	Quality              int           `json:"quality"`
	Files                []EventFile   `json:"files"`
	SuccessCount         int           `json:"success_count"`
	FailureCount         int           `json:"failure_count"`
	TotalOriginalBytes   int64         `json:"total_original_bytes"`
	TotalCompressedBytes int64         `json:"total_compressed_bytes"`
	Ratio                float64       `json:"compression_ratio"`
	Duration             time.Duration `json:"duration"`
	Time                 time.Time     `json:"time"`
}

type EventFile struct {
	Name           string      `json:"name"`
	OriginalSize   int64       `json:"original_size"`
	CompressedSize int64       `json:"compressed_size,omitempty"`
	OutputFormat   Format      `json:"output_format,omitempty"`
	Failure        FailureKind `json:"failure,omitempty"`
}

func NewCompressionEvent(requestID string, req CompressionRequest, res *BatchResult) CompressionEvent {
	ev := CompressionEvent{
		RequestID:            requestID,
		Mode:                 req.Mode,
		Quality:              req.Quality,
		SuccessCount:         res.SuccessCount,
		FailureCount:         res.FailureCount,
		TotalOriginalBytes:   res.TotalOriginalBytes,
		TotalCompressedBytes: res.TotalCompressedBytes,
		Ratio:                res.Ratio(),
		Duration:             res.Duration,
		Time:                 time.Now().UTC(),
	}
	for _, o := range res.Outcomes {
		f := EventFile{Name: o.OriginalName, OriginalSize: o.OriginalSize}
		if o.Success != nil {
			f.CompressedSize = o.Success.CompressedSize
			f.OutputFormat = o.Success.OutputFormat
		} else if o.Failure != nil {
			f.Failure = o.Failure.Kind
		}
		ev.Files = append(ev.Files, f)
	}
	return ev
}
