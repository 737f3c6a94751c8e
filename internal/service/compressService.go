package service

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"sync"
	"time"

	"github.com/ds124wfegd/imgsqueeze/internal/entity"
	"github.com/ds124wfegd/imgsqueeze/internal/pkg/archive"
	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func (s *compressService) Process(ctx context.Context, files []entity.UploadedFile, req entity.CompressionRequest, sink archive.Sink) (*entity.BatchResult, error) {
	start := time.Now()
	req = req.Normalize()

	if len(files) == 0 {
		return nil, entity.ErrNoInput
	}
	if len(files) > req.MaxFiles {
		return nil, fmt.Errorf("%w: %d files, limit is %d", entity.ErrCountExceeded, len(files), req.MaxFiles)
	}

	if s.opts.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.BatchTimeout)
		defer cancel()
	}

	result := &entity.BatchResult{Outcomes: make([]*entity.FileOutcome, len(files))}
	emit := newEmitter(result.Outcomes, sink)

	// a worker returns an error only for internal failures, which cancels
	// gctx and turns every file not yet started into an aborted outcome
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, f := range files {
		g.Go(func() error {
			outcome := s.processFile(gctx, i, f, req)
			if err := emit.put(i, outcome); err != nil {
				return err
			}
			if outcome.Failure != nil && outcome.Failure.Kind == entity.FailureInternal {
				return fmt.Errorf("%w: %s: %s", entity.ErrInternal, f.Name, outcome.Failure.Message)
			}
			return nil
		})
	}
	err := g.Wait()

	result.Aggregate()
	result.Duration = time.Since(start)

	logrus.WithFields(logrus.Fields{
		"request_id":       entity.RequestIDFrom(ctx),
		"files":            len(files),
		"succeeded":        result.SuccessCount,
		"failed":           result.FailureCount,
		"original_bytes":   result.TotalOriginalBytes,
		"compressed_bytes": result.TotalCompressedBytes,
		"ratio":            result.Ratio(),
		"duration":         result.Duration,
	}).Info("batch processed")

	s.publish(ctx, req, result)

	return result, err
}

func (s *compressService) publish(ctx context.Context, req entity.CompressionRequest, result *entity.BatchResult) {
	ev := entity.NewCompressionEvent(entity.RequestIDFrom(ctx), req, result)
	if err := s.producer.Publish(context.WithoutCancel(ctx), ev); err != nil {
		logrus.WithError(err).Warn("failed to publish compression event")
	}
}

// processFile never returns an error: every problem becomes the file's
// failure outcome.
func (s *compressService) processFile(ctx context.Context, idx int, f entity.UploadedFile, req entity.CompressionRequest) (out *entity.FileOutcome) {
	out = &entity.FileOutcome{Index: idx, OriginalName: f.Name, OriginalSize: f.Size}
	log := logrus.WithFields(logrus.Fields{"request_id": entity.RequestIDFrom(ctx), "file": f.Name, "index": idx})

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("codec crashed")
			out.Success = nil
			out.Failure = &entity.FileFailure{Kind: entity.FailureInternal, Message: fmt.Sprint(r)}
		}
		if out.Failure != nil {
			log.WithFields(logrus.Fields{"reason": out.Failure.Kind, "detail": out.Failure.Message}).Warn("file not compressed")
		}
	}()

	if ctx.Err() != nil {
		return fail(out, fmt.Errorf("%w: %v", entity.ErrAborted, context.Cause(ctx)))
	}
	if f.Size > req.MaxFileSize {
		return fail(out, fmt.Errorf("%w: %d bytes, limit is %d", entity.ErrTooLarge, f.Size, req.MaxFileSize))
	}
	if !isImageContentType(f.ContentType) {
		return fail(out, fmt.Errorf("%w: declared %s", entity.ErrUnsupportedType, f.ContentType))
	}

	data, err := f.Open()
	if err != nil {
		return fail(out, fmt.Errorf("read upload: %w", err))
	}
	out.OriginalSize = int64(len(data))
	if out.OriginalSize > req.MaxFileSize {
		return fail(out, fmt.Errorf("%w: %d bytes, limit is %d", entity.ErrTooLarge, out.OriginalSize, req.MaxFileSize))
	}
	if detected := sniff(data); detected != "" {
		return fail(out, fmt.Errorf("%w: content is %s", entity.ErrUnsupportedType, detected))
	}

	meta, err := s.processor.Probe(data)
	if err != nil {
		return fail(out, err)
	}
	plan := s.planner.Plan(meta, req)

	img, err := s.processor.Decode(data, meta)
	if err != nil {
		return fail(out, err)
	}

	var lastErr error
	for i, step := range plan.Steps() {
		encoded, err := s.processor.Encode(ctx, img, step)
		if err != nil {
			lastErr = err
			log.WithError(err).WithField("format", step.TargetFormat).Debug("encoding step failed")
			continue
		}

		w, h := meta.Width, meta.Height
		if step.Resize != nil {
			w, h = step.Resize.Width, step.Resize.Height
		}
		success := &entity.FileSuccess{
			OutputFormat: step.TargetFormat,
			Width:        w,
			Height:       h,
			UsedFallback: i > 0,
			Data:         encoded,
		}
		if s.opts.KeepOriginalIfLarger && step.TargetFormat == meta.Format && len(encoded) >= len(data) {
			success.Data = data
			success.Width, success.Height = meta.Width, meta.Height
			success.KeptOriginal = true
		}
		success.CompressedSize = int64(len(success.Data))
		out.Success = success
		return out
	}

	if ctx.Err() != nil {
		return fail(out, fmt.Errorf("%w: %v", entity.ErrAborted, context.Cause(ctx)))
	}
	if lastErr == nil || !errors.Is(lastErr, entity.ErrEncode) {
		lastErr = fmt.Errorf("%w: %v", entity.ErrEncode, lastErr)
	}
	return fail(out, lastErr)
}

func fail(out *entity.FileOutcome, err error) *entity.FileOutcome {
	out.Success = nil
	out.Failure = &entity.FileFailure{Kind: entity.FailureKindOf(err), Message: err.Error()}
	return out
}

// isImageContentType accepts image/* and the types browsers send when they
// do not know; the content sniffer decides those.
func isImageContentType(ct string) bool {
	if ct == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mt == "application/octet-stream" || strings.HasPrefix(mt, "image/")
}

// sniff returns the detected MIME type when the content is not an image,
// or "" when it is.
func sniff(data []byte) string {
	detected := mimetype.Detect(data)
	for m := detected; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "image/") {
			return ""
		}
	}
	return detected.String()
}

// emitter flushes outcomes in input order so archive entries and output
// names do not depend on which worker finished first.
type emitter struct {
	mu       sync.Mutex
	outcomes []*entity.FileOutcome
	sink     archive.Sink
	namer    *outputNamer
	next     int
	sinkErr  error
}

func newEmitter(outcomes []*entity.FileOutcome, sink archive.Sink) *emitter {
	return &emitter{outcomes: outcomes, sink: sink, namer: newOutputNamer()}
}

func (e *emitter) put(idx int, o *entity.FileOutcome) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.outcomes[idx] = o
	var err error
	for e.next < len(e.outcomes) && e.outcomes[e.next] != nil {
		cur := e.outcomes[e.next]
		e.next++
		if cur.Success == nil {
			continue
		}
		cur.Success.OutputName = e.namer.name(cur.Index, cur.OriginalName, cur.Success.OutputFormat)
		if e.sink == nil || e.sinkErr != nil {
			continue
		}
		if addErr := e.sink.Add(cur.Success.OutputName, cur.Success.Data); addErr != nil {
			e.sinkErr = addErr
			fail(cur, fmt.Errorf("archive: %w", addErr))
			err = fmt.Errorf("%w: archive: %v", entity.ErrInternal, addErr)
			continue
		}
		cur.Success.Data = nil
	}
	return err
}
