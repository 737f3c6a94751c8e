package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/ds124wfegd/imgsqueeze/internal/entity"
	"github.com/ds124wfegd/imgsqueeze/internal/pkg/archive"
	"github.com/ds124wfegd/imgsqueeze/internal/pkg/hasher"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Compress handles a single upload in the "file" field.
func (h *CompressHandler) Compress(c *gin.Context) {
	form, ok := h.multipartForm(c)
	if !ok {
		return
	}
	req, err := h.parseRequest(form)
	if err != nil {
		respondError(c, err)
		return
	}

	fh := firstFile(form, "file")
	if fh == nil {
		respondError(c, fmt.Errorf("%w: no file provided", entity.ErrNoInput))
		return
	}

	h.process(c, []*multipart.FileHeader{fh}, req)
}

// CompressBatch handles file_0..file_{N-1}. With fileCount absent the
// consecutive file_N fields are counted.
func (h *CompressHandler) CompressBatch(c *gin.Context) {
	form, ok := h.multipartForm(c)
	if !ok {
		return
	}
	req, err := h.parseRequest(form)
	if err != nil {
		respondError(c, err)
		return
	}

	files, err := h.batchFiles(form)
	if err != nil {
		respondError(c, err)
		return
	}

	h.process(c, files, req)
}

// Plan returns the encoding plan for the "file" upload without encoding it.
func (h *CompressHandler) Plan(c *gin.Context) {
	form, ok := h.multipartForm(c)
	if !ok {
		return
	}
	req, err := h.parseRequest(form)
	if err != nil {
		respondError(c, err)
		return
	}

	fh := firstFile(form, "file")
	if fh == nil {
		respondError(c, fmt.Errorf("%w: no file provided", entity.ErrNoInput))
		return
	}
	if fh.Size > req.MaxFileSize {
		respondError(c, fmt.Errorf("%w: %d bytes, limit is %d", entity.ErrTooLarge, fh.Size, req.MaxFileSize))
		return
	}

	data, err := h.upload(fh).Open()
	if err != nil {
		respondError(c, err)
		return
	}

	res, err := h.service.Plan(data, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *CompressHandler) Formats(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Formats())
}

func (h *CompressHandler) process(c *gin.Context, headers []*multipart.FileHeader, req entity.CompressionRequest) {
	if len(headers) > req.MaxFiles {
		respondError(c, fmt.Errorf("%w: %d files, limit is %d", entity.ErrCountExceeded, len(headers), req.MaxFiles))
		return
	}

	files := make([]entity.UploadedFile, len(headers))
	for i, fh := range headers {
		files[i] = h.upload(fh)
	}

	if len(files) == 1 {
		h.single(c, files, req)
		return
	}
	h.batch(c, files, req)
}

func (h *CompressHandler) single(c *gin.Context, files []entity.UploadedFile, req entity.CompressionRequest) {
	res, err := h.service.Process(c.Request.Context(), files, req, nil)
	if err != nil && (res == nil || entity.IsValidation(err)) {
		respondError(c, err)
		return
	}

	out := res.Outcomes[0]
	if !out.Succeeded() {
		respondError(c, fmt.Errorf("%w: %s", out.Failure.Kind.Err(), out.Failure.Message))
		return
	}

	s := out.Success
	c.Header("X-Original-Size", strconv.FormatInt(out.OriginalSize, 10))
	c.Header("X-Compressed-Size", strconv.FormatInt(s.CompressedSize, 10))
	c.Header("X-Compression-Ratio", formatRatio(out.Ratio()))
	c.Header("X-Output-Format", string(s.OutputFormat))
	c.Header("ETag", hasher.ETag(s.Data))
	c.Header("Content-Disposition", attachment(s.OutputName))
	c.Data(http.StatusOK, s.OutputFormat.ContentType(), s.Data)
}

func (h *CompressHandler) batch(c *gin.Context, files []entity.UploadedFile, req entity.CompressionRequest) {
	var buf bytes.Buffer
	sink := archive.NewZipSink(&buf)

	res, err := h.service.Process(c.Request.Context(), files, req, sink)
	if err != nil && res == nil {
		respondError(c, err)
		return
	}
	if err != nil && (entity.IsValidation(err) || res.SuccessCount == 0) {
		respondBatchError(c, err, res)
		return
	}
	if err != nil {
		logrus.WithError(err).WithField("request_id", entity.RequestIDFrom(c.Request.Context())).
			Warn("batch finished with an internal failure, returning partial archive")
	}
	if cerr := sink.Close(); cerr != nil {
		respondError(c, fmt.Errorf("%w: archive: %v", entity.ErrInternal, cerr))
		return
	}

	c.Header("X-Total-Original-Size", strconv.FormatInt(res.TotalOriginalBytes, 10))
	c.Header("X-Total-Compressed-Size", strconv.FormatInt(res.TotalCompressedBytes, 10))
	c.Header("X-Compression-Ratio", formatRatio(res.Ratio()))
	setFileStatus(c, res)
	c.Header("Content-Disposition", attachment("compressed_images.zip"))
	c.Data(http.StatusOK, "application/zip", buf.Bytes())
}

func (h *CompressHandler) multipartForm(c *gin.Context) (*multipart.Form, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.limits.MaxRequestBytes)
	form, err := c.MultipartForm()
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respondError(c, fmt.Errorf("%w: request body exceeds %d bytes", entity.ErrTooLarge, tooBig.Limit))
			return nil, false
		}
		respondError(c, fmt.Errorf("%w: multipart form required: %v", entity.ErrNoInput, err))
		return nil, false
	}
	return form, true
}

func (h *CompressHandler) parseRequest(form *multipart.Form) (entity.CompressionRequest, error) {
	req := entity.CompressionRequest{
		Quality:     h.limits.DefaultQuality,
		MaxFileSize: h.limits.MaxFileSize,
		MaxFiles:    h.limits.MaxFiles,
	}

	if q := formValue(form, "quality"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			return req, fmt.Errorf("%w: %q", entity.ErrInvalidQuality, q)
		}
		req.Quality = entity.ClampQuality(n)
	}

	mode, err := entity.ParseMode(formValue(form, "compressionType"))
	if err != nil {
		return req, err
	}
	req.Mode = mode

	if f := formValue(form, "format"); f != "" {
		format := entity.ParseFormat(f)
		if format != entity.FormatAuto && !format.Encodable() {
			return req, fmt.Errorf("%w: %q", entity.ErrInvalidFormat, f)
		}
		req.ExplicitFormat = format
	}

	return req.Normalize(), nil
}

func (h *CompressHandler) batchFiles(form *multipart.Form) ([]*multipart.FileHeader, error) {
	var files []*multipart.FileHeader

	if raw := formValue(form, "fileCount"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: invalid fileCount %q", entity.ErrNoInput, raw)
		}
		if n > h.limits.MaxFiles {
			return nil, fmt.Errorf("%w: %d files, limit is %d", entity.ErrCountExceeded, n, h.limits.MaxFiles)
		}
		for i := 0; i < n; i++ {
			fh := firstFile(form, fieldName(i))
			if fh == nil {
				return nil, fmt.Errorf("%w: missing %s", entity.ErrNoInput, fieldName(i))
			}
			files = append(files, fh)
		}
	} else {
		for i := 0; ; i++ {
			fh := firstFile(form, fieldName(i))
			if fh == nil {
				break
			}
			files = append(files, fh)
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files provided", entity.ErrNoInput)
	}
	return files, nil
}

// upload defers reading the part until the pipeline needs it, and never reads
// more than one byte past the size ceiling.
func (h *CompressHandler) upload(fh *multipart.FileHeader) entity.UploadedFile {
	limit := h.limits.MaxFileSize + 1
	return entity.UploadedFile{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open: func() ([]byte, error) {
			f, err := fh.Open()
			if err != nil {
				return nil, err
			}
			defer f.Close()
			return io.ReadAll(io.LimitReader(f, limit))
		},
	}
}

func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if entity.IsValidation(err) {
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		logrus.WithError(err).WithField("request_id", entity.RequestIDFrom(c.Request.Context())).Error("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// respondBatchError keeps the per-file outcomes of a batch that produced no
// archive, in the body and in X-File-Status.
func respondBatchError(c *gin.Context, err error, res *entity.BatchResult) {
	status := http.StatusInternalServerError
	if entity.IsValidation(err) {
		status = http.StatusBadRequest
	} else {
		logrus.WithError(err).WithField("request_id", entity.RequestIDFrom(c.Request.Context())).Error("batch failed")
	}
	setFileStatus(c, res)
	c.JSON(status, gin.H{"error": err.Error(), "outcomes": res.Outcomes})
}

func setFileStatus(c *gin.Context, res *entity.BatchResult) {
	c.Header("X-Files-Processed", strconv.Itoa(res.SuccessCount))
	c.Header("X-Files-Failed", strconv.Itoa(res.FailureCount))
	for _, o := range res.Outcomes {
		if o != nil {
			c.Writer.Header().Add("X-File-Status", fileStatus(o))
		}
	}
}

func fieldName(i int) string {
	return "file_" + strconv.Itoa(i)
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

func firstFile(form *multipart.Form, key string) *multipart.FileHeader {
	if fhs := form.File[key]; len(fhs) > 0 {
		return fhs[0]
	}
	return nil
}

func formatRatio(r float64) string {
	return strconv.FormatFloat(r, 'f', 1, 64)
}

func attachment(name string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": name})
}

// fileStatus renders index;name;status;detail. Separators and control
// characters inside names and messages are replaced so the header stays
// parseable.
func fileStatus(o *entity.FileOutcome) string {
	status, detail := "ok", ""
	if o.Succeeded() {
		detail = o.Success.OutputName
	} else if o.Failure != nil {
		status, detail = string(o.Failure.Kind), o.Failure.Message
	}
	return fmt.Sprintf("%d;%s;%s;%s", o.Index, headerSafe(o.OriginalName), status, headerSafe(detail))
}

func headerSafe(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ';' || r < 0x20 || r == 0x7f || r > 0x7e {
			return '_'
		}
		return r
	}, s)
}
