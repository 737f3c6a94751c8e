package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/ds124wfegd/imgsqueeze/internal/entity"
	"github.com/ds124wfegd/imgsqueeze/internal/pkg/archive"
	"github.com/ds124wfegd/imgsqueeze/internal/pkg/hasher"
	"github.com/ds124wfegd/imgsqueeze/internal/pkg/planner"
	"github.com/ds124wfegd/imgsqueeze/internal/pkg/processor"
	"github.com/ds124wfegd/imgsqueeze/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type part struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

func newRouter(limits Limits) *gin.Engine {
	svc := service.NewCompressService(
		planner.New(planner.DefaultTunables()),
		processor.NewImageProcessor(processor.Options{}),
		nil,
		service.Options{Workers: 2},
	)
	return InitRoutes(NewCompressHandler(svc, limits), 30*time.Second, "test")
}

func multipartRequest(t *testing.T, path string, fields map[string]string, parts ...part) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.field, p.filename))
		ct := p.contentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func opaquePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 3), B: uint8(x ^ y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}

func TestCompressSingle(t *testing.T) {
	router := newRouter(DefaultLimits())
	data := opaquePNG(t, 300, 200)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, "/api/compress", map[string]string{"quality": "80"},
		part{field: "file", filename: "holiday.png", contentType: "image/png", data: data}))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, "jpeg", w.Header().Get("X-Output-Format"))
	assert.Equal(t, fmt.Sprint(len(data)), w.Header().Get("X-Original-Size"))
	assert.Equal(t, fmt.Sprint(w.Body.Len()), w.Header().Get("X-Compressed-Size"))
	assert.Regexp(t, `^-?\d+\.\d$`, w.Header().Get("X-Compression-Ratio"))
	assert.Equal(t, hasher.ETag(w.Body.Bytes()), w.Header().Get("ETag"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "compressed_holiday.jpg")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	_, format, err := image.DecodeConfig(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestCompressValidation(t *testing.T) {
	router := newRouter(DefaultLimits())
	img := part{field: "file", filename: "a.png", contentType: "image/png", data: opaquePNG(t, 8, 8)}

	tests := []struct {
		name    string
		fields  map[string]string
		parts   []part
		wantErr string
	}{
		{name: "no file", fields: map[string]string{"quality": "50"}, wantErr: "no file"},
		{name: "bad quality", fields: map[string]string{"quality": "high"}, parts: []part{img}, wantErr: "quality"},
		{name: "bad mode", fields: map[string]string{"compressionType": "extreme"}, parts: []part{img}, wantErr: "compression type"},
		{name: "bad format", fields: map[string]string{"format": "gif"}, parts: []part{img}, wantErr: "format"},
		{
			name:    "not an image",
			parts:   []part{{field: "file", filename: "notes.txt", contentType: "text/plain", data: []byte("hello")}},
			wantErr: "unsupported",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, multipartRequest(t, "/api/compress", tt.fields, tt.parts...))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, strings.ToLower(decodeError(t, w)), tt.wantErr)
		})
	}
}

func TestCompressTooLarge(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxFileSize = 1024
	router := newRouter(limits)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, "/api/compress", nil,
		part{field: "file", filename: "big.png", contentType: "image/png", data: opaquePNG(t, 200, 200)}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w), "size limit")
}

func TestCompressExplicitFormat(t *testing.T) {
	router := newRouter(DefaultLimits())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, "/api/compress", map[string]string{"format": "png", "quality": "60"},
		part{field: "file", filename: "shot.png", contentType: "image/png", data: opaquePNG(t, 64, 64)}))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "png", w.Header().Get("X-Output-Format"))
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
}

func TestCompressBatch(t *testing.T) {
	router := newRouter(DefaultLimits())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, "/api/compress/batch", map[string]string{"fileCount": "3"},
		part{field: "file_0", filename: "a.png", contentType: "image/png", data: opaquePNG(t, 40, 40)},
		part{field: "file_1", filename: "readme.txt", contentType: "text/plain", data: []byte("not an image")},
		part{field: "file_2", filename: "a.png", contentType: "image/png", data: opaquePNG(t, 50, 30)},
	))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Equal(t, "2", w.Header().Get("X-Files-Processed"))
	assert.Equal(t, "1", w.Header().Get("X-Files-Failed"))
	assert.NotEmpty(t, w.Header().Get("X-Total-Original-Size"))

	statuses := w.Header().Values("X-File-Status")
	require.Len(t, statuses, 3)
	assert.Equal(t, "0;a.png;ok;compressed_a.jpg", statuses[0])
	assert.True(t, strings.HasPrefix(statuses[1], "1;readme.txt;unsupported_type;"))
	assert.Equal(t, "2;a.png;ok;03_compressed_a.jpg", statuses[2])

	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.Equal(t, "compressed_a.jpg", zr.File[0].Name)
	assert.Equal(t, "03_compressed_a.jpg", zr.File[1].Name)
}

func TestCompressBatchCountsFields(t *testing.T) {
	router := newRouter(DefaultLimits())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, "/api/compress/batch", nil,
		part{field: "file_0", filename: "x.png", contentType: "image/png", data: opaquePNG(t, 20, 20)},
		part{field: "file_1", filename: "y.png", contentType: "image/png", data: opaquePNG(t, 20, 20)},
		// not consecutive, ignored
		part{field: "file_3", filename: "z.png", contentType: "image/png", data: opaquePNG(t, 20, 20)},
	))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "2", w.Header().Get("X-Files-Processed"))
	assert.Len(t, w.Header().Values("X-File-Status"), 2)
}

func TestCompressBatchSingleFileReturnsImage(t *testing.T) {
	router := newRouter(DefaultLimits())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, "/api/compress/batch", map[string]string{"fileCount": "1"},
		part{field: "file_0", filename: "one.png", contentType: "image/png", data: opaquePNG(t, 20, 20)}))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "compressed_one.jpg")
}

func TestCompressBatchRejections(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxFiles = 2
	router := newRouter(limits)
	img := opaquePNG(t, 10, 10)

	t.Run("count exceeded", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, multipartRequest(t, "/api/compress/batch", map[string]string{"fileCount": "3"},
			part{field: "file_0", filename: "a.png", data: img},
			part{field: "file_1", filename: "b.png", data: img},
			part{field: "file_2", filename: "c.png", data: img},
		))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeError(t, w), "too many")
	})

	t.Run("counted fields exceed limit", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, multipartRequest(t, "/api/compress/batch", nil,
			part{field: "file_0", filename: "a.png", data: img},
			part{field: "file_1", filename: "b.png", data: img},
			part{field: "file_2", filename: "c.png", data: img},
		))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing declared file", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, multipartRequest(t, "/api/compress/batch", map[string]string{"fileCount": "2"},
			part{field: "file_0", filename: "a.png", data: img},
		))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeError(t, w), "file_1")
	})

	t.Run("empty", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, multipartRequest(t, "/api/compress/batch", map[string]string{"fileCount": "0"}))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("not multipart", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/compress/batch", strings.NewReader(`{"files":[]}`))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

// stubService returns a canned batch result.
type stubService struct {
	res *entity.BatchResult
	err error
}

func (s stubService) Process(context.Context, []entity.UploadedFile, entity.CompressionRequest, archive.Sink) (*entity.BatchResult, error) {
	return s.res, s.err
}

func (s stubService) Plan([]byte, entity.CompressionRequest) (*service.PlanResult, error) {
	return nil, s.err
}

func (s stubService) Formats() service.FormatsInfo { return service.FormatsInfo{} }

func TestCompressBatchFailureKeepsOutcomes(t *testing.T) {
	res := &entity.BatchResult{Outcomes: []*entity.FileOutcome{
		{Index: 0, OriginalName: "big.png", OriginalSize: 5000, Failure: &entity.FileFailure{Kind: entity.FailureTooLarge, Message: "5000 bytes"}},
		{Index: 1, OriginalName: "b.png", OriginalSize: 10, Failure: &entity.FileFailure{Kind: entity.FailureInternal, Message: "panic: boom"}},
	}}
	res.Aggregate()

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "internal", err: fmt.Errorf("%w: panic: boom", entity.ErrInternal), status: http.StatusInternalServerError},
		{name: "validation", err: fmt.Errorf("%w: 5000 bytes", entity.ErrTooLarge), status: http.StatusBadRequest},
	}

	img := opaquePNG(t, 4, 4)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := InitRoutes(NewCompressHandler(stubService{res: res, err: tt.err}, DefaultLimits()), 30*time.Second, "test")

			w := httptest.NewRecorder()
			router.ServeHTTP(w, multipartRequest(t, "/api/compress/batch", nil,
				part{field: "file_0", filename: "big.png", data: img},
				part{field: "file_1", filename: "b.png", data: img},
			))
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "0", w.Header().Get("X-Files-Processed"))
			assert.Equal(t, "2", w.Header().Get("X-Files-Failed"))
			assert.Equal(t, []string{"0;big.png;too_large;5000 bytes", "1;b.png;internal_error;panic: boom"}, w.Header().Values("X-File-Status"))

			var body struct {
				Error    string                `json:"error"`
				Outcomes []*entity.FileOutcome `json:"outcomes"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
			require.Len(t, body.Outcomes, 2)
			assert.Equal(t, entity.FailureTooLarge, body.Outcomes[0].Failure.Kind)
			assert.Equal(t, entity.FailureInternal, body.Outcomes[1].Failure.Kind)
		})
	}
}

func TestPlanEndpoint(t *testing.T) {
	router := newRouter(DefaultLimits())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, "/api/plan", map[string]string{"compressionType": "lossless"},
		part{field: "file", filename: "diagram.png", contentType: "image/png", data: opaquePNG(t, 2500, 10)}))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res service.PlanResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 2500, res.Metadata.Width)
	require.NotNil(t, res.Plan)
	assert.EqualValues(t, "png", res.Plan.TargetFormat)
	assert.Nil(t, res.Plan.Resize)
	require.NotNil(t, res.Plan.Params.PNG)
	assert.False(t, res.Plan.Params.PNG.Palette)
}

func TestFormatsAndHealth(t *testing.T) {
	router := newRouter(DefaultLimits())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/formats", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var info service.FormatsInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.True(t, info.Outputs["jpeg"])
	assert.True(t, info.Outputs["png"])
	assert.Contains(t, info.Inputs, "svg")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)
	assert.Contains(t, w.Body.String(), `"version":"test"`)
}
