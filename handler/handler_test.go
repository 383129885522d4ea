package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/chaos-io/rembg/config"
	"github.com/chaos-io/rembg/model"
	"github.com/chaos-io/rembg/segment"
	"github.com/chaos-io/rembg/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubSegmenter 返回全前景 mask
type stubSegmenter struct {
	err error
}

func (s *stubSegmenter) Segment(_ context.Context, _ image.Image) (*image.Gray, error) {
	if s.err != nil {
		return nil, s.err
	}
	mask := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range mask.Pix {
		mask.Pix[i] = 255
	}
	return mask, nil
}

func (s *stubSegmenter) Close() error { return nil }

func (s *stubSegmenter) Stats() segment.Stats {
	return segment.Stats{Backend: "stub", Device: "cpu", Pool: &segment.Metrics{Size: 2, Available: 2}}
}

func newTestRouter(t *testing.T, seg segment.Segmenter, upload *config.UploadConfig) *gin.Engine {
	t.Helper()
	cfg := config.Default()
	if upload != nil {
		cfg.Upload = *upload
	}
	remover := service.NewRemover(seg, nil, cfg.Upload)
	return NewRouter(cfg, remover, seg, model.BuildInfo{Version: "v1.2.3", GitCommit: "abc"})
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, path string, file []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if file != nil {
		part, err := w.CreateFormFile("file", "photo.png")
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var resp model.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestRemoveBackground_Transparent(t *testing.T) {
	r := newTestRouter(t, &stubSegmenter{}, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, multipartRequest(t, "/remove-bg", pngBytes(t, 20, 10), map[string]string{"color": "transparent"}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "20", rec.Header().Get("X-Image-Width"))
	assert.Equal(t, "10", rec.Header().Get("X-Image-Height"))
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 10), img.Bounds())
	_, ok := img.(*image.NRGBA)
	assert.True(t, ok, "full matte must still be written with alpha, got %T", img)
	_, _, _, a := img.At(5, 5).RGBA()
	assert.Equal(t, uint32(0xffff), a)
}

func TestRemoveBackground_SolidColorAPIv1(t *testing.T) {
	r := newTestRouter(t, &stubSegmenter{}, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, multipartRequest(t, "/api/v1/remove-bg", pngBytes(t, 12, 12), map[string]string{"color": "#00ff00"}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, color.RGBAModel.Convert(color.RGBA{R: 200, G: 200, B: 200, A: 255}), color.RGBAModel.Convert(img.At(3, 3)))
}

func TestRemoveBackground_WebP(t *testing.T) {
	r := newTestRouter(t, &stubSegmenter{}, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, multipartRequest(t, "/remove-bg", pngBytes(t, 8, 8), map[string]string{
		"color":  "transparent",
		"format": "webp",
		"crop":   "true",
	}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/webp", rec.Header().Get("Content-Type"))
}

func TestRemoveBackground_ReusesRequestID(t *testing.T) {
	r := newTestRouter(t, &stubSegmenter{}, nil)

	req := multipartRequest(t, "/remove-bg", pngBytes(t, 4, 4), map[string]string{"color": "ffffff"})
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestRemoveBackground_Errors(t *testing.T) {
	tests := []struct {
		name     string
		seg      segment.Segmenter
		upload   *config.UploadConfig
		file     []byte
		fields   map[string]string
		wantCode int
		wantErr  string
		wantMsg  string
	}{
		{
			name:     "missing file",
			fields:   map[string]string{"color": "transparent"},
			wantCode: http.StatusBadRequest,
			wantErr:  model.CodeMissingFile,
		},
		{
			name:     "missing color",
			file:     []byte("x"),
			wantCode: http.StatusBadRequest,
			wantErr:  model.CodeMissingColor,
		},
		{
			name:     "invalid color",
			file:     []byte("x"),
			fields:   map[string]string{"color": "#12345"},
			wantCode: http.StatusBadRequest,
			wantErr:  model.CodeInvalidColor,
		},
		{
			name:     "invalid format",
			file:     []byte("x"),
			fields:   map[string]string{"color": "transparent", "format": "gif"},
			wantCode: http.StatusBadRequest,
			wantErr:  model.CodeInvalidFormat,
		},
		{
			name:     "invalid crop",
			file:     []byte("x"),
			fields:   map[string]string{"color": "transparent", "crop": "maybe"},
			wantCode: http.StatusBadRequest,
			wantErr:  model.CodeInvalidParam,
		},
		{
			name:     "not an image",
			file:     []byte("hello, this is plain text"),
			fields:   map[string]string{"color": "transparent"},
			wantCode: http.StatusUnsupportedMediaType,
			wantErr:  model.CodeUnsupportedType,
		},
		{
			name:     "truncated png",
			file:     []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"),
			fields:   map[string]string{"color": "transparent"},
			wantCode: http.StatusBadRequest,
			wantErr:  model.CodeInvalidImage,
		},
		{
			name:     "empty file",
			file:     []byte{},
			fields:   map[string]string{"color": "transparent"},
			wantCode: http.StatusBadRequest,
			wantErr:  model.CodeInvalidImage,
		},
		{
			name:     "too large",
			upload:   &config.UploadConfig{MaxSize: 16},
			file:     bytes.Repeat([]byte{0xff}, 64),
			fields:   map[string]string{"color": "transparent"},
			wantCode: http.StatusRequestEntityTooLarge,
			wantErr:  model.CodeTooLarge,
			wantMsg:  "file exceeds the 16 byte limit",
		},
		{
			name:     "body over limit",
			upload:   &config.UploadConfig{MaxSize: 16},
			file:     bytes.Repeat([]byte{0xff}, multipartOverhead+1024),
			fields:   map[string]string{"color": "transparent"},
			wantCode: http.StatusRequestEntityTooLarge,
			wantErr:  model.CodeTooLarge,
			wantMsg:  "file exceeds the 16 byte limit",
		},
		{
			name:     "model busy",
			seg:      &stubSegmenter{err: segment.ErrAcquireTimeout},
			fields:   map[string]string{"color": "transparent"},
			wantCode: http.StatusServiceUnavailable,
			wantErr:  model.CodeBusy,
		},
		{
			name:     "model failure",
			seg:      &stubSegmenter{err: assert.AnError},
			fields:   map[string]string{"color": "transparent"},
			wantCode: http.StatusInternalServerError,
			wantErr:  model.CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seg := tt.seg
			if seg == nil {
				seg = &stubSegmenter{}
			}
			file := tt.file
			if file == nil && tt.seg != nil {
				file = pngBytes(t, 4, 4)
			}

			r := newTestRouter(t, seg, tt.upload)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, multipartRequest(t, "/remove-bg", file, tt.fields))

			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			resp := decodeError(t, rec)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantErr, resp.Code)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, resp.Message)
			}
		})
	}
}

func TestSystemEndpoints(t *testing.T) {
	r := newTestRouter(t, &stubSegmenter{}, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health model.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "v1.2.3", health.Version)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var info model.BuildInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "abc", info.GitCommit)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats segment.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, "stub", stats.Backend)
	require.NotNil(t, stats.Pool)
	assert.Equal(t, 2, stats.Pool.Size)
}

func TestCORS_Preflight(t *testing.T) {
	r := newTestRouter(t, &stubSegmenter{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/remove-bg", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrTooLarge, http.StatusRequestEntityTooLarge},
		{service.ErrUnsupportedType, http.StatusUnsupportedMediaType},
		{service.ErrInvalidImage, http.StatusBadRequest},
		{service.ErrEmptyFile, http.StatusBadRequest},
		{segment.ErrPoolClosed, http.StatusServiceUnavailable},
		{context.Canceled, http.StatusServiceUnavailable},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.want)+"/"+tt.err.Error(), func(t *testing.T) {
			status, _, _ := classify(tt.err)
			assert.Equal(t, tt.want, status)
		})
	}
}
