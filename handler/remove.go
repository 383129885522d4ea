package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/chaos-io/rembg/matte"
	"github.com/chaos-io/rembg/middleware"
	"github.com/chaos-io/rembg/model"
	"github.com/chaos-io/rembg/segment"
	"github.com/chaos-io/rembg/service"
	"github.com/chaos-io/rembg/util"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// multipartOverhead 留给表单其他字段和边界的空间
const multipartOverhead = 1 << 20

type RemoveHandler struct {
	remover *service.Remover
}

func NewRemoveHandler(remover *service.Remover) *RemoveHandler {
	return &RemoveHandler{remover: remover}
}

// RemoveBackground 处理 multipart 上传：file + color，返回抠图后的图片
func (h *RemoveHandler) RemoveBackground(c *gin.Context) {
	maxSize := h.remover.MaxSize()
	if maxSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize+multipartOverhead)
	}

	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abortWithError(c, http.StatusRequestEntityTooLarge, model.CodeTooLarge,
				sizeLimitMessage(maxSize), err)
			return
		}
		abortWithError(c, http.StatusBadRequest, model.CodeMissingFile, "please upload an image in the 'file' field", err)
		return
	}

	colorValue, ok := c.GetPostForm("color")
	if !ok {
		abortWithError(c, http.StatusBadRequest, model.CodeMissingColor, "the 'color' field is required", nil)
		return
	}

	opts, code, err := parseOptions(c, colorValue)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, code, err.Error(), err)
		return
	}

	if maxSize > 0 && file.Size > maxSize {
		abortWithError(c, http.StatusRequestEntityTooLarge, model.CodeTooLarge,
			sizeLimitMessage(maxSize), service.ErrTooLarge)
		return
	}

	f, err := file.Open()
	if err != nil {
		abortWithError(c, http.StatusBadRequest, model.CodeMissingFile, "failed to read the uploaded file", err)
		return
	}
	defer func() {
		_ = f.Close()
	}()

	data, err := io.ReadAll(f)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, model.CodeMissingFile, "failed to read the uploaded file", err)
		return
	}

	util.Logger.Debug("file uploaded",
		zap.String("request_id", c.GetString(middleware.RequestIDKey)),
		zap.String("filename", file.Filename),
		zap.Int64("size", file.Size),
		zap.String("background", opts.Background.String()),
		zap.String("format", string(opts.Format)),
		zap.Bool("crop", opts.Crop))

	res, err := h.remover.Remove(c.Request.Context(), data, opts)
	if err != nil {
		status, code, message := classify(err)
		abortWithError(c, status, code, message, err)
		return
	}

	c.Header("X-Image-Width", strconv.Itoa(res.Width))
	c.Header("X-Image-Height", strconv.Itoa(res.Height))
	if res.Cached {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}
	c.Data(http.StatusOK, res.ContentType, res.Data)
}

func sizeLimitMessage(limit int64) string {
	return fmt.Sprintf("file exceeds the %d byte limit", limit)
}

func parseOptions(c *gin.Context, colorValue string) (service.Options, string, error) {
	bg, err := matte.ParseBackground(colorValue)
	if err != nil {
		return service.Options{}, model.CodeInvalidColor, err
	}

	format, err := matte.ParseFormat(c.PostForm("format"))
	if err != nil {
		return service.Options{}, model.CodeInvalidFormat, err
	}

	crop := false
	if v := c.PostForm("crop"); v != "" {
		crop, err = strconv.ParseBool(v)
		if err != nil {
			return service.Options{}, model.CodeInvalidParam, fmt.Errorf("invalid crop value %q", v)
		}
	}

	return service.Options{Background: bg, Format: format, Crop: crop}, "", nil
}

// classify 把 pipeline 错误映射到 HTTP 状态码
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, service.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, model.CodeTooLarge, "file too large"
	case errors.Is(err, service.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType, model.CodeUnsupportedType, "unsupported file type"
	case errors.Is(err, service.ErrInvalidImage), errors.Is(err, service.ErrEmptyFile):
		return http.StatusBadRequest, model.CodeInvalidImage, "the uploaded file could not be decoded as an image"
	case errors.Is(err, segment.ErrAcquireTimeout), errors.Is(err, segment.ErrPoolClosed):
		return http.StatusServiceUnavailable, model.CodeBusy, "the model is busy, try again later"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, model.CodeBusy, "request canceled"
	default:
		return http.StatusInternalServerError, model.CodeInternal, "image processing failed"
	}
}

func abortWithError(c *gin.Context, status int, code, message string, err error) {
	resp := model.ErrorResponse{
		Success: false,
		Code:    code,
		Message: message,
	}
	if err != nil {
		_ = c.Error(err)
		resp.Error = err.Error()
		if status >= http.StatusInternalServerError {
			util.Logger.Error("failed to process image",
				zap.String("request_id", c.GetString(middleware.RequestIDKey)),
				zap.Error(err))
		}
	}
	c.AbortWithStatusJSON(status, resp)
}
