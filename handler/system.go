package handler

import (
	"net/http"

	"github.com/chaos-io/rembg/model"
	"github.com/chaos-io/rembg/segment"
	"github.com/gin-gonic/gin"
)

type SystemHandler struct {
	info      model.BuildInfo
	segmenter segment.Segmenter
}

func NewSystemHandler(info model.BuildInfo, seg segment.Segmenter) *SystemHandler {
	return &SystemHandler{info: info, segmenter: seg}
}

func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, model.HealthResponse{
		Status:  "ok",
		Version: h.info.Version,
	})
}

func (h *SystemHandler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, h.info)
}

// Metrics 返回模型后端与 session 池状态
func (h *SystemHandler) Metrics(c *gin.Context) {
	inspector, ok := h.segmenter.(segment.Inspector)
	if !ok {
		c.JSON(http.StatusOK, segment.Stats{Backend: "unknown"})
		return
	}
	c.JSON(http.StatusOK, inspector.Stats())
}
