package handler

import (
	"github.com/chaos-io/rembg/config"
	"github.com/chaos-io/rembg/middleware"
	"github.com/chaos-io/rembg/model"
	"github.com/chaos-io/rembg/segment"
	"github.com/chaos-io/rembg/service"
	"github.com/gin-gonic/gin"
)

// NewRouter 创建路由
func NewRouter(cfg *config.Config, remover *service.Remover, seg segment.Segmenter, info model.BuildInfo) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cfg.CORS))

	system := NewSystemHandler(info, seg)
	r.GET("/health", system.Health)
	r.GET("/version", system.Version)
	r.GET("/metrics", system.Metrics)

	remove := NewRemoveHandler(remover)
	r.POST("/remove-bg", remove.RemoveBackground)

	api := r.Group("/api/v1")
	{
		api.POST("/remove-bg", remove.RemoveBackground)
	}

	return r
}
