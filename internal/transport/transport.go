package transport

import (
	"net/http"
	"time"

	"github.com/ds124wfegd/imgsqueeze/internal/transport/middleware"
	"github.com/gin-gonic/gin"
)

// InitRoutes wires the API. version is reported by /health.
func InitRoutes(h *CompressHandler, requestTimeout time.Duration, version string) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.Timeout(requestTimeout))

	// multipart parts above this spill to temp files
	router.MaxMultipartMemory = 32 << 20

	api := router.Group("/api")
	{
		api.POST("/compress", h.Compress)
		api.POST("/compress/batch", h.CompressBatch)
		api.POST("/plan", h.Plan)
		api.GET("/formats", h.Formats)
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "imgsqueeze",
			"version": version,
		})
	})
	return router
}
