package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// exposed lists the response headers browsers may read from a cross-origin
// fetch; the stats headers are useless to the upload page otherwise.
var exposed = []string{
	"Content-Disposition",
	"ETag",
	RequestIDHeader,
	"X-Original-Size",
	"X-Compressed-Size",
	"X-Compression-Ratio",
	"X-Output-Format",
	"X-Total-Original-Size",
	"X-Total-Compressed-Size",
	"X-Files-Processed",
	"X-Files-Failed",
	"X-File-Status",
}

func CORS() gin.HandlerFunc {
	expose := strings.Join(exposed, ", ")
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, "+RequestIDHeader)
		c.Header("Access-Control-Expose-Headers", expose)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
