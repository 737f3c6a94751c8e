package middleware

import (
	"github.com/ds124wfegd/imgsqueeze/internal/entity"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

// RequestID reuses a caller supplied id when it is a valid UUID and mints a
// new one otherwise. The id is echoed back and stored in the request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}

		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(entity.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}
