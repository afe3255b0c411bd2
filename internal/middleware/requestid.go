package middleware

import (
	"time"

	"github.com/GoDerive/derivegate/internal/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const ContextRequestIDKey = "request_id"

// RequestID tags every request with a uuid and logs a structured
// completion line. Request and response bodies are never logged: tool
// inputs can carry order details and the error middleware already
// reports failures.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := uuid.New().String()
		c.Set(ContextRequestIDKey, reqID)
		c.Header("X-Request-ID", reqID)

		c.Next()

		logger.Debug("request handled",
			"request_id", reqID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
		)
	}
}
