package telemetry

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPLogger logs one line per request with method, path, status and latency.
func HTTPLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		lvl := slog.LevelInfo
		if c.Writer.Status() >= 500 {
			lvl = slog.LevelError
		}

		slog.Log(c.Request.Context(), lvl, "http: request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
