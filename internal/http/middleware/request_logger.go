package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/you/websession/internal/infrastructure/metrics"
)

// RequestLogger logs every request and records its duration
func RequestLogger(logger *slog.Logger, m *metrics.Metrics) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTPRequest(method, route, status, duration.Seconds())

		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		attrs := []any{
			"method", method,
			"path", path,
			"route", route,
			"status_code", status,
			"response_size", c.Writer.Size(),
			"duration", duration,
			"client_ip", c.ClientIP(),
		}
		if sid := SessionIDFrom(c); sid != "" {
			attrs = append(attrs, "browser_session", sid)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}
		logger.Log(c.Request.Context(), level, "HTTP request completed", attrs...)
	}
}
