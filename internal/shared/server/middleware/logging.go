package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pca-viewer/internal/shared/telemetry"
)

// Context keys handlers set so the request log can name what happened.
const (
	RunIDKey     = "runId"
	FileCountKey = "fileCount"
)

// Logging writes one request.complete line per request once the handler
// chain has finished. Preflights are not logged.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := map[string]any{
			"request_id":  RequestIDFromContext(c),
			"session_id":  SessionIDFromContext(c),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"route":       c.FullPath(),
			"status":      status,
			"bytes_out":   c.Writer.Size(),
			"duration_ms": float64(time.Since(start).Microseconds()) / 1000,
			"client_ip":   c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		}
		if runID := c.GetString(RunIDKey); runID != "" {
			fields["run_id"] = runID
		}
		if n, ok := c.Get(FileCountKey); ok {
			fields["files"] = n
		}
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			fields["errors"] = errs.String()
		}
		levelFor(status)("request.complete", fields)
	}
}

func levelFor(status int) func(string, map[string]any) {
	switch {
	case status >= http.StatusInternalServerError:
		return telemetry.Error
	case status >= http.StatusBadRequest:
		return telemetry.Warn
	default:
		return telemetry.Info
	}
}
