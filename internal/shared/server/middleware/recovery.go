package middleware

import (
	"io"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"pca-viewer/internal/shared/server/respond"
	"pca-viewer/internal/shared/telemetry"
)

// Recovery turns a handler panic into a logged 500 envelope. Gin's own
// recovery output is discarded in favour of the structured panic line.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, rec any) {
		telemetry.Error("panic", map[string]any{
			"error":      rec,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"request_id": RequestIDFromContext(c),
			"session_id": SessionIDFromContext(c),
			"stack":      string(debug.Stack()),
		})
		respond.Error(c, http.StatusInternalServerError, "internal", "Unexpected server error", nil)
	})
}
