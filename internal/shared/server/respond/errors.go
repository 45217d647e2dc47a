package respond

import (
	"github.com/gin-gonic/gin"

	"pca-viewer/internal/shared/telemetry"
)

// ErrorBody is the payload every failed request answers with.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Context values copied into error logs when set, keyed by log field.
var contextFields = [...]struct{ ctxKey, field string }{
	{"sessionId", "session_id"},
	{"runId", "run_id"},
	{"fileCount", "file_count"},
}

// Error writes the envelope and aborts the chain. 5xx answers log at error
// level, everything else at warn.
func Error(c *gin.Context, status int, code, message string, details any) {
	log := telemetry.Warn
	if status >= 500 {
		log = telemetry.Error
	}
	log("http.error", errorFields(c, status, code, message))

	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

func errorFields(c *gin.Context, status int, code, message string) map[string]any {
	fields := map[string]any{
		"status":     status,
		"code":       code,
		"message":    message,
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"request_id": c.GetString("requestId"),
	}
	for _, f := range contextFields {
		if v, ok := c.Get(f.ctxKey); ok && v != "" {
			fields[f.field] = v
		}
	}
	return fields
}
