package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// corsHeaders are sent to every allowed origin. The browser needs the
// exposed ids to link a submission to its run.
var corsHeaders = map[string]string{
	"Access-Control-Allow-Credentials": "true",
	"Access-Control-Allow-Methods":     "GET,POST,OPTIONS",
	"Access-Control-Allow-Headers":     "Content-Type, " + requestIDHeader,
	"Access-Control-Expose-Headers":    requestIDHeader + ", X-Run-Id",
	"Access-Control-Max-Age":           "600",
}

// CORS allows the listed origins and short-circuits preflight requests.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = true
		}
	}

	return func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); allowed[origin] {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			for k, v := range corsHeaders {
				h.Set(k, v)
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
