package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pca-viewer/internal/services/health"
	"pca-viewer/internal/shared/server/respond"
)

// registerHealthRoutes attaches the /health endpoint.
func registerHealthRoutes(rg *gin.RouterGroup, svc *health.Service) {
	rg.GET("/health", func(c *gin.Context) {
		if svc == nil {
			respond.OK(c, gin.H{"ok": true})
			return
		}
		status := svc.Status(c.Request.Context())
		if !status.OK {
			respond.JSON(c, http.StatusServiceUnavailable, status)
			return
		}
		respond.OK(c, status)
	})
}
