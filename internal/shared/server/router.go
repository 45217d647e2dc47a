package server

import (
	"github.com/gin-gonic/gin"

	"pca-viewer/internal/runs"
	"pca-viewer/internal/services/health"
	"pca-viewer/internal/session"
	"pca-viewer/internal/shared/config"
	"pca-viewer/internal/shared/metrics"
	"pca-viewer/internal/shared/server/middleware"
	"pca-viewer/internal/web"
)

// RouterDeps holds the handlers the router mounts.
type RouterDeps struct {
	Config      config.Config
	PageHandler *web.Handler
	RunsHandler *runs.Handler
	Health      *health.Service
	SubmitGuard *middleware.SubmitGuard
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.SetHTMLTemplate(web.Templates())

	r.Use(
		middleware.RequestID(),
		middleware.SessionCookie(session.CookieName, deps.Config.Env == "production"),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	var submit []gin.HandlerFunc
	if deps.SubmitGuard != nil {
		submit = append(submit, deps.SubmitGuard.Handler())
	}

	r.GET("/metrics", metrics.Handler())
	if deps.PageHandler != nil {
		deps.PageHandler.RegisterRoutes(&r.RouterGroup, submit...)
	}

	api := r.Group("/api/v1")
	registerHealthRoutes(api, deps.Health)
	if deps.RunsHandler != nil {
		deps.RunsHandler.RegisterRoutes(api, submit...)
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
