// Package web serves the viewer page: the drop zone, the pending notification
// and the results dashboard of the caller's session.
package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pca-viewer/internal/analyzer"
	"pca-viewer/internal/collector"
	"pca-viewer/internal/dashboard"
	"pca-viewer/internal/runs"
	"pca-viewer/internal/session"
	"pca-viewer/internal/shared/metrics"
	"pca-viewer/internal/shared/server/middleware"
	"pca-viewer/internal/shared/server/respond"
	"pca-viewer/internal/shared/telemetry"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const (
	pageTemplate     = "index.tmpl"
	sessionExportURL = "/session/export.xlsx"
)

// Templates parses the page templates for gin's HTML renderer.
func Templates() *template.Template {
	return template.Must(template.New("").Funcs(template.FuncMap{
		"join": strings.Join,
	}).ParseFS(templateFS, "templates/*.tmpl"))
}

// Handler wires the page routes to viewer sessions.
type Handler struct {
	Sessions       *session.Registry
	Runs           *runs.Service
	MaxUploadBytes int64
	Configured     bool
}

// NewHandler constructs a Handler. configured reports whether the analysis
// endpoint is usable, so the page can say so up front.
func NewHandler(sessions *session.Registry, runSvc *runs.Service, maxUploadBytes int64, configured bool) *Handler {
	return &Handler{Sessions: sessions, Runs: runSvc, MaxUploadBytes: maxUploadBytes, Configured: configured}
}

// RegisterRoutes attaches page routes. submit runs in front of the analyze
// route only.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, submit ...gin.HandlerFunc) {
	rg.GET("/", h.index)
	rg.POST("/select", h.selectFiles)
	rg.POST("/analyze", append(submit, h.analyze)...)
	rg.POST("/dismiss", h.dismiss)
	rg.GET("/session/charts/:file", h.chart)
	rg.GET(sessionExportURL, h.export)
}

type chartLink struct {
	Title    string
	URL      string
	Hotspots []dashboard.Hotspot
}

type pageData struct {
	session.View
	Configured  bool
	Charts      []chartLink
	ExportURL   string
	ChartWidth  int
	ChartHeight int
}

func (h *Handler) index(c *gin.Context) {
	h.render(c, http.StatusOK, h.controller(c))
}

func (h *Handler) selectFiles(c *gin.Context) {
	ctrl := h.controller(c)
	if !h.readSelection(c, ctrl) {
		return
	}
	h.render(c, http.StatusOK, ctrl)
}

// analyze submits the retained selection. A multipart body replaces the
// selection first, so a single form post still works.
func (h *Handler) analyze(c *gin.Context) {
	ctrl := h.controller(c)
	if isMultipart(c.Request) && !h.readSelection(c, ctrl) {
		return
	}

	out, err := ctrl.Submit(c.Request.Context())
	c.Set(middleware.FileCountKey, len(out.Files))
	switch {
	case errors.Is(err, session.ErrNothingSelected):
		ctrl.Notify(analyzer.UserMessage(analyzer.ErrNoFiles))
		h.render(c, http.StatusUnprocessableEntity, ctrl)
		return
	case errors.Is(err, session.ErrSubmissionInFlight):
		metrics.IncSubmissionOverlap()
		h.render(c, http.StatusConflict, ctrl)
		return
	}
	metrics.IncSubmissionStarted()

	if h.Runs != nil {
		run, err := h.Runs.Record(context.WithoutCancel(c.Request.Context()), runs.Submission{
			SessionID:  middleware.SessionIDFromContext(c),
			Source:     runs.SourceWeb,
			Files:      out.Selection.Files,
			Rejected:   out.Selection.Rejected,
			Result:     out.Result,
			Err:        out.Err,
			StartedAt:  out.StartedAt,
			FinishedAt: out.FinishedAt,
		})
		if err != nil {
			telemetry.Error("run.record.failed", map[string]any{
				"session_id": middleware.SessionIDFromContext(c),
				"err":        err,
			})
		} else {
			c.Set(middleware.RunIDKey, run.ID)
			if out.Err == nil {
				ctrl.AttachRun(run.ID)
			}
		}
	}

	h.render(c, http.StatusOK, ctrl)
}

// readSelection replaces the retained selection with the uploaded files. On
// a bad upload it renders the page with a notification and returns false.
func (h *Handler) readSelection(c *gin.Context, ctrl *session.Controller) bool {
	files, err := collector.FromRequest(c.Writer, c.Request, analyzer.FieldName, h.MaxUploadBytes)
	if err != nil {
		if errors.Is(err, collector.ErrTooLarge) {
			ctrl.Notify("An error occurred: upload exceeds the size limit")
			h.render(c, http.StatusRequestEntityTooLarge, ctrl)
			return false
		}
		ctrl.Notify("An error occurred: could not read the uploaded files")
		h.render(c, http.StatusBadRequest, ctrl)
		return false
	}
	ctrl.Select(files)
	return true
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

func (h *Handler) dismiss(c *gin.Context) {
	h.controller(c).Dismiss()
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *Handler) chart(c *gin.Context) {
	name, format, ok := dashboard.ParseChartFile(c.Param("file"))
	if !ok {
		respond.Error(c, http.StatusNotFound, "not_found", "unknown chart", nil)
		return
	}
	res, ok := h.controller(c).Result()
	if !ok {
		respond.Error(c, http.StatusNotFound, "no_result", "no analysis yet", nil)
		return
	}

	var buf bytes.Buffer
	if err := dashboard.RenderChart(dashboard.Build(res), name, format, &buf); err != nil {
		if errors.Is(err, dashboard.ErrEmptyChart) {
			respond.Error(c, http.StatusNotFound, "empty_chart", "chart has no data", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to render chart", nil)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

func (h *Handler) export(c *gin.Context) {
	res, ok := h.controller(c).Result()
	if !ok {
		respond.Error(c, http.StatusNotFound, "no_result", "no analysis yet", nil)
		return
	}

	var buf bytes.Buffer
	if err := dashboard.WriteWorkbook(res, &buf); err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to build export", nil)
		return
	}
	respond.Attachment(c, dashboard.WorkbookContentType, "pca-results.xlsx", int64(buf.Len()), &buf)
}

func (h *Handler) controller(c *gin.Context) *session.Controller {
	ctrl, _ := h.Sessions.Get(middleware.SessionIDFromContext(c))
	return ctrl
}

func (h *Handler) render(c *gin.Context, status int, ctrl *session.Controller) {
	data := pageData{
		View:        ctrl.View(),
		Configured:  h.Configured,
		ExportURL:   sessionExportURL,
		ChartWidth:  dashboard.ChartWidth,
		ChartHeight: dashboard.ChartHeight,
	}
	if d := data.Dashboard; d != nil {
		if data.RunID != "" {
			data.ExportURL = runs.ExportURL(data.RunID)
		}
		for _, name := range dashboard.ChartNames {
			if !d.HasData(name) {
				continue
			}
			url := "/session/charts/" + name.FileName(dashboard.FormatSVG)
			if data.RunID != "" {
				url = runs.ChartURL(data.RunID, name, dashboard.FormatSVG)
			}
			link := chartLink{Title: name.Title(), URL: url}
			if name == dashboard.ChartScatter {
				spots, err := dashboard.ScatterHotspots(*d)
				if err != nil {
					telemetry.Warn("page.hotspots.failed", map[string]any{"err": err})
				}
				link.Hotspots = spots
			}
			data.Charts = append(data.Charts, link)
		}
	}
	c.Header("Cache-Control", "no-store")
	c.HTML(status, pageTemplate, data)
}
