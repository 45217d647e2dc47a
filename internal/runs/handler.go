package runs

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"pca-viewer/internal/analyzer"
	"pca-viewer/internal/analyzer/remote"
	"pca-viewer/internal/collector"
	"pca-viewer/internal/dashboard"
	"pca-viewer/internal/shared/metrics"
	"pca-viewer/internal/shared/server/middleware"
	"pca-viewer/internal/shared/server/respond"
	"pca-viewer/internal/shared/telemetry"
)

// Handler wires HTTP handlers to the runs service and the analysis client.
type Handler struct {
	Svc            *Service
	Analyzer       analyzer.Client
	MaxUploadBytes int64
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, client analyzer.Client, maxUploadBytes int64) *Handler {
	return &Handler{Svc: svc, Analyzer: client, MaxUploadBytes: maxUploadBytes}
}

// RegisterRoutes attaches run routes to the router group. submit runs in
// front of the analysis route only.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, submit ...gin.HandlerFunc) {
	rg.POST("/analyses", append(submit, h.analyze)...)
	rg.GET("/runs", h.list)
	rg.GET("/runs/:id", h.get)
	rg.GET("/runs/:id/charts/:file", h.chart)
	rg.GET("/runs/:id/export.xlsx", h.export)
}

// ChartURL is where a run's chart is served.
func ChartURL(runID string, name dashboard.ChartName, format dashboard.Format) string {
	return "/api/v1/runs/" + runID + "/charts/" + name.FileName(format)
}

// ExportURL is where a run's spreadsheet is served.
func ExportURL(runID string) string {
	return "/api/v1/runs/" + runID + "/" + ExportName
}

func (h *Handler) analyze(c *gin.Context) {
	files, err := collector.FromRequest(c.Writer, c.Request, analyzer.FieldName, h.MaxUploadBytes)
	if err != nil {
		switch {
		case errors.Is(err, collector.ErrTooLarge):
			respond.Error(c, http.StatusRequestEntityTooLarge, "payload_too_large", "upload exceeds the size limit", gin.H{"maxBytes": h.MaxUploadBytes})
		default:
			respond.Error(c, http.StatusBadRequest, "validation_error", "expected a multipart upload", nil)
		}
		return
	}

	sel := collector.Collect(files)
	c.Set(middleware.FileCountKey, len(sel.Files))
	if !sel.CanSubmit() {
		respond.Error(c, http.StatusBadRequest, "no_files", analyzer.UserMessage(analyzer.ErrNoFiles), gin.H{"rejected": sel.Rejected})
		return
	}

	metrics.IncSubmissionStarted()
	sub := Submission{
		SessionID: middleware.SessionIDFromContext(c),
		Source:    SourceAPI,
		Files:     sel.Files,
		Rejected:  sel.Rejected,
		StartedAt: time.Now(),
	}
	result, analyzeErr := h.Analyzer.Analyze(c.Request.Context(), sel.Files)
	sub.FinishedAt = time.Now()
	if analyzeErr != nil {
		sub.Err = analyzeErr
	} else {
		sub.Result = &result
	}

	// Recording must outlive a client that hung up mid-analysis.
	run, err := h.Svc.Record(context.WithoutCancel(c.Request.Context()), sub)
	recorded := err == nil
	if !recorded {
		telemetry.Error("run.record.failed", map[string]any{"request_id": middleware.RequestIDFromContext(c), "err": err})
	} else {
		c.Set(middleware.RunIDKey, run.ID)
		c.Header("X-Run-Id", run.ID)
	}

	if analyzeErr != nil {
		status, code := analysisFailure(analyzeErr)
		var details gin.H
		if recorded {
			details = gin.H{"runId": run.ID}
		}
		respond.Error(c, status, code, analyzer.UserMessage(analyzeErr), details)
		return
	}

	board := dashboard.Build(result)
	if !recorded {
		respond.OK(c, gin.H{"result": result, "dashboard": board})
		return
	}
	respond.Created(c, gin.H{"run": run, "dashboard": board, "links": links(run)})
}

func (h *Handler) list(c *gin.Context) {
	limit := 20
	offset := 0

	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}

	items, err := h.Svc.List(c.Request.Context(), limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list runs", nil)
		return
	}

	resp := make([]gin.H, 0, len(items))
	for _, run := range items {
		item := gin.H{
			"id":         run.ID,
			"source":     run.Source,
			"status":     run.Status,
			"files":      len(run.Files),
			"durationMs": run.DurationMS,
			"createdAt":  run.CreatedAt,
		}
		if run.Stats != nil {
			item["stats"] = run.Stats
		}
		if run.ErrorKind != "" {
			item["errorKind"] = run.ErrorKind
		}
		resp = append(resp, item)
	}

	respond.OK(c, resp)
}

func (h *Handler) get(c *gin.Context) {
	run, ok := h.lookup(c)
	if !ok {
		return
	}

	resp := gin.H{"run": run}
	if run.Result != nil {
		resp["dashboard"] = dashboard.Build(*run.Result)
		resp["links"] = links(run)
	}
	respond.OK(c, resp)
}

func (h *Handler) chart(c *gin.Context) {
	name, format, ok := dashboard.ParseChartFile(c.Param("file"))
	if !ok {
		respond.Error(c, http.StatusNotFound, "not_found", "unknown chart", nil)
		return
	}
	run, ok := h.lookup(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.Svc.WriteChart(c.Request.Context(), run, name, format, &buf); err != nil {
		switch {
		case errors.Is(err, ErrNoResult):
			respond.Error(c, http.StatusConflict, "no_result", "run has no result", nil)
		case errors.Is(err, dashboard.ErrEmptyChart):
			respond.Error(c, http.StatusNotFound, "empty_chart", "chart has no data", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to render chart", nil)
		}
		return
	}

	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

func (h *Handler) export(c *gin.Context) {
	run, ok := h.lookup(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.Svc.WriteExport(c.Request.Context(), run, &buf); err != nil {
		switch {
		case errors.Is(err, ErrNoResult):
			respond.Error(c, http.StatusConflict, "no_result", "run has no result", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to build export", nil)
		}
		return
	}

	respond.Attachment(c, dashboard.WorkbookContentType, "pca-"+run.ID+".xlsx", int64(buf.Len()), &buf)
}

func (h *Handler) lookup(c *gin.Context) (Run, bool) {
	runID := c.Param("id")
	run, err := h.Svc.Get(c.Request.Context(), runID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "run not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch run", nil)
		}
		return Run{}, false
	}
	c.Set(middleware.RunIDKey, run.ID)
	return run, true
}

func links(run Run) gin.H {
	charts := gin.H{}
	for _, name := range dashboard.ChartNames {
		charts[string(name)] = gin.H{
			"png": ChartURL(run.ID, name, dashboard.FormatPNG),
			"svg": ChartURL(run.ID, name, dashboard.FormatSVG),
		}
	}
	return gin.H{"charts": charts, "export": ExportURL(run.ID)}
}

// analysisFailure maps an analysis error to the HTTP status and code the API
// answers with.
func analysisFailure(err error) (int, string) {
	if errors.Is(err, analyzer.ErrNotConfigured) {
		return http.StatusServiceUnavailable, "not_configured"
	}
	if remote.IsTimeout(err) {
		return http.StatusGatewayTimeout, "analysis_timeout"
	}
	var aerr *analyzer.Error
	if errors.As(err, &aerr) {
		switch aerr.Kind {
		case analyzer.KindServer:
			return http.StatusBadGateway, "analysis_rejected"
		case analyzer.KindMalformed:
			return http.StatusBadGateway, "analysis_malformed"
		}
	}
	return http.StatusBadGateway, "analysis_unreachable"
}
