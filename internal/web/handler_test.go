package web

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"pca-viewer/internal/analyzer/remote"
	"pca-viewer/internal/runs"
	"pca-viewer/internal/session"
	"pca-viewer/internal/shared/server/middleware"
)

const okBody = `{
	"points": [{"x": 1, "y": 1, "label": "t0"}, {"x": 2, "y": 0, "label": "t1"}, {"x": 3, "y": -1, "label": "t2"}],
	"explained_variance_ratio_all": [0.7, 0.2, 0.1],
	"cumulative_variance_ratio_all": [0.7, 0.9, 1.0]
}`

type pageEnv struct {
	router *gin.Engine
	runs   *runs.Service
	cookie *http.Cookie
}

func newPageEnv(t *testing.T, status int, body string) *pageEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	client := remote.NewClient(srv.URL+"/process_pca", 5*time.Second)
	runSvc := &runs.Service{Repo: runs.NewMemoryRepo()}
	h := NewHandler(session.NewRegistry(client, time.Hour), runSvc, 1<<20, client.Configured())

	r := gin.New()
	r.SetHTMLTemplate(Templates())
	r.Use(middleware.SessionCookie(session.CookieName, false))
	h.RegisterRoutes(&r.RouterGroup)
	runs.NewHandler(runSvc, client, 1<<20).RegisterRoutes(r.Group("/api/v1"))

	return &pageEnv{router: r, runs: runSvc}
}

func (e *pageEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if e.cookie != nil {
		req.AddCookie(e.cookie)
	}
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	for _, ck := range resp.Result().Cookies() {
		if ck.Name == session.CookieName {
			e.cookie = ck
		}
	}
	return resp
}

func analyzeRequest(t *testing.T, names ...string) *http.Request {
	t.Helper()
	return uploadRequest(t, "/analyze", names...)
}

func uploadRequest(t *testing.T, path string, names ...string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for _, name := range names {
		part, err := w.CreateFormFile("xyz_files", name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte("0 0 0\n")); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestIndexIssuesSession(t *testing.T) {
	env := newPageEnv(t, http.StatusOK, okBody)

	resp := env.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if env.cookie == nil {
		t.Fatalf("expected session cookie")
	}
	if !strings.Contains(resp.Body.String(), "PCA Point Cloud Viewer") {
		t.Fatalf("expected page title")
	}
	if strings.Contains(resp.Body.String(), "Data Points") {
		t.Fatalf("expected no dashboard before the first analysis")
	}
}

func TestAnalyzeRendersDashboard(t *testing.T) {
	env := newPageEnv(t, http.StatusOK, okBody)
	env.do(t, httptest.NewRequest(http.MethodGet, "/", nil))

	resp := env.do(t, analyzeRequest(t, "a.xyz", "notes.txt"))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	page := resp.Body.String()
	for _, want := range []string{"a.xyz", "notes.txt", "Data Points", "70.0%", "20.0%", "90.0%", "/api/v1/runs/", "scatter.svg", "Cumulative Variance Explained"} {
		if !strings.Contains(page, want) {
			t.Fatalf("expected page to contain %q", want)
		}
	}

	hover := "t0\nPC1: 1.000\nPC2: 1.000"
	if !strings.Contains(page, "<title>"+hover+"</title>") || !strings.Contains(page, `title="`+hover+`"`) {
		t.Fatalf("expected hover text on chart overlay and points table")
	}
	if strings.Count(page, "<circle ") != 3 {
		t.Fatalf("expected one hover target per point, got %d", strings.Count(page, "<circle "))
	}

	items, err := env.runs.List(t.Context(), 10, 0)
	if err != nil || len(items) != 1 {
		t.Fatalf("expected one recorded run, got %d (%v)", len(items), err)
	}
	if items[0].Source != runs.SourceWeb || items[0].Status != runs.StatusCompleted {
		t.Fatalf("unexpected run %+v", items[0])
	}

	chart := env.do(t, httptest.NewRequest(http.MethodGet, "/session/charts/scatter.png", nil))
	if chart.Code != http.StatusOK || chart.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("expected png chart, got %d %q", chart.Code, chart.Header().Get("Content-Type"))
	}
	export := env.do(t, httptest.NewRequest(http.MethodGet, "/session/export.xlsx", nil))
	if export.Code != http.StatusOK {
		t.Fatalf("expected export, got %d", export.Code)
	}
}

func TestAnalyzeWithoutXYZFiles(t *testing.T) {
	env := newPageEnv(t, http.StatusOK, okBody)

	resp := env.do(t, analyzeRequest(t, "notes.txt"))
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "Select at least one .xyz file.") {
		t.Fatalf("expected selection notice")
	}
	items, _ := env.runs.List(t.Context(), 10, 0)
	if len(items) != 0 {
		t.Fatalf("expected nothing recorded, got %d", len(items))
	}
}

func TestAnalyzeFailureShowsNotification(t *testing.T) {
	env := newPageEnv(t, http.StatusInternalServerError, `{"error":"bad file"}`)

	resp := env.do(t, analyzeRequest(t, "a.xyz"))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "An error occurred: bad file") {
		t.Fatalf("expected failure notice, got %s", resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), ">Analyze</button>") {
		t.Fatalf("expected submit control to be ready again")
	}

	dismiss := env.do(t, httptest.NewRequest(http.MethodPost, "/dismiss", nil))
	if dismiss.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", dismiss.Code)
	}
	page := env.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	if strings.Contains(page.Body.String(), "bad file") {
		t.Fatalf("expected notification to be dismissed")
	}

	chart := env.do(t, httptest.NewRequest(http.MethodGet, "/session/charts/scatter.png", nil))
	if chart.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a result, got %d", chart.Code)
	}
}

func TestAnalyzeButtonFollowsSelection(t *testing.T) {
	env := newPageEnv(t, http.StatusOK, okBody)

	const (
		enabled  = `<button type="submit">Analyze</button>`
		disabled = `<button type="submit" disabled>Analyze</button>`
	)

	page := env.do(t, httptest.NewRequest(http.MethodGet, "/", nil)).Body.String()
	if !strings.Contains(page, disabled) || strings.Contains(page, enabled) {
		t.Fatalf("expected disabled Analyze for an empty selection")
	}

	page = env.do(t, uploadRequest(t, "/select", "notes.txt")).Body.String()
	if !strings.Contains(page, disabled) {
		t.Fatalf("expected disabled Analyze when nothing was accepted")
	}

	resp := env.do(t, uploadRequest(t, "/select", "a.xyz", "b.xyz"))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	page = resp.Body.String()
	if !strings.Contains(page, enabled) || !strings.Contains(page, "b.xyz") {
		t.Fatalf("expected enabled Analyze with the retained selection")
	}
	if items, _ := env.runs.List(t.Context(), 10, 0); len(items) != 0 {
		t.Fatalf("expected selecting files not to submit, got %d runs", len(items))
	}

	resp = env.do(t, httptest.NewRequest(http.MethodPost, "/analyze", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "Data Points") {
		t.Fatalf("expected the retained selection to be analyzed, got %d", resp.Code)
	}
	items, _ := env.runs.List(t.Context(), 10, 0)
	if len(items) != 1 || len(items[0].Files) != 2 {
		t.Fatalf("expected one run over two files, got %+v", items)
	}
}
