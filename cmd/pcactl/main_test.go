package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const upstreamResult = `{
	"points": [{"x": 1, "y": 1, "label": "t0"}, {"x": 2, "y": 0, "label": "t1"}],
	"explained_variance_ratio_all": [0.8, 0.15, 0.05],
	"cumulative_variance_ratio_all": [0.8, 0.95, 1.0]
}`

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("ANALYSIS_ENDPOINT", "")
	t.Setenv("DATABASE_URL", "")
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func inputDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.xyz"), []byte("0 0 0\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))
	return dir
}

func TestAnalyzeWritesOutputs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(upstreamResult))
	}))
	defer srv.Close()

	in := inputDir(t)
	out := filepath.Join(t.TempDir(), "out")

	stdout, stderr, err := execute(t, "analyze", in, "--endpoint", srv.URL+"/process_pca", "--out", out, "--format", "svg")
	require.NoError(t, err)
	assert.Contains(t, stderr, "skipping notes.txt")
	assert.Contains(t, stdout, "80.0%")
	assert.Contains(t, stdout, "95.0%")

	for _, name := range []string{"scatter.svg", "contribution.svg", "cumulative.svg", "export.xlsx", "result.json"} {
		_, err := os.Stat(filepath.Join(out, name))
		assert.NoError(t, err, name)
	}

	rendered := filepath.Join(t.TempDir(), "rendered")
	stdout, _, err = execute(t, "render", filepath.Join(out, "result.json"), "--out", rendered)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Data Points")
	_, err = os.Stat(filepath.Join(rendered, "scatter.png"))
	assert.NoError(t, err)
}

func TestAnalyzeReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"bad file"}`))
	}))
	defer srv.Close()

	_, _, err := execute(t, "analyze", inputDir(t), "--endpoint", srv.URL, "--out", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, "An error occurred: bad file", err.Error())
}

func TestAnalyzeWithoutXYZFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))

	_, _, err := execute(t, "analyze", dir, "--endpoint", "http://127.0.0.1:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".xyz")
}

func TestAnalyzePlaceholderEndpoint(t *testing.T) {
	_, _, err := execute(t, "analyze", inputDir(t), "--out", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANALYSIS_ENDPOINT")
}

func TestRenderRejectsMalformedResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"points":[]}`), 0o644))

	_, _, err := execute(t, "render", path, "--out", t.TempDir())
	require.Error(t, err)
}

func TestUnknownFormat(t *testing.T) {
	_, _, err := execute(t, "render", "x.json", "--format", "gif")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}
