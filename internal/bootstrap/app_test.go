package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"pca-viewer/internal/runs"
	"pca-viewer/internal/shared/config"
	localstore "pca-viewer/internal/shared/storage/object/local"
)

func TestBuildInMemory(t *testing.T) {
	gin.SetMode(gin.TestMode)

	app, err := Build(context.Background(), config.Config{
		Port:            "8080",
		LocalStoreDir:   t.TempDir(),
		AnalysisTimeout: time.Second,
		MaxUploadBytes:  1 << 20,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer app.Close()

	if app.Config.Env != "dev" || app.Config.ObjectStoreType != "local" {
		t.Fatalf("expected dev/local defaults, got %q/%q", app.Config.Env, app.Config.ObjectStoreType)
	}
	if app.DB != nil {
		t.Fatalf("expected no database")
	}
	if _, ok := app.RunsRepo.(*runs.MemoryRepo); !ok {
		t.Fatalf("expected memory repo, got %T", app.RunsRepo)
	}
	if _, ok := app.Store.(*localstore.Store); !ok {
		t.Fatalf("expected local store, got %T", app.Store)
	}
	if app.Analyzer.Configured() {
		t.Fatalf("expected analyzer to be unconfigured")
	}

	resp := httptest.NewRecorder()
	app.Router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestBuildS3RequiresBucket(t *testing.T) {
	_, err := Build(context.Background(), config.Config{ObjectStoreType: "s3"})
	if err == nil {
		t.Fatalf("expected error without S3_BUCKET")
	}
}

func TestBuildProductionDatabaseFailure(t *testing.T) {
	_, err := Build(context.Background(), config.Config{
		Env:         "production",
		DatabaseURL: "postgres://user@127.0.0.1:1/db?sslmode=disable&connect_timeout=1",
	})
	if err == nil {
		t.Fatalf("expected database error in production")
	}
}
