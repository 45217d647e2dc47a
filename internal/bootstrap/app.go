package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	"pca-viewer/internal/analyzer/remote"
	"pca-viewer/internal/runs"
	"pca-viewer/internal/services/health"
	"pca-viewer/internal/session"
	"pca-viewer/internal/shared/config"
	"pca-viewer/internal/shared/server"
	"pca-viewer/internal/shared/server/middleware"
	"pca-viewer/internal/shared/storage/db"
	"pca-viewer/internal/shared/storage/object"
	localstore "pca-viewer/internal/shared/storage/object/local"
	s3store "pca-viewer/internal/shared/storage/object/s3"
	"pca-viewer/internal/web"
)

// App holds shared dependencies.
type App struct {
	Config      config.Config
	Router      *gin.Engine
	DB          *sql.DB
	Store       object.ObjectStore
	Analyzer    *remote.Client
	Sessions    *session.Registry
	RunsRepo    runs.Repo
	RunsService *runs.Service
	Health      *health.Service
	SubmitGuard *middleware.SubmitGuard
}

// Build prepares dependencies and the router.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		if sqlDB != nil {
			sqlDB.Close()
		}
		return nil, err
	}

	client := remote.NewClient(cfg.AnalysisEndpoint, cfg.AnalysisTimeout)
	if !client.Configured() {
		log.Printf("bootstrap: ANALYSIS_ENDPOINT is empty or a placeholder; submissions will be refused")
	}

	var repo runs.Repo
	if sqlDB != nil {
		repo = &runs.PGRepo{DB: sqlDB}
	} else {
		repo = runs.NewMemoryRepo()
	}

	app := &App{
		Config:      cfg,
		DB:          sqlDB,
		Store:       store,
		Analyzer:    client,
		Sessions:    session.NewRegistry(client, cfg.SessionTTL),
		RunsRepo:    repo,
		RunsService: &runs.Service{Repo: repo, Store: store},
		Health:      health.NewService(sqlDB, client.Configured(), cfg.ObjectStoreType),
		SubmitGuard: middleware.NewSubmitGuard(middleware.SubmitRule{Rate: cfg.SubmitRate, Burst: cfg.SubmitBurst}, nil),
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:      cfg,
		PageHandler: web.NewHandler(app.Sessions, app.RunsService, cfg.MaxUploadBytes, client.Configured()),
		RunsHandler: runs.NewHandler(app.RunsService, client, cfg.MaxUploadBytes),
		Health:      app.Health,
		SubmitGuard: app.SubmitGuard,
	})

	return app, nil
}

// Close releases the database pool.
func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Printf("bootstrap: DATABASE_URL empty; keeping run history in memory")
		return nil, nil
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; keeping run history in memory: %v", err)
			return nil, nil
		}
		return nil, err
	}

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		sqlDB.Close()
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: migrations failed; keeping run history in memory: %v", err)
			return nil, nil
		}
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
