package main

// Run database migrations:
//   go run ./cmd/migrate [up|down|status]

import (
	"context"
	"log"
	"os"

	"pca-viewer/internal/shared/config"
	"pca-viewer/internal/shared/storage/db"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	cmd := db.MigrateUp
	if len(os.Args) > 1 {
		cmd = db.MigrationCommand(os.Args[1])
	}

	opts := db.OptionsFromEnv(db.DefaultMigrateOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		log.Printf("failed to connect database: %v", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := db.Migrate(ctx, sqlDB, cmd); err != nil {
		log.Printf("migrate %s: %v", cmd, err)
		os.Exit(1)
	}
}
