package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationsDir = "migrations"

// MigrationCommand is one of the goose operations exposed by cmd/migrate.
type MigrationCommand string

const (
	MigrateUp     MigrationCommand = "up"
	MigrateDown   MigrationCommand = "down"
	MigrateStatus MigrationCommand = "status"
)

func prepareGoose() error {
	goose.SetBaseFS(migrationFiles)
	return goose.SetDialect("postgres")
}

// RunMigrations applies embedded SQL migrations via goose. If database is nil, it's a no-op.
func RunMigrations(ctx context.Context, database *sql.DB) error {
	return Migrate(ctx, database, MigrateUp)
}

// Migrate runs a goose command against the embedded migrations.
func Migrate(ctx context.Context, database *sql.DB, cmd MigrationCommand) error {
	if database == nil {
		return nil
	}
	if err := prepareGoose(); err != nil {
		return err
	}
	switch cmd {
	case MigrateUp:
		return goose.UpContext(ctx, database, migrationsDir)
	case MigrateDown:
		return goose.DownContext(ctx, database, migrationsDir)
	case MigrateStatus:
		return goose.StatusContext(ctx, database, migrationsDir)
	}
	return fmt.Errorf("unknown migration command %q", cmd)
}
