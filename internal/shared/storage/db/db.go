// Package db opens the Postgres pool behind the run history and applies its
// schema.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver

	"pca-viewer/internal/shared/telemetry"
)

const (
	driverName         = "pgx"
	defaultPingTimeout = 5 * time.Second
	fallbackMaxOpen    = 4
	fallbackMaxIdle    = 2
)

// ErrNoDatabaseURL is returned by Connect for an empty URL.
var ErrNoDatabaseURL = errors.New("DATABASE_URL is empty")

// Options sizes the pool. Label names the pool in logs.
type Options struct {
	Label           string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// openDB is swapped in tests.
var openDB = sql.Open

// DefaultServerOptions sizes the API pool. Runs are written once per
// submission, so it stays small.
func DefaultServerOptions() Options {
	return Options{
		Label:           "run history",
		MaxOpenConns:    fallbackMaxOpen,
		MaxIdleConns:    fallbackMaxIdle,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnMaxLifetime: time.Hour,
		PingTimeout:     defaultPingTimeout,
	}
}

// DefaultMigrateOptions sizes the single connection used by cmd/migrate and
// pcactl --record.
func DefaultMigrateOptions() Options {
	opts := DefaultServerOptions()
	opts.Label = "migrate"
	opts.MaxOpenConns = 1
	opts.MaxIdleConns = 1
	return opts
}

// OptionsFromEnv applies DB_* overrides on top of defaults.
func OptionsFromEnv(defaults Options) Options {
	opts := defaults
	ints := map[string]*int{
		"DB_MAX_OPEN_CONNS": &opts.MaxOpenConns,
		"DB_MAX_IDLE_CONNS": &opts.MaxIdleConns,
	}
	for key, dst := range ints {
		if v, ok := envInt(key); ok {
			*dst = v
		}
	}
	durations := map[string]*time.Duration{
		"DB_CONN_MAX_LIFETIME":  &opts.ConnMaxLifetime,
		"DB_CONN_MAX_IDLE_TIME": &opts.ConnMaxIdleTime,
		"DB_PING_TIMEOUT":       &opts.PingTimeout,
	}
	for key, dst := range durations {
		if v, ok := envDuration(key); ok {
			*dst = v
		}
	}
	return opts
}

// Connect opens the pool and pings it. Callers own the returned handle.
func Connect(ctx context.Context, databaseURL string, opts Options) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, ErrNoDatabaseURL
	}

	pool, err := openDB(driverName, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	configurePool(pool, opts)

	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	label := opts.Label
	if label == "" {
		label = "db"
	}
	stats := pool.Stats()
	telemetry.Info("db.pool", map[string]any{
		"label":    label,
		"open":     stats.OpenConnections,
		"idle":     stats.Idle,
		"max_open": stats.MaxOpenConnections,
	})
	return pool, nil
}

func configurePool(pool *sql.DB, opts Options) {
	maxOpen, maxIdle, lifetime := opts.MaxOpenConns, opts.MaxIdleConns, opts.ConnMaxLifetime
	if maxOpen <= 0 {
		maxOpen = fallbackMaxOpen
	}
	if maxIdle <= 0 {
		maxIdle = fallbackMaxIdle
	}
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	pool.SetMaxOpenConns(maxOpen)
	pool.SetMaxIdleConns(maxIdle)
	pool.SetConnMaxLifetime(lifetime)
	if opts.ConnMaxIdleTime > 0 {
		pool.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}
}

func envInt(key string) (int, bool) {
	raw, ok := envValue(key)
	if !ok {
		return 0, false
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("db env %s invalid int: %v", key, err)
		return 0, false
	}
	return val, true
}

func envDuration(key string) (time.Duration, bool) {
	raw, ok := envValue(key)
	if !ok {
		return 0, false
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("db env %s invalid duration: %v", key, err)
		return 0, false
	}
	return val, true
}

func envValue(key string) (string, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	return raw, raw != ""
}
