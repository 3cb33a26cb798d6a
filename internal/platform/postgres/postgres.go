// Package postgres opens database/sql pools for the storage backend.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"vetting/internal/platform/config"
)

// DriverName maps the configured storage driver onto a registered
// database/sql driver. "postgres" is lib/pq, "pgx" is the pgx stdlib adapter.
func DriverName(driver string) (string, error) {
	switch driver {
	case "postgres", "pq":
		return "postgres", nil
	case "pgx":
		return "pgx", nil
	}
	return "", fmt.Errorf("unsupported sql driver %q", driver)
}

// Open creates a pool and verifies connectivity.
func Open(ctx context.Context, cfg config.Storage) (*sql.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database url is required for driver %q", cfg.Driver)
	}
	driver, err := DriverName(cfg.Driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}
