package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/openctemio/ingest/internal/config"
)

// connectTimeout bounds the initial connectivity probe.
const connectTimeout = 5 * time.Second

// DB wraps the sql.DB pool shared by the repositories.
type DB struct {
	*sql.DB
}

// New opens a connection pool and verifies connectivity before returning.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

// Close closes the underlying pool.
func (db *DB) Close() error {
	return db.DB.Close()
}

// Ping reports whether the database is reachable. Used by readiness checks.
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}
