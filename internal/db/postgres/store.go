// Package postgres owns the pooled Postgres handle shared by the profile and match repositories.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // registers the "postgres" driver

	"github.com/fuego-app/fuego/internal/db"
)

var _ db.Lifecycle = (*Store)(nil)

// Config holds connection pool settings.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store wraps a pooled sqlx handle.
type Store struct {
	db *sqlx.DB
}

// NewStore opens a lazily connecting pool. Use WaitForReady before serving.
func NewStore(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("dsn is required")
	}

	conn, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return NewStoreFromDB(conn), nil
}

// NewStoreFromDB wraps an existing handle (tests, CLI).
func NewStoreFromDB(conn *sqlx.DB) *Store {
	return &Store{db: conn}
}

// DB exposes the pool to repositories.
func (s *Store) DB() *sqlx.DB { return s.db }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	_ = s.db.Close()
}

// WaitForReady blocks until the database answers a ping or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	return db.WaitForReady(ctx, s, timeout, "database") //nolint:wrapcheck // already labelled
}
