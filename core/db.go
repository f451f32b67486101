package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool with conservative defaults.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, errors.New("empty database dsn")
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	// Reasonable defaults for a single desktop/office deployment.
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 10 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	// Validate connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

var pgSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
	id            BIGSERIAL PRIMARY KEY,
	username      TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	full_name     TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin','user')),
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_username_idx ON users (username)`,
	`CREATE TABLE IF NOT EXISTS access_log (
	id                 BIGSERIAL PRIMARY KEY,
	user_id            BIGINT REFERENCES users(id) ON DELETE SET NULL,
	action_type        TEXT NOT NULL,
	action_description TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
}

// EnsurePgSchema creates the users and access_log tables when missing.
func EnsurePgSchema(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range pgSchema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// OpenStore picks a backend from the DSN: postgres:// and postgresql:// use pgx,
// sqlite:// or a bare file path use the embedded sqlite store.
func OpenStore(ctx context.Context, dsn string) (UserStore, error) {
	switch {
	case dsn == "":
		return nil, errors.New("empty database dsn")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		pool, err := Connect(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := EnsurePgSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return NewPgUserRepository(pool), nil
	default:
		repo, err := OpenBunUserRepository(ctx, strings.TrimPrefix(dsn, "sqlite://"))
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return repo, nil
	}
}
