// Package postgres holds the lib/pq connection pool and the schema for
// the tables the indexer uses: domain ranks and the converter outbox.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/resilience"
)

// Client owns a connection pool.
type Client struct {
	DB *sql.DB
}

// New opens a pool and waits for the server to answer, retrying briefly
// so the indexer can start alongside its database.
func New(cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err = resilience.Retry(ctx, "postgres-connect", resilience.RetryConfig{MaxAttempts: 4, InitialDelay: 500 * time.Millisecond},
		func(ctx context.Context) error { return db.PingContext(ctx) })
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &Client{DB: db}, nil
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Close closes the pool.
func (c *Client) Close() error {
	return c.DB.Close()
}

// InTx runs fn in a transaction on db and commits when fn returns nil.
func InTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rolling back: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// migrations are applied in order, each once, and recorded in
// schema_migrations. Append only.
var migrations = []string{
	`CREATE TABLE domain_ranks (
		domain_id BIGINT PRIMARY KEY,
		rank      INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE converter_outbox (
		id          BIGSERIAL PRIMARY KEY,
		args        TEXT[] NOT NULL DEFAULT '{}',
		state       TEXT NOT NULL DEFAULT 'NEW',
		detail      TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		finished_at TIMESTAMPTZ
	)`,
	`CREATE INDEX converter_outbox_state_idx ON converter_outbox (state, id)`,
	`ALTER TABLE converter_outbox
		ADD COLUMN attempts   INTEGER NOT NULL DEFAULT 0,
		ADD COLUMN not_before TIMESTAMPTZ NOT NULL DEFAULT NOW()`,
}

// Migrate brings the schema up to date. Concurrent callers serialise on
// an advisory lock.
func (c *Client) Migrate(ctx context.Context) error {
	return InTx(ctx, c.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(7215493)`); err != nil {
			return fmt.Errorf("locking schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
			return fmt.Errorf("creating schema_migrations: %w", err)
		}
		var current int
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
		for v := current + 1; v <= len(migrations); v++ {
			if _, err := tx.ExecContext(ctx, migrations[v-1]); err != nil {
				return fmt.Errorf("migration %d: %w", v, err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, v); err != nil {
				return fmt.Errorf("recording migration %d: %w", v, err)
			}
			slog.Info("schema migrated", "component", "postgres", "version", v)
		}
		return nil
	})
}
