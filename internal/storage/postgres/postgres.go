// Package postgres provides Postgres-backed persistence implementations.
//
// Expected schema:
//
//	CREATE TABLE sites (
//		id         TEXT PRIMARY KEY,
//		slug       TEXT NOT NULL,
//		name       TEXT NOT NULL,
//		url        TEXT NOT NULL,
//		created_at TIMESTAMPTZ NOT NULL,
//		updated_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE UNIQUE INDEX sites_slug_key ON sites (slug);
//
//	CREATE TABLE categories (
//		id         TEXT PRIMARY KEY,
//		site_id    TEXT NOT NULL REFERENCES sites (id) ON DELETE CASCADE,
//		slug       TEXT NOT NULL,
//		name       TEXT NOT NULL,
//		url        TEXT NOT NULL,
//		created_at TIMESTAMPTZ NOT NULL,
//		updated_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE UNIQUE INDEX categories_site_slug_key ON categories (site_id, slug);
//
//	CREATE TABLE crawl_tasks (
//		id           TEXT PRIMARY KEY,
//		site_id      TEXT NOT NULL,
//		category_id  TEXT NOT NULL,
//		status       TEXT NOT NULL,
//		submitted_at TIMESTAMPTZ NOT NULL,
//		started_at   TIMESTAMPTZ,
//		finished_at  TIMESTAMPTZ,
//		error_text   TEXT NOT NULL DEFAULT '',
//		parameters   JSONB NOT NULL,
//		counters     JSONB NOT NULL
//	);
//
//	CREATE TABLE task_pages (
//		task_id       TEXT NOT NULL,
//		url           TEXT NOT NULL,
//		page_number   INT NOT NULL,
//		status_code   INT NOT NULL,
//		used_headless BOOLEAN NOT NULL,
//		fetched_at    TIMESTAMPTZ NOT NULL,
//		duration_ms   BIGINT NOT NULL,
//		content_hash  TEXT NOT NULL,
//		headers       JSONB,
//		blob_uri      TEXT NOT NULL,
//		item_count    INT NOT NULL
//	);
//
//	CREATE TABLE task_items (
//		task_id     TEXT NOT NULL,
//		category_id TEXT NOT NULL,
//		position    INT NOT NULL,
//		title       TEXT NOT NULL,
//		url         TEXT NOT NULL,
//		page_url    TEXT NOT NULL,
//		scraped_at  TIMESTAMPTZ NOT NULL
//	);
//
// The unique indexes on sites(slug) and categories(site_id, slug) are the
// final uniqueness gate; the ExistsInScope pre-check is a fast path only.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the Postgres error code raised when a write loses the
// race against a unique index.
const uniqueViolation = "23505"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// querier is the subset of pgxpool.Pool the stores use, satisfied by
// pgxmock in tests.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// NewPool builds a pgx pool from the config.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
