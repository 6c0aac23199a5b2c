// Package store commits products and their stock records.
//
// Every backend writes the pair as one all-or-nothing unit guarded by an
// existence check on the product identity, so a product never exists
// without its stock record.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/catalog-import/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxBeginner starts transactions. *pgxpool.Pool and *pgx.Conn satisfy it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Execer runs statements outside a transaction.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	insertProductSQL = `INSERT INTO products (id, title, description, price)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO NOTHING`

	insertStockSQL = `INSERT INTO stocks (product_id, count) VALUES ($1, $2)`
)

// Schema creates the products and stocks tables.
const Schema = `
CREATE TABLE IF NOT EXISTS products (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL,
    description TEXT NOT NULL,
    price       NUMERIC NOT NULL CHECK (price > 0),
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS stocks (
    product_id  TEXT PRIMARY KEY REFERENCES products (id) ON DELETE CASCADE,
    count       INTEGER NOT NULL DEFAULT 0 CHECK (count >= 0)
);
`

// PoolOptions tunes the connection pool. Zero fields keep pgxpool defaults.
type PoolOptions struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, url string, opts PoolOptions) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = int32(opts.MaxConns)
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = int32(opts.MinConns)
	}
	if opts.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Migrate applies Schema. It is safe to run repeatedly.
func Migrate(ctx context.Context, db Execer) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Postgres is a core.ProductStore backed by PostgreSQL.
type Postgres struct {
	db TxBeginner
}

// NewPostgres wraps db.
func NewPostgres(db TxBeginner) *Postgres {
	return &Postgres{db: db}
}

// CreateProduct inserts the product and its stock in one transaction.
// It returns core.ErrProductExists if p.ID is already taken.
func (s *Postgres) CreateProduct(ctx context.Context, p core.Product, st core.Stock) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	tag, err := tx.Exec(ctx, insertProductSQL, p.ID, p.Title, p.Description, p.Price)
	if err != nil {
		return fmt.Errorf("insert product %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", core.ErrProductExists, p.ID)
	}

	if _, err := tx.Exec(ctx, insertStockSQL, st.ProductID, st.Count); err != nil {
		return fmt.Errorf("insert stock %s: %w", st.ProductID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
