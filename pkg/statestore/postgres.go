package statestore

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresTable holds one row per state key.
const PostgresTable = "ticketsync_state"

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS ` + PostgresTable + ` (
	state_key  TEXT PRIMARY KEY,
	data       BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	selectStateSQL = `SELECT data FROM ` + PostgresTable + ` WHERE state_key = $1`
	upsertStateSQL = `INSERT INTO ` + PostgresTable + ` (state_key, data, updated_at) VALUES ($1, $2, now())
ON CONFLICT (state_key) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
)

// PGConn is the subset of *pgxpool.Pool a PostgresBlob uses.
type PGConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresBlob stores the object as a row of PostgresTable.
type PostgresBlob struct {
	conn  PGConn
	pool  *pgxpool.Pool
	key   string
	where string
}

// NewPostgresBlob connects to dsn and creates PostgresTable when missing.
func NewPostgresBlob(ctx context.Context, dsn, key string) (*PostgresBlob, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	poolConfig.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}

	b := NewPostgresBlobWithConn(pool, key)
	b.pool = pool
	b.where = fmt.Sprintf("postgres://%s/%s", poolConfig.ConnConfig.Host, poolConfig.ConnConfig.Database)
	if err := b.ensureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return b, nil
}

// NewPostgresBlobWithConn wraps an existing connection. The table must exist.
func NewPostgresBlobWithConn(conn PGConn, key string) *PostgresBlob {
	return &PostgresBlob{conn: conn, key: key, where: "postgres"}
}

func (b *PostgresBlob) ensureTable(ctx context.Context) error {
	if _, err := b.conn.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create %s: %w", PostgresTable, err)
	}
	return nil
}

func (b *PostgresBlob) Read(ctx context.Context) ([]byte, error) {
	var data []byte
	err := b.conn.QueryRow(ctx, selectStateSQL, b.key).Scan(&data)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (b *PostgresBlob) Write(ctx context.Context, data []byte) error {
	_, err := b.conn.Exec(ctx, upsertStateSQL, b.key, data)
	return err
}

func (b *PostgresBlob) Location() string { return b.where + "#" + b.key }

func (b *PostgresBlob) Close() error {
	if b.pool != nil {
		b.pool.Close()
	}
	return nil
}
