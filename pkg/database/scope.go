package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx shared by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Scope carries the connection repositories run their statements on.
type Scope struct {
	Conn    Querier
	release func()
}

// Close releases the underlying connection, if the scope owns one.
// It must be called when the scope is no longer needed.
func (s *Scope) Close() {
	if s == nil || s.release == nil {
		return
	}
	s.release()
	s.release = nil
}

// Acquire takes a dedicated connection from the pool. Used per HTTP request.
func (db *DB) Acquire(ctx context.Context) (*Scope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Scope{Conn: conn, release: conn.Release}, nil
}

// PoolScope returns a scope backed by the pool itself. Statements borrow a
// connection each, so the scope is safe for concurrent scan workers and
// long-running background work.
func (db *DB) PoolScope() *Scope {
	return &Scope{Conn: db.Pool}
}

// NewScope wraps an arbitrary Querier, such as a transaction.
func NewScope(q Querier) *Scope {
	return &Scope{Conn: q}
}
