package datasource

import "context"

// PoolConnector abstracts a target connection pool across engines
// (pgxpool for PostgreSQL, database/sql for SQL Server and MySQL).
type PoolConnector interface {
	// Ping verifies the connection is alive
	Ping(ctx context.Context) error

	// Close closes all connections in the pool
	Close() error

	// GetType returns the database type for logging/stats
	GetType() string
}

// ConnectorFactory opens a new pool. It is called by the ConnectionManager
// when no healthy pool exists for a key.
type ConnectorFactory func(ctx context.Context, settings PoolSettings) (PoolConnector, error)
