package datasource

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolSettings sizes a target pool.
type PoolSettings struct {
	MaxConns    int32
	MinConns    int32
	MaxIdleTime time.Duration
}

// DefaultPoolSettings is used by adapters that run without a ConnectionManager.
func DefaultPoolSettings() PoolSettings {
	return PoolSettings{
		MaxConns:    DefaultPoolMaxConns,
		MinConns:    0,
		MaxIdleTime: time.Duration(DefaultConnectionTTLMinutes) * time.Minute,
	}
}

// CreatePostgresPool creates a PostgreSQL connection pool
func CreatePostgresPool(ctx context.Context, connString string, settings PoolSettings) (PoolConnector, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = settings.MaxConns
	poolConfig.MinConns = settings.MinConns
	poolConfig.MaxConnIdleTime = settings.MaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return NewPostgresPoolWrapper(pool), nil
}

// OpenSQLPool opens a database/sql pool for a registered driver and pings it.
func OpenSQLPool(ctx context.Context, driverName, dsn, dbType string, settings PoolSettings) (PoolConnector, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	return WrapSQLDB(ctx, db, dbType, settings)
}

// OpenSQLConnectorPool is OpenSQLPool for drivers configured through a
// driver.Connector, such as token-based SQL Server authentication.
func OpenSQLConnectorPool(ctx context.Context, connector driver.Connector, dbType string, settings PoolSettings) (PoolConnector, error) {
	return WrapSQLDB(ctx, sql.OpenDB(connector), dbType, settings)
}

// WrapSQLDB applies pool settings to db, pings it and wraps it.
// db is closed when the ping fails.
func WrapSQLDB(ctx context.Context, db *sql.DB, dbType string, settings PoolSettings) (PoolConnector, error) {
	db.SetMaxOpenConns(int(settings.MaxConns))
	db.SetMaxIdleConns(max(int(settings.MinConns), 1))
	db.SetConnMaxIdleTime(settings.MaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return NewSQLPoolWrapper(db, dbType), nil
}

// GetPostgresPool extracts the underlying *pgxpool.Pool from a PoolConnector.
// Returns an error if the connector is not a PostgreSQL pool.
func GetPostgresPool(connector PoolConnector) (*pgxpool.Pool, error) {
	wrapper, ok := connector.(*PostgresPoolWrapper)
	if !ok {
		return nil, fmt.Errorf("connector is not a PostgreSQL pool wrapper")
	}
	return wrapper.GetPool(), nil
}

// GetSQLDB extracts the underlying *sql.DB from a PoolConnector.
// Returns an error if the connector is not a database/sql pool.
func GetSQLDB(connector PoolConnector) (*sql.DB, error) {
	wrapper, ok := connector.(*SQLPoolWrapper)
	if !ok {
		return nil, fmt.Errorf("connector is not a database/sql pool wrapper")
	}
	return wrapper.GetDB(), nil
}
