package postgres

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/edda-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/edda-engine/pkg/apperrors"
	"github.com/ekaya-inc/edda-engine/pkg/config"
)

// buildConnectionString builds a PostgreSQL URL with proper escaping.
// All user-provided fields are escaped so passwords containing @, /, # or ?
// do not break URL parsing. When running in Docker, localhost is resolved
// to host.docker.internal.
func buildConnectionString(cfg *Config) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = DefaultSSLMode()
	}

	host := config.ResolveHostForDocker(cfg.Host)

	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		host,
		cfg.Port,
		url.QueryEscape(cfg.Database),
		url.QueryEscape(sslMode),
	)
}

// poolHandle is a pgx pool that is either owned by the adapter or borrowed
// from the ConnectionManager.
type poolHandle struct {
	pool  *pgxpool.Pool
	owned bool
}

// openPool returns the managed scan pool for datasourceID, or an unmanaged
// pool when connMgr is nil or datasourceID is uuid.Nil.
func openPool(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, datasourceID uuid.UUID) (*poolHandle, error) {
	connStr := buildConnectionString(cfg)

	if connMgr == nil || datasourceID == uuid.Nil {
		connector, err := datasource.CreatePostgresPool(ctx, connStr, datasource.DefaultPoolSettings())
		if err != nil {
			return nil, classifyError(apperrors.StageConnect, "", fmt.Errorf("connect to postgres: %w", err))
		}
		pool, err := datasource.GetPostgresPool(connector)
		if err != nil {
			return nil, err
		}
		return &poolHandle{pool: pool, owned: true}, nil
	}

	connector, err := connMgr.GetOrCreateConnection(ctx, datasourceID, datasource.PurposeScan,
		func(ctx context.Context, settings datasource.PoolSettings) (datasource.PoolConnector, error) {
			return datasource.CreatePostgresPool(ctx, connStr, settings)
		})
	if err != nil {
		return nil, classifyError(apperrors.StageConnect, "", fmt.Errorf("failed to get pooled connection: %w", err))
	}

	pool, err := datasource.GetPostgresPool(connector)
	if err != nil {
		return nil, fmt.Errorf("failed to extract postgres pool: %w", err)
	}
	return &poolHandle{pool: pool}, nil
}

// close releases the pool if the adapter owns it. Managed pools are left
// to the ConnectionManager's TTL.
func (h *poolHandle) close() {
	if h != nil && h.owned && h.pool != nil {
		h.pool.Close()
	}
}

// Adapter provides PostgreSQL connection testing.
type Adapter struct {
	config *Config
	handle *poolHandle
}

// NewAdapter creates a PostgreSQL connection tester.
func NewAdapter(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, datasourceID uuid.UUID) (*Adapter, error) {
	handle, err := openPool(ctx, cfg, connMgr, datasourceID)
	if err != nil {
		return nil, err
	}
	return &Adapter{config: cfg, handle: handle}, nil
}

// TestConnection verifies the database is reachable with valid credentials.
// It checks:
// 1. Server connectivity (ping)
// 2. Database access (simple query)
// 3. Correct database name (to prevent connecting to wrong/default database)
func (a *Adapter) TestConnection(ctx context.Context) error {
	pool := a.handle.pool

	if err := pool.Ping(ctx); err != nil {
		return classifyError(apperrors.StageConnect, "", fmt.Errorf("ping failed: %w", err))
	}

	var result int
	if err := pool.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		return classifyError(apperrors.StageConnect, "", fmt.Errorf("test query failed: %w", err))
	}

	var currentDB string
	if err := pool.QueryRow(ctx, "SELECT current_database()").Scan(&currentDB); err != nil {
		return classifyError(apperrors.StageConnect, "", fmt.Errorf("failed to get current database name: %w", err))
	}

	// Case-insensitive to match the SQL Server and MySQL adapters.
	if !strings.EqualFold(currentDB, a.config.Database) {
		return apperrors.NewScanError(apperrors.KindAuthFailed, apperrors.StageConnect, "",
			fmt.Errorf("connected to wrong database: expected %q but connected to %q", a.config.Database, currentDB))
	}

	return nil
}

// Close releases the adapter (but NOT the pool if managed).
func (a *Adapter) Close() error {
	a.handle.close()
	return nil
}

// Ensure Adapter implements ConnectionTester at compile time.
var _ datasource.ConnectionTester = (*Adapter)(nil)
