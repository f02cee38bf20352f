package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	_ "github.com/microsoft/go-mssqldb" // SQL Server driver
	"github.com/microsoft/go-mssqldb/azuread"

	"github.com/ekaya-inc/edda-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/edda-engine/pkg/apperrors"
	"github.com/ekaya-inc/edda-engine/pkg/config"
	"github.com/ekaya-inc/edda-engine/pkg/models"
)

const sqlDriverName = "sqlserver"

// buildConnectionString returns the driver name and URL for cfg.
// SQL authentication uses the sqlserver driver; service principals go
// through the azuresql driver with fedauth.
func buildConnectionString(cfg *Config) (string, string) {
	query := url.Values{}
	query.Add("database", cfg.Database)
	if cfg.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "false")
	}
	if cfg.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if cfg.ConnectionTimeout > 0 {
		query.Add("connection timeout", strconv.Itoa(cfg.ConnectionTimeout))
	}

	u := &url.URL{
		Scheme: "sqlserver",
		Host:   fmt.Sprintf("%s:%d", config.ResolveHostForDocker(cfg.Host), cfg.Port),
	}

	if cfg.AuthMethod == AuthMethodServicePrincipal {
		query.Add("fedauth", azuread.ActiveDirectoryServicePrincipal)
		u.User = url.UserPassword(cfg.ClientID+"@"+cfg.TenantID, cfg.ClientSecret)
		u.RawQuery = query.Encode()
		return azuread.DriverName, u.String()
	}

	u.User = url.UserPassword(cfg.Username, cfg.Password)
	u.RawQuery = query.Encode()
	return sqlDriverName, u.String()
}

// dbHandle is a database/sql pool that is either owned by the adapter or
// borrowed from the ConnectionManager.
type dbHandle struct {
	db    *sql.DB
	owned bool
}

// openDB returns the managed scan pool for datasourceID, or an unmanaged
// pool when connMgr is nil or datasourceID is uuid.Nil.
func openDB(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, datasourceID uuid.UUID) (*dbHandle, error) {
	driverName, connStr := buildConnectionString(cfg)
	dbType := string(models.DBTypeSQLServer)

	if connMgr == nil || datasourceID == uuid.Nil {
		connector, err := datasource.OpenSQLPool(ctx, driverName, connStr, dbType, datasource.DefaultPoolSettings())
		if err != nil {
			return nil, classifyError(apperrors.StageConnect, "", fmt.Errorf("connect to sql server: %w", err))
		}
		db, err := datasource.GetSQLDB(connector)
		if err != nil {
			return nil, err
		}
		return &dbHandle{db: db, owned: true}, nil
	}

	connector, err := connMgr.GetOrCreateConnection(ctx, datasourceID, datasource.PurposeScan,
		func(ctx context.Context, settings datasource.PoolSettings) (datasource.PoolConnector, error) {
			return datasource.OpenSQLPool(ctx, driverName, connStr, dbType, settings)
		})
	if err != nil {
		return nil, classifyError(apperrors.StageConnect, "", fmt.Errorf("failed to get pooled connection: %w", err))
	}

	db, err := datasource.GetSQLDB(connector)
	if err != nil {
		return nil, fmt.Errorf("failed to extract sql server pool: %w", err)
	}
	return &dbHandle{db: db}, nil
}

func (h *dbHandle) close() {
	if h != nil && h.owned && h.db != nil {
		h.db.Close()
	}
}

// Adapter provides SQL Server connection testing.
type Adapter struct {
	config *Config
	handle *dbHandle
}

// NewAdapter creates a SQL Server connection tester.
func NewAdapter(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, datasourceID uuid.UUID) (*Adapter, error) {
	handle, err := openDB(ctx, cfg, connMgr, datasourceID)
	if err != nil {
		return nil, err
	}
	return &Adapter{config: cfg, handle: handle}, nil
}

// TestConnection verifies the database is reachable with valid credentials
// and that the login landed in the configured database rather than its
// default one.
func (a *Adapter) TestConnection(ctx context.Context) error {
	db := a.handle.db

	if err := db.PingContext(ctx); err != nil {
		return classifyError(apperrors.StageConnect, "", fmt.Errorf("ping failed: %w", err))
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return classifyError(apperrors.StageConnect, "", fmt.Errorf("test query failed: %w", err))
	}

	var currentDB string
	if err := db.QueryRowContext(ctx, "SELECT DB_NAME()").Scan(&currentDB); err != nil {
		return classifyError(apperrors.StageConnect, "", fmt.Errorf("failed to get current database name: %w", err))
	}

	// SQL Server database names are case-insensitive by default.
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

var _ datasource.ConnectionTester = (*Adapter)(nil)
