package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/ekaya-inc/edda-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/edda-engine/pkg/apperrors"
	"github.com/ekaya-inc/edda-engine/pkg/config"
	"github.com/ekaya-inc/edda-engine/pkg/models"
)

// driverConfig builds the go-sql-driver configuration. ParseTime makes
// DATETIME columns arrive as time.Time.
func driverConfig(cfg *Config) *mysql.Config {
	dc := mysql.NewConfig()
	dc.User = cfg.User
	dc.Passwd = cfg.Password
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(config.ResolveHostForDocker(cfg.Host), strconv.Itoa(cfg.Port))
	dc.DBName = cfg.Database
	dc.ParseTime = true
	dc.Timeout = cfg.DialTimeout
	dc.TLSConfig = cfg.TLS
	return dc
}

type dbHandle struct {
	db    *sql.DB
	owned bool
}

// openDB returns the managed scan pool for datasourceID, or an unmanaged
// pool when connMgr is nil or datasourceID is uuid.Nil.
func openDB(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, datasourceID uuid.UUID) (*dbHandle, error) {
	connector, err := mysql.NewConnector(driverConfig(cfg))
	if err != nil {
		return nil, apperrors.NewScanError(apperrors.KindInternal, apperrors.StageConnect, "", fmt.Errorf("build mysql connector: %w", err))
	}
	dbType := string(models.DBTypeMySQL)

	if connMgr == nil || datasourceID == uuid.Nil {
		pc, err := datasource.OpenSQLConnectorPool(ctx, connector, dbType, datasource.DefaultPoolSettings())
		if err != nil {
			return nil, classifyError(apperrors.StageConnect, "", fmt.Errorf("connect to mysql: %w", err))
		}
		db, err := datasource.GetSQLDB(pc)
		if err != nil {
			return nil, err
		}
		return &dbHandle{db: db, owned: true}, nil
	}

	pc, err := connMgr.GetOrCreateConnection(ctx, datasourceID, datasource.PurposeScan,
		func(ctx context.Context, settings datasource.PoolSettings) (datasource.PoolConnector, error) {
			return datasource.OpenSQLConnectorPool(ctx, connector, dbType, settings)
		})
	if err != nil {
		return nil, classifyError(apperrors.StageConnect, "", fmt.Errorf("failed to get pooled connection: %w", err))
	}
	db, err := datasource.GetSQLDB(pc)
	if err != nil {
		return nil, fmt.Errorf("failed to extract mysql pool: %w", err)
	}
	return &dbHandle{db: db}, nil
}

func (h *dbHandle) close() {
	if h != nil && h.owned && h.db != nil {
		h.db.Close()
	}
}

// Adapter provides MySQL connection testing.
type Adapter struct {
	config *Config
	handle *dbHandle
}

// NewAdapter creates a MySQL connection tester.
func NewAdapter(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, datasourceID uuid.UUID) (*Adapter, error) {
	handle, err := openDB(ctx, cfg, connMgr, datasourceID)
	if err != nil {
		return nil, err
	}
	return &Adapter{config: cfg, handle: handle}, nil
}

// TestConnection verifies connectivity and that DATABASE() is the configured one.
func (a *Adapter) TestConnection(ctx context.Context) error {
	db := a.handle.db

	if err := db.PingContext(ctx); err != nil {
		return classifyError(apperrors.StageConnect, "", fmt.Errorf("ping failed: %w", err))
	}

	var currentDB sql.NullString
	if err := db.QueryRowContext(ctx, "SELECT DATABASE()").Scan(&currentDB); err != nil {
		return classifyError(apperrors.StageConnect, "", fmt.Errorf("failed to get current database name: %w", err))
	}
	if !strings.EqualFold(currentDB.String, a.config.Database) {
		return apperrors.NewScanError(apperrors.KindAuthFailed, apperrors.StageConnect, "",
			fmt.Errorf("connected to wrong database: expected %q but connected to %q", a.config.Database, currentDB.String))
	}
	return nil
}

// Close releases the adapter (but NOT the pool if managed).
func (a *Adapter) Close() error {
	a.handle.close()
	return nil
}

var _ datasource.ConnectionTester = (*Adapter)(nil)
