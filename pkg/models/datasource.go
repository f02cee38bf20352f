package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DBType identifies the engine behind a data source.
type DBType string

const (
	DBTypePostgres  DBType = "postgres"
	DBTypeSQLServer DBType = "sqlserver"
	DBTypeMySQL     DBType = "mysql"
)

// SupportedDBTypes lists the engines the scanner can connect to.
var SupportedDBTypes = []DBType{DBTypePostgres, DBTypeSQLServer, DBTypeMySQL}

// Valid reports whether t is a supported engine.
func (t DBType) Valid() bool {
	switch t {
	case DBTypePostgres, DBTypeSQLServer, DBTypeMySQL:
		return true
	}
	return false
}

// DefaultPort returns the engine's well-known port, or 0 for unknown types.
func (t DBType) DefaultPort() int {
	switch t {
	case DBTypePostgres:
		return 5432
	case DBTypeSQLServer:
		return 1433
	case DBTypeMySQL:
		return 3306
	}
	return 0
}

// DefaultSchema returns the schema scanned when none is configured.
// MySQL has no schemas below the database, so the database name is used.
func (t DBType) DefaultSchema(database string) string {
	switch t {
	case DBTypePostgres:
		return "public"
	case DBTypeSQLServer:
		return "dbo"
	case DBTypeMySQL:
		return database
	}
	return ""
}

// DataSource is a registered target database.
// Credentials are decrypted by the service layer and never serialized.
type DataSource struct {
	ID          uuid.UUID         `json:"id"`
	Name        string            `json:"name"`
	DBType      DBType            `json:"db_type"`
	Host        string            `json:"host"`
	Port        int               `json:"port"`
	Database    string            `json:"database"`
	Schema      string            `json:"schema"`
	Username    string            `json:"username"`
	Credentials map[string]string `json:"-"` // password plus engine-specific auth fields
	Schedule    string            `json:"schedule,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// EffectiveSchema returns the configured schema or the engine default.
func (d *DataSource) EffectiveSchema() string {
	if s := strings.TrimSpace(d.Schema); s != "" {
		return s
	}
	return d.DBType.DefaultSchema(d.Database)
}

// AdapterConfig flattens the data source into the generic config map the
// datasource adapters parse with their FromMap functions.
func (d *DataSource) AdapterConfig() map[string]any {
	cfg := map[string]any{
		"host":     d.Host,
		"port":     d.Port,
		"database": d.Database,
		"user":     d.Username,
		"schema":   d.EffectiveSchema(),
	}
	for k, v := range d.Credentials {
		cfg[k] = v
	}
	return cfg
}
