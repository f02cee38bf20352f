package datasource

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// DatasourceAdapterInfo describes a registered adapter.
type DatasourceAdapterInfo struct {
	Type        string `json:"type"`         // "postgres", "sqlserver", "mysql"
	DisplayName string `json:"display_name"` // "PostgreSQL", "Microsoft SQL Server"
	Description string `json:"description"`
	DefaultPort int    `json:"default_port"`
}

// Factory signatures shared by all adapters. A nil connMgr or uuid.Nil
// datasourceID yields an adapter with its own unmanaged pool.
type (
	TesterFactory        func(ctx context.Context, config map[string]any, connMgr *ConnectionManager, datasourceID uuid.UUID) (ConnectionTester, error)
	CatalogReaderFactory func(ctx context.Context, config map[string]any, connMgr *ConnectionManager, datasourceID uuid.UUID) (CatalogReader, error)
	SamplerFactory       func(ctx context.Context, config map[string]any, connMgr *ConnectionManager, datasourceID uuid.UUID) (Sampler, error)
)

// DatasourceAdapterRegistration contains info + factories for creating adapters.
type DatasourceAdapterRegistration struct {
	Info                 DatasourceAdapterInfo
	TesterFactory        TesterFactory
	CatalogReaderFactory CatalogReaderFactory
	SamplerFactory       SamplerFactory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]DatasourceAdapterRegistration)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg DatasourceAdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for all registered adapters, sorted by type.
func RegisteredAdapters() []DatasourceAdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]DatasourceAdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// lookup returns the registration for a datasource type.
func lookup(dsType string) (DatasourceAdapterRegistration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[dsType]
	return reg, ok
}

// IsRegistered checks if an adapter type is available.
func IsRegistered(dsType string) bool {
	_, ok := lookup(dsType)
	return ok
}
