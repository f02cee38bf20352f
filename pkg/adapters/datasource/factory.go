package datasource

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ekaya-inc/edda-engine/pkg/apperrors"
)

// DatasourceAdapterFactory creates adapters from the registry.
type DatasourceAdapterFactory interface {
	// NewConnectionTester creates an unmanaged connection tester. Validation
	// runs before a datasource exists, so its pool is never shared.
	NewConnectionTester(ctx context.Context, dsType string, config map[string]any) (ConnectionTester, error)

	// NewCatalogReader creates a catalog reader on the datasource's managed pool.
	NewCatalogReader(ctx context.Context, dsType string, config map[string]any, datasourceID uuid.UUID) (CatalogReader, error)

	// NewSampler creates a sampler on the datasource's managed pool.
	NewSampler(ctx context.Context, dsType string, config map[string]any, datasourceID uuid.UUID) (Sampler, error)

	// ListTypes returns info for all registered adapter types.
	ListTypes() []DatasourceAdapterInfo
}

type registryFactory struct {
	connMgr *ConnectionManager
}

// NewDatasourceAdapterFactory returns a factory that uses the global registry.
func NewDatasourceAdapterFactory(connMgr *ConnectionManager) DatasourceAdapterFactory {
	return &registryFactory{
		connMgr: connMgr,
	}
}

// unsupported reports a datasource type with no registered adapter.
func unsupported(dsType string) error {
	return apperrors.NewScanError(apperrors.KindUnsupportedType, apperrors.StageConnect, "",
		fmt.Errorf("unsupported datasource type: %q", dsType))
}

func (f *registryFactory) NewConnectionTester(ctx context.Context, dsType string, config map[string]any) (ConnectionTester, error) {
	reg, ok := lookup(dsType)
	if !ok || reg.TesterFactory == nil {
		return nil, unsupported(dsType)
	}
	return reg.TesterFactory(ctx, config, nil, uuid.Nil)
}

func (f *registryFactory) NewCatalogReader(ctx context.Context, dsType string, config map[string]any, datasourceID uuid.UUID) (CatalogReader, error) {
	reg, ok := lookup(dsType)
	if !ok || reg.CatalogReaderFactory == nil {
		return nil, unsupported(dsType)
	}
	return reg.CatalogReaderFactory(ctx, config, f.connMgr, datasourceID)
}

func (f *registryFactory) NewSampler(ctx context.Context, dsType string, config map[string]any, datasourceID uuid.UUID) (Sampler, error) {
	reg, ok := lookup(dsType)
	if !ok || reg.SamplerFactory == nil {
		return nil, unsupported(dsType)
	}
	return reg.SamplerFactory(ctx, config, f.connMgr, datasourceID)
}

func (f *registryFactory) ListTypes() []DatasourceAdapterInfo {
	return RegisteredAdapters()
}

// Ensure registryFactory implements DatasourceAdapterFactory at compile time.
var _ DatasourceAdapterFactory = (*registryFactory)(nil)
