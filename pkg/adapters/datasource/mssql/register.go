package mssql

import (
	"context"

	"github.com/google/uuid"

	"github.com/ekaya-inc/edda-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/edda-engine/pkg/models"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        string(models.DBTypeSQLServer),
			DisplayName: "Microsoft SQL Server",
			Description: "Connect to SQL Server 2016+ and Azure SQL Database",
			DefaultPort: DefaultPort(),
		},
		TesterFactory: func(ctx context.Context, config map[string]any, connMgr *datasource.ConnectionManager, datasourceID uuid.UUID) (datasource.ConnectionTester, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewAdapter(ctx, cfg, connMgr, datasourceID)
		},
		CatalogReaderFactory: func(ctx context.Context, config map[string]any, connMgr *datasource.ConnectionManager, datasourceID uuid.UUID) (datasource.CatalogReader, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewCatalogReader(ctx, cfg, connMgr, datasourceID)
		},
		SamplerFactory: func(ctx context.Context, config map[string]any, connMgr *datasource.ConnectionManager, datasourceID uuid.UUID) (datasource.Sampler, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewSampler(ctx, cfg, connMgr, datasourceID)
		},
	})
}
