package datasource

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/edda-engine/pkg/apperrors"
)

type mockConnectionTester struct {
	datasourceID uuid.UUID
	connMgr      *ConnectionManager
}

func (m *mockConnectionTester) TestConnection(ctx context.Context) error { return nil }
func (m *mockConnectionTester) Close() error                             { return nil }

type mockCatalogReader struct {
	datasourceID uuid.UUID
	connMgr      *ConnectionManager
}

func (m *mockCatalogReader) ReadCatalog(ctx context.Context, schema string) (*Catalog, error) {
	return &Catalog{Schema: schema}, nil
}
func (m *mockCatalogReader) Close() error { return nil }

type mockSampler struct {
	datasourceID uuid.UUID
}

func (m *mockSampler) Sample(ctx context.Context, req SampleRequest) (*Sample, error) {
	return &Sample{Columns: req.Columns}, nil
}
func (m *mockSampler) Close() error { return nil }

func registerMock(t *testing.T, dsType string) {
	t.Helper()
	Register(DatasourceAdapterRegistration{
		Info: DatasourceAdapterInfo{Type: dsType, DisplayName: "Mock"},
		TesterFactory: func(ctx context.Context, config map[string]any, connMgr *ConnectionManager, datasourceID uuid.UUID) (ConnectionTester, error) {
			return &mockConnectionTester{datasourceID: datasourceID, connMgr: connMgr}, nil
		},
		CatalogReaderFactory: func(ctx context.Context, config map[string]any, connMgr *ConnectionManager, datasourceID uuid.UUID) (CatalogReader, error) {
			return &mockCatalogReader{datasourceID: datasourceID, connMgr: connMgr}, nil
		},
		SamplerFactory: func(ctx context.Context, config map[string]any, connMgr *ConnectionManager, datasourceID uuid.UUID) (Sampler, error) {
			return &mockSampler{datasourceID: datasourceID}, nil
		},
	})
	t.Cleanup(func() {
		registryMu.Lock()
		delete(registry, dsType)
		registryMu.Unlock()
	})
}

func TestFactory_PassesConnectionManagerAndDatasource(t *testing.T) {
	registerMock(t, "mock_factory")

	cm := NewConnectionManager(ConnectionManagerConfig{}, zaptest.NewLogger(t))
	defer cm.Close()
	factory := NewDatasourceAdapterFactory(cm)
	ctx := context.Background()
	dsID := uuid.New()

	reader, err := factory.NewCatalogReader(ctx, "mock_factory", map[string]any{}, dsID)
	require.NoError(t, err)
	mockReader := reader.(*mockCatalogReader)
	assert.Same(t, cm, mockReader.connMgr)
	assert.Equal(t, dsID, mockReader.datasourceID)

	sampler, err := factory.NewSampler(ctx, "mock_factory", map[string]any{}, dsID)
	require.NoError(t, err)
	assert.Equal(t, dsID, sampler.(*mockSampler).datasourceID)
}

func TestFactory_ConnectionTesterIsUnmanaged(t *testing.T) {
	registerMock(t, "mock_tester")

	cm := NewConnectionManager(ConnectionManagerConfig{}, zaptest.NewLogger(t))
	defer cm.Close()
	factory := NewDatasourceAdapterFactory(cm)

	tester, err := factory.NewConnectionTester(context.Background(), "mock_tester", map[string]any{})
	require.NoError(t, err)

	mock := tester.(*mockConnectionTester)
	assert.Nil(t, mock.connMgr)
	assert.Equal(t, uuid.Nil, mock.datasourceID)
}

func TestFactory_UnsupportedType(t *testing.T) {
	factory := NewDatasourceAdapterFactory(nil)
	ctx := context.Background()

	_, err := factory.NewConnectionTester(ctx, "oracle", nil)
	assert.Equal(t, apperrors.KindUnsupportedType, apperrors.KindOf(err))

	_, err = factory.NewCatalogReader(ctx, "oracle", nil, uuid.New())
	assert.Equal(t, apperrors.KindUnsupportedType, apperrors.KindOf(err))

	_, err = factory.NewSampler(ctx, "oracle", nil, uuid.New())
	assert.Equal(t, apperrors.KindUnsupportedType, apperrors.KindOf(err))
}

func TestRegisteredAdapters_Sorted(t *testing.T) {
	registerMock(t, "zz_mock")
	registerMock(t, "aa_mock")

	types := RegisteredAdapters()
	for i := 1; i < len(types); i++ {
		assert.LessOrEqual(t, types[i-1].Type, types[i].Type)
	}
	assert.True(t, IsRegistered("aa_mock"))
	assert.False(t, IsRegistered("not_registered"))
}
