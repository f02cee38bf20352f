package handlers

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ekaya-inc/edda-engine/pkg/models"
	"github.com/ekaya-inc/edda-engine/pkg/services"
)

// mockDatasourceService records inputs and returns configured results.
type mockDatasourceService struct {
	datasources []*models.DataSource
	created     *models.DataSource
	lastInput   services.DatasourceInput
	deletedID   uuid.UUID
	err         error
}

func (m *mockDatasourceService) TestConnection(ctx context.Context, in services.DatasourceInput) error {
	m.lastInput = in
	return m.err
}

func (m *mockDatasourceService) Create(ctx context.Context, in services.DatasourceInput) (*models.DataSource, error) {
	m.lastInput = in
	if m.err != nil {
		return nil, m.err
	}
	if m.created != nil {
		return m.created, nil
	}
	return &models.DataSource{ID: uuid.New(), Name: in.Name, Schedule: in.Schedule}, nil
}

func (m *mockDatasourceService) Get(ctx context.Context, id uuid.UUID) (*models.DataSource, error) {
	return nil, m.err
}

func (m *mockDatasourceService) List(ctx context.Context) ([]*models.DataSource, error) {
	return m.datasources, m.err
}

func (m *mockDatasourceService) Delete(ctx context.Context, id uuid.UUID) error {
	m.deletedID = id
	return m.err
}

func (m *mockDatasourceService) Revalidate(ctx context.Context, ds *models.DataSource) error {
	return m.err
}

// mockScheduleRegistrar records registrations.
type mockScheduleRegistrar struct {
	registered []uuid.UUID
	removed    []uuid.UUID
}

func (m *mockScheduleRegistrar) Register(ds *models.DataSource) error {
	m.registered = append(m.registered, ds.ID)
	return nil
}

func (m *mockScheduleRegistrar) Remove(id uuid.UUID) {
	m.removed = append(m.removed, id)
}

// mockScanService returns configured results.
type mockScanService struct {
	mu        sync.Mutex
	runID     uuid.UUID
	run       *models.ScanRun
	recent    []*models.ScanRun
	startMode models.ScanMode
	startSize int
	cancelled uuid.UUID
	err       error
}

func (m *mockScanService) StartScan(ctx context.Context, dataSourceID uuid.UUID, mode models.ScanMode, sampleSize int) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startMode = mode
	m.startSize = sampleSize
	return m.runID, m.err
}

func (m *mockScanService) CancelScan(ctx context.Context, scanRunID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = scanRunID
	return m.err
}

func (m *mockScanService) GetScan(ctx context.Context, scanRunID uuid.UUID) (*models.ScanRun, error) {
	return m.run, m.err
}

func (m *mockScanService) RecentScans(ctx context.Context, limit int) ([]*models.ScanRun, error) {
	return m.recent, m.err
}

func (m *mockScanService) Shutdown(ctx context.Context) error {
	return nil
}

// mockMetadataService returns configured results.
type mockMetadataService struct {
	tables  []*models.Table
	table   *models.Table
	columns []*models.Column
	rels    []*models.Relationship
	quality *models.QualityReport
	doc     *models.TableDoc
	export  *services.Export
	format  string
	lastRun uuid.UUID
	err     error
}

func (m *mockMetadataService) ListTables(ctx context.Context, scanRunID uuid.UUID) ([]*models.Table, error) {
	m.lastRun = scanRunID
	return m.tables, m.err
}

func (m *mockMetadataService) GetTable(ctx context.Context, tableID uuid.UUID) (*models.Table, error) {
	return m.table, m.err
}

func (m *mockMetadataService) ListColumns(ctx context.Context, tableID uuid.UUID) ([]*models.Column, error) {
	return m.columns, m.err
}

func (m *mockMetadataService) ListRelationships(ctx context.Context, tableID uuid.UUID) ([]*models.Relationship, error) {
	return m.rels, m.err
}

func (m *mockMetadataService) GetQuality(ctx context.Context, tableID uuid.UUID) (*models.QualityReport, error) {
	return m.quality, m.err
}

func (m *mockMetadataService) GetDocs(ctx context.Context, tableID uuid.UUID) (*models.TableDoc, error) {
	return m.doc, m.err
}

func (m *mockMetadataService) Export(ctx context.Context, tableID uuid.UUID, format string) (*services.Export, error) {
	m.format = format
	return m.export, m.err
}

// mockChatService echoes the request it received.
type mockChatService struct {
	last   services.ChatRequest
	answer *services.ChatAnswer
	err    error
}

func (m *mockChatService) Ask(ctx context.Context, req services.ChatRequest) (*services.ChatAnswer, error) {
	m.last = req
	return m.answer, m.err
}
