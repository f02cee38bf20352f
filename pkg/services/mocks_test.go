package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/edda-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/edda-engine/pkg/apperrors"
	"github.com/ekaya-inc/edda-engine/pkg/models"
	"github.com/ekaya-inc/edda-engine/pkg/repositories"
)

// Test encryption key (32 bytes, base64 encoded) - same as crypto/credentials_test.go
const testEncryptionKey = "dGVzdC1rZXktZm9yLXVuaXQtdGVzdHMtMzItYnl0ZXM="

// ============================================================================
// Repositories
// ============================================================================

type mockDatasourceRepository struct {
	mu        sync.Mutex
	byID      map[uuid.UUID]*models.DataSource
	sealed    map[uuid.UUID]string
	order     []uuid.UUID
	createErr error
	deleteErr error

	// Capture inputs for verification
	capturedSealed string
}

func newMockDatasourceRepository() *mockDatasourceRepository {
	return &mockDatasourceRepository{
		byID:   make(map[uuid.UUID]*models.DataSource),
		sealed: make(map[uuid.UUID]string),
	}
}

func (m *mockDatasourceRepository) Create(ctx context.Context, ds *models.DataSource, encryptedCredentials string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capturedSealed = encryptedCredentials
	if m.createErr != nil {
		return m.createErr
	}
	ds.ID = uuid.New()
	ds.CreatedAt = time.Now()
	stored := *ds
	stored.Credentials = nil
	m.byID[ds.ID] = &stored
	m.sealed[ds.ID] = encryptedCredentials
	m.order = append([]uuid.UUID{ds.ID}, m.order...)
	return nil
}

func (m *mockDatasourceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DataSource, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ds, ok := m.byID[id]
	if !ok {
		return nil, "", apperrors.ErrNotFound
	}
	cp := *ds
	return &cp, m.sealed[id], nil
}

func (m *mockDatasourceRepository) List(ctx context.Context) ([]*models.DataSource, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*models.DataSource
	var sealed []string
	for _, id := range m.order {
		cp := *m.byID[id]
		list = append(list, &cp)
		sealed = append(sealed, m.sealed[id])
	}
	return list, sealed, nil
}

func (m *mockDatasourceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.byID[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.byID, id)
	delete(m.sealed, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// mockScanRunRepository keeps runs in memory and enforces the same
// transitions as the database: one active run per datasource, terminal
// states are final.
type mockScanRunRepository struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*models.ScanRun

	// counts records every UpdateCounts call in order.
	counts []models.ScanCounts
}

func newMockScanRunRepository() *mockScanRunRepository {
	return &mockScanRunRepository{runs: make(map[uuid.UUID]*models.ScanRun)}
}

func (m *mockScanRunRepository) Create(ctx context.Context, run *models.ScanRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.DataSourceID == run.DataSourceID && r.Status.IsActive() {
			return apperrors.ErrConflict
		}
	}
	run.ID = uuid.New()
	run.Status = models.ScanStatusPending
	run.StartedAt = time.Now()
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *mockScanRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ScanRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockScanRunRepository) ListRecent(ctx context.Context, limit int) ([]*models.ScanRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]*models.ScanRun, 0, len(m.runs))
	for _, r := range m.runs {
		cp := *r
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].StartedAt.After(list[j].StartedAt) })
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m *mockScanRunRepository) transition(id uuid.UUID, from []models.ScanStatus, apply func(r *models.ScanRun)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	for _, s := range from {
		if r.Status == s {
			apply(r)
			return nil
		}
	}
	return fmt.Errorf("scan run %s is %s: %w", id, r.Status, apperrors.ErrInvalidTransition)
}

func (m *mockScanRunRepository) MarkRunning(ctx context.Context, id uuid.UUID) error {
	return m.transition(id, []models.ScanStatus{models.ScanStatusPending}, func(r *models.ScanRun) {
		r.Status = models.ScanStatusRunning
	})
}

func (m *mockScanRunRepository) SetCatalogResult(ctx context.Context, id uuid.UUID, schemaHash string, tablesTotal int) error {
	return m.transition(id, []models.ScanStatus{models.ScanStatusRunning}, func(r *models.ScanRun) {
		r.SchemaHash = schemaHash
		r.TablesTotal = tablesTotal
	})
}

func (m *mockScanRunRepository) UpdateCounts(ctx context.Context, id uuid.UUID, counts models.ScanCounts) error {
	m.mu.Lock()
	m.counts = append(m.counts, counts)
	m.mu.Unlock()
	return m.transition(id, []models.ScanStatus{models.ScanStatusRunning}, func(r *models.ScanRun) {
		applyCounts(r, counts)
	})
}

func (m *mockScanRunRepository) Complete(ctx context.Context, id uuid.UUID, counts models.ScanCounts) error {
	return m.transition(id, []models.ScanStatus{models.ScanStatusRunning}, func(r *models.ScanRun) {
		applyCounts(r, counts)
		r.Status = models.ScanStatusCompleted
		now := time.Now()
		r.FinishedAt = &now
	})
}

func (m *mockScanRunRepository) Fail(ctx context.Context, id uuid.UUID, message string, counts models.ScanCounts) error {
	return m.transition(id, []models.ScanStatus{models.ScanStatusPending, models.ScanStatusRunning}, func(r *models.ScanRun) {
		applyCounts(r, counts)
		r.Status = models.ScanStatusFailed
		r.Error = &message
		now := time.Now()
		r.FinishedAt = &now
	})
}

func (m *mockScanRunRepository) FailActive(ctx context.Context, message string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.runs {
		if r.Status.IsActive() {
			r.Status = models.ScanStatusFailed
			msg := message
			r.Error = &msg
			n++
		}
	}
	return n, nil
}

func applyCounts(r *models.ScanRun, c models.ScanCounts) {
	r.TablesTotal = c.Total
	r.TablesProfiled = c.Profiled
	r.TablesSkipped = c.Skipped
	r.TablesFailed = c.Failed
}

type mockScanTableRepository struct {
	mu        sync.Mutex
	tables    map[uuid.UUID]*models.Table
	columns   map[uuid.UUID][]*models.Column
	pii       map[uuid.UUID]map[string]models.PIIRisk
	createErr error
}

func newMockScanTableRepository() *mockScanTableRepository {
	return &mockScanTableRepository{
		tables:  make(map[uuid.UUID]*models.Table),
		columns: make(map[uuid.UUID][]*models.Column),
		pii:     make(map[uuid.UUID]map[string]models.PIIRisk),
	}
}

func (m *mockScanTableRepository) CreateTables(ctx context.Context, entries []repositories.TableWithColumns) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, e := range entries {
		t := *e.Table
		m.tables[t.ID] = &t
		cols := make([]*models.Column, 0, len(e.Columns))
		for _, c := range e.Columns {
			cp := *c
			cols = append(cols, &cp)
		}
		m.columns[t.ID] = cols
	}
	return nil
}

func (m *mockScanTableRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockScanTableRepository) ListByRun(ctx context.Context, scanRunID uuid.UUID) ([]*models.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*models.Table
	for _, t := range m.tables {
		if t.ScanRunID == scanRunID {
			cp := *t
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].TableName < list[j].TableName })
	return list, nil
}

func (m *mockScanTableRepository) UpdateOutcome(ctx context.Context, table *models.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table.ID]
	if !ok {
		return apperrors.ErrNotFound
	}
	t.Status = table.Status
	t.ErrorKind = table.ErrorKind
	t.ErrorStage = table.ErrorStage
	t.ErrorMessage = table.ErrorMessage
	t.SamplePartial = table.SamplePartial
	return nil
}

func (m *mockScanTableRepository) ListColumns(ctx context.Context, tableID uuid.UUID) ([]*models.Column, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[tableID]; !ok {
		return nil, apperrors.ErrNotFound
	}
	cols := append([]*models.Column(nil), m.columns[tableID]...)
	sort.Slice(cols, func(i, j int) bool { return cols[i].ColumnName < cols[j].ColumnName })
	return cols, nil
}

func (m *mockScanTableRepository) ListColumnsByRun(ctx context.Context, scanRunID uuid.UUID) (map[uuid.UUID][]*models.Column, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID][]*models.Column)
	for id, t := range m.tables {
		if t.ScanRunID == scanRunID {
			out[id] = m.columns[id]
		}
	}
	return out, nil
}

func (m *mockScanTableRepository) UpdateColumnPII(ctx context.Context, tableID uuid.UUID, risks map[string]models.PIIRisk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pii[tableID] = risks
	for _, c := range m.columns[tableID] {
		if r, ok := risks[c.ColumnName]; ok {
			c.PIIRisk = r
		}
	}
	return nil
}

// tableByName finds a stored table of any run.
func (m *mockScanTableRepository) tableByName(name string) *models.Table {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tables {
		if t.TableName == name {
			cp := *t
			return &cp
		}
	}
	return nil
}

type mockRelationshipRepository struct {
	mu    sync.Mutex
	byRun map[uuid.UUID][]*models.Relationship
	err   error
}

func newMockRelationshipRepository() *mockRelationshipRepository {
	return &mockRelationshipRepository{byRun: make(map[uuid.UUID][]*models.Relationship)}
}

func (m *mockRelationshipRepository) ReplaceForRun(ctx context.Context, scanRunID uuid.UUID, rels []*models.Relationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.byRun[scanRunID] = rels
	return nil
}

func (m *mockRelationshipRepository) ListByRun(ctx context.Context, scanRunID uuid.UUID) ([]*models.Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byRun[scanRunID], nil
}

func (m *mockRelationshipRepository) ListForTable(ctx context.Context, scanRunID uuid.UUID, schema, table string) ([]*models.Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Relationship
	for _, r := range m.byRun[scanRunID] {
		if r.Touches(schema, table) {
			out = append(out, r)
		}
	}
	return out, nil
}

type mockQualityRepository struct {
	mu      sync.Mutex
	reports map[uuid.UUID]*models.QualityReport
}

func newMockQualityRepository() *mockQualityRepository {
	return &mockQualityRepository{reports: make(map[uuid.UUID]*models.QualityReport)}
}

func (m *mockQualityRepository) Upsert(ctx context.Context, report *models.QualityReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[report.TableID] = report
	return nil
}

func (m *mockQualityRepository) GetByTableID(ctx context.Context, tableID uuid.UUID) (*models.QualityReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[tableID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return r, nil
}

type mockDocRepository struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*models.TableDoc
	err  error
}

func newMockDocRepository() *mockDocRepository {
	return &mockDocRepository{docs: make(map[uuid.UUID]*models.TableDoc)}
}

func (m *mockDocRepository) Upsert(ctx context.Context, doc *models.TableDoc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.docs[doc.TableID] = doc
	return nil
}

func (m *mockDocRepository) GetByTableID(ctx context.Context, tableID uuid.UUID) (*models.TableDoc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[tableID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return d, nil
}

func (m *mockDocRepository) ListByRun(ctx context.Context, scanRunID uuid.UUID) (map[uuid.UUID]*models.TableDoc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]*models.TableDoc, len(m.docs))
	for id, d := range m.docs {
		out[id] = d
	}
	return out, nil
}

// ============================================================================
// Adapters
// ============================================================================

type mockConnectionTester struct {
	err error
}

func (m *mockConnectionTester) TestConnection(ctx context.Context) error { return m.err }
func (m *mockConnectionTester) Close() error                             { return nil }

type mockCatalogReader struct {
	catalog *datasource.Catalog
	err     error
}

func (m *mockCatalogReader) ReadCatalog(ctx context.Context, schema string) (*datasource.Catalog, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.catalog, nil
}

func (m *mockCatalogReader) Close() error { return nil }

// mockSampler serves samples per table name. block makes a table wait for
// ctx, which lets tests hold a run open.
type mockSampler struct {
	mu      sync.Mutex
	samples map[string]*datasource.Sample
	errs    map[string]error
	block   map[string]bool
	started chan string
	calls   []datasource.SampleRequest
}

func (m *mockSampler) Sample(ctx context.Context, req datasource.SampleRequest) (*datasource.Sample, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	sample, err, block := m.samples[req.Table], m.errs[req.Table], m.block[req.Table]
	m.mu.Unlock()

	if m.started != nil {
		m.started <- req.Table
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if sample == nil {
		return &datasource.Sample{Columns: req.Columns}, nil
	}
	return sample, nil
}

func (m *mockSampler) Close() error { return nil }

type mockAdapterFactory struct {
	testerErr error
	tester    *mockConnectionTester
	reader    *mockCatalogReader
	sampler   *mockSampler

	mu           sync.Mutex
	testerConfig map[string]any
}

func (m *mockAdapterFactory) NewConnectionTester(ctx context.Context, dsType string, config map[string]any) (datasource.ConnectionTester, error) {
	m.mu.Lock()
	m.testerConfig = config
	m.mu.Unlock()
	if m.testerErr != nil {
		return nil, m.testerErr
	}
	if m.tester == nil {
		return &mockConnectionTester{}, nil
	}
	return m.tester, nil
}

func (m *mockAdapterFactory) NewCatalogReader(ctx context.Context, dsType string, config map[string]any, datasourceID uuid.UUID) (datasource.CatalogReader, error) {
	return m.reader, nil
}

func (m *mockAdapterFactory) NewSampler(ctx context.Context, dsType string, config map[string]any, datasourceID uuid.UUID) (datasource.Sampler, error) {
	return m.sampler, nil
}

func (m *mockAdapterFactory) ListTypes() []datasource.DatasourceAdapterInfo {
	return nil
}

// ============================================================================
// Services
// ============================================================================

// mockDatasourceService serves stored datasources and a fixed revalidation result.
// onRevalidate, when set, runs outside the lock before Revalidate returns.
type mockDatasourceService struct {
	mu            sync.Mutex
	datasources   map[uuid.UUID]*models.DataSource
	revalidateErr error
	revalidated   int
	onRevalidate  func()
}

func newMockDatasourceService(list ...*models.DataSource) *mockDatasourceService {
	m := &mockDatasourceService{datasources: make(map[uuid.UUID]*models.DataSource)}
	for _, ds := range list {
		m.datasources[ds.ID] = ds
	}
	return m
}

func (m *mockDatasourceService) TestConnection(ctx context.Context, in DatasourceInput) error {
	return nil
}

func (m *mockDatasourceService) Create(ctx context.Context, in DatasourceInput) (*models.DataSource, error) {
	ds := &models.DataSource{ID: uuid.New(), Name: in.Name, Schedule: in.Schedule}
	m.mu.Lock()
	m.datasources[ds.ID] = ds
	m.mu.Unlock()
	return ds, nil
}

func (m *mockDatasourceService) Get(ctx context.Context, id uuid.UUID) (*models.DataSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ds, ok := m.datasources[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return ds, nil
}

func (m *mockDatasourceService) List(ctx context.Context) ([]*models.DataSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]*models.DataSource, 0, len(m.datasources))
	for _, ds := range m.datasources {
		list = append(list, ds)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (m *mockDatasourceService) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.datasources[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.datasources, id)
	return nil
}

func (m *mockDatasourceService) Revalidate(ctx context.Context, ds *models.DataSource) error {
	m.mu.Lock()
	m.revalidated++
	err, hook := m.revalidateErr, m.onRevalidate
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

// mockScopeProvider hands out the context unchanged.
type mockScopeProvider struct{}

func (mockScopeProvider) WithScope(ctx context.Context) (context.Context, func(), error) {
	return ctx, func() {}, nil
}

// failingScopeProvider refuses the first failures scopes, then behaves like
// mockScopeProvider.
type failingScopeProvider struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (p *failingScopeProvider) WithScope(ctx context.Context) (context.Context, func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failures > 0 {
		p.failures--
		return nil, nil, errors.New("metadata pool exhausted")
	}
	return ctx, func() {}, nil
}

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []ScanEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event ScanEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) statuses() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, string(e.Status))
	}
	return out
}
