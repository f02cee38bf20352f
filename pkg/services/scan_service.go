package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/edda-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/edda-engine/pkg/apperrors"
	"github.com/ekaya-inc/edda-engine/pkg/config"
	"github.com/ekaya-inc/edda-engine/pkg/logging"
	"github.com/ekaya-inc/edda-engine/pkg/models"
	"github.com/ekaya-inc/edda-engine/pkg/repositories"
	"github.com/ekaya-inc/edda-engine/pkg/workerpool"
)

// ErrShuttingDown is returned by StartScan once Shutdown has begun. It is
// also the failure message of runs interrupted by shutdown.
var ErrShuttingDown = errors.New("engine shutting down")

// Run-level failure messages.
var (
	errScanCancelled = errors.New("cancelled")
	errRunTimeout    = errors.New("run timeout exceeded")
)

// RecentScansLimit is the default size of the recent scans list.
const RecentScansLimit = 10

// ScanService runs scans and exposes their state.
type ScanService interface {
	// StartScan validates, locks the data source, re-validates its
	// connection and launches a background run. It returns the new run id.
	StartScan(ctx context.Context, dataSourceID uuid.UUID, mode models.ScanMode, sampleSize int) (uuid.UUID, error)

	// CancelScan stops an active run, which then fails with "cancelled".
	// Returns apperrors.ErrInvalidTransition if the run is not active.
	CancelScan(ctx context.Context, scanRunID uuid.UUID) error

	GetScan(ctx context.Context, scanRunID uuid.UUID) (*models.ScanRun, error)

	// RecentScans returns the newest runs; limit <= 0 uses RecentScansLimit.
	RecentScans(ctx context.Context, limit int) ([]*models.ScanRun, error)

	// Shutdown cancels all active runs and waits for them to record their outcome.
	Shutdown(ctx context.Context) error
}

// ScopeProvider gives background work a database scope.
type ScopeProvider interface {
	WithScope(ctx context.Context) (context.Context, func(), error)
}

// ScanServiceConfig holds the scan budgets.
type ScanServiceConfig struct {
	Workers           int
	DefaultSampleSize int
	MaxSampleSize     int
	TableTimeout      time.Duration
	RunTimeout        time.Duration
	FailureThreshold  float64
}

// NewScanServiceConfig derives the scan budgets from the application config.
func NewScanServiceConfig(cfg *config.Config) ScanServiceConfig {
	return ScanServiceConfig{
		Workers:           cfg.EffectiveWorkers(),
		DefaultSampleSize: cfg.Scan.DefaultSampleSize,
		MaxSampleSize:     cfg.Scan.MaxSampleSize,
		TableTimeout:      cfg.Scan.TableTimeout,
		RunTimeout:        cfg.Scan.RunTimeout,
		FailureThreshold:  cfg.Scan.FailureThreshold,
	}
}

// ScanRepositories groups the stores a scan writes to.
type ScanRepositories struct {
	Runs          repositories.ScanRunRepository
	Tables        repositories.ScanTableRepository
	Relationships repositories.RelationshipRepository
	Quality       repositories.QualityRepository
	Docs          repositories.DocRepository
}

type activeScan struct {
	dataSourceID uuid.UUID
	cancel       context.CancelCauseFunc
}

type scanService struct {
	cfg            ScanServiceConfig
	datasources    DatasourceService
	repos          ScanRepositories
	adapterFactory datasource.DatasourceAdapterFactory
	lock           ScanLock
	events         ScanEventPublisher
	scopes         ScopeProvider
	scorer         *QualityScorer
	inferrer       *RelationshipInferrer
	pool           *workerpool.Pool
	logger         *zap.Logger

	rootCtx    context.Context
	rootCancel context.CancelFunc

	mu       sync.Mutex
	active   map[uuid.UUID]*activeScan
	closing  bool
	inFlight sync.WaitGroup
}

// NewScanService creates the scan orchestrator.
func NewScanService(
	cfg ScanServiceConfig,
	datasources DatasourceService,
	repos ScanRepositories,
	adapterFactory datasource.DatasourceAdapterFactory,
	lock ScanLock,
	events ScanEventPublisher,
	scopes ScopeProvider,
	logger *zap.Logger,
) ScanService {
	if cfg.DefaultSampleSize < 1 {
		cfg.DefaultSampleSize = 500
	}
	if cfg.MaxSampleSize < 1 {
		cfg.MaxSampleSize = 10000
	}
	if cfg.TableTimeout <= 0 {
		cfg.TableTimeout = 30 * time.Second
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 30 * time.Minute
	}
	if lock == nil {
		lock = NewMemoryScanLock()
	}
	if events == nil {
		events = NewNoopScanEventPublisher()
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	return &scanService{
		cfg:            cfg,
		datasources:    datasources,
		repos:          repos,
		adapterFactory: adapterFactory,
		lock:           lock,
		events:         events,
		scopes:         scopes,
		scorer:         NewQualityScorer(),
		inferrer:       NewRelationshipInferrer(),
		pool:           workerpool.New(workerpool.Config{Workers: cfg.Workers}, logger),
		logger:         logger.Named("scan"),
		rootCtx:        rootCtx,
		rootCancel:     rootCancel,
		active:         make(map[uuid.UUID]*activeScan),
	}
}

func (s *scanService) StartScan(ctx context.Context, dataSourceID uuid.UUID, mode models.ScanMode, sampleSize int) (uuid.UUID, error) {
	if mode == "" {
		mode = models.ScanModeQuick
	}
	if !mode.Valid() {
		return uuid.Nil, validationError("mode must be quick or full")
	}
	if sampleSize == 0 {
		sampleSize = s.cfg.DefaultSampleSize
	}
	if sampleSize < 1 || sampleSize > s.cfg.MaxSampleSize {
		return uuid.Nil, validationError("sample_size must be between 1 and %d", s.cfg.MaxSampleSize)
	}

	s.mu.Lock()
	closing := s.closing
	s.mu.Unlock()
	if closing {
		return uuid.Nil, ErrShuttingDown
	}

	ds, err := s.datasources.Get(ctx, dataSourceID)
	if err != nil {
		return uuid.Nil, err
	}

	release, err := s.lock.Acquire(ctx, dataSourceID)
	if err != nil {
		return uuid.Nil, err
	}
	launched := false
	defer func() {
		if !launched {
			release()
		}
	}()

	if err := s.datasources.Revalidate(ctx, ds); err != nil {
		return uuid.Nil, err
	}

	run := &models.ScanRun{DataSourceID: dataSourceID, Mode: mode, SampleSize: sampleSize}
	if err := s.repos.Runs.Create(ctx, run); err != nil {
		return uuid.Nil, err
	}

	// Shutdown may have begun while the run was being created. closing is
	// checked again under the same lock as inFlight.Add so that no run is
	// added once Shutdown waits.
	runCtx, cancel := context.WithCancelCause(s.rootCtx)
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		cancel(ErrShuttingDown)
		s.fail(context.WithoutCancel(ctx), s.logger.With(zap.String("scan_run_id", run.ID.String())),
			run.ID, ErrShuttingDown.Error(), models.ScanCounts{})
		return uuid.Nil, ErrShuttingDown
	}
	s.active[run.ID] = &activeScan{dataSourceID: dataSourceID, cancel: cancel}
	s.inFlight.Add(1)
	s.mu.Unlock()
	launched = true

	s.logger.Info("Scan started",
		zap.String("scan_run_id", run.ID.String()),
		zap.String("datasource_id", dataSourceID.String()),
		zap.String("mode", string(mode)),
		zap.Int("sample_size", sampleSize))

	go func() {
		defer s.inFlight.Done()
		defer release()
		defer func() {
			s.mu.Lock()
			delete(s.active, run.ID)
			s.mu.Unlock()
			cancel(nil)
		}()
		s.execute(runCtx, run, ds)
	}()

	return run.ID, nil
}

func (s *scanService) CancelScan(ctx context.Context, scanRunID uuid.UUID) error {
	s.mu.Lock()
	active, ok := s.active[scanRunID]
	s.mu.Unlock()
	if ok {
		active.cancel(errScanCancelled)
		s.logger.Info("Scan cancellation requested", zap.String("scan_run_id", scanRunID.String()))
		return nil
	}

	run, err := s.repos.Runs.GetByID(ctx, scanRunID)
	if err != nil {
		return err
	}
	return fmt.Errorf("scan run %s is %s: %w", scanRunID, run.Status, apperrors.ErrInvalidTransition)
}

func (s *scanService) GetScan(ctx context.Context, scanRunID uuid.UUID) (*models.ScanRun, error) {
	return s.repos.Runs.GetByID(ctx, scanRunID)
}

func (s *scanService) RecentScans(ctx context.Context, limit int) ([]*models.ScanRun, error) {
	if limit <= 0 {
		limit = RecentScansLimit
	}
	return s.repos.Runs.ListRecent(ctx, limit)
}

func (s *scanService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	for _, a := range s.active {
		a.cancel(ErrShuttingDown)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.rootCancel()
		return nil
	case <-ctx.Done():
		s.rootCancel()
		return fmt.Errorf("scans still running at shutdown: %w", ctx.Err())
	}
}

// scanRun is the state of one execution.
type scanRun struct {
	run         *models.ScanRun
	ds          *models.DataSource
	catalog     *datasource.Catalog
	tables      []*models.Table
	columns     map[uuid.UUID][]*models.Column
	catalogByID map[uuid.UUID]*datasource.CatalogTable

	rels      []*models.Relationship
	relsReady chan struct{}

	profiled, skipped, failed atomic.Int32
}

func (r *scanRun) counts() models.ScanCounts {
	return models.ScanCounts{
		Total:    len(r.tables),
		Profiled: int(r.profiled.Load()),
		Skipped:  int(r.skipped.Load()),
		Failed:   int(r.failed.Load()),
	}
}

// execute runs the pipeline and records the terminal state.
func (s *scanService) execute(runCtx context.Context, run *models.ScanRun, ds *models.DataSource) {
	runCtx, cancelTimeout := context.WithTimeoutCause(runCtx, s.cfg.RunTimeout, errRunTimeout)
	defer cancelTimeout()

	logger := s.logger.With(zap.String("scan_run_id", run.ID.String()))

	ctx, cleanup, err := s.scopes.WithScope(runCtx)
	if err != nil {
		logger.Error("Failed to get database scope for scan", zap.Error(err))
		s.failUnscoped(runCtx, logger, run.ID, err)
		return
	}
	defer cleanup()

	// Terminal writes must land even after the run context is cancelled.
	finalCtx := context.WithoutCancel(ctx)

	if err := s.repos.Runs.MarkRunning(ctx, run.ID); err != nil {
		logger.Error("Failed to mark scan running", zap.Error(err))
		s.fail(finalCtx, logger, run.ID, err.Error(), models.ScanCounts{})
		return
	}
	s.publish(finalCtx, run.ID)

	state := &scanRun{run: run, ds: ds, relsReady: make(chan struct{})}
	if err := s.runPipeline(ctx, logger, state); err != nil {
		s.fail(finalCtx, logger, run.ID, s.failureMessage(runCtx, err), state.counts())
		return
	}

	if runCtx.Err() != nil {
		s.fail(finalCtx, logger, run.ID, s.failureMessage(runCtx, runCtx.Err()), state.counts())
		return
	}

	counts := state.counts()
	if exceedsFailureThreshold(counts, s.cfg.FailureThreshold) {
		msg := fmt.Sprintf("failure threshold exceeded: %d of %d tables failed", counts.Failed, counts.Total)
		s.fail(finalCtx, logger, run.ID, msg, counts)
		return
	}

	if err := s.repos.Runs.Complete(finalCtx, run.ID, counts); err != nil {
		logger.Error("Failed to complete scan", zap.Error(err))
		return
	}
	logger.Info("Scan completed",
		zap.Int("tables_total", counts.Total),
		zap.Int("tables_profiled", counts.Profiled),
		zap.Int("tables_skipped", counts.Skipped),
		zap.Int("tables_failed", counts.Failed))
	s.publish(finalCtx, run.ID)
}

// exceedsFailureThreshold applies failed/total > threshold with at least one failure.
func exceedsFailureThreshold(c models.ScanCounts, threshold float64) bool {
	if c.Failed < 1 || c.Total == 0 {
		return false
	}
	return float64(c.Failed)/float64(c.Total) > threshold
}

// failureMessage prefers the run context's cause over the error it produced.
func (s *scanService) failureMessage(runCtx context.Context, err error) string {
	if cause := context.Cause(runCtx); cause != nil {
		switch {
		case errors.Is(cause, errScanCancelled), errors.Is(cause, errRunTimeout), errors.Is(cause, ErrShuttingDown):
			return cause.Error()
		}
	}
	return logging.SanitizeError(err)
}

// failUnscoped fails a run that never got a database scope. Left pending, it
// would hold the datasource's single active-run slot until restart.
func (s *scanService) failUnscoped(runCtx context.Context, logger *zap.Logger, id uuid.UUID, cause error) {
	ctx, cleanup, err := s.scopes.WithScope(context.WithoutCancel(runCtx))
	if err != nil {
		logger.Error("Scan run left pending: no database scope", zap.Error(err))
		return
	}
	defer cleanup()
	s.fail(ctx, logger, id, logging.SanitizeError(cause), models.ScanCounts{})
}

func (s *scanService) fail(ctx context.Context, logger *zap.Logger, id uuid.UUID, msg string, counts models.ScanCounts) {
	if err := s.repos.Runs.Fail(ctx, id, msg, counts); err != nil {
		logger.Error("Failed to mark scan failed", zap.Error(err))
		return
	}
	logger.Warn("Scan failed", zap.String("error", msg))
	s.publish(ctx, id)
}

func (s *scanService) publish(ctx context.Context, id uuid.UUID) {
	run, err := s.repos.Runs.GetByID(ctx, id)
	if err != nil {
		s.logger.Warn("Failed to load scan for event", zap.String("scan_run_id", id.String()), zap.Error(err))
		return
	}
	s.events.Publish(ctx, NewScanEvent(run, time.Now()))
}

// runPipeline reads the catalog, persists it, then profiles tables and infers
// relationships in parallel. Table-level failures are recorded on the table;
// only run-level failures are returned.
func (s *scanService) runPipeline(ctx context.Context, logger *zap.Logger, state *scanRun) error {
	dbType := string(state.ds.DBType)
	cfg := state.ds.AdapterConfig()

	reader, err := s.adapterFactory.NewCatalogReader(ctx, dbType, cfg, state.ds.ID)
	if err != nil {
		return err
	}
	catalog, err := reader.ReadCatalog(ctx, state.ds.EffectiveSchema())
	_ = reader.Close()
	if err != nil {
		return err
	}
	catalog.Sort()
	state.catalog = catalog

	if err := s.storeCatalog(ctx, state); err != nil {
		return err
	}
	logger.Info("Catalog stored",
		zap.String("schema_hash", state.run.SchemaHash),
		zap.Int("tables", len(state.tables)))

	sampler, err := s.adapterFactory.NewSampler(ctx, dbType, cfg, state.ds.ID)
	if err != nil {
		return err
	}
	defer func() { _ = sampler.Close() }()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(state.relsReady)
		rels := s.inferrer.Infer(catalog)
		for _, r := range rels {
			r.ScanRunID = state.run.ID
		}
		if err := s.repos.Relationships.ReplaceForRun(gctx, state.run.ID, rels); err != nil {
			return fmt.Errorf("failed to store relationships: %w", err)
		}
		state.rels = rels
		return nil
	})

	g.Go(func() error {
		items := make([]workerpool.Item[struct{}], 0, len(state.tables))
		for _, t := range state.tables {
			items = append(items, workerpool.Item[struct{}]{
				ID: t.FullName(),
				Execute: func(ctx context.Context) (struct{}, error) {
					s.processTable(ctx, logger, state, sampler, t)
					return struct{}{}, nil
				},
			})
		}
		workerpool.Process(gctx, s.pool, items, func(completed, total int) {
			if err := s.repos.Runs.UpdateCounts(ctx, state.run.ID, state.counts()); err != nil {
				logger.Debug("Failed to update scan progress", zap.Error(err))
			}
		})
		return nil
	})

	return g.Wait()
}

// storeCatalog persists tables and columns and records the schema hash.
func (s *scanService) storeCatalog(ctx context.Context, state *scanRun) error {
	catalog := state.catalog
	declaredFK := make(map[models.ColumnRef]bool, len(catalog.ForeignKeys))
	for _, fk := range catalog.ForeignKeys {
		declaredFK[models.ColumnRef{Schema: fk.SourceSchema, Table: fk.SourceTable, Column: fk.SourceColumn}] = true
	}

	entries := make([]repositories.TableWithColumns, 0, len(catalog.Tables))
	state.columns = make(map[uuid.UUID][]*models.Column, len(catalog.Tables))
	state.catalogByID = make(map[uuid.UUID]*datasource.CatalogTable, len(catalog.Tables))

	for i := range catalog.Tables {
		ct := &catalog.Tables[i]
		table := &models.Table{
			ID:          uuid.New(),
			ScanRunID:   state.run.ID,
			SchemaName:  ct.Schema,
			TableName:   ct.Name,
			TableType:   ct.TableType,
			RowEstimate: ct.RowEstimate,
			Status:      models.TableStatusPending,
			Constraints: models.TableConstraints{Unique: ct.UniqueConstraints, Indexes: ct.Indexes},
		}

		switch {
		case ct.ReadErr != nil:
			setTableError(table, models.TableStatusSkipped, apperrors.KindPermissionDeniedPartial, apperrors.StageCatalog, ct.ReadErr)
		case !ct.Accessible:
			setTableError(table, models.TableStatusSkipped, apperrors.KindPermissionDeniedPartial, apperrors.StageSample,
				fmt.Errorf("permission denied for table %s", ct.FullName()))
		}

		cols := make([]*models.Column, 0, len(ct.Columns))
		for _, c := range ct.Columns {
			cols = append(cols, &models.Column{
				ID:              uuid.New(),
				TableID:         table.ID,
				ColumnName:      c.Name,
				DataType:        c.DataType,
				Nullable:        c.Nullable,
				IsPK:            c.IsPrimaryKey,
				IsFK:            declaredFK[models.ColumnRef{Schema: ct.Schema, Table: ct.Name, Column: c.Name}],
				IsUnique:        c.IsUnique,
				PIIRisk:         models.PIIRiskUnknown,
				OrdinalPosition: c.OrdinalPosition,
				DefaultValue:    c.Default,
			})
		}

		entries = append(entries, repositories.TableWithColumns{Table: table, Columns: cols})
		state.tables = append(state.tables, table)
		state.columns[table.ID] = cols
		state.catalogByID[table.ID] = ct
		if table.Status == models.TableStatusSkipped {
			state.skipped.Add(1)
		}
	}

	if err := s.repos.Tables.CreateTables(ctx, entries); err != nil {
		return fmt.Errorf("failed to store catalog: %w", err)
	}

	state.run.SchemaHash = catalog.SchemaHash()
	if err := s.repos.Runs.SetCatalogResult(ctx, state.run.ID, state.run.SchemaHash, len(state.tables)); err != nil {
		return err
	}
	return nil
}

func setTableError(t *models.Table, status models.TableStatus, kind apperrors.Kind, stage apperrors.Stage, err error) {
	k, st, msg := string(kind), string(stage), logging.SanitizeError(err)
	t.Status = status
	t.ErrorKind, t.ErrorStage, t.ErrorMessage = &k, &st, &msg
}

// processTable runs sample, quality and docs for one table in sequence.
// Tables skipped at catalog time only get docs.
func (s *scanService) processTable(ctx context.Context, logger *zap.Logger, state *scanRun, sampler datasource.Sampler, t *models.Table) {
	logger = logger.With(zap.String("table", t.FullName()))
	cols := state.columns[t.ID]
	var report *models.QualityReport

	if t.Status != models.TableStatusSkipped {
		sample, err := s.sampleTable(ctx, sampler, state, t)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			kind := datasource.PartialKind(apperrors.KindOf(err))
			if kind.IsRecoverable() {
				setTableError(t, models.TableStatusSkipped, kind, apperrors.StageSample, err)
				state.skipped.Add(1)
				logger.Info("Table skipped", zap.String("kind", string(kind)), zap.String("error", logging.SanitizeError(err)))
			} else {
				s.failTable(ctx, logger, state, t, kind, apperrors.StageSample, err)
				return
			}
		} else {
			if sample.Partial {
				t.SamplePartial = true
				setTableError(t, models.TableStatusPending, apperrors.KindTimeoutPartial, apperrors.StageSample,
					fmt.Errorf("sample truncated at %d rows by the table time budget", len(sample.Rows)))
			}

			report, err = s.scoreTable(ctx, t, cols, sample)
			if err != nil {
				s.failTable(ctx, logger, state, t, apperrors.KindOf(err), apperrors.StageQuality, err)
				return
			}
		}
	}

	select {
	case <-state.relsReady:
	case <-ctx.Done():
		return
	}

	rels := lo.Filter(state.rels, func(r *models.Relationship, _ int) bool {
		return r.Touches(t.SchemaName, t.TableName)
	})
	docJSON, md := GenerateDoc(DocInput{Table: t, Columns: cols, Relationships: rels, Quality: report})
	if err := s.repos.Docs.Upsert(ctx, &models.TableDoc{TableID: t.ID, DocMarkdown: md, DocJSON: docJSON}); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.failTable(ctx, logger, state, t, apperrors.KindInternal, apperrors.StageDocs, err)
		return
	}

	if t.Status == models.TableStatusSkipped {
		s.saveOutcome(ctx, logger, t)
		return
	}
	t.Status = models.TableStatusProfiled
	state.profiled.Add(1)
	s.saveOutcome(ctx, logger, t)
}

func (s *scanService) sampleTable(ctx context.Context, sampler datasource.Sampler, state *scanRun, t *models.Table) (*datasource.Sample, error) {
	ct := state.catalogByID[t.ID]
	sampleCtx, cancel := context.WithTimeout(ctx, s.cfg.TableTimeout)
	defer cancel()

	return sampler.Sample(sampleCtx, datasource.SampleRequest{
		Schema:     ct.Schema,
		Table:      ct.Name,
		Columns:    ct.ColumnNames(),
		PrimaryKey: ct.PrimaryKey(),
		Limit:      min(state.run.SampleSize, s.cfg.MaxSampleSize),
		Mode:       state.run.Mode,

		RowEstimate: ct.RowEstimate,
	})
}

// scoreTable computes and stores the quality report and column PII risk.
func (s *scanService) scoreTable(ctx context.Context, t *models.Table, cols []*models.Column, sample *datasource.Sample) (*models.QualityReport, error) {
	result := s.scorer.Score(ProfileInput{TableID: t.ID, Columns: cols, Sample: sample})
	if err := s.repos.Quality.Upsert(ctx, result.Report); err != nil {
		return nil, fmt.Errorf("failed to store quality report: %w", err)
	}
	if err := s.repos.Tables.UpdateColumnPII(ctx, t.ID, result.PII); err != nil {
		return nil, fmt.Errorf("failed to store PII classification: %w", err)
	}
	for _, c := range cols {
		if risk, ok := result.PII[c.ColumnName]; ok {
			c.PIIRisk = risk
		}
	}
	return result.Report, nil
}

func (s *scanService) failTable(ctx context.Context, logger *zap.Logger, state *scanRun, t *models.Table, kind apperrors.Kind, stage apperrors.Stage, err error) {
	if kind == "" {
		kind = apperrors.KindInternal
	}
	setTableError(t, models.TableStatusFailed, kind, stage, err)
	state.failed.Add(1)
	logger.Warn("Table failed",
		zap.String("stage", string(stage)),
		zap.String("kind", string(kind)),
		zap.String("error", logging.SanitizeError(err)))
	s.saveOutcome(ctx, logger, t)
}

func (s *scanService) saveOutcome(ctx context.Context, logger *zap.Logger, t *models.Table) {
	if err := s.repos.Tables.UpdateOutcome(context.WithoutCancel(ctx), t); err != nil {
		logger.Error("Failed to record table outcome", zap.Error(err))
	}
}

// Ensure scanService implements ScanService at compile time.
var _ ScanService = (*scanService)(nil)
