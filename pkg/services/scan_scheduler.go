package services

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ekaya-inc/edda-engine/pkg/apperrors"
	"github.com/ekaya-inc/edda-engine/pkg/models"
)

// ScanStarter is the part of ScanService the scheduler triggers.
type ScanStarter interface {
	StartScan(ctx context.Context, dataSourceID uuid.UUID, mode models.ScanMode, sampleSize int) (uuid.UUID, error)
}

// ScheduleRegistrar keeps the scheduler in step with datasource changes.
type ScheduleRegistrar interface {
	Register(ds *models.DataSource) error
	Remove(dataSourceID uuid.UUID)
}

// ScanScheduler starts quick scans on each datasource's cron schedule.
type ScanScheduler struct {
	cron        *cron.Cron
	datasources DatasourceService
	scans       ScanStarter
	scopes      ScopeProvider
	logger      *zap.Logger

	mu      sync.Mutex
	entries map[uuid.UUID]cron.EntryID
}

// NewScanScheduler creates a stopped scheduler.
func NewScanScheduler(datasources DatasourceService, scans ScanStarter, scopes ScopeProvider, logger *zap.Logger) *ScanScheduler {
	return &ScanScheduler{
		cron:        cron.New(),
		datasources: datasources,
		scans:       scans,
		scopes:      scopes,
		logger:      logger.Named("scheduler"),
		entries:     make(map[uuid.UUID]cron.EntryID),
	}
}

// Start registers every scheduled datasource and starts the cron loop.
func (s *ScanScheduler) Start(ctx context.Context) error {
	ctx, cleanup, err := s.scopes.WithScope(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	list, err := s.datasources.List(ctx)
	if err != nil {
		return err
	}
	for _, ds := range list {
		if err := s.Register(ds); err != nil {
			// A stored schedule that no longer parses is not fatal.
			s.logger.Warn("Skipping invalid schedule",
				zap.String("datasource_id", ds.ID.String()),
				zap.String("schedule", ds.Schedule),
				zap.Error(err))
		}
	}

	s.cron.Start()
	s.logger.Info("Scan scheduler started", zap.Int("schedules", s.Len()))
	return nil
}

// Stop halts the cron loop and waits for running triggers or ctx.
func (s *ScanScheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Register adds or replaces the datasource's schedule. An empty schedule
// removes it.
func (s *ScanScheduler) Register(ds *models.DataSource) error {
	s.Remove(ds.ID)
	if ds.Schedule == "" {
		return nil
	}
	if err := ValidateSchedule(ds.Schedule); err != nil {
		return err
	}

	id := ds.ID
	entryID, err := s.cron.AddFunc(ds.Schedule, func() { s.trigger(id) })
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.entries[id] = entryID
	s.mu.Unlock()

	s.logger.Debug("Registered scan schedule",
		zap.String("datasource_id", id.String()),
		zap.String("schedule", ds.Schedule))
	return nil
}

// Remove drops the datasource's schedule if it has one.
func (s *ScanScheduler) Remove(dataSourceID uuid.UUID) {
	s.mu.Lock()
	entryID, ok := s.entries[dataSourceID]
	delete(s.entries, dataSourceID)
	s.mu.Unlock()
	if ok {
		s.cron.Remove(entryID)
	}
}

// Len returns the number of registered schedules.
func (s *ScanScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// trigger starts a quick scan with the default sample size. A scan already
// running for the datasource is not an error.
func (s *ScanScheduler) trigger(dataSourceID uuid.UUID) {
	ctx, cleanup, err := s.scopes.WithScope(context.Background())
	if err != nil {
		s.logger.Error("Failed to get database scope for scheduled scan", zap.Error(err))
		return
	}
	defer cleanup()

	runID, err := s.scans.StartScan(ctx, dataSourceID, models.ScanModeQuick, 0)
	switch {
	case err == nil:
		s.logger.Info("Scheduled scan started",
			zap.String("datasource_id", dataSourceID.String()),
			zap.String("scan_run_id", runID.String()))
	case errors.Is(err, apperrors.ErrConflict):
		s.logger.Info("Scheduled scan skipped, scan already running",
			zap.String("datasource_id", dataSourceID.String()))
	case errors.Is(err, apperrors.ErrNotFound):
		s.Remove(dataSourceID)
	default:
		s.logger.Warn("Scheduled scan failed to start",
			zap.String("datasource_id", dataSourceID.String()),
			zap.Error(err))
	}
}

// Ensure ScanScheduler implements ScheduleRegistrar at compile time.
var _ ScheduleRegistrar = (*ScanScheduler)(nil)
