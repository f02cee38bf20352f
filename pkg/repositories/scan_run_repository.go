package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/edda-engine/pkg/apperrors"
	"github.com/ekaya-inc/edda-engine/pkg/models"
)

// ScanRunRepository persists scan runs and guards their state machine.
// Every transition is a conditional UPDATE, so a run that already reached
// completed or failed can never move again.
type ScanRunRepository interface {
	// Create inserts a pending run. Returns apperrors.ErrConflict if the
	// datasource already has an active run and apperrors.ErrNotFound if the
	// datasource does not exist.
	Create(ctx context.Context, run *models.ScanRun) error

	GetByID(ctx context.Context, id uuid.UUID) (*models.ScanRun, error)

	// ListRecent returns the newest runs by started_at.
	ListRecent(ctx context.Context, limit int) ([]*models.ScanRun, error)

	// MarkRunning moves pending to running.
	MarkRunning(ctx context.Context, id uuid.UUID) error

	// SetCatalogResult records the schema hash and table count of a running scan.
	SetCatalogResult(ctx context.Context, id uuid.UUID, schemaHash string, tablesTotal int) error

	// UpdateCounts records per-table progress of a running scan.
	UpdateCounts(ctx context.Context, id uuid.UUID, counts models.ScanCounts) error

	// Complete moves running to completed.
	Complete(ctx context.Context, id uuid.UUID, counts models.ScanCounts) error

	// Fail moves pending or running to failed with a sanitized message.
	Fail(ctx context.Context, id uuid.UUID, message string, counts models.ScanCounts) error

	// FailActive fails every pending or running run. Used at startup to
	// release runs orphaned by a previous process.
	FailActive(ctx context.Context, message string) (int64, error)
}

type scanRunRepository struct{}

// NewScanRunRepository creates a new scan run repository.
func NewScanRunRepository() ScanRunRepository {
	return &scanRunRepository{}
}

const scanRunColumns = `id, data_source_id, mode, status, schema_hash, sample_size, error,
	tables_total, tables_profiled, tables_skipped, tables_failed, started_at, finished_at`

func scanScanRun(row pgx.Row) (*models.ScanRun, error) {
	var run models.ScanRun
	err := row.Scan(
		&run.ID,
		&run.DataSourceID,
		&run.Mode,
		&run.Status,
		&run.SchemaHash,
		&run.SampleSize,
		&run.Error,
		&run.TablesTotal,
		&run.TablesProfiled,
		&run.TablesSkipped,
		&run.TablesFailed,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *scanRunRepository) Create(ctx context.Context, run *models.ScanRun) error {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return err
	}

	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	run.Status = models.ScanStatusPending
	run.StartedAt = time.Now().UTC()

	query := `
		INSERT INTO scan_runs (id, data_source_id, mode, status, sample_size, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = scope.Conn.Exec(ctx, query,
		run.ID, run.DataSourceID, string(run.Mode), string(run.Status), run.SampleSize, run.StartedAt)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			// idx_scan_runs_one_active
			return fmt.Errorf("datasource %s already has an active scan: %w", run.DataSourceID, apperrors.ErrConflict)
		case isForeignKeyViolation(err):
			return fmt.Errorf("datasource %s: %w", run.DataSourceID, apperrors.ErrNotFound)
		}
		return fmt.Errorf("failed to create scan run: %w", err)
	}
	return nil
}

func (r *scanRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ScanRun, error) {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return nil, err
	}

	run, err := scanScanRun(scope.Conn.QueryRow(ctx, `SELECT `+scanRunColumns+` FROM scan_runs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("scan run %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get scan run: %w", err)
	}
	return run, nil
}

func (r *scanRunRepository) ListRecent(ctx context.Context, limit int) ([]*models.ScanRun, error) {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := scope.Conn.Query(ctx,
		`SELECT `+scanRunColumns+` FROM scan_runs ORDER BY started_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan runs: %w", err)
	}
	defer rows.Close()

	runs := []*models.ScanRun{}
	for rows.Next() {
		run, err := scanScanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scan runs: %w", err)
	}
	return runs, nil
}

// transition runs a guarded UPDATE and explains a zero-row result.
func (r *scanRunRepository) transition(ctx context.Context, id uuid.UUID, query string, args ...any) error {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return err
	}

	result, err := scope.Conn.Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to update scan run: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	var status models.ScanStatus
	err = scope.Conn.QueryRow(ctx, `SELECT status FROM scan_runs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("scan run %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read scan run status: %w", err)
	}
	return fmt.Errorf("scan run %s is %s: %w", id, status, apperrors.ErrInvalidTransition)
}

func (r *scanRunRepository) MarkRunning(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id,
		`UPDATE scan_runs SET status = 'running' WHERE id = $1 AND status = 'pending'`)
}

func (r *scanRunRepository) SetCatalogResult(ctx context.Context, id uuid.UUID, schemaHash string, tablesTotal int) error {
	return r.transition(ctx, id,
		`UPDATE scan_runs SET schema_hash = $2, tables_total = $3 WHERE id = $1 AND status = 'running'`,
		schemaHash, tablesTotal)
}

func (r *scanRunRepository) UpdateCounts(ctx context.Context, id uuid.UUID, counts models.ScanCounts) error {
	return r.transition(ctx, id, `
		UPDATE scan_runs
		SET tables_total = $2, tables_profiled = $3, tables_skipped = $4, tables_failed = $5
		WHERE id = $1 AND status = 'running'`,
		counts.Total, counts.Profiled, counts.Skipped, counts.Failed)
}

func (r *scanRunRepository) Complete(ctx context.Context, id uuid.UUID, counts models.ScanCounts) error {
	return r.transition(ctx, id, `
		UPDATE scan_runs
		SET status = 'completed', finished_at = $2,
		    tables_total = $3, tables_profiled = $4, tables_skipped = $5, tables_failed = $6
		WHERE id = $1 AND status = 'running'`,
		time.Now().UTC(), counts.Total, counts.Profiled, counts.Skipped, counts.Failed)
}

func (r *scanRunRepository) Fail(ctx context.Context, id uuid.UUID, message string, counts models.ScanCounts) error {
	return r.transition(ctx, id, `
		UPDATE scan_runs
		SET status = 'failed', finished_at = $2, error = $3,
		    tables_total = $4, tables_profiled = $5, tables_skipped = $6, tables_failed = $7
		WHERE id = $1 AND status IN ('pending', 'running')`,
		time.Now().UTC(), message, counts.Total, counts.Profiled, counts.Skipped, counts.Failed)
}

func (r *scanRunRepository) FailActive(ctx context.Context, message string) (int64, error) {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return 0, err
	}
	result, err := scope.Conn.Exec(ctx, `
		UPDATE scan_runs SET status = 'failed', finished_at = $1, error = $2
		WHERE status IN ('pending', 'running')`, time.Now().UTC(), message)
	if err != nil {
		return 0, fmt.Errorf("failed to fail active scan runs: %w", err)
	}
	return result.RowsAffected(), nil
}

var _ ScanRunRepository = (*scanRunRepository)(nil)
