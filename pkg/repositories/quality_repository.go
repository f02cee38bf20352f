package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/edda-engine/pkg/apperrors"
	"github.com/ekaya-inc/edda-engine/pkg/models"
)

// QualityRepository stores one quality report per table.
type QualityRepository interface {
	// Upsert writes the report, replacing an earlier one for the same table.
	Upsert(ctx context.Context, report *models.QualityReport) error

	// GetByTableID returns apperrors.ErrNotFound when the table has no report.
	GetByTableID(ctx context.Context, tableID uuid.UUID) (*models.QualityReport, error)
}

type qualityRepository struct{}

// NewQualityRepository creates a new quality repository.
func NewQualityRepository() QualityRepository {
	return &qualityRepository{}
}

func (r *qualityRepository) Upsert(ctx context.Context, report *models.QualityReport) error {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return err
	}

	reasons, err := json.Marshal(nonNil(report.Reasons))
	if err != nil {
		return fmt.Errorf("marshal reasons: %w", err)
	}
	tableMetrics, err := json.Marshal(report.TableMetrics)
	if err != nil {
		return fmt.Errorf("marshal table metrics: %w", err)
	}
	columnMetrics, err := json.Marshal(nonNil(report.ColumnMetrics))
	if err != nil {
		return fmt.Errorf("marshal column metrics: %w", err)
	}

	report.UpdatedAt = time.Now().UTC()
	_, err = scope.Conn.Exec(ctx, `
		INSERT INTO quality_reports (table_id, quality_score, reasons, table_metrics, column_metrics, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (table_id) DO UPDATE
		SET quality_score = EXCLUDED.quality_score,
		    reasons = EXCLUDED.reasons,
		    table_metrics = EXCLUDED.table_metrics,
		    column_metrics = EXCLUDED.column_metrics,
		    updated_at = EXCLUDED.updated_at`,
		report.TableID, report.QualityScore, reasons, tableMetrics, columnMetrics, report.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("table %s: %w", report.TableID, apperrors.ErrNotFound)
		}
		return fmt.Errorf("failed to upsert quality report: %w", err)
	}
	return nil
}

func (r *qualityRepository) GetByTableID(ctx context.Context, tableID uuid.UUID) (*models.QualityReport, error) {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return nil, err
	}

	var report models.QualityReport
	var reasons, tableMetrics, columnMetrics []byte
	err = scope.Conn.QueryRow(ctx, `
		SELECT table_id, quality_score, reasons, table_metrics, column_metrics, updated_at
		FROM quality_reports
		WHERE table_id = $1`, tableID).Scan(
		&report.TableID, &report.QualityScore, &reasons, &tableMetrics, &columnMetrics, &report.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("quality report for table %s: %w", tableID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get quality report: %w", err)
	}

	if err := json.Unmarshal(reasons, &report.Reasons); err != nil {
		return nil, fmt.Errorf("unmarshal reasons: %w", err)
	}
	if err := json.Unmarshal(tableMetrics, &report.TableMetrics); err != nil {
		return nil, fmt.Errorf("unmarshal table metrics: %w", err)
	}
	if err := json.Unmarshal(columnMetrics, &report.ColumnMetrics); err != nil {
		return nil, fmt.Errorf("unmarshal column metrics: %w", err)
	}
	return &report, nil
}

// nonNil keeps empty lists as [] rather than null in jsonb.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

var _ QualityRepository = (*qualityRepository)(nil)
