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

// TableWithColumns is a catalog table and its columns, stored together.
type TableWithColumns struct {
	Table   *models.Table
	Columns []*models.Column
}

// ScanTableRepository persists the tables and columns captured by a scan run.
type ScanTableRepository interface {
	// CreateTables stores tables and their columns in one transaction.
	CreateTables(ctx context.Context, entries []TableWithColumns) error

	GetByID(ctx context.Context, id uuid.UUID) (*models.Table, error)

	// ListByRun returns the run's tables ordered by table_name.
	ListByRun(ctx context.Context, scanRunID uuid.UUID) ([]*models.Table, error)

	// UpdateOutcome records status, error classification and sample_partial.
	UpdateOutcome(ctx context.Context, table *models.Table) error

	// ListColumns returns a table's columns ordered by column_name.
	ListColumns(ctx context.Context, tableID uuid.UUID) ([]*models.Column, error)

	// ListColumnsByRun returns every column of a run keyed by table id, in ordinal order.
	ListColumnsByRun(ctx context.Context, scanRunID uuid.UUID) (map[uuid.UUID][]*models.Column, error)

	// UpdateColumnPII stores the PII classification per column name.
	UpdateColumnPII(ctx context.Context, tableID uuid.UUID, risks map[string]models.PIIRisk) error
}

type scanTableRepository struct{}

// NewScanTableRepository creates a new scan table repository.
func NewScanTableRepository() ScanTableRepository {
	return &scanTableRepository{}
}

const tableColumns = `id, scan_run_id, schema_name, table_name, table_type, row_estimate, status,
	error_kind, error_stage, error_message, sample_partial, constraints, created_at, updated_at`

func scanTable(row pgx.Row) (*models.Table, error) {
	var t models.Table
	var constraints []byte
	err := row.Scan(
		&t.ID,
		&t.ScanRunID,
		&t.SchemaName,
		&t.TableName,
		&t.TableType,
		&t.RowEstimate,
		&t.Status,
		&t.ErrorKind,
		&t.ErrorStage,
		&t.ErrorMessage,
		&t.SamplePartial,
		&constraints,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(constraints) > 0 {
		if err := json.Unmarshal(constraints, &t.Constraints); err != nil {
			return nil, fmt.Errorf("unmarshal constraints: %w", err)
		}
	}
	return &t, nil
}

const columnColumns = `id, table_id, column_name, data_type, nullable, is_pk, is_fk, is_unique,
	pii_risk, ordinal_position, default_value`

func scanColumn(row pgx.Row) (*models.Column, error) {
	var c models.Column
	err := row.Scan(
		&c.ID,
		&c.TableID,
		&c.ColumnName,
		&c.DataType,
		&c.Nullable,
		&c.IsPK,
		&c.IsFK,
		&c.IsUnique,
		&c.PIIRisk,
		&c.OrdinalPosition,
		&c.DefaultValue,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *scanTableRepository) CreateTables(ctx context.Context, entries []TableWithColumns) error {
	if len(entries) == 0 {
		return nil
	}
	scope, err := scopeFrom(ctx)
	if err != nil {
		return err
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	queued := 0

	tableQuery := `
		INSERT INTO scan_tables (id, scan_run_id, schema_name, table_name, table_type, row_estimate,
			status, error_kind, error_stage, error_message, sample_partial, constraints, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	columnQuery := `
		INSERT INTO scan_columns (id, table_id, column_name, data_type, nullable, is_pk, is_fk, is_unique,
			pii_risk, ordinal_position, default_value)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	for _, e := range entries {
		t := e.Table
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		if t.Status == "" {
			t.Status = models.TableStatusPending
		}
		t.CreatedAt = now
		t.UpdatedAt = now

		constraints, err := json.Marshal(t.Constraints)
		if err != nil {
			return fmt.Errorf("marshal constraints: %w", err)
		}
		batch.Queue(tableQuery,
			t.ID, t.ScanRunID, t.SchemaName, t.TableName, t.TableType, t.RowEstimate,
			string(t.Status), t.ErrorKind, t.ErrorStage, t.ErrorMessage, t.SamplePartial,
			constraints, t.CreatedAt, t.UpdatedAt,
		)
		queued++

		for _, c := range e.Columns {
			if c.ID == uuid.Nil {
				c.ID = uuid.New()
			}
			c.TableID = t.ID
			if c.PIIRisk == "" {
				c.PIIRisk = models.PIIRiskUnknown
			}
			batch.Queue(columnQuery,
				c.ID, c.TableID, c.ColumnName, c.DataType, c.Nullable, c.IsPK, c.IsFK, c.IsUnique,
				string(c.PIIRisk), c.OrdinalPosition, c.DefaultValue,
			)
			queued++
		}
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < queued; i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			if isUniqueViolation(err) {
				return fmt.Errorf("duplicate table or column in scan: %w", apperrors.ErrConflict)
			}
			return fmt.Errorf("batch insert scan tables: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *scanTableRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Table, error) {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return nil, err
	}

	t, err := scanTable(scope.Conn.QueryRow(ctx, `SELECT `+tableColumns+` FROM scan_tables WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("table %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get table: %w", err)
	}
	return t, nil
}

func (r *scanTableRepository) ListByRun(ctx context.Context, scanRunID uuid.UUID) ([]*models.Table, error) {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT `+tableColumns+`
		FROM scan_tables
		WHERE scan_run_id = $1
		ORDER BY table_name, schema_name`, scanRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	tables := []*models.Table{}
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	return tables, nil
}

func (r *scanTableRepository) UpdateOutcome(ctx context.Context, table *models.Table) error {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return err
	}

	table.UpdatedAt = time.Now().UTC()
	result, err := scope.Conn.Exec(ctx, `
		UPDATE scan_tables
		SET status = $2, error_kind = $3, error_stage = $4, error_message = $5,
		    sample_partial = $6, updated_at = $7
		WHERE id = $1`,
		table.ID, string(table.Status), table.ErrorKind, table.ErrorStage, table.ErrorMessage,
		table.SamplePartial, table.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update table outcome: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("table %s: %w", table.ID, apperrors.ErrNotFound)
	}
	return nil
}

func (r *scanTableRepository) ListColumns(ctx context.Context, tableID uuid.UUID) ([]*models.Column, error) {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := scope.Conn.Query(ctx,
		`SELECT `+columnColumns+` FROM scan_columns WHERE table_id = $1 ORDER BY column_name`, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns: %w", err)
	}
	defer rows.Close()

	cols := []*models.Column{}
	for rows.Next() {
		c, err := scanColumn(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}
	return cols, nil
}

func (r *scanTableRepository) ListColumnsByRun(ctx context.Context, scanRunID uuid.UUID) (map[uuid.UUID][]*models.Column, error) {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT c.id, c.table_id, c.column_name, c.data_type, c.nullable, c.is_pk, c.is_fk, c.is_unique,
		       c.pii_risk, c.ordinal_position, c.default_value
		FROM scan_columns c
		JOIN scan_tables t ON t.id = c.table_id
		WHERE t.scan_run_id = $1
		ORDER BY c.table_id, c.ordinal_position`, scanRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run columns: %w", err)
	}
	defer rows.Close()

	byTable := make(map[uuid.UUID][]*models.Column)
	for rows.Next() {
		c, err := scanColumn(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		byTable[c.TableID] = append(byTable[c.TableID], c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}
	return byTable, nil
}

func (r *scanTableRepository) UpdateColumnPII(ctx context.Context, tableID uuid.UUID, risks map[string]models.PIIRisk) error {
	if len(risks) == 0 {
		return nil
	}
	scope, err := scopeFrom(ctx)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for name, risk := range risks {
		batch.Queue(`UPDATE scan_columns SET pii_risk = $3 WHERE table_id = $1 AND column_name = $2`,
			tableID, name, string(risk))
	}

	br := scope.Conn.SendBatch(ctx, batch)
	defer br.Close()
	for range risks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("update column pii: %w", err)
		}
	}
	return nil
}

var _ ScanTableRepository = (*scanTableRepository)(nil)
