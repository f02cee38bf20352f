package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/edda-engine/pkg/models"
)

// RelationshipRepository persists declared and inferred relationships per run.
type RelationshipRepository interface {
	// ReplaceForRun stores the run's full relationship set, replacing any
	// earlier write for the same run.
	ReplaceForRun(ctx context.Context, scanRunID uuid.UUID, rels []*models.Relationship) error

	// ListByRun returns relationships ordered by from then to.
	ListByRun(ctx context.Context, scanRunID uuid.UUID) ([]*models.Relationship, error)

	// ListForTable returns relationships with schema.table on either side.
	ListForTable(ctx context.Context, scanRunID uuid.UUID, schema, table string) ([]*models.Relationship, error)
}

type relationshipRepository struct{}

// NewRelationshipRepository creates a new relationship repository.
func NewRelationshipRepository() RelationshipRepository {
	return &relationshipRepository{}
}

const relationshipColumns = `id, scan_run_id, from_schema, from_table, from_column,
	to_schema, to_table, to_column, constraint_name, confidence, kind, rule`

const relationshipOrder = `ORDER BY from_schema, from_table, from_column, to_schema, to_table, to_column`

func (r *relationshipRepository) ReplaceForRun(ctx context.Context, scanRunID uuid.UUID, rels []*models.Relationship) error {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return err
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	if _, err := tx.Exec(ctx, `DELETE FROM scan_relationships WHERE scan_run_id = $1`, scanRunID); err != nil {
		return fmt.Errorf("failed to clear relationships: %w", err)
	}

	if len(rels) > 0 {
		batch := &pgx.Batch{}
		for _, rel := range rels {
			if rel.ID == uuid.Nil {
				rel.ID = uuid.New()
			}
			rel.ScanRunID = scanRunID
			batch.Queue(`
				INSERT INTO scan_relationships (`+relationshipColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
				rel.ID, rel.ScanRunID, rel.FromSchema, rel.FromTable, rel.FromColumn,
				rel.ToSchema, rel.ToTable, rel.ToColumn, rel.ConstraintName, rel.Confidence,
				string(rel.Kind), rel.Rule,
			)
		}

		br := tx.SendBatch(ctx, batch)
		for range rels {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("batch insert relationship: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *relationshipRepository) list(ctx context.Context, query string, args ...any) ([]*models.Relationship, error) {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}
	defer rows.Close()

	rels := []*models.Relationship{}
	for rows.Next() {
		var rel models.Relationship
		if err := rows.Scan(
			&rel.ID, &rel.ScanRunID, &rel.FromSchema, &rel.FromTable, &rel.FromColumn,
			&rel.ToSchema, &rel.ToTable, &rel.ToColumn, &rel.ConstraintName, &rel.Confidence,
			&rel.Kind, &rel.Rule,
		); err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		rels = append(rels, &rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relationships: %w", err)
	}
	return rels, nil
}

func (r *relationshipRepository) ListByRun(ctx context.Context, scanRunID uuid.UUID) ([]*models.Relationship, error) {
	return r.list(ctx,
		`SELECT `+relationshipColumns+` FROM scan_relationships WHERE scan_run_id = $1 `+relationshipOrder,
		scanRunID)
}

func (r *relationshipRepository) ListForTable(ctx context.Context, scanRunID uuid.UUID, schema, table string) ([]*models.Relationship, error) {
	return r.list(ctx, `
		SELECT `+relationshipColumns+`
		FROM scan_relationships
		WHERE scan_run_id = $1
		  AND ((from_schema = $2 AND from_table = $3) OR (to_schema = $2 AND to_table = $3))
		`+relationshipOrder,
		scanRunID, schema, table)
}

var _ RelationshipRepository = (*relationshipRepository)(nil)
