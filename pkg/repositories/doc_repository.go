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

// DocRepository stores the generated documentation of each table.
type DocRepository interface {
	// Upsert regenerates the doc row for doc.TableID.
	Upsert(ctx context.Context, doc *models.TableDoc) error

	// GetByTableID returns apperrors.ErrNotFound when the table has no doc.
	GetByTableID(ctx context.Context, tableID uuid.UUID) (*models.TableDoc, error)

	// ListByRun returns the run's docs keyed by table id.
	ListByRun(ctx context.Context, scanRunID uuid.UUID) (map[uuid.UUID]*models.TableDoc, error)
}

type docRepository struct{}

// NewDocRepository creates a new doc repository.
func NewDocRepository() DocRepository {
	return &docRepository{}
}

func (r *docRepository) Upsert(ctx context.Context, doc *models.TableDoc) error {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return err
	}

	docJSON, err := json.Marshal(doc.DocJSON)
	if err != nil {
		return fmt.Errorf("marshal doc json: %w", err)
	}

	doc.UpdatedAt = time.Now().UTC()
	_, err = scope.Conn.Exec(ctx, `
		INSERT INTO table_docs (table_id, doc_markdown, doc_json, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (table_id) DO UPDATE
		SET doc_markdown = EXCLUDED.doc_markdown,
		    doc_json = EXCLUDED.doc_json,
		    updated_at = EXCLUDED.updated_at`,
		doc.TableID, doc.DocMarkdown, docJSON, doc.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("table %s: %w", doc.TableID, apperrors.ErrNotFound)
		}
		return fmt.Errorf("failed to upsert table doc: %w", err)
	}
	return nil
}

func scanDoc(row pgx.Row) (*models.TableDoc, error) {
	var doc models.TableDoc
	var docJSON []byte
	if err := row.Scan(&doc.TableID, &doc.DocMarkdown, &docJSON, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(docJSON, &doc.DocJSON); err != nil {
		return nil, fmt.Errorf("unmarshal doc json: %w", err)
	}
	return &doc, nil
}

func (r *docRepository) GetByTableID(ctx context.Context, tableID uuid.UUID) (*models.TableDoc, error) {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return nil, err
	}

	doc, err := scanDoc(scope.Conn.QueryRow(ctx,
		`SELECT table_id, doc_markdown, doc_json, updated_at FROM table_docs WHERE table_id = $1`, tableID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("doc for table %s: %w", tableID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get table doc: %w", err)
	}
	return doc, nil
}

func (r *docRepository) ListByRun(ctx context.Context, scanRunID uuid.UUID) (map[uuid.UUID]*models.TableDoc, error) {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT d.table_id, d.doc_markdown, d.doc_json, d.updated_at
		FROM table_docs d
		JOIN scan_tables t ON t.id = d.table_id
		WHERE t.scan_run_id = $1`, scanRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to list table docs: %w", err)
	}
	defer rows.Close()

	docs := make(map[uuid.UUID]*models.TableDoc)
	for rows.Next() {
		doc, err := scanDoc(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan table doc: %w", err)
		}
		docs[doc.TableID] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating table docs: %w", err)
	}
	return docs, nil
}

var _ DocRepository = (*docRepository)(nil)
