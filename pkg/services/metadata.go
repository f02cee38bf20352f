package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/edda-engine/pkg/apperrors"
	"github.com/ekaya-inc/edda-engine/pkg/models"
	"github.com/ekaya-inc/edda-engine/pkg/repositories"
)

// Export formats.
const (
	ExportFormatMarkdown = "md"
	ExportFormatJSON     = "json"
	ExportFormatYAML     = "yaml"
)

// Export is a table's documentation rendered in one format.
// Content is a string for md and yaml, and the doc object for json.
type Export struct {
	Format  string `json:"format"`
	Content any    `json:"content"`
}

// MetadataService reads the persisted results of a scan.
type MetadataService interface {
	// ListTables returns a run's tables ordered by table_name.
	ListTables(ctx context.Context, scanRunID uuid.UUID) ([]*models.Table, error)

	GetTable(ctx context.Context, tableID uuid.UUID) (*models.Table, error)

	// ListColumns returns a table's columns ordered by column_name.
	ListColumns(ctx context.Context, tableID uuid.UUID) ([]*models.Column, error)

	// ListRelationships returns the run's relationships with the table on either side.
	ListRelationships(ctx context.Context, tableID uuid.UUID) ([]*models.Relationship, error)

	// GetQuality returns nil when the table has no report.
	GetQuality(ctx context.Context, tableID uuid.UUID) (*models.QualityReport, error)

	// GetDocs returns nil when the table has no docs.
	GetDocs(ctx context.Context, tableID uuid.UUID) (*models.TableDoc, error)

	// Export renders the docs as md, json or yaml. Returns ErrNotFound when
	// the table has no docs and ErrValidation for an unknown format.
	Export(ctx context.Context, tableID uuid.UUID, format string) (*Export, error)
}

type metadataService struct {
	tables        repositories.ScanTableRepository
	relationships repositories.RelationshipRepository
	quality       repositories.QualityRepository
	docs          repositories.DocRepository
	logger        *zap.Logger
}

// NewMetadataService creates a read service over scan results.
func NewMetadataService(repos ScanRepositories, logger *zap.Logger) MetadataService {
	return &metadataService{
		tables:        repos.Tables,
		relationships: repos.Relationships,
		quality:       repos.Quality,
		docs:          repos.Docs,
		logger:        logger.Named("metadata"),
	}
}

func (s *metadataService) ListTables(ctx context.Context, scanRunID uuid.UUID) ([]*models.Table, error) {
	return s.tables.ListByRun(ctx, scanRunID)
}

func (s *metadataService) GetTable(ctx context.Context, tableID uuid.UUID) (*models.Table, error) {
	return s.tables.GetByID(ctx, tableID)
}

func (s *metadataService) ListColumns(ctx context.Context, tableID uuid.UUID) ([]*models.Column, error) {
	if _, err := s.tables.GetByID(ctx, tableID); err != nil {
		return nil, err
	}
	return s.tables.ListColumns(ctx, tableID)
}

func (s *metadataService) ListRelationships(ctx context.Context, tableID uuid.UUID) ([]*models.Relationship, error) {
	t, err := s.tables.GetByID(ctx, tableID)
	if err != nil {
		return nil, err
	}
	return s.relationships.ListForTable(ctx, t.ScanRunID, t.SchemaName, t.TableName)
}

func (s *metadataService) GetQuality(ctx context.Context, tableID uuid.UUID) (*models.QualityReport, error) {
	if _, err := s.tables.GetByID(ctx, tableID); err != nil {
		return nil, err
	}
	report, err := s.quality.GetByTableID(ctx, tableID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	return report, err
}

func (s *metadataService) GetDocs(ctx context.Context, tableID uuid.UUID) (*models.TableDoc, error) {
	if _, err := s.tables.GetByID(ctx, tableID); err != nil {
		return nil, err
	}
	doc, err := s.docs.GetByTableID(ctx, tableID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	return doc, err
}

func (s *metadataService) Export(ctx context.Context, tableID uuid.UUID, format string) (*Export, error) {
	if format == "" {
		format = ExportFormatMarkdown
	}
	switch format {
	case ExportFormatMarkdown, ExportFormatJSON, ExportFormatYAML:
	default:
		return nil, validationError("format must be md, json or yaml")
	}

	doc, err := s.docs.GetByTableID(ctx, tableID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("docs for table %s: %w", tableID, apperrors.ErrNotFound)
		}
		return nil, err
	}

	switch format {
	case ExportFormatJSON:
		return &Export{Format: format, Content: doc.DocJSON}, nil
	case ExportFormatYAML:
		out, err := yaml.Marshal(doc.DocJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to render yaml: %w", err)
		}
		return &Export{Format: format, Content: string(out)}, nil
	default:
		return &Export{Format: format, Content: doc.DocMarkdown}, nil
	}
}

// Ensure metadataService implements MetadataService at compile time.
var _ MetadataService = (*metadataService)(nil)
