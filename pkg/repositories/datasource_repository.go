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

// DatasourceRepository defines the interface for datasource data access.
// Credentials are stored as encrypted TEXT; encryption is handled by the service layer.
type DatasourceRepository interface {
	// Create inserts a new datasource. Returns apperrors.ErrConflict if the name is taken.
	Create(ctx context.Context, ds *models.DataSource, encryptedCredentials string) error

	// GetByID retrieves a datasource and its encrypted credentials.
	GetByID(ctx context.Context, id uuid.UUID) (*models.DataSource, string, error)

	// List retrieves all datasources ordered by created_at desc, with their encrypted credentials.
	List(ctx context.Context) ([]*models.DataSource, []string, error)

	// Delete removes a datasource. Returns apperrors.ErrConflict while scan runs reference it.
	Delete(ctx context.Context, id uuid.UUID) error
}

type datasourceRepository struct{}

// NewDatasourceRepository creates a new datasource repository.
func NewDatasourceRepository() DatasourceRepository {
	return &datasourceRepository{}
}

const datasourceColumns = `id, name, db_type, host, port, database_name, schema_name, username,
	encrypted_credentials, schedule, created_at, updated_at`

func scanDatasource(row pgx.Row) (*models.DataSource, string, error) {
	var ds models.DataSource
	var encrypted string
	err := row.Scan(
		&ds.ID,
		&ds.Name,
		&ds.DBType,
		&ds.Host,
		&ds.Port,
		&ds.Database,
		&ds.Schema,
		&ds.Username,
		&encrypted,
		&ds.Schedule,
		&ds.CreatedAt,
		&ds.UpdatedAt,
	)
	if err != nil {
		return nil, "", err
	}
	return &ds, encrypted, nil
}

func (r *datasourceRepository) Create(ctx context.Context, ds *models.DataSource, encryptedCredentials string) error {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return err
	}

	if ds.ID == uuid.Nil {
		ds.ID = uuid.New()
	}
	now := time.Now().UTC()
	ds.CreatedAt = now
	ds.UpdatedAt = now

	query := `
		INSERT INTO datasources (id, name, db_type, host, port, database_name, schema_name, username,
			encrypted_credentials, schedule, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = scope.Conn.Exec(ctx, query,
		ds.ID,
		ds.Name,
		string(ds.DBType),
		ds.Host,
		ds.Port,
		ds.Database,
		ds.Schema,
		ds.Username,
		encryptedCredentials,
		ds.Schedule,
		ds.CreatedAt,
		ds.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("datasource %q already exists: %w", ds.Name, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create datasource: %w", err)
	}
	return nil
}

func (r *datasourceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DataSource, string, error) {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return nil, "", err
	}

	query := `SELECT ` + datasourceColumns + ` FROM datasources WHERE id = $1`
	ds, encrypted, err := scanDatasource(scope.Conn.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", fmt.Errorf("datasource %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, "", fmt.Errorf("failed to get datasource: %w", err)
	}
	return ds, encrypted, nil
}

func (r *datasourceRepository) List(ctx context.Context) ([]*models.DataSource, []string, error) {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return nil, nil, err
	}

	query := `SELECT ` + datasourceColumns + ` FROM datasources ORDER BY created_at DESC, id`
	rows, err := scope.Conn.Query(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list datasources: %w", err)
	}
	defer rows.Close()

	datasources := []*models.DataSource{}
	var encrypted []string
	for rows.Next() {
		ds, enc, err := scanDatasource(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan datasource: %w", err)
		}
		datasources = append(datasources, ds)
		encrypted = append(encrypted, enc)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating datasources: %w", err)
	}
	return datasources, encrypted, nil
}

func (r *datasourceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return err
	}

	result, err := scope.Conn.Exec(ctx, `DELETE FROM datasources WHERE id = $1`, id)
	if err != nil {
		// scan_runs references datasources ON DELETE RESTRICT
		if isForeignKeyViolation(err) {
			return fmt.Errorf("datasource %s is referenced by scan runs: %w", id, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to delete datasource: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("datasource %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

var _ DatasourceRepository = (*datasourceRepository)(nil)
