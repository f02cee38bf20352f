package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ekaya-inc/edda-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/edda-engine/pkg/apperrors"
	"github.com/ekaya-inc/edda-engine/pkg/crypto"
	"github.com/ekaya-inc/edda-engine/pkg/logging"
	"github.com/ekaya-inc/edda-engine/pkg/models"
	"github.com/ekaya-inc/edda-engine/pkg/repositories"
)

// DatasourceInput is an unsaved data source candidate as submitted by a client.
type DatasourceInput struct {
	Name     string
	DBType   string
	Host     string
	Port     int
	Database string
	Schema   string
	Username string
	Password string
	// Options carries engine-specific connection fields (sslmode, tls,
	// auth_method, tenant_id, client_id, client_secret, ...). They are
	// sealed together with the password.
	Options  map[string]string
	Schedule string
}

// DatasourceService defines the interface for datasource operations.
type DatasourceService interface {
	// TestConnection validates connectivity without saving anything.
	// Failures are *apperrors.ScanError values with sanitized messages.
	TestConnection(ctx context.Context, in DatasourceInput) error

	// Create validates the connection, then stores the datasource with
	// encrypted credentials.
	Create(ctx context.Context, in DatasourceInput) (*models.DataSource, error)

	// Get retrieves a datasource with decrypted credentials.
	Get(ctx context.Context, id uuid.UUID) (*models.DataSource, error)

	// List retrieves all datasources, newest first, without credentials.
	List(ctx context.Context) ([]*models.DataSource, error)

	// Delete removes a datasource that no scan references.
	Delete(ctx context.Context, id uuid.UUID) error

	// Revalidate re-tests a stored datasource before a scan starts.
	Revalidate(ctx context.Context, ds *models.DataSource) error
}

type datasourceService struct {
	repo           repositories.DatasourceRepository
	encryptor      *crypto.CredentialEncryptor
	adapterFactory datasource.DatasourceAdapterFactory
	connMgr        *datasource.ConnectionManager
	connectTimeout time.Duration
	logger         *zap.Logger
}

// NewDatasourceService creates a new datasource service with dependencies.
// connMgr may be nil in tests.
func NewDatasourceService(
	repo repositories.DatasourceRepository,
	encryptor *crypto.CredentialEncryptor,
	adapterFactory datasource.DatasourceAdapterFactory,
	connMgr *datasource.ConnectionManager,
	connectTimeout time.Duration,
	logger *zap.Logger,
) DatasourceService {
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	return &datasourceService{
		repo:           repo,
		encryptor:      encryptor,
		adapterFactory: adapterFactory,
		connMgr:        connMgr,
		connectTimeout: connectTimeout,
		logger:         logger.Named("datasource"),
	}
}

// validationError wraps a message as apperrors.ErrValidation.
func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", apperrors.ErrValidation, fmt.Sprintf(format, args...))
}

// toModel validates the input and builds the datasource it describes.
func (in DatasourceInput) toModel() (*models.DataSource, error) {
	dbType := models.DBType(strings.ToLower(strings.TrimSpace(in.DBType)))
	if dbType == "" {
		return nil, validationError("db_type is required")
	}
	if !dbType.Valid() {
		return nil, apperrors.NewScanError(apperrors.KindUnsupportedType, apperrors.StageConnect, "",
			fmt.Errorf("unsupported datasource type: %q", in.DBType))
	}
	if strings.TrimSpace(in.Host) == "" {
		return nil, validationError("host is required")
	}
	if strings.TrimSpace(in.Database) == "" {
		return nil, validationError("database is required")
	}
	port := in.Port
	if port == 0 {
		port = dbType.DefaultPort()
	}
	if port < 1 || port > 65535 {
		return nil, validationError("port must be between 1 and 65535")
	}

	creds := make(map[string]string, len(in.Options)+1)
	for k, v := range in.Options {
		if k = strings.TrimSpace(k); k != "" {
			creds[k] = v
		}
	}
	if in.Password != "" {
		creds["password"] = in.Password
	}

	return &models.DataSource{
		Name:        strings.TrimSpace(in.Name),
		DBType:      dbType,
		Host:        strings.TrimSpace(in.Host),
		Port:        port,
		Database:    strings.TrimSpace(in.Database),
		Schema:      strings.TrimSpace(in.Schema),
		Username:    strings.TrimSpace(in.Username),
		Credentials: creds,
		Schedule:    strings.TrimSpace(in.Schedule),
	}, nil
}

// ValidateSchedule checks a cron spec (five fields or a descriptor such as @daily).
func ValidateSchedule(spec string) error {
	if spec == "" {
		return nil
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return validationError("invalid schedule %q: %v", spec, err)
	}
	return nil
}

func (s *datasourceService) TestConnection(ctx context.Context, in DatasourceInput) error {
	ds, err := in.toModel()
	if err != nil {
		return err
	}
	return s.testConnection(ctx, ds)
}

// testConnection runs the adapter's tester within the connect timeout.
func (s *datasourceService) testConnection(ctx context.Context, ds *models.DataSource) error {
	ctx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	tester, err := s.adapterFactory.NewConnectionTester(ctx, string(ds.DBType), ds.AdapterConfig())
	if err != nil {
		var se *apperrors.ScanError
		if errors.As(err, &se) {
			return s.sanitized(ds, se.Kind, err)
		}
		return validationError("%s", logging.SanitizeError(err))
	}
	defer func() { _ = tester.Close() }()

	if err := tester.TestConnection(ctx); err != nil {
		kind := apperrors.KindOf(err)
		if kind == apperrors.KindInternal && ctx.Err() != nil {
			kind = apperrors.KindTimeout
		}
		return s.sanitized(ds, kind, err)
	}
	return nil
}

// sanitized logs a connection failure and returns it with credentials scrubbed.
func (s *datasourceService) sanitized(ds *models.DataSource, kind apperrors.Kind, err error) error {
	msg := logging.SanitizeError(err)
	s.logger.Info("Connection test failed",
		zap.String("db_type", string(ds.DBType)),
		zap.String("host", ds.Host),
		zap.String("kind", string(kind)),
		zap.String("error", msg))
	return apperrors.NewScanError(kind, apperrors.StageConnect, "", errors.New(msg))
}

func (s *datasourceService) Create(ctx context.Context, in DatasourceInput) (*models.DataSource, error) {
	ds, err := in.toModel()
	if err != nil {
		return nil, err
	}
	if ds.Name == "" {
		return nil, validationError("name is required")
	}
	if err := ValidateSchedule(ds.Schedule); err != nil {
		return nil, err
	}

	if err := s.testConnection(ctx, ds); err != nil {
		return nil, err
	}

	sealed, err := s.encryptor.EncryptCredentials(ds.Credentials)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	if err := s.repo.Create(ctx, ds, sealed); err != nil {
		return nil, err
	}

	s.logger.Info("Created datasource",
		zap.String("id", ds.ID.String()),
		zap.String("name", ds.Name),
		zap.String("type", string(ds.DBType)),
	)
	return ds, nil
}

func (s *datasourceService) Get(ctx context.Context, id uuid.UUID) (*models.DataSource, error) {
	ds, sealed, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	creds, err := s.encryptor.DecryptCredentials(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials for datasource %s: %w", id, err)
	}
	ds.Credentials = creds
	return ds, nil
}

func (s *datasourceService) List(ctx context.Context) ([]*models.DataSource, error) {
	list, _, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (s *datasourceService) Revalidate(ctx context.Context, ds *models.DataSource) error {
	return s.testConnection(ctx, ds)
}

func (s *datasourceService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if s.connMgr != nil {
		s.connMgr.RemoveDatasource(id)
	}
	s.logger.Info("Deleted datasource", zap.String("id", id.String()))
	return nil
}

// Ensure datasourceService implements DatasourceService at compile time.
var _ DatasourceService = (*datasourceService)(nil)
