package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/edda-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/edda-engine/pkg/apperrors"
)

// SQLSTATE codes the scanner distinguishes.
const (
	sqlstateInvalidPassword      = "28P01"
	sqlstateInvalidAuthorization = "28000"
	sqlstateInvalidCatalogName   = "3D000" // database does not exist
	sqlstateInsufficientPriv     = "42501"
	sqlstateQueryCanceled        = "57014" // statement_timeout
)

// classifyPgError maps PostgreSQL failures to the scan taxonomy.
func classifyPgError(err error) (apperrors.Kind, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlstateInvalidPassword, sqlstateInvalidAuthorization, sqlstateInvalidCatalogName:
			return apperrors.KindAuthFailed, true
		case sqlstateInsufficientPriv:
			return apperrors.KindPermissionDeniedPartial, true
		case sqlstateQueryCanceled:
			return apperrors.KindTimeout, true
		}
		return "", false
	}

	if pgconn.Timeout(err) {
		return apperrors.KindTimeout, true
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return apperrors.KindConnectionUnreachable, true
	}
	return "", false
}

// classifyError wraps err with its stage and table.
func classifyError(stage apperrors.Stage, table string, err error) error {
	return datasource.ClassifyError(stage, table, err, classifyPgError)
}
