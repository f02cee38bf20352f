package mysql

import (
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/ekaya-inc/edda-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/edda-engine/pkg/apperrors"
)

// MySQL server error numbers the scanner distinguishes.
const (
	erDBAccessDenied     = 1044
	erAccessDenied       = 1045
	erBadDB              = 1049
	erTableAccessDenied  = 1142
	erColumnAccessDenied = 1143
	erQueryTimeout       = 3024 // max_execution_time exceeded
)

// classifyMySQLError maps MySQL failures to the scan taxonomy.
func classifyMySQLError(err error) (apperrors.Kind, bool) {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return "", false
	}
	switch myErr.Number {
	case erDBAccessDenied, erAccessDenied, erBadDB:
		return apperrors.KindAuthFailed, true
	case erTableAccessDenied, erColumnAccessDenied:
		return apperrors.KindPermissionDeniedPartial, true
	case erQueryTimeout:
		return apperrors.KindTimeout, true
	}
	return "", false
}

func classifyError(stage apperrors.Stage, table string, err error) error {
	return datasource.ClassifyError(stage, table, err, classifyMySQLError)
}
