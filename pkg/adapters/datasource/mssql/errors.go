package mssql

import (
	"errors"

	mssqldrv "github.com/microsoft/go-mssqldb"

	"github.com/ekaya-inc/edda-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/edda-engine/pkg/apperrors"
)

// SQL Server error numbers the scanner distinguishes.
const (
	errLoginFailed         = 18456
	errCannotOpenDatabase  = 4060
	errPermissionDenied    = 229
	errColumnPermission    = 230
	errServerNotFoundLogin = 40532 // Azure SQL: server not found or not accessible
)

// classifyMSSQLError maps SQL Server failures to the scan taxonomy.
func classifyMSSQLError(err error) (apperrors.Kind, bool) {
	var msErr mssqldrv.Error
	if !errors.As(err, &msErr) {
		return "", false
	}
	switch msErr.Number {
	case errLoginFailed, errCannotOpenDatabase:
		return apperrors.KindAuthFailed, true
	case errPermissionDenied, errColumnPermission:
		return apperrors.KindPermissionDeniedPartial, true
	case errServerNotFoundLogin:
		return apperrors.KindConnectionUnreachable, true
	}
	return "", false
}

func classifyError(stage apperrors.Stage, table string, err error) error {
	return datasource.ClassifyError(stage, table, err, classifyMSSQLError)
}
