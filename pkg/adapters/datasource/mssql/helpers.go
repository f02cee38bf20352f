package mssql

import (
	"strings"
)

// quoteName mirrors SQL Server's QUOTENAME(): square brackets with ] doubled.
func quoteName(identifier string) string {
	return "[" + strings.ReplaceAll(identifier, "]", "]]") + "]"
}

// buildFullyQualifiedName returns [schema].[table], or [table] without a schema.
func buildFullyQualifiedName(schema, table string) string {
	if schema == "" {
		return quoteName(table)
	}
	return quoteName(schema) + "." + quoteName(table)
}

// portableTypes maps SQL Server type names onto the names the relationship
// inferrer's type classes understand. Unlisted types pass through upper-cased.
var portableTypes = map[string]string{
	"INT":              "INTEGER",
	"DECIMAL":          "NUMERIC",
	"SMALLMONEY":       "MONEY",
	"FLOAT":            "DOUBLE PRECISION",
	"REAL":             "REAL",
	"NCHAR":            "CHAR",
	"NVARCHAR":         "VARCHAR",
	"SYSNAME":          "VARCHAR",
	"NTEXT":            "TEXT",
	"BINARY":           "BYTEA",
	"VARBINARY":        "BYTEA",
	"IMAGE":            "BYTEA",
	"DATETIME":         "TIMESTAMP",
	"DATETIME2":        "TIMESTAMP",
	"SMALLDATETIME":    "TIMESTAMP",
	"DATETIMEOFFSET":   "TIMESTAMPTZ",
	"BIT":              "BOOLEAN",
	"UNIQUEIDENTIFIER": "UUID",
}

func mapSQLServerType(sqlServerType string) string {
	upper := strings.ToUpper(sqlServerType)
	if portable, ok := portableTypes[upper]; ok {
		return portable
	}
	return upper
}
