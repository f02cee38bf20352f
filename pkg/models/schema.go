package models

import (
	"time"

	"github.com/google/uuid"
)

// TableStatus is the per-table outcome of a scan.
type TableStatus string

const (
	TableStatusPending  TableStatus = "pending"
	TableStatusProfiled TableStatus = "profiled"
	TableStatusSkipped  TableStatus = "skipped"
	TableStatusFailed   TableStatus = "failed"
)

// Table is a catalog table captured by a ScanRun.
type Table struct {
	ID            uuid.UUID        `json:"id"`
	ScanRunID     uuid.UUID        `json:"scan_run_id"`
	SchemaName    string           `json:"schema_name"`
	TableName     string           `json:"table_name"`
	TableType     string           `json:"table_type"`
	RowEstimate   int64            `json:"row_estimate"`
	Status        TableStatus      `json:"status"`
	ErrorKind     *string          `json:"error_kind"`
	ErrorStage    *string          `json:"error_stage"`
	ErrorMessage  *string          `json:"error_message"`
	SamplePartial bool             `json:"sample_partial"`
	Constraints   TableConstraints `json:"constraints"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// FullName returns schema.table.
func (t *Table) FullName() string {
	return t.SchemaName + "." + t.TableName
}

// TableConstraints holds the constraint and index names documented per table.
type TableConstraints struct {
	Unique  []UniqueConstraint `json:"unique" yaml:"unique"`
	Indexes []IndexInfo        `json:"indexes" yaml:"indexes"`
}

// UniqueConstraint is a named unique key.
type UniqueConstraint struct {
	Name    string   `json:"name" yaml:"name"`
	Columns []string `json:"columns" yaml:"columns"`
}

// IndexInfo is a named index with its engine-specific definition.
type IndexInfo struct {
	Name       string `json:"name" yaml:"name"`
	Definition string `json:"definition" yaml:"definition"`
}

// PIIRisk is the personal-data risk assigned to a column.
type PIIRisk string

const (
	PIIRiskNone    PIIRisk = "none"
	PIIRiskLow     PIIRisk = "low"
	PIIRiskHigh    PIIRisk = "high"
	PIIRiskUnknown PIIRisk = "unknown"
)

// Column is a column of a scanned table.
type Column struct {
	ID              uuid.UUID `json:"id"`
	TableID         uuid.UUID `json:"table_id"`
	ColumnName      string    `json:"column_name"`
	DataType        string    `json:"data_type"`
	Nullable        bool      `json:"nullable"`
	IsPK            bool      `json:"is_pk"`
	IsFK            bool      `json:"is_fk"`
	IsUnique        bool      `json:"is_unique"`
	PIIRisk         PIIRisk   `json:"pii_risk"`
	OrdinalPosition int       `json:"ordinal_position"`
	DefaultValue    *string   `json:"default_value"`
}
