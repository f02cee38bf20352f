package models

import (
	"github.com/google/uuid"
)

// RelationshipKind distinguishes declared foreign keys from heuristic links.
type RelationshipKind string

const (
	RelationshipKindDeclared RelationshipKind = "declared"
	RelationshipKindInferred RelationshipKind = "inferred"
)

// ColumnRef addresses a column as schema.table.column.
type ColumnRef struct {
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Column string `json:"column"`
}

// String returns schema.table.column.
func (r ColumnRef) String() string {
	return r.Schema + "." + r.Table + "." + r.Column
}

// TableName returns schema.table.
func (r ColumnRef) TableName() string {
	return r.Schema + "." + r.Table
}

// Relationship links a column to a key column of another (or the same) table.
type Relationship struct {
	ID             uuid.UUID        `json:"id"`
	ScanRunID      uuid.UUID        `json:"scan_run_id"`
	FromSchema     string           `json:"from_schema"`
	FromTable      string           `json:"from_table"`
	FromColumn     string           `json:"from_column"`
	ToSchema       string           `json:"to_schema"`
	ToTable        string           `json:"to_table"`
	ToColumn       string           `json:"to_column"`
	ConstraintName *string          `json:"constraint_name"`
	Confidence     float64          `json:"confidence"`
	Kind           RelationshipKind `json:"kind"`
	Rule           *string          `json:"rule"`
}

// From returns the referencing column.
func (r *Relationship) From() ColumnRef {
	return ColumnRef{Schema: r.FromSchema, Table: r.FromTable, Column: r.FromColumn}
}

// To returns the referenced column.
func (r *Relationship) To() ColumnRef {
	return ColumnRef{Schema: r.ToSchema, Table: r.ToTable, Column: r.ToColumn}
}

// Touches reports whether schema.table is on either side of the link.
func (r *Relationship) Touches(schema, table string) bool {
	return (r.FromSchema == schema && r.FromTable == table) ||
		(r.ToSchema == schema && r.ToTable == table)
}
