package models

import (
	"time"

	"github.com/google/uuid"
)

// TableDoc is the generated documentation of a table.
type TableDoc struct {
	TableID     uuid.UUID `json:"table_id"`
	DocMarkdown string    `json:"doc_markdown"`
	DocJSON     DocJSON   `json:"doc_json"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DocJSON is the structured form of a table's documentation.
type DocJSON struct {
	Table                string           `json:"table" yaml:"table"`
	WhatItRepresents     string           `json:"what_it_represents" yaml:"what_it_represents"`
	Grain                string           `json:"grain" yaml:"grain"`
	PrimaryKeys          []string         `json:"primary_keys" yaml:"primary_keys"`
	ForeignKeys          []DocForeignKey  `json:"foreign_keys" yaml:"foreign_keys"`
	Columns              []DocColumn      `json:"columns" yaml:"columns"`
	Constraints          TableConstraints `json:"constraints" yaml:"constraints"`
	CommonJoins          []DocJoin        `json:"common_joins" yaml:"common_joins"`
	QualityScore         *int             `json:"quality_score" yaml:"quality_score"`
	Warnings             []string         `json:"warnings" yaml:"warnings"`
	UsageRecommendations []string         `json:"usage_recommendations" yaml:"usage_recommendations"`
}

// DocForeignKey is a column of the table that references another table.
type DocForeignKey struct {
	Column     string `json:"column" yaml:"column"`
	References string `json:"references" yaml:"references"`
}

// DocColumn is one row of the documented column table.
type DocColumn struct {
	Name     string  `json:"name" yaml:"name"`
	Type     string  `json:"type" yaml:"type"`
	Nullable bool    `json:"nullable" yaml:"nullable"`
	PK       bool    `json:"pk" yaml:"pk"`
	FK       bool    `json:"fk" yaml:"fk"`
	PII      PIIRisk `json:"pii" yaml:"pii"`
}

// DocJoin is a relationship listed under common joins.
type DocJoin struct {
	From           string           `json:"from" yaml:"from"`
	To             string           `json:"to" yaml:"to"`
	ConstraintName *string          `json:"constraint_name" yaml:"constraint_name"`
	Confidence     float64          `json:"confidence" yaml:"confidence"`
	Kind           RelationshipKind `json:"kind" yaml:"kind"`
}
