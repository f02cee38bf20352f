package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/ekaya-inc/edda-engine/pkg/models"
)

const (
	maxDocIndexes = 8
	maxDocJoins   = 8
)

var usageRecommendations = []string{
	"Use primary keys for stable joins.",
	"Validate null-heavy columns before relying on them in reporting.",
	"Use date filters when querying large tables.",
}

// DocInput is everything the documentation of one table is built from.
type DocInput struct {
	Table         *models.Table
	Columns       []*models.Column
	Relationships []*models.Relationship // relationships touching the table
	Quality       *models.QualityReport  // nil when the table was not profiled
}

// GenerateDoc builds the structured doc and its Markdown rendering.
// It is a pure function: the same input always yields byte-identical output.
func GenerateDoc(in DocInput) (models.DocJSON, string) {
	cols := append([]*models.Column(nil), in.Columns...)
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].OrdinalPosition < cols[j].OrdinalPosition })

	rels := append([]*models.Relationship(nil), in.Relationships...)
	SortRelationships(rels)

	doc := buildDocJSON(in.Table, cols, rels, in.Quality)
	return doc, renderMarkdown(doc, rels)
}

// buildDocJSON expects cols in ordinal order and rels sorted.
func buildDocJSON(t *models.Table, cols []*models.Column, rels []*models.Relationship, quality *models.QualityReport) models.DocJSON {
	doc := models.DocJSON{
		Table:            t.FullName(),
		WhatItRepresents: whatItRepresents(t),
		PrimaryKeys: lo.FilterMap(cols, func(c *models.Column, _ int) (string, bool) {
			return c.ColumnName, c.IsPK
		}),
		ForeignKeys: []models.DocForeignKey{},
		Columns:     make([]models.DocColumn, 0, len(cols)),
		Constraints: models.TableConstraints{
			Unique:  nonNil(t.Constraints.Unique),
			Indexes: nonNil(t.Constraints.Indexes),
		},
		CommonJoins:          []models.DocJoin{},
		Warnings:             []string{},
		UsageRecommendations: append([]string(nil), usageRecommendations...),
	}
	doc.Grain = grain(doc.PrimaryKeys)

	for _, c := range cols {
		doc.Columns = append(doc.Columns, models.DocColumn{
			Name:     c.ColumnName,
			Type:     c.DataType,
			Nullable: c.Nullable,
			PK:       c.IsPK,
			FK:       c.IsFK,
			PII:      c.PIIRisk,
		})
	}

	for _, r := range rels {
		if r.Kind == models.RelationshipKindDeclared && r.FromSchema == t.SchemaName && r.FromTable == t.TableName {
			doc.ForeignKeys = append(doc.ForeignKeys, models.DocForeignKey{
				Column:     r.FromColumn,
				References: r.To().String(),
			})
		}
		if len(doc.CommonJoins) < maxDocJoins {
			doc.CommonJoins = append(doc.CommonJoins, models.DocJoin{
				From:           r.From().String(),
				To:             r.To().String(),
				ConstraintName: r.ConstraintName,
				Confidence:     r.Confidence,
				Kind:           r.Kind,
			})
		}
	}

	if quality != nil {
		score := quality.QualityScore
		doc.QualityScore = &score
		doc.Warnings = append(doc.Warnings, quality.Reasons...)
	}
	return doc
}

func whatItRepresents(t *models.Table) string {
	kind := "Table"
	if strings.EqualFold(t.TableType, "VIEW") {
		kind = "View"
	}
	return fmt.Sprintf("%s `%s` in schema `%s`, about %d rows by engine statistics.", kind, t.TableName, t.SchemaName, max(t.RowEstimate, 0))
}

func grain(pk []string) string {
	switch len(pk) {
	case 0:
		return "One row represents one record in this table."
	case 1:
		return fmt.Sprintf("One row per %s.", pk[0])
	default:
		return fmt.Sprintf("One row per (%s).", strings.Join(pk, ", "))
	}
}

func renderMarkdown(doc models.DocJSON, rels []*models.Relationship) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("# %s", doc.Table)
	line("")
	line("**What it represents:** %s", doc.WhatItRepresents)
	line("")
	line("**Grain:** %s", doc.Grain)
	line("")

	if len(doc.PrimaryKeys) > 0 {
		line("**Primary key(s):** %s", strings.Join(doc.PrimaryKeys, ", "))
	} else {
		line("**Primary key(s):** none")
	}
	fkCols := lo.FilterMap(doc.Columns, func(c models.DocColumn, _ int) (string, bool) { return c.Name, c.FK })
	if len(fkCols) > 0 {
		line("")
		line("**Foreign key column(s):** %s", strings.Join(fkCols, ", "))
	}
	line("")

	line("## Columns")
	line("")
	line("| Column | Type | Nullable | PK | FK | PII |")
	line("|---|---|---|---|---|---|")
	for _, c := range doc.Columns {
		line("| %s | %s | %s | %s | %s | %s |",
			cell(c.Name), cell(c.Type), yesNo(c.Nullable), check(c.PK), check(c.FK), c.PII)
	}
	line("")

	if len(doc.Constraints.Unique) > 0 {
		line("## Unique constraints")
		line("")
		for _, u := range doc.Constraints.Unique {
			line("- %s: %s", u.Name, strings.Join(u.Columns, ", "))
		}
		line("")
	}

	if len(doc.Constraints.Indexes) > 0 {
		line("## Indexes")
		line("")
		for i, idx := range doc.Constraints.Indexes {
			if i == maxDocIndexes {
				line("- and %d more", len(doc.Constraints.Indexes)-maxDocIndexes)
				break
			}
			line("- %s", idx.Name)
		}
		line("")
	}

	if len(doc.CommonJoins) > 0 {
		line("## Common joins")
		line("")
		for i, j := range doc.CommonJoins {
			line("- %s → %s (%s)", j.From, j.To, joinLabel(j, rels[i]))
		}
		line("")
	}

	line("## Data quality")
	line("")
	if doc.QualityScore != nil {
		line("**Quality score:** %d", *doc.QualityScore)
	} else {
		line("**Quality score:** not assessed")
	}
	if len(doc.Warnings) > 0 {
		line("")
		line("**Warnings:**")
		for _, w := range doc.Warnings {
			line("- %s", w)
		}
	}
	line("")

	line("## Usage recommendations")
	line("")
	for _, r := range doc.UsageRecommendations {
		line("- %s", r)
	}
	return b.String()
}

// joinLabel is the constraint name of a declared join, or inferred:<rule> <confidence>.
func joinLabel(j models.DocJoin, rel *models.Relationship) string {
	if j.ConstraintName != nil {
		return *j.ConstraintName
	}
	rule := "heuristic"
	if rel.Rule != nil {
		rule = *rel.Rule
	}
	return fmt.Sprintf("inferred:%s %.2f", rule, j.Confidence)
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}

func check(b bool) string {
	if b {
		return "✓"
	}
	return ""
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
