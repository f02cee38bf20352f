package services

import (
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
	"github.com/samber/lo"

	"github.com/ekaya-inc/edda-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/edda-engine/pkg/models"
)

// RuleColumn is a candidate referencing column.
type RuleColumn struct {
	Schema       string
	Table        string
	Name         string
	DataType     string
	IsPrimaryKey bool
}

// RuleKey is the single-column primary key of a candidate target table.
type RuleKey struct {
	Schema   string
	Table    string
	Column   string
	DataType string
}

// RelationshipRule decides whether a column references a key.
// Type compatibility is checked by the inferrer before rules run.
type RelationshipRule interface {
	Name() string
	Match(source RuleColumn, target RuleKey) (confidence float64, ok bool)
}

// DefaultRelationshipRules returns the rules in precedence order.
func DefaultRelationshipRules() []RelationshipRule {
	return []RelationshipRule{
		fkSuffixRule{confidence: 0.9},
		sameNamePKRule{confidence: 0.8},
		prefixContainsRule{confidence: 0.6},
	}
}

var keySuffixes = []string{"_id", "_uuid", "_key"}

// keyPrefix strips a key suffix: "customer_id" -> "customer".
func keyPrefix(column string) (string, bool) {
	name := strings.ToLower(column)
	for _, suffix := range keySuffixes {
		if strings.HasSuffix(name, suffix) && len(name) > len(suffix) {
			return name[:len(name)-len(suffix)], true
		}
	}
	return "", false
}

// singular returns the lower-cased singular form of a table name.
func singular(table string) string {
	return strings.ToLower(inflection.Singular(table))
}

// fkSuffixRule links <prefix>_id to table <prefix> (either number) keyed by id.
type fkSuffixRule struct{ confidence float64 }

func (fkSuffixRule) Name() string { return "fk_suffix" }

func (r fkSuffixRule) Match(source RuleColumn, target RuleKey) (float64, bool) {
	prefix, ok := keyPrefix(source.Name)
	if !ok || !strings.EqualFold(target.Column, "id") {
		return 0, false
	}
	if singular(prefix) != singular(target.Table) {
		return 0, false
	}
	return r.confidence, true
}

// sameNamePKRule links a column named like a non-id primary key. Two
// primary keys that share a name are not linked.
type sameNamePKRule struct{ confidence float64 }

func (sameNamePKRule) Name() string { return "same_name_pk" }

func (r sameNamePKRule) Match(source RuleColumn, target RuleKey) (float64, bool) {
	if source.IsPrimaryKey || strings.EqualFold(target.Column, "id") || !strings.EqualFold(source.Name, target.Column) {
		return 0, false
	}
	return r.confidence, true
}

// prefixContainsRule links billing_customer_id to customers: the target's
// singular name appears as whole underscore-separated words in the prefix.
type prefixContainsRule struct{ confidence float64 }

func (prefixContainsRule) Name() string { return "prefix_contains" }

func (r prefixContainsRule) Match(source RuleColumn, target RuleKey) (float64, bool) {
	prefix, ok := keyPrefix(source.Name)
	if !ok {
		return 0, false
	}
	name := singular(target.Table)
	if len(name) < 2 || !strings.Contains("_"+prefix+"_", "_"+name+"_") {
		return 0, false
	}
	return r.confidence, true
}

// RelationshipInferrer derives declared and inferred relationships from a catalog.
type RelationshipInferrer struct {
	rules []RelationshipRule
}

// NewRelationshipInferrer creates an inferrer. Without rules the defaults are used.
func NewRelationshipInferrer(rules ...RelationshipRule) *RelationshipInferrer {
	if len(rules) == 0 {
		rules = DefaultRelationshipRules()
	}
	return &RelationshipInferrer{rules: rules}
}

type inferredMatch struct {
	key        RuleKey
	rule       string
	confidence float64
	exact      bool // target singular name equals the column prefix
}

// Infer returns the declared foreign keys followed by at most one inferred
// link per remaining column, ordered by from then to.
func (r *RelationshipInferrer) Infer(catalog *datasource.Catalog) []*models.Relationship {
	rels := make([]*models.Relationship, 0, len(catalog.ForeignKeys))
	declaredFrom := make(map[models.ColumnRef]bool, len(catalog.ForeignKeys))

	for _, fk := range catalog.ForeignKeys {
		name := fk.ConstraintName
		rels = append(rels, &models.Relationship{
			FromSchema:     fk.SourceSchema,
			FromTable:      fk.SourceTable,
			FromColumn:     fk.SourceColumn,
			ToSchema:       fk.TargetSchema,
			ToTable:        fk.TargetTable,
			ToColumn:       fk.TargetColumn,
			ConstraintName: &name,
			Confidence:     1.0,
			Kind:           models.RelationshipKindDeclared,
		})
		declaredFrom[models.ColumnRef{Schema: fk.SourceSchema, Table: fk.SourceTable, Column: fk.SourceColumn}] = true
	}

	tables := lo.Filter(catalog.Tables, func(t datasource.CatalogTable, _ int) bool {
		return t.Accessible && t.ReadErr == nil
	})
	keys := lo.FilterMap(tables, func(t datasource.CatalogTable, _ int) (RuleKey, bool) {
		pk := t.PrimaryKey()
		if len(pk) != 1 {
			return RuleKey{}, false
		}
		col, _ := lo.Find(t.Columns, func(c datasource.CatalogColumn) bool { return c.Name == pk[0] })
		return RuleKey{Schema: t.Schema, Table: t.Name, Column: col.Name, DataType: col.DataType}, true
	})

	for _, t := range tables {
		for _, c := range t.Columns {
			ref := models.ColumnRef{Schema: t.Schema, Table: t.Name, Column: c.Name}
			if declaredFrom[ref] {
				continue
			}
			source := RuleColumn{Schema: t.Schema, Table: t.Name, Name: c.Name, DataType: c.DataType, IsPrimaryKey: c.IsPrimaryKey}
			best, ok := r.bestMatch(source, keys)
			if !ok {
				continue
			}
			rule := best.rule
			rels = append(rels, &models.Relationship{
				FromSchema: t.Schema,
				FromTable:  t.Name,
				FromColumn: c.Name,
				ToSchema:   best.key.Schema,
				ToTable:    best.key.Table,
				ToColumn:   best.key.Column,
				Confidence: best.confidence,
				Kind:       models.RelationshipKindInferred,
				Rule:       &rule,
			})
		}
	}

	SortRelationships(rels)
	return rels
}

// bestMatch applies the rules to every key of another table. The first
// matching rule decides a pair; across targets the highest confidence wins,
// then an exact prefix match, then the smallest schema.table.
func (r *RelationshipInferrer) bestMatch(source RuleColumn, keys []RuleKey) (inferredMatch, bool) {
	prefix, _ := keyPrefix(source.Name)

	var matches []inferredMatch
	for _, key := range keys {
		if key.Schema == source.Schema && key.Table == source.Table {
			continue
		}
		if !joinCompatible(source.DataType, key.DataType) {
			continue
		}
		for _, rule := range r.rules {
			if conf, ok := rule.Match(source, key); ok {
				matches = append(matches, inferredMatch{
					key:        key,
					rule:       rule.Name(),
					confidence: conf,
					exact:      prefix != "" && singular(key.Table) == singular(prefix),
				})
				break
			}
		}
	}
	if len(matches) == 0 {
		return inferredMatch{}, false
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.confidence != b.confidence {
			return a.confidence > b.confidence
		}
		if a.exact != b.exact {
			return a.exact
		}
		if a.key.Schema != b.key.Schema {
			return a.key.Schema < b.key.Schema
		}
		return a.key.Table < b.key.Table
	})
	return matches[0], true
}

// SortRelationships orders by from (schema, table, column) then to.
func SortRelationships(rels []*models.Relationship) {
	sort.SliceStable(rels, func(i, j int) bool {
		a, b := rels[i], rels[j]
		if c := compareRefs(a.From(), b.From()); c != 0 {
			return c < 0
		}
		return compareRefs(a.To(), b.To()) < 0
	})
}

func compareRefs(a, b models.ColumnRef) int {
	if c := strings.Compare(a.Schema, b.Schema); c != 0 {
		return c
	}
	if c := strings.Compare(a.Table, b.Table); c != 0 {
		return c
	}
	return strings.Compare(a.Column, b.Column)
}
