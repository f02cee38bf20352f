package datasource

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/ekaya-inc/edda-engine/pkg/models"
)

// Catalog is the structural metadata of one schema of a target database.
type Catalog struct {
	Schema      string
	Tables      []CatalogTable
	ForeignKeys []ForeignKey
}

// CatalogTable is a table or view with its columns and constraints.
type CatalogTable struct {
	Schema      string
	Name        string
	TableType   string // "BASE TABLE", "VIEW"
	RowEstimate int64  // from engine statistics, never count(*)
	// Accessible is false when the scanning role lacks SELECT on the table.
	Accessible        bool
	Columns           []CatalogColumn
	UniqueConstraints []models.UniqueConstraint
	Indexes           []models.IndexInfo
	// ReadErr is set when the table's columns could not be read.
	ReadErr error
}

// CatalogColumn is a column with its key flags.
type CatalogColumn struct {
	Name            string
	DataType        string
	Nullable        bool
	IsPrimaryKey    bool
	IsUnique        bool
	OrdinalPosition int
	Default         *string
}

// ForeignKey is one column pair of a declared foreign key constraint.
// Composite keys produce one entry per column.
type ForeignKey struct {
	ConstraintName string
	SourceSchema   string
	SourceTable    string
	SourceColumn   string
	TargetSchema   string
	TargetTable    string
	TargetColumn   string
}

// FullName returns schema.table.
func (t *CatalogTable) FullName() string {
	return t.Schema + "." + t.Name
}

// PrimaryKey returns the primary key columns in ordinal order.
func (t *CatalogTable) PrimaryKey() []string {
	var pk []string
	for _, c := range t.Columns {
		if c.IsPrimaryKey {
			pk = append(pk, c.Name)
		}
	}
	return pk
}

// ColumnNames returns all column names in ordinal order.
func (t *CatalogTable) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Sort puts the catalog into its canonical order: tables by (schema, name),
// columns by ordinal position, foreign keys by source then target.
func (c *Catalog) Sort() {
	sort.SliceStable(c.Tables, func(i, j int) bool {
		if c.Tables[i].Schema != c.Tables[j].Schema {
			return c.Tables[i].Schema < c.Tables[j].Schema
		}
		return c.Tables[i].Name < c.Tables[j].Name
	})
	for i := range c.Tables {
		cols := c.Tables[i].Columns
		sort.SliceStable(cols, func(a, b int) bool {
			return cols[a].OrdinalPosition < cols[b].OrdinalPosition
		})
	}
	sort.SliceStable(c.ForeignKeys, func(i, j int) bool {
		return c.ForeignKeys[i].sortKey() < c.ForeignKeys[j].sortKey()
	})
}

func (fk ForeignKey) sortKey() string {
	return fmt.Sprintf("%s.%s|%s|%s.%s|%s",
		fk.SourceSchema, fk.SourceTable, fk.SourceColumn,
		fk.TargetSchema, fk.TargetTable, fk.TargetColumn)
}

// Table returns the named table, or nil.
func (c *Catalog) Table(schema, name string) *CatalogTable {
	for i := range c.Tables {
		if c.Tables[i].Schema == schema && c.Tables[i].Name == name {
			return &c.Tables[i]
		}
	}
	return nil
}

// SchemaHash returns the hex SHA-256 of the catalog's canonical lines:
//
//	T|schema|table|table_type
//	C|schema|table|column|data_type|YES/NO
//	R|from_schema.from_table|from_column|to_schema.to_table|to_column
//
// Tables and columns are hashed in catalog order, foreign keys sorted.
// Row estimates are excluded so that data churn does not change the hash.
func (c *Catalog) SchemaHash() string {
	var b strings.Builder
	for _, t := range c.Tables {
		fmt.Fprintf(&b, "T|%s|%s|%s\n", t.Schema, t.Name, t.TableType)
		for _, col := range t.Columns {
			nullable := "NO"
			if col.Nullable {
				nullable = "YES"
			}
			fmt.Fprintf(&b, "C|%s|%s|%s|%s|%s\n", t.Schema, t.Name, col.Name, col.DataType, nullable)
		}
	}

	keys := make([]string, 0, len(c.ForeignKeys))
	for _, fk := range c.ForeignKeys {
		keys = append(keys, fmt.Sprintf("R|%s.%s|%s|%s.%s|%s\n",
			fk.SourceSchema, fk.SourceTable, fk.SourceColumn,
			fk.TargetSchema, fk.TargetTable, fk.TargetColumn))
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
