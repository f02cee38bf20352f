package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ekaya-inc/edda-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/edda-engine/pkg/apperrors"
	"github.com/ekaya-inc/edda-engine/pkg/models"
)

// quoteIdent wraps a MySQL identifier in backticks, doubling any inside.
func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func qualifiedTableName(schema, table string) string {
	if schema == "" {
		return quoteIdent(table)
	}
	return quoteIdent(schema) + "." + quoteIdent(table)
}

// CatalogReader reads MySQL information_schema.
type CatalogReader struct {
	handle *dbHandle
}

// NewCatalogReader creates a MySQL catalog reader.
func NewCatalogReader(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, datasourceID uuid.UUID) (*CatalogReader, error) {
	handle, err := openDB(ctx, cfg, connMgr, datasourceID)
	if err != nil {
		return nil, err
	}
	return &CatalogReader{handle: handle}, nil
}

// Close releases the reader (but NOT the pool if managed).
func (r *CatalogReader) Close() error {
	r.handle.close()
	return nil
}

// TABLE_ROWS is an InnoDB estimate and NULL for views.
// information_schema only lists tables the user holds some privilege on, so
// every listed table is treated as accessible; missing SELECT surfaces when
// sampling.
const tablesQuery = `
	SELECT
		TABLE_SCHEMA,
		TABLE_NAME,
		CASE TABLE_TYPE WHEN 'VIEW' THEN 'VIEW' ELSE 'BASE TABLE' END,
		COALESCE(TABLE_ROWS, 0)
	FROM information_schema.TABLES
	WHERE TABLE_SCHEMA = ?
	ORDER BY TABLE_NAME
`

const columnsQuery = `
	SELECT
		COLUMN_NAME,
		DATA_TYPE,
		IS_NULLABLE = 'YES',
		COLUMN_KEY = 'PRI',
		COLUMN_KEY = 'UNI',
		ORDINAL_POSITION,
		COLUMN_DEFAULT
	FROM information_schema.COLUMNS
	WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
	ORDER BY ORDINAL_POSITION
`

const foreignKeysQuery = `
	SELECT
		CONSTRAINT_NAME,
		TABLE_SCHEMA, TABLE_NAME, COLUMN_NAME,
		REFERENCED_TABLE_SCHEMA, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME
	FROM information_schema.KEY_COLUMN_USAGE
	WHERE TABLE_SCHEMA = ? AND REFERENCED_TABLE_NAME IS NOT NULL
	ORDER BY TABLE_NAME, COLUMN_NAME, CONSTRAINT_NAME
`

const uniqueConstraintsQuery = `
	SELECT tc.TABLE_NAME, tc.CONSTRAINT_NAME, k.COLUMN_NAME
	FROM information_schema.TABLE_CONSTRAINTS tc
	JOIN information_schema.KEY_COLUMN_USAGE k
	  ON k.CONSTRAINT_SCHEMA = tc.CONSTRAINT_SCHEMA
	 AND k.TABLE_NAME = tc.TABLE_NAME
	 AND k.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
	WHERE tc.TABLE_SCHEMA = ? AND tc.CONSTRAINT_TYPE = 'UNIQUE'
	ORDER BY tc.TABLE_NAME, tc.CONSTRAINT_NAME, k.ORDINAL_POSITION
`

// COLUMN_NAME is NULL for functional key parts.
const indexesQuery = `
	SELECT TABLE_NAME, INDEX_NAME, NON_UNIQUE = 0, INDEX_TYPE, COLUMN_NAME
	FROM information_schema.STATISTICS
	WHERE TABLE_SCHEMA = ?
	ORDER BY TABLE_NAME, INDEX_NAME, SEQ_IN_INDEX
`

// ReadCatalog returns the tables, columns and constraints of schema.
func (r *CatalogReader) ReadCatalog(ctx context.Context, schema string) (*datasource.Catalog, error) {
	db := r.handle.db

	rows, err := db.QueryContext(ctx, tablesQuery, schema)
	if err != nil {
		return nil, classifyError(apperrors.StageCatalog, "", fmt.Errorf("query tables: %w", err))
	}
	var tables []datasource.CatalogTable
	for rows.Next() {
		t := datasource.CatalogTable{Accessible: true}
		if err := rows.Scan(&t.Schema, &t.Name, &t.TableType, &t.RowEstimate); err != nil {
			rows.Close()
			return nil, classifyError(apperrors.StageCatalog, "", fmt.Errorf("scan tables: %w", err))
		}
		tables = append(tables, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, classifyError(apperrors.StageCatalog, "", fmt.Errorf("iterate tables: %w", err))
	}

	for i := range tables {
		t := &tables[i]
		cols, err := r.readColumns(ctx, t.Schema, t.Name)
		if err != nil {
			if ctx.Err() != nil {
				return nil, classifyError(apperrors.StageCatalog, t.FullName(), err)
			}
			t.ReadErr = classifyError(apperrors.StageCatalog, t.FullName(), err)
			continue
		}
		t.Columns = cols
	}

	catalog := &datasource.Catalog{Schema: schema, Tables: tables}
	if catalog.ForeignKeys, err = r.readForeignKeys(ctx, schema); err != nil {
		return nil, classifyError(apperrors.StageCatalog, "", err)
	}
	if err := r.readConstraints(ctx, catalog); err != nil {
		return nil, classifyError(apperrors.StageCatalog, "", err)
	}

	catalog.Sort()
	return catalog, nil
}

func (r *CatalogReader) readColumns(ctx context.Context, schema, table string) ([]datasource.CatalogColumn, error) {
	rows, err := r.handle.db.QueryContext(ctx, columnsQuery, schema, table)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var cols []datasource.CatalogColumn
	for rows.Next() {
		var c datasource.CatalogColumn
		var def sql.NullString
		if err := rows.Scan(&c.Name, &c.DataType, &c.Nullable, &c.IsPrimaryKey, &c.IsUnique, &c.OrdinalPosition, &def); err != nil {
			return nil, fmt.Errorf("scan columns: %w", err)
		}
		c.DataType = strings.ToLower(c.DataType)
		if def.Valid {
			c.Default = &def.String
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return cols, nil
}

func (r *CatalogReader) readForeignKeys(ctx context.Context, schema string) ([]datasource.ForeignKey, error) {
	rows, err := r.handle.db.QueryContext(ctx, foreignKeysQuery, schema)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	defer rows.Close()

	var fks []datasource.ForeignKey
	for rows.Next() {
		var fk datasource.ForeignKey
		if err := rows.Scan(&fk.ConstraintName, &fk.SourceSchema, &fk.SourceTable, &fk.SourceColumn,
			&fk.TargetSchema, &fk.TargetTable, &fk.TargetColumn); err != nil {
			return nil, fmt.Errorf("scan foreign keys: %w", err)
		}
		fks = append(fks, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign keys: %w", err)
	}
	return fks, nil
}

// readConstraints attaches unique constraints and indexes to their tables.
// Both queries return one row per key part, grouped here.
func (r *CatalogReader) readConstraints(ctx context.Context, catalog *datasource.Catalog) error {
	byName := make(map[string]*datasource.CatalogTable, len(catalog.Tables))
	for i := range catalog.Tables {
		byName[catalog.Tables[i].Name] = &catalog.Tables[i]
	}

	rows, err := r.handle.db.QueryContext(ctx, uniqueConstraintsQuery, catalog.Schema)
	if err != nil {
		return fmt.Errorf("query unique constraints: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var table, name, column string
		if err := rows.Scan(&table, &name, &column); err != nil {
			return fmt.Errorf("scan unique constraint: %w", err)
		}
		t, ok := byName[table]
		if !ok {
			continue
		}
		if n := len(t.UniqueConstraints); n > 0 && t.UniqueConstraints[n-1].Name == name {
			t.UniqueConstraints[n-1].Columns = append(t.UniqueConstraints[n-1].Columns, column)
			continue
		}
		t.UniqueConstraints = append(t.UniqueConstraints, models.UniqueConstraint{Name: name, Columns: []string{column}})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate unique constraints: %w", err)
	}

	idxRows, err := r.handle.db.QueryContext(ctx, indexesQuery, catalog.Schema)
	if err != nil {
		return fmt.Errorf("query indexes: %w", err)
	}
	defer idxRows.Close()

	var current *indexDef
	flush := func() {
		if current == nil {
			return
		}
		if t, ok := byName[current.table]; ok {
			t.Indexes = append(t.Indexes, current.info())
		}
		current = nil
	}
	for idxRows.Next() {
		var table, name, indexType string
		var unique bool
		var column sql.NullString
		if err := idxRows.Scan(&table, &name, &unique, &indexType, &column); err != nil {
			return fmt.Errorf("scan index: %w", err)
		}
		if current == nil || current.table != table || current.name != name {
			flush()
			current = &indexDef{table: table, name: name, unique: unique, indexType: indexType}
		}
		if column.Valid {
			current.columns = append(current.columns, quoteIdent(column.String))
		} else {
			current.columns = append(current.columns, "(expression)")
		}
	}
	flush()
	return idxRows.Err()
}

type indexDef struct {
	table     string
	name      string
	unique    bool
	indexType string
	columns   []string
}

// info renders e.g. "UNIQUE INDEX `uq_email` USING BTREE (`email`)".
func (d *indexDef) info() models.IndexInfo {
	var prefix string
	switch {
	case d.name == "PRIMARY":
		prefix = "PRIMARY KEY "
	case d.unique:
		prefix = "UNIQUE INDEX "
	default:
		prefix = "INDEX "
	}
	return models.IndexInfo{
		Name:       d.name,
		Definition: fmt.Sprintf("%s%s USING %s (%s)", prefix, quoteIdent(d.name), d.indexType, strings.Join(d.columns, ", ")),
	}
}

var _ datasource.CatalogReader = (*CatalogReader)(nil)
