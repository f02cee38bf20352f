package mssql

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

// CatalogReader reads SQL Server catalog views.
type CatalogReader struct {
	handle *dbHandle
}

// NewCatalogReader creates a SQL Server catalog reader.
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

// User tables and views. Row counts come from the heap or clustered index
// partitions, which SQL Server keeps without a scan.
const tablesQuery = `
	SELECT
		s.name,
		o.name,
		CASE o.type WHEN 'V' THEN 'VIEW' ELSE 'BASE TABLE' END,
		COALESCE((
			SELECT SUM(p.rows)
			FROM sys.partitions p
			WHERE p.object_id = o.object_id AND p.index_id IN (0, 1)
		), 0),
		CAST(COALESCE(HAS_PERMS_BY_NAME(QUOTENAME(s.name) + N'.' + QUOTENAME(o.name), N'OBJECT', N'SELECT'), 0) AS BIT)
	FROM sys.objects o
	JOIN sys.schemas s ON s.schema_id = o.schema_id
	WHERE o.type IN ('U', 'V')
	  AND o.is_ms_shipped = 0
	  AND s.name = @schema
	ORDER BY s.name, o.name
`

const columnsQuery = `
	SELECT
		c.name,
		tp.name,
		c.is_nullable,
		CAST(CASE WHEN pk.column_id IS NOT NULL THEN 1 ELSE 0 END AS BIT),
		CAST(CASE WHEN uq.column_id IS NOT NULL THEN 1 ELSE 0 END AS BIT),
		c.column_id,
		OBJECT_DEFINITION(c.default_object_id)
	FROM sys.columns c
	JOIN sys.types tp ON tp.user_type_id = c.user_type_id
	LEFT JOIN (
		SELECT ic.object_id, ic.column_id
		FROM sys.index_columns ic
		JOIN sys.indexes i ON i.object_id = ic.object_id AND i.index_id = ic.index_id
		WHERE i.is_primary_key = 1
	) pk ON pk.object_id = c.object_id AND pk.column_id = c.column_id
	LEFT JOIN (
		-- single-column unique indexes only
		SELECT DISTINCT ic.object_id, ic.column_id
		FROM sys.index_columns ic
		JOIN sys.indexes i ON i.object_id = ic.object_id AND i.index_id = ic.index_id
		WHERE i.is_unique = 1 AND i.is_primary_key = 0
		  AND (SELECT COUNT(*) FROM sys.index_columns ic2
		       WHERE ic2.object_id = i.object_id AND ic2.index_id = i.index_id
		         AND ic2.is_included_column = 0) = 1
	) uq ON uq.object_id = c.object_id AND uq.column_id = c.column_id
	WHERE c.object_id = OBJECT_ID(QUOTENAME(@schema) + N'.' + QUOTENAME(@table))
	ORDER BY c.column_id
`

const foreignKeysQuery = `
	SELECT
		fk.name,
		SCHEMA_NAME(pt.schema_id), pt.name, pc.name,
		SCHEMA_NAME(rt.schema_id), rt.name, rc.name
	FROM sys.foreign_keys fk
	JOIN sys.foreign_key_columns fkc ON fkc.constraint_object_id = fk.object_id
	JOIN sys.tables pt ON pt.object_id = fkc.parent_object_id
	JOIN sys.columns pc ON pc.object_id = fkc.parent_object_id AND pc.column_id = fkc.parent_column_id
	JOIN sys.tables rt ON rt.object_id = fkc.referenced_object_id
	JOIN sys.columns rc ON rc.object_id = fkc.referenced_object_id AND rc.column_id = fkc.referenced_column_id
	WHERE SCHEMA_NAME(pt.schema_id) = @schema
	ORDER BY pt.name, pc.name, fk.name
`

const uniqueConstraintsQuery = `
	SELECT t.name, kc.name, c.name
	FROM sys.key_constraints kc
	JOIN sys.tables t ON t.object_id = kc.parent_object_id
	JOIN sys.index_columns ic ON ic.object_id = kc.parent_object_id AND ic.index_id = kc.unique_index_id
	JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id
	WHERE kc.type = 'UQ' AND SCHEMA_NAME(t.schema_id) = @schema
	ORDER BY t.name, kc.name, ic.key_ordinal
`

const indexesQuery = `
	SELECT t.name, i.name, i.type_desc, i.is_unique, c.name
	FROM sys.indexes i
	JOIN sys.tables t ON t.object_id = i.object_id
	JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id
	JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id
	WHERE SCHEMA_NAME(t.schema_id) = @schema
	  AND i.name IS NOT NULL
	  AND ic.is_included_column = 0
	ORDER BY t.name, i.name, ic.key_ordinal
`

// ReadCatalog returns the tables, columns and constraints of schema.
func (r *CatalogReader) ReadCatalog(ctx context.Context, schema string) (*datasource.Catalog, error) {
	if schema == "" {
		schema = DefaultSchema
	}

	tables, err := r.readTables(ctx, schema)
	if err != nil {
		return nil, classifyError(apperrors.StageCatalog, "", err)
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

func (r *CatalogReader) readTables(ctx context.Context, schema string) ([]datasource.CatalogTable, error) {
	rows, err := r.handle.db.QueryContext(ctx, tablesQuery, sql.Named("schema", schema))
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []datasource.CatalogTable
	for rows.Next() {
		var t datasource.CatalogTable
		if err := rows.Scan(&t.Schema, &t.Name, &t.TableType, &t.RowEstimate, &t.Accessible); err != nil {
			return nil, fmt.Errorf("scan tables: %w", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return tables, nil
}

func (r *CatalogReader) readColumns(ctx context.Context, schema, table string) ([]datasource.CatalogColumn, error) {
	rows, err := r.handle.db.QueryContext(ctx, columnsQuery, sql.Named("schema", schema), sql.Named("table", table))
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var cols []datasource.CatalogColumn
	for rows.Next() {
		var c datasource.CatalogColumn
		var typeName string
		var def sql.NullString
		if err := rows.Scan(&c.Name, &typeName, &c.Nullable, &c.IsPrimaryKey, &c.IsUnique, &c.OrdinalPosition, &def); err != nil {
			return nil, fmt.Errorf("scan columns: %w", err)
		}
		c.DataType = strings.ToLower(mapSQLServerType(typeName))
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
	rows, err := r.handle.db.QueryContext(ctx, foreignKeysQuery, sql.Named("schema", schema))
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
// Both queries return one row per key column, grouped here.
func (r *CatalogReader) readConstraints(ctx context.Context, catalog *datasource.Catalog) error {
	byName := make(map[string]*datasource.CatalogTable, len(catalog.Tables))
	for i := range catalog.Tables {
		byName[catalog.Tables[i].Name] = &catalog.Tables[i]
	}

	rows, err := r.handle.db.QueryContext(ctx, uniqueConstraintsQuery, sql.Named("schema", catalog.Schema))
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

	idxRows, err := r.handle.db.QueryContext(ctx, indexesQuery, sql.Named("schema", catalog.Schema))
	if err != nil {
		return fmt.Errorf("query indexes: %w", err)
	}
	defer idxRows.Close()

	var current *indexBuilder
	flush := func() {
		if current == nil {
			return
		}
		if t, ok := byName[current.table]; ok {
			t.Indexes = append(t.Indexes, current.build())
		}
		current = nil
	}
	for idxRows.Next() {
		var table, name, typeDesc, column string
		var unique bool
		if err := idxRows.Scan(&table, &name, &typeDesc, &unique, &column); err != nil {
			return fmt.Errorf("scan index: %w", err)
		}
		if current == nil || current.table != table || current.name != name {
			flush()
			current = &indexBuilder{table: table, name: name, typeDesc: typeDesc, unique: unique}
		}
		current.columns = append(current.columns, column)
	}
	flush()
	return idxRows.Err()
}

// indexBuilder renders sys.indexes rows as a readable definition such as
// "UNIQUE NONCLUSTERED INDEX [ix] ON [dbo].[t] ([a], [b])".
type indexBuilder struct {
	table    string
	name     string
	typeDesc string
	unique   bool
	columns  []string
}

func (b *indexBuilder) build() models.IndexInfo {
	quoted := make([]string, len(b.columns))
	for i, c := range b.columns {
		quoted[i] = quoteName(c)
	}
	prefix := ""
	if b.unique {
		prefix = "UNIQUE "
	}
	return models.IndexInfo{
		Name: b.name,
		Definition: fmt.Sprintf("%s%s INDEX %s ON %s (%s)",
			prefix, b.typeDesc, quoteName(b.name), quoteName(b.table), strings.Join(quoted, ", ")),
	}
}

var _ datasource.CatalogReader = (*CatalogReader)(nil)
