package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/edda-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/edda-engine/pkg/apperrors"
	"github.com/ekaya-inc/edda-engine/pkg/models"
)

// qualifiedTableName returns a properly quoted table reference.
// If schemaName is empty, returns just the quoted table name.
// Otherwise returns "schema"."table".
func qualifiedTableName(schemaName, tableName string) string {
	quotedTable := pgx.Identifier{tableName}.Sanitize()
	if schemaName == "" {
		return quotedTable
	}
	return pgx.Identifier{schemaName}.Sanitize() + "." + quotedTable
}

// CatalogReader reads PostgreSQL system catalogs.
type CatalogReader struct {
	handle *poolHandle
}

// NewCatalogReader creates a PostgreSQL catalog reader.
func NewCatalogReader(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, datasourceID uuid.UUID) (*CatalogReader, error) {
	handle, err := openPool(ctx, cfg, connMgr, datasourceID)
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

// Tables, views and materialized views of one schema. Partitions are
// reached through their parent. Row estimates come from pg_class.reltuples,
// which is -1 for never-analyzed tables on PostgreSQL 14+.
const tablesQuery = `
	SELECT
		n.nspname::text,
		c.relname::text,
		CASE c.relkind
			WHEN 'v' THEN 'VIEW'
			WHEN 'm' THEN 'MATERIALIZED VIEW'
			ELSE 'BASE TABLE'
		END,
		GREATEST(c.reltuples, 0)::bigint,
		has_table_privilege(c.oid, 'SELECT')
	FROM pg_class c
	JOIN pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = $1
	  AND c.relkind IN ('r', 'p', 'v', 'm')
	  AND NOT c.relispartition
	ORDER BY n.nspname, c.relname
`

// Columns come from pg_attribute rather than information_schema.columns so
// that tables without privileges still list their structure.
const columnsQuery = `
	SELECT
		a.attname::text,
		format_type(a.atttypid, a.atttypmod),
		NOT a.attnotnull,
		COALESCE(pk.is_pk, false),
		COALESCE(uq.is_unique, false),
		a.attnum::int,
		pg_get_expr(d.adbin, d.adrelid)
	FROM pg_attribute a
	JOIN pg_class c ON c.oid = a.attrelid
	JOIN pg_namespace n ON n.oid = c.relnamespace
	LEFT JOIN pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
	LEFT JOIN LATERAL (
		SELECT true AS is_pk
		FROM pg_index ix
		WHERE ix.indrelid = c.oid AND ix.indisprimary AND a.attnum = ANY(ix.indkey)
		LIMIT 1
	) pk ON true
	LEFT JOIN LATERAL (
		-- single-column unique indexes only
		SELECT true AS is_unique
		FROM pg_index ix
		WHERE ix.indrelid = c.oid AND ix.indisunique AND NOT ix.indisprimary
		  AND ix.indnatts = 1 AND ix.indkey[0] = a.attnum
		LIMIT 1
	) uq ON true
	WHERE n.nspname = $1 AND c.relname = $2
	  AND a.attnum > 0 AND NOT a.attisdropped
	ORDER BY a.attnum
`

const foreignKeysQuery = `
	SELECT
		con.conname::text,
		sn.nspname::text, sc.relname::text, sa.attname::text,
		tn.nspname::text, tc.relname::text, ta.attname::text
	FROM pg_constraint con
	JOIN pg_class sc ON sc.oid = con.conrelid
	JOIN pg_namespace sn ON sn.oid = sc.relnamespace
	JOIN pg_class tc ON tc.oid = con.confrelid
	JOIN pg_namespace tn ON tn.oid = tc.relnamespace
	CROSS JOIN LATERAL unnest(con.conkey, con.confkey) AS k(src, tgt)
	JOIN pg_attribute sa ON sa.attrelid = con.conrelid AND sa.attnum = k.src
	JOIN pg_attribute ta ON ta.attrelid = con.confrelid AND ta.attnum = k.tgt
	WHERE con.contype = 'f' AND sn.nspname = $1
	ORDER BY sn.nspname, sc.relname, sa.attname, con.conname
`

const uniqueConstraintsQuery = `
	SELECT
		c.relname::text,
		con.conname::text,
		array_agg(a.attname::text ORDER BY k.ord)
	FROM pg_constraint con
	JOIN pg_class c ON c.oid = con.conrelid
	JOIN pg_namespace n ON n.oid = c.relnamespace
	CROSS JOIN LATERAL unnest(con.conkey) WITH ORDINALITY AS k(attnum, ord)
	JOIN pg_attribute a ON a.attrelid = c.oid AND a.attnum = k.attnum
	WHERE n.nspname = $1 AND con.contype = 'u'
	GROUP BY c.relname, con.conname
	ORDER BY c.relname, con.conname
`

const indexesQuery = `
	SELECT tablename::text, indexname::text, indexdef
	FROM pg_indexes
	WHERE schemaname = $1
	ORDER BY tablename, indexname
`

// ReadCatalog returns the tables, columns and constraints of schema.
func (r *CatalogReader) ReadCatalog(ctx context.Context, schema string) (*datasource.Catalog, error) {
	if schema == "" {
		schema = DefaultSchema
	}
	pool := r.handle.pool

	tables, err := r.readTables(ctx, schema)
	if err != nil {
		return nil, classifyError(apperrors.StageCatalog, "", err)
	}

	for i := range tables {
		t := &tables[i]
		cols, err := r.readColumns(ctx, t.Schema, t.Name)
		if err != nil {
			// A single unreadable table does not fail the catalog.
			if ctx.Err() != nil {
				return nil, classifyError(apperrors.StageCatalog, t.FullName(), err)
			}
			t.ReadErr = classifyError(apperrors.StageCatalog, t.FullName(), err)
			continue
		}
		t.Columns = cols
	}

	catalog := &datasource.Catalog{Schema: schema, Tables: tables}

	fkRows, err := pool.Query(ctx, foreignKeysQuery, schema)
	if err != nil {
		return nil, classifyError(apperrors.StageCatalog, "", fmt.Errorf("query foreign keys: %w", err))
	}
	catalog.ForeignKeys, err = pgx.CollectRows(fkRows, func(row pgx.CollectableRow) (datasource.ForeignKey, error) {
		var fk datasource.ForeignKey
		err := row.Scan(&fk.ConstraintName, &fk.SourceSchema, &fk.SourceTable, &fk.SourceColumn,
			&fk.TargetSchema, &fk.TargetTable, &fk.TargetColumn)
		return fk, err
	})
	if err != nil {
		return nil, classifyError(apperrors.StageCatalog, "", fmt.Errorf("scan foreign keys: %w", err))
	}

	if err := r.readConstraints(ctx, catalog); err != nil {
		return nil, classifyError(apperrors.StageCatalog, "", err)
	}

	catalog.Sort()
	return catalog, nil
}

func (r *CatalogReader) readTables(ctx context.Context, schema string) ([]datasource.CatalogTable, error) {
	rows, err := r.handle.pool.Query(ctx, tablesQuery, schema)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	tables, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (datasource.CatalogTable, error) {
		var t datasource.CatalogTable
		err := row.Scan(&t.Schema, &t.Name, &t.TableType, &t.RowEstimate, &t.Accessible)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan tables: %w", err)
	}
	return tables, nil
}

func (r *CatalogReader) readColumns(ctx context.Context, schema, table string) ([]datasource.CatalogColumn, error) {
	rows, err := r.handle.pool.Query(ctx, columnsQuery, schema, table)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	cols, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (datasource.CatalogColumn, error) {
		var c datasource.CatalogColumn
		err := row.Scan(&c.Name, &c.DataType, &c.Nullable, &c.IsPrimaryKey, &c.IsUnique, &c.OrdinalPosition, &c.Default)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan columns: %w", err)
	}
	return cols, nil
}

// readConstraints attaches unique constraints and indexes to their tables.
func (r *CatalogReader) readConstraints(ctx context.Context, catalog *datasource.Catalog) error {
	byName := make(map[string]*datasource.CatalogTable, len(catalog.Tables))
	for i := range catalog.Tables {
		byName[catalog.Tables[i].Name] = &catalog.Tables[i]
	}

	rows, err := r.handle.pool.Query(ctx, uniqueConstraintsQuery, catalog.Schema)
	if err != nil {
		return fmt.Errorf("query unique constraints: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var table string
		var uc models.UniqueConstraint
		if err := rows.Scan(&table, &uc.Name, &uc.Columns); err != nil {
			return fmt.Errorf("scan unique constraint: %w", err)
		}
		if t, ok := byName[table]; ok {
			t.UniqueConstraints = append(t.UniqueConstraints, uc)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate unique constraints: %w", err)
	}

	idxRows, err := r.handle.pool.Query(ctx, indexesQuery, catalog.Schema)
	if err != nil {
		return fmt.Errorf("query indexes: %w", err)
	}
	defer idxRows.Close()
	for idxRows.Next() {
		var table string
		var idx models.IndexInfo
		if err := idxRows.Scan(&table, &idx.Name, &idx.Definition); err != nil {
			return fmt.Errorf("scan index: %w", err)
		}
		if t, ok := byName[table]; ok {
			t.Indexes = append(t.Indexes, idx)
		}
	}
	return idxRows.Err()
}

// Ensure CatalogReader implements datasource.CatalogReader at compile time.
var _ datasource.CatalogReader = (*CatalogReader)(nil)
