package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/edda-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/edda-engine/pkg/apperrors"
	"github.com/ekaya-inc/edda-engine/pkg/models"
)

// Sampler pulls bounded row samples from PostgreSQL tables.
type Sampler struct {
	handle *poolHandle
}

// NewSampler creates a PostgreSQL sampler.
func NewSampler(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, datasourceID uuid.UUID) (*Sampler, error) {
	handle, err := openPool(ctx, cfg, connMgr, datasourceID)
	if err != nil {
		return nil, err
	}
	return &Sampler{handle: handle}, nil
}

// Close releases the sampler (but NOT the pool if managed).
func (s *Sampler) Close() error {
	s.handle.close()
	return nil
}

// buildSampleQuery renders the sampling SELECT. Every column is cast to text
// so values arrive uniformly regardless of type. No form reads more than a
// bounded number of rows from the table.
//
// quick: the first n rows in primary key order through the key index. Without
// a key, the first n rows read, ordered by every column position.
// full:  a window of at most Window rows, drawn as a repeatable block sample
// on tables larger than the window, then ORDER BY md5(seed || row::text) over
// that window only. The key order breaks md5 ties.
func buildSampleQuery(req datasource.SampleRequest) (string, []any) {
	table := qualifiedTableName(req.Schema, req.Table)

	var keyOrder []string
	for _, col := range req.PrimaryKey {
		keyOrder = append(keyOrder, pgx.Identifier{col}.Sanitize())
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	for i, col := range req.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("t." + pgx.Identifier{col}.Sanitize() + "::text")
	}
	b.WriteString(" FROM ")

	if req.Mode == models.ScanModeFull {
		b.WriteString("(SELECT * FROM " + table)
		if percent, ok := req.BlockSamplePercent(); ok {
			fmt.Fprintf(&b, " TABLESAMPLE SYSTEM (%s) REPEATABLE (%d)", percent, req.RepeatSeed())
		} else if len(keyOrder) > 0 {
			b.WriteString(" ORDER BY " + strings.Join(keyOrder, ", "))
		}
		b.WriteString(" LIMIT $3) AS t ORDER BY md5($1 || t::text)")
		for _, col := range keyOrder {
			b.WriteString(", t." + col)
		}
		b.WriteString(" LIMIT $2")
		return b.String(), []any{req.Seed(), req.Limit, req.Window()}
	}

	if len(keyOrder) > 0 {
		fmt.Fprintf(&b, "%s AS t ORDER BY t.%s LIMIT $1", table, strings.Join(keyOrder, ", t."))
		return b.String(), []any{req.Limit}
	}
	// Positional references order by the text casts, which works for types
	// without a btree opclass such as json.
	order := make([]string, len(req.Columns))
	for i := range req.Columns {
		order[i] = strconv.Itoa(i + 1)
	}
	fmt.Fprintf(&b, "(SELECT * FROM %s LIMIT $1) AS t ORDER BY %s", table, strings.Join(order, ", "))
	return b.String(), []any{req.Limit}
}

// Sample returns up to req.Limit rows of the table.
func (s *Sampler) Sample(ctx context.Context, req datasource.SampleRequest) (*datasource.Sample, error) {
	table := req.Schema + "." + req.Table
	if err := req.Validate(); err != nil {
		return nil, apperrors.NewScanError(apperrors.KindInternal, apperrors.StageSample, table, err)
	}

	query, args := buildSampleQuery(req)
	sample := &datasource.Sample{Columns: req.Columns, Rows: make([][]*string, 0, min(req.Limit, 1024))}

	rows, err := s.handle.pool.Query(ctx, query, args...)
	if err != nil {
		if datasource.IsPartialRead(ctx, err) {
			sample.Partial = true
			return sample, nil
		}
		return nil, s.classify(table, err)
	}
	defer rows.Close()

	for len(sample.Rows) < req.Limit && rows.Next() {
		vals := make([]*string, len(req.Columns))
		dest := make([]any, len(vals))
		for i := range vals {
			dest[i] = &vals[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, s.classify(table, fmt.Errorf("scan sample row: %w", err))
		}
		sample.Rows = append(sample.Rows, vals)
	}

	if err := rows.Err(); err != nil {
		if datasource.IsPartialRead(ctx, err) {
			sample.Partial = true
			return sample, nil
		}
		return nil, s.classify(table, err)
	}
	return sample, nil
}

// classify reports timeouts on a single table as recoverable.
func (s *Sampler) classify(table string, err error) error {
	classified := classifyError(apperrors.StageSample, table, err)
	kind := apperrors.KindOf(classified)
	if partial := datasource.PartialKind(kind); partial != kind {
		return apperrors.NewScanError(partial, apperrors.StageSample, table, err)
	}
	return classified
}

// Ensure Sampler implements datasource.Sampler at compile time.
var _ datasource.Sampler = (*Sampler)(nil)
