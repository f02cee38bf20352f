package mysql

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ekaya-inc/edda-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/edda-engine/pkg/apperrors"
	"github.com/ekaya-inc/edda-engine/pkg/models"
)

// Sampler pulls bounded row samples from MySQL tables.
type Sampler struct {
	handle *dbHandle
}

// NewSampler creates a MySQL sampler.
func NewSampler(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, datasourceID uuid.UUID) (*Sampler, error) {
	handle, err := openDB(ctx, cfg, connMgr, datasourceID)
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

// buildSampleQuery renders the sampling SELECT. Reads stay bounded.
//
// quick: the first n rows in primary key order, or the first n rows read
// ordered by every column position.
// full:  a window of at most Window rows read as a primary key range from the
// start of the clustered index, then ORDER BY MD5(seed, row text) over that
// window with the key order breaking ties. MySQL has no block sampling.
// CONCAT_WS skips NULLs, which keeps the hash defined for sparse rows.
func buildSampleQuery(req datasource.SampleRequest) (string, []any) {
	table := qualifiedTableName(req.Schema, req.Table)

	selectList := make([]string, len(req.Columns))
	for i, col := range req.Columns {
		selectList[i] = "t." + quoteIdent(col)
	}
	var keyOrder []string
	for _, col := range req.PrimaryKey {
		keyOrder = append(keyOrder, quoteIdent(col))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM ", strings.Join(selectList, ", "))

	if req.Mode == models.ScanModeFull {
		b.WriteString("(SELECT * FROM " + table)
		if len(keyOrder) > 0 {
			b.WriteString(" ORDER BY " + strings.Join(keyOrder, ", "))
		}
		fmt.Fprintf(&b, " LIMIT ?) AS t ORDER BY MD5(CONCAT(?, CONCAT_WS('|', %s)))", strings.Join(selectList, ", "))
		for _, col := range keyOrder {
			b.WriteString(", t." + col)
		}
		b.WriteString(" LIMIT ?")
		return b.String(), []any{req.Window(), req.Seed(), req.Limit}
	}

	if len(keyOrder) > 0 {
		fmt.Fprintf(&b, "%s AS t ORDER BY t.%s LIMIT ?", table, strings.Join(keyOrder, ", t."))
		return b.String(), []any{req.Limit}
	}
	order := make([]string, len(req.Columns))
	for i := range req.Columns {
		order[i] = strconv.Itoa(i + 1)
	}
	fmt.Fprintf(&b, "(SELECT * FROM %s LIMIT ?) AS t ORDER BY %s", table, strings.Join(order, ", "))
	return b.String(), []any{req.Limit}
}

// Sample returns up to req.Limit rows of the table.
func (s *Sampler) Sample(ctx context.Context, req datasource.SampleRequest) (*datasource.Sample, error) {
	table := req.Schema + "." + req.Table
	if err := req.Validate(); err != nil {
		return nil, apperrors.NewScanError(apperrors.KindInternal, apperrors.StageSample, table, err)
	}

	query, args := buildSampleQuery(req)
	rows, err := s.handle.db.QueryContext(ctx, query, args...)
	if err != nil {
		if datasource.IsPartialRead(ctx, err) {
			return &datasource.Sample{Columns: req.Columns, Rows: [][]*string{}, Partial: true}, nil
		}
		return nil, s.classify(table, err)
	}

	sample, err := datasource.CollectSQLRows(ctx, rows, req.Limit)
	if err != nil {
		return nil, s.classify(table, err)
	}
	sample.Columns = req.Columns
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

var _ datasource.Sampler = (*Sampler)(nil)
