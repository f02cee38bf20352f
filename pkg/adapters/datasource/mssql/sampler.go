package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ekaya-inc/edda-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/edda-engine/pkg/apperrors"
	"github.com/ekaya-inc/edda-engine/pkg/models"
)

// Sampler pulls bounded row samples from SQL Server tables.
type Sampler struct {
	handle *dbHandle
}

// NewSampler creates a SQL Server sampler.
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
// quick: TOP n in primary key order, or the first n rows read ordered by
// every column position.
// full:  a window of TOP Window rows, from a repeatable TABLESAMPLE on tables
// larger than the window, ordered by HASHBYTES('MD5', seed + row text) with
// the key order breaking hash ties.
func buildSampleQuery(req datasource.SampleRequest) (string, []any) {
	table := buildFullyQualifiedName(req.Schema, req.Table)

	selectList := make([]string, len(req.Columns))
	for i, col := range req.Columns {
		selectList[i] = "t." + quoteName(col)
	}
	var keyOrder []string
	for _, col := range req.PrimaryKey {
		keyOrder = append(keyOrder, quoteName(col))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT TOP (@limit) %s FROM ", strings.Join(selectList, ", "))
	args := []any{sql.Named("limit", req.Limit)}

	if req.Mode == models.ScanModeFull {
		fmt.Fprintf(&b, "(SELECT TOP (@window) * FROM %s", table)
		if percent, ok := req.BlockSamplePercent(); ok {
			fmt.Fprintf(&b, " TABLESAMPLE SYSTEM (%s PERCENT) REPEATABLE (%d)", percent, req.RepeatSeed())
		} else if len(keyOrder) > 0 {
			b.WriteString(" ORDER BY " + strings.Join(keyOrder, ", "))
		}
		b.WriteString(") AS t")

		parts := []string{"@seed"}
		for i, col := range selectList {
			if i > 0 {
				parts = append(parts, "N'|'")
			}
			parts = append(parts, "CONVERT(NVARCHAR(MAX), "+col+")")
		}
		fmt.Fprintf(&b, " ORDER BY HASHBYTES('MD5', CONCAT(%s))", strings.Join(parts, ", "))
		for _, col := range keyOrder {
			b.WriteString(", t." + col)
		}
		args = append(args, sql.Named("window", req.Window()), sql.Named("seed", req.Seed()))
		return b.String(), args
	}

	if len(keyOrder) > 0 {
		fmt.Fprintf(&b, "%s AS t ORDER BY t.%s", table, strings.Join(keyOrder, ", t."))
		return b.String(), args
	}
	order := make([]string, len(req.Columns))
	for i := range req.Columns {
		order[i] = strconv.Itoa(i + 1)
	}
	fmt.Fprintf(&b, "(SELECT TOP (@limit) * FROM %s) AS t ORDER BY %s", table, strings.Join(order, ", "))
	return b.String(), args
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
