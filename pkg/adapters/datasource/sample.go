package datasource

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/ekaya-inc/edda-engine/pkg/models"
)

// SampleRequest describes the rows to pull from one table.
type SampleRequest struct {
	Schema     string
	Table      string
	Columns    []string // ordinal order
	PrimaryKey []string
	Limit      int
	Mode       models.ScanMode

	// RowEstimate comes from engine statistics. Zero or negative means unknown.
	RowEstimate int64
}

// sampleWindowFactor bounds full-mode reads: at most Limit*sampleWindowFactor
// rows leave the table before the seeded hash picks Limit of them.
const sampleWindowFactor = 4

// Window is the most rows a full-mode read pulls from the table.
func (r SampleRequest) Window() int {
	return r.Limit * sampleWindowFactor
}

// BlockSamplePercent returns the page percentage a block sample must visit
// to return about Window rows, formatted for SQL with at most four decimals.
// ok is false when the table is no larger than the window or has no
// statistics; the bounded window alone keeps those reads small.
func (r SampleRequest) BlockSamplePercent() (percent string, ok bool) {
	window := int64(r.Window())
	if r.RowEstimate <= window {
		return "", false
	}
	// Units of 0.0001 percent, rounded up so a huge table never samples 0.
	units := (window*1_000_000 + r.RowEstimate - 1) / r.RowEstimate
	return strconv.FormatFloat(float64(units)/10000, 'f', -1, 64), true
}

// RepeatSeed is the seed for REPEATABLE block samples: the first four bytes
// of SHA-256("schema.table") as a non-negative 31-bit integer.
func (r SampleRequest) RepeatSeed() int64 {
	sum := sha256.Sum256([]byte(r.Schema + "." + r.Table))
	return int64(binary.BigEndian.Uint32(sum[:4]) & 0x7fffffff)
}

// Sample holds sampled rows as text. A nil cell is SQL NULL.
type Sample struct {
	Columns []string
	Rows    [][]*string
	Partial bool
}

// OrderColumns returns the columns quick mode orders by: the primary key,
// or every column in ordinal order when the table has none.
func (r SampleRequest) OrderColumns() []string {
	if len(r.PrimaryKey) > 0 {
		return r.PrimaryKey
	}
	return r.Columns
}

// Seed returns the full-mode sampling seed: the hex of the first 8 bytes of
// SHA-256("schema.table"). The same table always yields the same seed.
func (r SampleRequest) Seed() string {
	return SampleSeed(r.Schema, r.Table)
}

// SampleSeed is Seed for an explicit table.
func SampleSeed(schema, table string) string {
	sum := sha256.Sum256([]byte(schema + "." + table))
	return hex.EncodeToString(sum[:8])
}

// Validate checks the request before any SQL is built.
func (r SampleRequest) Validate() error {
	if r.Table == "" {
		return fmt.Errorf("sample request: table is required")
	}
	if len(r.Columns) == 0 {
		return fmt.Errorf("sample request: %s.%s has no columns", r.Schema, r.Table)
	}
	if r.Limit < 1 {
		return fmt.Errorf("sample request: limit must be positive, got %d", r.Limit)
	}
	if !r.Mode.Valid() {
		return fmt.Errorf("sample request: unknown mode %q", r.Mode)
	}
	return nil
}

// TextValue renders a driver value as sample text. Non-UTF-8 bytes are
// hex encoded so binary columns stay printable.
func TextValue(v any) *string {
	var s string
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		s = val
	case []byte:
		if utf8.Valid(val) {
			s = string(val)
		} else {
			s = "0x" + hex.EncodeToString(val)
		}
	case time.Time:
		s = val.Format(time.RFC3339Nano)
	default:
		s = fmt.Sprint(val)
	}
	return &s
}

// deadlineHit reports whether a read stopped because ctx ran out of time,
// which turns the rows read so far into a partial sample.
func deadlineHit(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	return err != nil && errors.Is(err, context.DeadlineExceeded)
}

// IsPartialRead is deadlineHit for adapters outside this package.
func IsPartialRead(ctx context.Context, err error) bool {
	return deadlineHit(ctx, err)
}

// CollectSQLRows drains database/sql rows into a Sample, stopping at limit.
// A deadline on ctx ends the read early with Partial set.
func CollectSQLRows(ctx context.Context, rows *sql.Rows, limit int) (*Sample, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	sample := &Sample{Columns: cols, Rows: make([][]*string, 0, min(limit, 1024))}

	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}

	for len(sample.Rows) < limit && rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			if deadlineHit(ctx, err) {
				sample.Partial = true
				return sample, nil
			}
			return nil, err
		}
		row := make([]*string, len(cols))
		for i, v := range raw {
			row[i] = TextValue(v)
		}
		sample.Rows = append(sample.Rows, row)
	}

	if err := rows.Err(); err != nil {
		if deadlineHit(ctx, err) {
			sample.Partial = true
			return sample, nil
		}
		return nil, err
	}
	if deadlineHit(ctx, nil) && len(sample.Rows) < limit {
		sample.Partial = true
	}
	return sample, nil
}
