package models

import (
	"time"

	"github.com/google/uuid"
)

// QualityReport is the scored outcome of profiling one table's sample.
type QualityReport struct {
	TableID       uuid.UUID       `json:"table_id"`
	QualityScore  int             `json:"quality_score"`
	Reasons       []string        `json:"reasons"`
	TableMetrics  TableMetrics    `json:"table_metrics"`
	ColumnMetrics []ColumnMetrics `json:"column_metrics"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TableMetrics are the table-level figures behind a quality score.
type TableMetrics struct {
	RowSampled     int      `json:"row_sampled"`
	AvgNullPct     *float64 `json:"avg_null_pct"`
	Partial        bool     `json:"partial"`
	ColumnsHighPII int      `json:"columns_high_pii"`
}

// ColumnMetrics are the sample statistics of one column.
// Numeric stats are only present for numeric columns with at least one value.
type ColumnMetrics struct {
	Column        string       `json:"column"`
	NullPct       float64      `json:"null_pct"`
	DistinctCount int          `json:"distinct_count"`
	DistinctRatio float64      `json:"distinct_ratio"`
	TopValues     []ValueCount `json:"top_values"`
	Min           *float64     `json:"min,omitempty"`
	Max           *float64     `json:"max,omitempty"`
	Mean          *float64     `json:"mean,omitempty"`
	P50           *float64     `json:"p50,omitempty"`
	P95           *float64     `json:"p95,omitempty"`
}

// ValueCount is a sampled value and how often it occurred.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}
