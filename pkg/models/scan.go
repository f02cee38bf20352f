package models

import (
	"time"

	"github.com/google/uuid"
)

// ScanMode selects how rows are sampled.
type ScanMode string

const (
	// ScanModeQuick samples the first N rows in key order.
	ScanModeQuick ScanMode = "quick"
	// ScanModeFull samples a deterministic pseudo-random set of N rows.
	ScanModeFull ScanMode = "full"
)

// Valid reports whether m is a known mode.
func (m ScanMode) Valid() bool {
	return m == ScanModeQuick || m == ScanModeFull
}

// ScanStatus is the state of a ScanRun.
type ScanStatus string

const (
	ScanStatusPending   ScanStatus = "pending"
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s ScanStatus) IsTerminal() bool {
	return s == ScanStatusCompleted || s == ScanStatusFailed
}

// IsActive reports whether the run holds its datasource's scan slot.
func (s ScanStatus) IsActive() bool {
	return s == ScanStatusPending || s == ScanStatusRunning
}

// ScanRun is one execution of the scan pipeline against a data source.
type ScanRun struct {
	ID             uuid.UUID  `json:"id"`
	DataSourceID   uuid.UUID  `json:"data_source_id"`
	Mode           ScanMode   `json:"mode"`
	Status         ScanStatus `json:"status"`
	SchemaHash     string     `json:"schema_hash"`
	SampleSize     int        `json:"sample_size"`
	Error          *string    `json:"error"`
	TablesTotal    int        `json:"tables_total"`
	TablesProfiled int        `json:"tables_profiled"`
	TablesSkipped  int        `json:"tables_skipped"`
	TablesFailed   int        `json:"tables_failed"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at"`
}

// ScanCounts summarizes per-table outcomes when a run finishes.
type ScanCounts struct {
	Total    int
	Profiled int
	Skipped  int
	Failed   int
}
