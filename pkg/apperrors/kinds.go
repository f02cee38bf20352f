package apperrors

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure against a target database.
type Kind string

const (
	KindConnectionUnreachable   Kind = "connection-unreachable"
	KindAuthFailed              Kind = "auth-failed"
	KindPermissionDeniedPartial Kind = "permission-denied-partial"
	KindTimeoutPartial          Kind = "timeout-partial"
	KindTimeout                 Kind = "timeout"
	KindUnsupportedType         Kind = "unsupported-type"
	KindInternal                Kind = "internal"
)

// Stage names the scan stage a table-level failure happened in.
type Stage string

const (
	StageConnect Stage = "connect"
	StageCatalog Stage = "catalog"
	StageSample  Stage = "sample"
	StageQuality Stage = "quality"
	StageDocs    Stage = "docs"
)

// ScanError carries a classified failure through the scan pipeline.
// Table is empty for failures that are not tied to one table.
type ScanError struct {
	Kind  Kind
	Stage Stage
	Table string
	Err   error
}

func (e *ScanError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s: %s (%s): %v", e.Stage, e.Table, e.Kind, e.Err)
	}
	if e.Stage != "" {
		return fmt.Sprintf("%s (%s): %v", e.Stage, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// NewScanError wraps err with a classification. A nil err yields nil.
func NewScanError(kind Kind, stage Stage, table string, err error) error {
	if err == nil {
		return nil
	}
	return &ScanError{Kind: kind, Stage: stage, Table: table, Err: err}
}

// KindOf returns the classification of err. Errors that were never classified
// are internal, except context deadlines which are reported as timeouts.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var se *ScanError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// IsRecoverable reports whether a table-level failure of this kind leaves the
// run able to complete.
func (k Kind) IsRecoverable() bool {
	return k == KindPermissionDeniedPartial || k == KindTimeoutPartial
}

// AbortsBeforeRun reports whether the kind must stop a scan before a run row exists.
func (k Kind) AbortsBeforeRun() bool {
	switch k {
	case KindConnectionUnreachable, KindAuthFailed, KindUnsupportedType, KindTimeout:
		return true
	}
	return false
}
