package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/ekaya-inc/edda-engine/pkg/models"
)

// ScanEvent is the payload published on scan lifecycle changes.
type ScanEvent struct {
	ScanRunID      uuid.UUID         `json:"scan_run_id"`
	DataSourceID   uuid.UUID         `json:"data_source_id"`
	Status         models.ScanStatus `json:"status"`
	SchemaHash     string            `json:"schema_hash"`
	TablesTotal    int               `json:"tables_total"`
	TablesProfiled int               `json:"tables_profiled"`
	TablesSkipped  int               `json:"tables_skipped"`
	TablesFailed   int               `json:"tables_failed"`
	Error          *string           `json:"error"`
	At             time.Time         `json:"at"`
}

// NewScanEvent snapshots a run.
func NewScanEvent(run *models.ScanRun, at time.Time) ScanEvent {
	return ScanEvent{
		ScanRunID:      run.ID,
		DataSourceID:   run.DataSourceID,
		Status:         run.Status,
		SchemaHash:     run.SchemaHash,
		TablesTotal:    run.TablesTotal,
		TablesProfiled: run.TablesProfiled,
		TablesSkipped:  run.TablesSkipped,
		TablesFailed:   run.TablesFailed,
		Error:          run.Error,
		At:             at.UTC(),
	}
}

// ScanEventPublisher publishes scan lifecycle events. Publishing is
// best-effort and never fails a scan.
type ScanEventPublisher interface {
	Publish(ctx context.Context, event ScanEvent)
}

type noopScanEventPublisher struct{}

// NewNoopScanEventPublisher is used when NATS is not configured.
func NewNoopScanEventPublisher() ScanEventPublisher {
	return noopScanEventPublisher{}
}

func (noopScanEventPublisher) Publish(context.Context, ScanEvent) {}

// messagePublisher is the subset of *nats.Conn used here.
type messagePublisher interface {
	Publish(subject string, data []byte) error
}

type natsScanEventPublisher struct {
	conn   messagePublisher
	prefix string
	logger *zap.Logger
}

// NewNATSScanEventPublisher publishes on <prefix>.scan.{started,completed,failed}.
func NewNATSScanEventPublisher(conn *nats.Conn, prefix string, logger *zap.Logger) ScanEventPublisher {
	return newNATSScanEventPublisher(conn, prefix, logger)
}

func newNATSScanEventPublisher(conn messagePublisher, prefix string, logger *zap.Logger) *natsScanEventPublisher {
	return &natsScanEventPublisher{
		conn:   conn,
		prefix: prefix,
		logger: logger.Named("scan-events"),
	}
}

// ScanEventSubject returns the subject for a status, or "" for statuses
// that are not published.
func ScanEventSubject(prefix string, status models.ScanStatus) string {
	var name string
	switch status {
	case models.ScanStatusRunning:
		name = "started"
	case models.ScanStatusCompleted:
		name = "completed"
	case models.ScanStatusFailed:
		name = "failed"
	default:
		return ""
	}
	if prefix == "" {
		return "scan." + name
	}
	return prefix + ".scan." + name
}

func (p *natsScanEventPublisher) Publish(_ context.Context, event ScanEvent) {
	subject := ScanEventSubject(p.prefix, event.Status)
	if subject == "" {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal scan event", zap.Error(err))
		return
	}

	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Warn("Failed to publish scan event",
			zap.String("subject", subject),
			zap.String("scan_run_id", event.ScanRunID.String()),
			zap.Error(err))
		return
	}

	p.logger.Debug("Published scan event",
		zap.String("subject", subject),
		zap.String("scan_run_id", event.ScanRunID.String()))
}
