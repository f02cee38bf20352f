package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/edda-engine/pkg/models"
	"github.com/ekaya-inc/edda-engine/pkg/services"
)

// StartScanRequest is the body of POST /api/scans.
type StartScanRequest struct {
	DataSourceID string `json:"data_source_id"`
	Mode         string `json:"mode"`
	SampleSize   int    `json:"sample_size"`
}

// StartScanResponse carries the id of the launched run.
type StartScanResponse struct {
	ScanRunID string `json:"scan_run_id"`
}

// ScansHandler handles scan lifecycle requests.
type ScansHandler struct {
	scanService services.ScanService
	logger      *zap.Logger
}

// NewScansHandler creates a new scans handler.
func NewScansHandler(scanService services.ScanService, logger *zap.Logger) *ScansHandler {
	return &ScansHandler{
		scanService: scanService,
		logger:      logger,
	}
}

// RegisterRoutes registers the scans handler's routes on the given mux.
func (h *ScansHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/scans", h.Start)
	mux.HandleFunc("GET /api/scans/recent", h.Recent)
	mux.HandleFunc("GET /api/scans/{id}", h.Get)
	mux.HandleFunc("POST /api/scans/{id}/cancel", h.Cancel)
}

// Start handles POST /api/scans
// Launches a background scan and returns its run id immediately.
func (h *ScansHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	dataSourceID, ok := parseUUIDValue(w, req.DataSourceID, "invalid_datasource_id", "Invalid datasource ID format", h.logger)
	if !ok {
		return
	}

	runID, err := h.scanService.StartScan(r.Context(), dataSourceID, models.ScanMode(req.Mode), req.SampleSize)
	if err != nil {
		writeServiceError(w, err, "Datasource not found", h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, StartScanResponse{ScanRunID: runID.String()}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Recent handles GET /api/scans/recent
func (h *ScansHandler) Recent(w http.ResponseWriter, r *http.Request) {
	runs, err := h.scanService.RecentScans(r.Context(), services.RecentScansLimit)
	if err != nil {
		writeServiceError(w, err, "", h.logger)
		return
	}
	if runs == nil {
		runs = []*models.ScanRun{}
	}

	if err := WriteJSON(w, http.StatusOK, runs); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/scans/{id}
func (h *ScansHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseScanRunID(w, r, h.logger)
	if !ok {
		return
	}

	run, err := h.scanService.GetScan(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "Scan run not found", h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, run); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Cancel handles POST /api/scans/{id}/cancel
// The run fails with "cancelled" once its workers stop.
func (h *ScansHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseScanRunID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.scanService.CancelScan(r.Context(), id); err != nil {
		writeServiceError(w, err, "Scan run not found", h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
