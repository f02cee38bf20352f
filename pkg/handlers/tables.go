package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/edda-engine/pkg/models"
	"github.com/ekaya-inc/edda-engine/pkg/services"
)

// emptyQuality is returned for tables that have no quality report.
var emptyQuality = map[string]any{
	"quality_score":  nil,
	"reasons":        []string{},
	"table_metrics":  map[string]any{},
	"column_metrics": []any{},
}

// emptyDocs is returned for tables that have no generated docs.
var emptyDocs = map[string]any{
	"doc_json":     map[string]any{},
	"doc_markdown": "",
}

// TablesHandler serves the persisted results of a scan.
type TablesHandler struct {
	metadataService services.MetadataService
	logger          *zap.Logger
}

// NewTablesHandler creates a new tables handler.
func NewTablesHandler(metadataService services.MetadataService, logger *zap.Logger) *TablesHandler {
	return &TablesHandler{
		metadataService: metadataService,
		logger:          logger,
	}
}

// RegisterRoutes registers the tables handler's routes on the given mux.
func (h *TablesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/tables", h.List)
	mux.HandleFunc("GET /api/tables/{id}", h.Get)
	mux.HandleFunc("GET /api/tables/{id}/columns", h.Columns)
	mux.HandleFunc("GET /api/tables/{id}/relationships", h.Relationships)
	mux.HandleFunc("GET /api/tables/{id}/quality", h.Quality)
	mux.HandleFunc("GET /api/tables/{id}/docs", h.Docs)
	mux.HandleFunc("GET /api/tables/{id}/export", h.Export)
}

func (h *TablesHandler) write(w http.ResponseWriter, data any) {
	if err := WriteJSON(w, http.StatusOK, data); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// List handles GET /api/tables?scan_run_id=
func (h *TablesHandler) List(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseUUIDValue(w, r.URL.Query().Get("scan_run_id"), "invalid_scan_run_id", "scan_run_id is required and must be a UUID", h.logger)
	if !ok {
		return
	}

	tables, err := h.metadataService.ListTables(r.Context(), runID)
	if err != nil {
		writeServiceError(w, err, "Scan run not found", h.logger)
		return
	}
	if tables == nil {
		tables = []*models.Table{}
	}
	h.write(w, tables)
}

// Get handles GET /api/tables/{id}
func (h *TablesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseTableID(w, r, h.logger)
	if !ok {
		return
	}

	table, err := h.metadataService.GetTable(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "Table not found", h.logger)
		return
	}
	h.write(w, table)
}

// Columns handles GET /api/tables/{id}/columns
func (h *TablesHandler) Columns(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseTableID(w, r, h.logger)
	if !ok {
		return
	}

	columns, err := h.metadataService.ListColumns(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "Table not found", h.logger)
		return
	}
	if columns == nil {
		columns = []*models.Column{}
	}
	h.write(w, columns)
}

// Relationships handles GET /api/tables/{id}/relationships
func (h *TablesHandler) Relationships(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseTableID(w, r, h.logger)
	if !ok {
		return
	}

	rels, err := h.metadataService.ListRelationships(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "Table not found", h.logger)
		return
	}
	if rels == nil {
		rels = []*models.Relationship{}
	}
	h.write(w, rels)
}

// Quality handles GET /api/tables/{id}/quality
func (h *TablesHandler) Quality(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseTableID(w, r, h.logger)
	if !ok {
		return
	}

	report, err := h.metadataService.GetQuality(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "Table not found", h.logger)
		return
	}
	if report == nil {
		h.write(w, emptyQuality)
		return
	}
	h.write(w, report)
}

// Docs handles GET /api/tables/{id}/docs
func (h *TablesHandler) Docs(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseTableID(w, r, h.logger)
	if !ok {
		return
	}

	doc, err := h.metadataService.GetDocs(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "Table not found", h.logger)
		return
	}
	if doc == nil {
		h.write(w, emptyDocs)
		return
	}
	h.write(w, doc)
}

// Export handles GET /api/tables/{id}/export?format=md|json|yaml
func (h *TablesHandler) Export(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseTableID(w, r, h.logger)
	if !ok {
		return
	}

	export, err := h.metadataService.Export(r.Context(), id, r.URL.Query().Get("format"))
	if err != nil {
		writeServiceError(w, err, "No docs for this table", h.logger)
		return
	}
	h.write(w, export)
}
