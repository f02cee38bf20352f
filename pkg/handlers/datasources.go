package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/edda-engine/pkg/models"
	"github.com/ekaya-inc/edda-engine/pkg/services"
)

// DatasourceRequest is the body of the test and create endpoints.
type DatasourceRequest struct {
	Name     string            `json:"name"`
	DBType   string            `json:"db_type"`
	Host     string            `json:"host"`
	Port     int               `json:"port"`
	Database string            `json:"database"`
	Schema   string            `json:"schema"`
	Username string            `json:"username"`
	Password string            `json:"password"`
	Options  map[string]string `json:"options,omitempty"`
	Schedule string            `json:"schedule,omitempty"`
}

func (r *DatasourceRequest) toInput() services.DatasourceInput {
	return services.DatasourceInput{
		Name:     r.Name,
		DBType:   r.DBType,
		Host:     r.Host,
		Port:     r.Port,
		Database: r.Database,
		Schema:   r.Schema,
		Username: r.Username,
		Password: r.Password,
		Options:  r.Options,
		Schedule: r.Schedule,
	}
}

// DatasourceSummary is a registered datasource without its credentials.
type DatasourceSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	DBType    string `json:"db_type"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Database  string `json:"database"`
	Schema    string `json:"schema"`
	Username  string `json:"username"`
	Schedule  string `json:"schedule,omitempty"`
	CreatedAt string `json:"created_at"`
}

func toDatasourceSummary(ds *models.DataSource) DatasourceSummary {
	return DatasourceSummary{
		ID:        ds.ID.String(),
		Name:      ds.Name,
		DBType:    string(ds.DBType),
		Host:      ds.Host,
		Port:      ds.Port,
		Database:  ds.Database,
		Schema:    ds.EffectiveSchema(),
		Username:  ds.Username,
		Schedule:  ds.Schedule,
		CreatedAt: ds.CreatedAt.Format(time.RFC3339),
	}
}

// DatasourcesHandler handles datasource-related HTTP requests.
type DatasourcesHandler struct {
	datasourceService services.DatasourceService
	schedules         services.ScheduleRegistrar
	logger            *zap.Logger
}

// NewDatasourcesHandler creates a new datasources handler.
// schedules may be nil when scheduled scans are disabled.
func NewDatasourcesHandler(datasourceService services.DatasourceService, schedules services.ScheduleRegistrar, logger *zap.Logger) *DatasourcesHandler {
	return &DatasourcesHandler{
		datasourceService: datasourceService,
		schedules:         schedules,
		logger:            logger,
	}
}

// RegisterRoutes registers the datasources handler's routes on the given mux.
func (h *DatasourcesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/datasources/test", h.TestConnection)
	mux.HandleFunc("POST /api/datasources", h.Create)
	mux.HandleFunc("GET /api/datasources", h.List)
	mux.HandleFunc("DELETE /api/datasources/{id}", h.Delete)
}

func (h *DatasourcesHandler) decode(w http.ResponseWriter, r *http.Request) (*DatasourceRequest, bool) {
	var req DatasourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return nil, false
	}
	return &req, true
}

// TestConnection handles POST /api/datasources/test
// Checks connectivity without saving anything.
func (h *DatasourcesHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	if err := h.datasourceService.TestConnection(r.Context(), req.toInput()); err != nil {
		writeServiceError(w, err, "Datasource not found", h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]bool{"ok": true}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Create handles POST /api/datasources
// Validates the connection, then stores the datasource.
func (h *DatasourcesHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	ds, err := h.datasourceService.Create(r.Context(), req.toInput())
	if err != nil {
		writeServiceError(w, err, "Datasource not found", h.logger)
		return
	}

	if h.schedules != nil && ds.Schedule != "" {
		if err := h.schedules.Register(ds); err != nil {
			h.logger.Warn("Failed to register scan schedule",
				zap.String("datasource_id", ds.ID.String()),
				zap.Error(err))
		}
	}

	if err := WriteJSON(w, http.StatusOK, map[string]string{"id": ds.ID.String()}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// List handles GET /api/datasources
// Returns all datasources, newest first.
func (h *DatasourcesHandler) List(w http.ResponseWriter, r *http.Request) {
	datasources, err := h.datasourceService.List(r.Context())
	if err != nil {
		writeServiceError(w, err, "", h.logger)
		return
	}

	data := make([]DatasourceSummary, len(datasources))
	for i, ds := range datasources {
		data[i] = toDatasourceSummary(ds)
	}

	if err := WriteJSON(w, http.StatusOK, data); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /api/datasources/{id}
func (h *DatasourcesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseDatasourceID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.datasourceService.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err, "Datasource not found", h.logger)
		return
	}

	if h.schedules != nil {
		h.schedules.Remove(id)
	}
	w.WriteHeader(http.StatusNoContent)
}
