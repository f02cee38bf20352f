package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/edda-engine/pkg/services"
)

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	ScanRunID  string `json:"scan_run_id"`
	Question   string `json:"question"`
	IncludeSQL bool   `json:"include_sql"`
}

// ChatHandler answers questions about a scan.
type ChatHandler struct {
	chatService services.ChatService
	logger      *zap.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chatService services.ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		logger:      logger,
	}
}

// RegisterRoutes registers the chat handler's routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.Ask)
}

// Ask handles POST /api/chat
func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	runID, ok := parseUUIDValue(w, req.ScanRunID, "invalid_scan_run_id", "Invalid scan run ID format", h.logger)
	if !ok {
		return
	}

	answer, err := h.chatService.Ask(r.Context(), services.ChatRequest{
		ScanRunID:  runID,
		Question:   req.Question,
		IncludeSQL: req.IncludeSQL,
	})
	if err != nil {
		writeServiceError(w, err, "Scan run not found", h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, answer); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
