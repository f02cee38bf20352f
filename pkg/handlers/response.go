package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/edda-engine/pkg/apperrors"
	"github.com/ekaya-inc/edda-engine/pkg/logging"
	"github.com/ekaya-inc/edda-engine/pkg/services"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// statusForKind maps a classified datasource failure to an HTTP status.
func statusForKind(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindConnectionUnreachable:
		return http.StatusBadGateway
	case apperrors.KindTimeout, apperrors.KindTimeoutPartial:
		return http.StatusGatewayTimeout
	case apperrors.KindAuthFailed, apperrors.KindUnsupportedType, apperrors.KindPermissionDeniedPartial:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeServiceError maps a service error to a status code and JSON body.
// notFound is the message used for apperrors.ErrNotFound.
func writeServiceError(w http.ResponseWriter, err error, notFound string, logger *zap.Logger) {
	status, code, message := http.StatusInternalServerError, "internal_error", "Internal server error"

	var se *apperrors.ScanError
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		status, code, message = http.StatusBadRequest, "validation_error", err.Error()
	case errors.Is(err, apperrors.ErrNotFound):
		status, code, message = http.StatusNotFound, "not_found", notFound
	case errors.Is(err, apperrors.ErrConflict):
		status, code, message = http.StatusConflict, "conflict", err.Error()
	case errors.Is(err, apperrors.ErrInvalidTransition):
		status, code, message = http.StatusConflict, "invalid_transition", err.Error()
	case errors.Is(err, services.ErrShuttingDown):
		status, code, message = http.StatusServiceUnavailable, "shutting_down", err.Error()
	case errors.Is(err, apperrors.ErrCredentialsKeyMismatch):
		status, code, message = http.StatusInternalServerError, "credentials_key_mismatch",
			"Stored credentials cannot be decrypted with the configured key"
	case errors.As(err, &se) && se.Kind != apperrors.KindInternal:
		status, code, message = statusForKind(se.Kind), string(se.Kind), logging.SanitizeError(err)
	}

	if status == http.StatusInternalServerError {
		logger.Error("Request failed", zap.String("error", logging.SanitizeError(err)))
	}
	if err := ErrorResponse(w, status, code, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
