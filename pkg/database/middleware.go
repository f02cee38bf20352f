package database

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// WithScope wraps an API handler so its queries run on one pooled connection,
// carried in the request context and released when the handler returns.
// A request that cannot get a connection is answered with 503.
func WithScope(db *DB, logger *zap.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			scope, err := db.Acquire(r.Context())
			if err != nil {
				logger.Error("Metadata store unavailable",
					zap.String("path", r.URL.Path),
					zap.String("request_id", w.Header().Get("X-Request-ID")),
					zap.Error(err))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "metadata_store_unavailable",
					"message": "Metadata store is unavailable",
				})
				return
			}
			defer scope.Close()

			next(w, r.WithContext(SetScope(r.Context(), scope)))
		}
	}
}
