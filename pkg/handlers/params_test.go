package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func TestParseIDs(t *testing.T) {
	logger := zap.NewNop()
	parsers := map[string]struct {
		parse     func(http.ResponseWriter, *http.Request, *zap.Logger) (uuid.UUID, bool)
		errorCode string
	}{
		"datasource": {ParseDatasourceID, "invalid_datasource_id"},
		"scan run":   {ParseScanRunID, "invalid_scan_run_id"},
		"table":      {ParseTableID, "invalid_table_id"},
	}

	for name, p := range parsers {
		t.Run(name+" valid", func(t *testing.T) {
			want := uuid.New()
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.SetPathValue("id", want.String())
			rec := httptest.NewRecorder()

			id, ok := p.parse(rec, req, logger)
			if !ok || id != want {
				t.Errorf("got (%v, %v), want (%v, true)", id, ok, want)
			}
		})

		for _, value := range []string{"not-a-uuid", ""} {
			t.Run(name+" invalid "+value, func(t *testing.T) {
				req := httptest.NewRequest(http.MethodGet, "/test", nil)
				req.SetPathValue("id", value)
				rec := httptest.NewRecorder()

				id, ok := p.parse(rec, req, logger)
				if ok || id != uuid.Nil {
					t.Errorf("got (%v, %v), want (Nil, false)", id, ok)
				}
				if rec.Code != http.StatusBadRequest {
					t.Errorf("status = %d, want 400", rec.Code)
				}
				if body := decodeError(t, rec); body["error"] != p.errorCode {
					t.Errorf("error = %q, want %q", body["error"], p.errorCode)
				}
			})
		}
	}
}
