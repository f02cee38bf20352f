package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDBType(t *testing.T) {
	tests := []struct {
		dbType DBType
		valid  bool
		port   int
		schema string
	}{
		{DBTypePostgres, true, 5432, "public"},
		{DBTypeSQLServer, true, 1433, "dbo"},
		{DBTypeMySQL, true, 3306, "shop"},
		{DBType("oracle"), false, 0, ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.dbType), func(t *testing.T) {
			if got := tt.dbType.Valid(); got != tt.valid {
				t.Errorf("Valid() = %v, want %v", got, tt.valid)
			}
			if got := tt.dbType.DefaultPort(); got != tt.port {
				t.Errorf("DefaultPort() = %d, want %d", got, tt.port)
			}
			if got := tt.dbType.DefaultSchema("shop"); got != tt.schema {
				t.Errorf("DefaultSchema() = %q, want %q", got, tt.schema)
			}
		})
	}
}

func TestDataSource_AdapterConfig(t *testing.T) {
	ds := &DataSource{
		DBType:      DBTypePostgres,
		Host:        "db.internal",
		Port:        5433,
		Database:    "shop",
		Username:    "scanner",
		Credentials: map[string]string{"password": "s3cret", "ssl_mode": "disable"},
	}

	cfg := ds.AdapterConfig()
	if cfg["schema"] != "public" {
		t.Errorf("schema = %v, want public", cfg["schema"])
	}
	if cfg["password"] != "s3cret" || cfg["ssl_mode"] != "disable" {
		t.Errorf("credentials not merged: %v", cfg)
	}
	if cfg["user"] != "scanner" || cfg["port"] != 5433 {
		t.Errorf("unexpected config: %v", cfg)
	}

	ds.Schema = "  sales "
	if got := ds.EffectiveSchema(); got != "sales" {
		t.Errorf("EffectiveSchema() = %q, want sales", got)
	}
}

func TestDataSource_CredentialsNeverSerialized(t *testing.T) {
	ds := DataSource{Name: "prod", Credentials: map[string]string{"password": "hunter2"}}

	data, err := json.Marshal(ds)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if strings.Contains(string(data), "hunter2") || strings.Contains(string(data), "credentials") {
		t.Errorf("credentials leaked into JSON: %s", data)
	}
}

func TestScanStatus(t *testing.T) {
	for _, s := range []ScanStatus{ScanStatusCompleted, ScanStatusFailed} {
		if !s.IsTerminal() || s.IsActive() {
			t.Errorf("%s should be terminal and inactive", s)
		}
	}
	for _, s := range []ScanStatus{ScanStatusPending, ScanStatusRunning} {
		if s.IsTerminal() || !s.IsActive() {
			t.Errorf("%s should be active and not terminal", s)
		}
	}
	if !ScanModeQuick.Valid() || !ScanModeFull.Valid() || ScanMode("deep").Valid() {
		t.Errorf("unexpected ScanMode validity")
	}
}

func TestRelationship_Endpoints(t *testing.T) {
	rel := Relationship{
		FromSchema: "public", FromTable: "orders", FromColumn: "customer_id",
		ToSchema: "public", ToTable: "customers", ToColumn: "id",
	}

	if got := rel.From().String(); got != "public.orders.customer_id" {
		t.Errorf("From() = %q", got)
	}
	if got := rel.To().TableName(); got != "public.customers" {
		t.Errorf("To().TableName() = %q", got)
	}
	if !rel.Touches("public", "customers") || rel.Touches("public", "payments") {
		t.Errorf("Touches() mismatch")
	}
}

func TestColumnMetrics_OmitsAbsentNumericStats(t *testing.T) {
	data, err := json.Marshal(ColumnMetrics{Column: "email", TopValues: []ValueCount{}})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	for _, key := range []string{`"min"`, `"max"`, `"mean"`, `"p50"`, `"p95"`} {
		if strings.Contains(string(data), key) {
			t.Errorf("expected %s to be omitted: %s", key, data)
		}
	}
}
