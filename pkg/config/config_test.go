package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// chdirTemp switches into a fresh temp directory for the duration of the test
// so that Load() does not pick up a developer's config.yaml or .env.
func chdirTemp(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		os.Chdir(originalDir)
	})
	return tmpDir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	tmpDir := chdirTemp(t)
	writeFile(t, filepath.Join(tmpDir, "config.yaml"), `
port: "3443"
env: "test"
database:
  host: "db.example.com"
  port: 5432
  user: "testuser"
  database: "testdb"
redis:
  host: "redis.example.com"
  port: 6379
`)

	os.Unsetenv("PGHOST")
	os.Unsetenv("BASE_URL")
	t.Setenv("PORT", "4443")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "4443" {
		t.Errorf("expected Port=4443 (from env), got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Errorf("expected Env=production (from env), got %s", cfg.Env)
	}
	if cfg.Version != "test-version" {
		t.Errorf("expected Version=test-version, got %s", cfg.Version)
	}
	if cfg.BaseURL != "http://localhost:4443" {
		t.Errorf("expected BaseURL=http://localhost:4443, got %s", cfg.BaseURL)
	}
	if cfg.Database.Host != "db.example.com" {
		t.Errorf("expected Database.Host=db.example.com (from yaml), got %s", cfg.Database.Host)
	}
	if cfg.Redis.Host != "redis.example.com" {
		t.Errorf("expected Redis.Host=redis.example.com (from yaml), got %s", cfg.Redis.Host)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	chdirTemp(t)
	os.Unsetenv("PORT")
	os.Unsetenv("BASE_URL")
	os.Unsetenv("CORS_ALLOW_ORIGINS")

	cfg, err := Load("dev")
	if err != nil {
		t.Fatalf("Load() without config.yaml should succeed, got %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("expected default Port=8000, got %s", cfg.Port)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("unexpected default CORS origins: %v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoad_ScanDefaults(t *testing.T) {
	chdirTemp(t)
	for _, key := range []string{"SCAN_WORKERS", "SCAN_DEFAULT_SAMPLE_SIZE", "SCAN_MAX_SAMPLE_SIZE",
		"SCAN_TABLE_TIMEOUT", "SCAN_RUN_TIMEOUT", "SCAN_CONNECT_TIMEOUT", "SCAN_FAILURE_THRESHOLD"} {
		os.Unsetenv(key)
	}

	cfg, err := Load("dev")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Scan.Workers != 4 {
		t.Errorf("expected Workers=4, got %d", cfg.Scan.Workers)
	}
	if cfg.Scan.DefaultSampleSize != 500 {
		t.Errorf("expected DefaultSampleSize=500, got %d", cfg.Scan.DefaultSampleSize)
	}
	if cfg.Scan.TableTimeout != 30*time.Second {
		t.Errorf("expected TableTimeout=30s, got %v", cfg.Scan.TableTimeout)
	}
	if cfg.Scan.RunTimeout != 30*time.Minute {
		t.Errorf("expected RunTimeout=30m, got %v", cfg.Scan.RunTimeout)
	}
	if cfg.Scan.ConnectTimeout != 10*time.Second {
		t.Errorf("expected ConnectTimeout=10s, got %v", cfg.Scan.ConnectTimeout)
	}
	if cfg.Scan.FailureThreshold != 0.5 {
		t.Errorf("expected FailureThreshold=0.5, got %f", cfg.Scan.FailureThreshold)
	}
}

func TestLoad_DatasourceConfigFromEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("DATASOURCE_CONNECTION_TTL_MINUTES", "15")
	t.Setenv("DATASOURCE_POOL_MAX_CONNS", "2")

	cfg, err := Load("dev")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Datasource.ConnectionTTLMinutes != 15 {
		t.Errorf("expected ConnectionTTLMinutes=15, got %d", cfg.Datasource.ConnectionTTLMinutes)
	}
	if got := cfg.EffectiveWorkers(); got != 2 {
		t.Errorf("expected workers capped at pool size 2, got %d", got)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	tmpDir := chdirTemp(t)
	writeFile(t, filepath.Join(tmpDir, ".env"), "NATS_SUBJECT_PREFIX=edda-test\n")
	t.Cleanup(func() { os.Unsetenv("NATS_SUBJECT_PREFIX") })

	cfg, err := Load("dev")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.NATS.SubjectPrefix != "edda-test" {
		t.Errorf("expected SubjectPrefix from .env, got %s", cfg.NATS.SubjectPrefix)
	}
}

func TestLoad_InvalidScanConfig(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"zero workers", map[string]string{"SCAN_WORKERS": "0"}},
		{"threshold above one", map[string]string{"SCAN_FAILURE_THRESHOLD": "1.5"}},
		{"default sample above max", map[string]string{"SCAN_DEFAULT_SAMPLE_SIZE": "200", "SCAN_MAX_SAMPLE_SIZE": "100"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdirTemp(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load("dev"); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" http://a.example , ,http://b.example")
	if len(got) != 2 || got[0] != "http://a.example" || got[1] != "http://b.example" {
		t.Errorf("unexpected split result: %v", got)
	}
	if splitList("") != nil {
		t.Errorf("expected nil for empty input")
	}
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5432, User: "edda", Password: "p@ss", Database: "meta", SSLMode: "disable"}
	want := "postgres://edda:p%40ss@db:5432/meta?sslmode=disable"
	if got := c.ConnectionString(); got != want {
		t.Errorf("ConnectionString() = %q, want %q", got, want)
	}
}
