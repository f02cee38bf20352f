package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all configuration for edda-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8000"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// Database configuration (engine metadata store, PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Datasource connection management configuration
	Datasource DatasourceConfig `yaml:"datasource"`

	// Scan execution settings
	Scan ScanConfig `yaml:"scan"`

	// Redis is optional; when Host is empty the scan lock stays in-process.
	Redis RedisConfig `yaml:"redis"`

	// NATS is optional; when URL is empty scan events are not published.
	NATS NATSConfig `yaml:"nats"`

	CORS CORSConfig `yaml:"cors"`

	// Credential encryption key for datasource credentials.
	// Either a 32-byte key, base64 encoded (openssl rand -base64 32), or a passphrase.
	// Server will fail to start if this is not set.
	CredentialsKey string `yaml:"-" env:"CREDENTIALS_KEY"` // Secret - not in YAML
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"edda"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"edda_meta"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// DatasourceConfig holds datasource connection management settings.
type DatasourceConfig struct {
	// ConnectionTTLMinutes is how long idle datasource pools are kept alive.
	ConnectionTTLMinutes int `yaml:"connection_ttl_minutes" env:"DATASOURCE_CONNECTION_TTL_MINUTES" env-default:"5"`
	// PoolMaxConns is the maximum number of connections per datasource pool.
	PoolMaxConns int32 `yaml:"pool_max_conns" env:"DATASOURCE_POOL_MAX_CONNS" env-default:"10"`
	// PoolMinConns is the minimum number of connections per datasource pool.
	PoolMinConns int32 `yaml:"pool_min_conns" env:"DATASOURCE_POOL_MIN_CONNS" env-default:"0"`
}

// ScanConfig controls scan execution.
type ScanConfig struct {
	// Workers bounds per-table concurrency. Capped by Datasource.PoolMaxConns.
	Workers           int           `yaml:"workers" env:"SCAN_WORKERS" env-default:"4"`
	DefaultSampleSize int           `yaml:"default_sample_size" env:"SCAN_DEFAULT_SAMPLE_SIZE" env-default:"500"`
	MaxSampleSize     int           `yaml:"max_sample_size" env:"SCAN_MAX_SAMPLE_SIZE" env-default:"10000"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout" env:"SCAN_CONNECT_TIMEOUT" env-default:"10s"`
	TableTimeout      time.Duration `yaml:"table_timeout" env:"SCAN_TABLE_TIMEOUT" env-default:"30s"`
	RunTimeout        time.Duration `yaml:"run_timeout" env:"SCAN_RUN_TIMEOUT" env-default:"30m"`
	// FailureThreshold is the fraction of failed tables above which a run fails.
	FailureThreshold float64 `yaml:"failure_threshold" env:"SCAN_FAILURE_THRESHOLD" env-default:"0.5"`
	// ScheduleEnabled turns on cron-driven rescans for datasources with a schedule.
	ScheduleEnabled bool `yaml:"schedule_enabled" env:"SCAN_SCHEDULE_ENABLED" env-default:"false"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
}

// NATSConfig holds NATS connection settings for scan events.
type NATSConfig struct {
	URL           string `yaml:"url" env:"NATS_URL" env-default:""`
	SubjectPrefix string `yaml:"subject_prefix" env:"NATS_SUBJECT_PREFIX" env-default:"edda"`
	User          string `yaml:"user" env:"NATS_USER" env-default:""`
	Password      string `yaml:"-" env:"NATS_PASSWORD"` // Secret - not in YAML
}

// CORSConfig holds allowed browser origins for the console.
type CORSConfig struct {
	// AllowedOriginsStr is a comma-separated list of origins.
	AllowedOriginsStr string `yaml:"allowed_origins" env:"CORS_ALLOW_ORIGINS" env-default:"http://localhost:3000,http://127.0.0.1:3000"`

	// AllowedOrigins is parsed from AllowedOriginsStr (not from config file).
	AllowedOrigins []string `yaml:"-"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// A .env file in the working directory is loaded first when present.
// A missing config.yaml is not an error; defaults and environment apply.
func Load(version string) (*Config, error) {
	return LoadFrom("config.yaml", version)
}

// LoadFrom is Load with an explicit YAML path.
func LoadFrom(path, version string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	cfg.parseComplexFields()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() {
	c.CORS.AllowedOrigins = splitList(c.CORS.AllowedOriginsStr)
}

func (c *Config) validate() error {
	if c.Scan.Workers < 1 {
		return fmt.Errorf("scan.workers must be at least 1")
	}
	if c.Scan.MaxSampleSize < 1 {
		return fmt.Errorf("scan.max_sample_size must be at least 1")
	}
	if c.Scan.DefaultSampleSize < 1 || c.Scan.DefaultSampleSize > c.Scan.MaxSampleSize {
		return fmt.Errorf("scan.default_sample_size must be between 1 and %d", c.Scan.MaxSampleSize)
	}
	if c.Scan.FailureThreshold < 0 || c.Scan.FailureThreshold > 1 {
		return fmt.Errorf("scan.failure_threshold must be between 0 and 1")
	}
	return nil
}

// EffectiveWorkers returns the worker count bounded by the datasource pool size,
// since each worker holds one target connection.
func (c *Config) EffectiveWorkers() int {
	if c.Datasource.PoolMaxConns > 0 && int(c.Datasource.PoolMaxConns) < c.Scan.Workers {
		return int(c.Datasource.PoolMaxConns)
	}
	return c.Scan.Workers
}

// splitList parses a comma-separated list, dropping blanks.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ConnectionString returns a PostgreSQL connection URL.
func (c *DatabaseConfig) ConnectionString() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}
