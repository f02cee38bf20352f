package mysql

import (
	"fmt"
	"strconv"
	"time"
)

// Config contains MySQL-specific connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	// Schema is the MySQL database to scan; it defaults to Database.
	Schema string
	// TLS is passed to the driver: true, false, skip-verify or preferred.
	TLS         string
	DialTimeout time.Duration
}

// DefaultPort returns the default MySQL port.
func DefaultPort() int {
	return 3306
}

// DefaultTLS returns the default TLS mode.
func DefaultTLS() string {
	return "preferred"
}

// DefaultDialTimeout bounds the TCP connect.
const DefaultDialTimeout = 10 * time.Second

// FromMap creates a Config from a generic config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		Port:        DefaultPort(),
		TLS:         DefaultTLS(),
		DialTimeout: DefaultDialTimeout,
	}

	if host, ok := config["host"].(string); ok && host != "" {
		cfg.Host = host
	} else {
		return nil, fmt.Errorf("host is required")
	}

	switch port := config["port"].(type) {
	case float64: // JSON numbers are float64
		cfg.Port = int(port)
	case int:
		cfg.Port = port
	case string:
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid port: %w", err)
		}
		cfg.Port = p
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}

	if user, ok := config["user"].(string); ok && user != "" {
		cfg.User = user
	} else {
		return nil, fmt.Errorf("user is required")
	}
	cfg.Password, _ = config["password"].(string)

	if database, ok := config["database"].(string); ok && database != "" {
		cfg.Database = database
	} else {
		return nil, fmt.Errorf("database is required")
	}

	cfg.Schema = cfg.Database
	if schema, ok := config["schema"].(string); ok && schema != "" {
		cfg.Schema = schema
	}

	if tls, ok := config["tls"].(string); ok && tls != "" {
		switch tls {
		case "true", "false", "skip-verify", "preferred":
			cfg.TLS = tls
		default:
			return nil, fmt.Errorf("invalid tls mode: %s", tls)
		}
	}

	if timeout, ok := config["connection_timeout"].(float64); ok && timeout > 0 {
		cfg.DialTimeout = time.Duration(timeout) * time.Second
	}

	return cfg, nil
}
