package database

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ekaya-inc/edda-engine/pkg/config"
)

// NewNATSConn connects to NATS for scan lifecycle events.
// Returns nil if NATS is not configured (URL is empty).
func NewNATSConn(cfg *config.NATSConfig) (*nats.Conn, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts := []nats.Option{
		nats.Name("edda-engine"),
		nats.Timeout(5 * time.Second),
		nats.MaxReconnects(-1),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}
