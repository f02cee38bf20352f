package datasource

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/edda-engine/pkg/logging"
	"github.com/ekaya-inc/edda-engine/pkg/retry"
)

const (
	DefaultConnectionTTLMinutes = 5
	DefaultCleanupInterval      = 1 * time.Minute
	DefaultMaxPools             = 50
	DefaultPoolMaxConns         = 10
	DefaultPoolMinConns         = 0

	healthCheckTimeout = 5 * time.Second
)

// Purposes a datasource pool is opened for. Catalog reads and sampling share
// the scan pool so per-table workers are bounded by its size.
const (
	PurposeScan = "scan"
)

// ConnectionManagerConfig holds configuration for the connection manager
type ConnectionManagerConfig struct {
	TTLMinutes   int
	MaxPools     int
	PoolMaxConns int32
	PoolMinConns int32
}

// ConnectionManager pools target database connections per datasource
// with TTL-based expiry and automatic cleanup.
type ConnectionManager struct {
	mu          sync.RWMutex
	connections map[string]*ManagedConnection // key: "{datasourceId}:{purpose}"
	ttl         time.Duration
	maxPools    int
	settings    PoolSettings
	stopped     bool
	stopChan    chan struct{}
	retryConfig *retry.Config
	logger      *zap.Logger
}

// ManagedConnection is a pooled connector and its last use.
type ManagedConnection struct {
	connector PoolConnector
	lastUsed  time.Time
	mu        sync.Mutex
}

// NewConnectionManager creates a connection manager with the given configuration.
// Starts a background cleanup goroutine that runs until Close() is called.
func NewConnectionManager(cfg ConnectionManagerConfig, logger *zap.Logger) *ConnectionManager {
	if cfg.TTLMinutes <= 0 {
		cfg.TTLMinutes = DefaultConnectionTTLMinutes
	}
	if cfg.MaxPools <= 0 {
		cfg.MaxPools = DefaultMaxPools
	}
	if cfg.PoolMaxConns <= 0 {
		cfg.PoolMaxConns = DefaultPoolMaxConns
	}
	if cfg.PoolMinConns < 0 {
		cfg.PoolMinConns = DefaultPoolMinConns
	}

	ttl := time.Duration(cfg.TTLMinutes) * time.Minute
	manager := &ConnectionManager{
		connections: make(map[string]*ManagedConnection),
		ttl:         ttl,
		maxPools:    cfg.MaxPools,
		settings: PoolSettings{
			MaxConns:    cfg.PoolMaxConns,
			MinConns:    cfg.PoolMinConns,
			MaxIdleTime: ttl,
		},
		stopChan:    make(chan struct{}),
		retryConfig: retry.DefaultConfig(),
		logger:      logger.Named("connection-manager"),
	}

	go manager.cleanupExpiredConnections()
	return manager
}

// ConnectionKey builds the pool key for a datasource and purpose.
func ConnectionKey(datasourceID uuid.UUID, purpose string) string {
	return fmt.Sprintf("%s:%s", datasourceID, purpose)
}

// Settings returns the pool sizing applied to managed pools.
func (m *ConnectionManager) Settings() PoolSettings {
	return m.settings
}

// GetOrCreateConnection returns the pool for (datasourceID, purpose), pinging
// it with retry before reuse. An unhealthy pool is closed and replaced by one
// opened through create.
func (m *ConnectionManager) GetOrCreateConnection(
	ctx context.Context,
	datasourceID uuid.UUID,
	purpose string,
	create ConnectorFactory,
) (PoolConnector, error) {
	key := ConnectionKey(datasourceID, purpose)

	m.mu.RLock()
	managed, exists := m.connections[key]
	m.mu.RUnlock()

	if exists {
		managed.mu.Lock()

		healthCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := retry.Do(healthCtx, m.retryConfig, func() error {
			return managed.connector.Ping(healthCtx)
		})
		cancel()

		if err != nil {
			m.logger.Warn("connection unhealthy, recreating",
				zap.String("key", key),
				zap.String("error", logging.SanitizeError(err)),
			)
			managed.mu.Unlock()
			m.removeConnection(key)
			return m.createConnection(ctx, key, create)
		}

		managed.lastUsed = time.Now()
		managed.mu.Unlock()
		return managed.connector, nil
	}

	return m.createConnection(ctx, key, create)
}

// createConnection opens a new pool, retrying transient failures.
// Caller must NOT hold any locks (this method acquires write lock).
func (m *ConnectionManager) createConnection(ctx context.Context, key string, create ConnectorFactory) (PoolConnector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, fmt.Errorf("connection manager is closed")
	}

	// Another goroutine may have created it while we waited for the lock.
	if managed, exists := m.connections[key]; exists && managed != nil {
		managed.mu.Lock()
		defer managed.mu.Unlock()
		managed.lastUsed = time.Now()
		return managed.connector, nil
	}

	if len(m.connections) >= m.maxPools {
		m.logger.Warn("reached max pools limit",
			zap.Int("current", len(m.connections)),
			zap.Int("max", m.maxPools),
		)
		return nil, fmt.Errorf("connection manager has reached its pool limit (%d)", m.maxPools)
	}

	var connector PoolConnector
	err := retry.DoIfRetryable(ctx, m.retryConfig, func() error {
		c, err := create(ctx, m.settings)
		if err != nil {
			return err
		}
		connector = c
		return nil
	})
	if err != nil {
		m.logger.Error("failed to create pool",
			zap.String("key", key),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, err
	}

	m.connections[key] = &ManagedConnection{
		connector: connector,
		lastUsed:  time.Now(),
	}

	m.logger.Info("created new connection pool",
		zap.String("key", key),
		zap.String("type", connector.GetType()),
		zap.Int("totalPools", len(m.connections)),
	)

	return connector, nil
}

// RemoveDatasource closes every pool of a datasource, e.g. after it is deleted.
func (m *ConnectionManager) RemoveDatasource(datasourceID uuid.UUID) {
	prefix := datasourceID.String() + ":"

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, managed := range m.connections {
		if strings.HasPrefix(key, prefix) {
			m.closeManaged(key, managed)
			delete(m.connections, key)
		}
	}
}

// removeConnection removes a connection from the pool and closes it.
// Caller must NOT hold m.mu lock (this method acquires write lock).
func (m *ConnectionManager) removeConnection(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if managed, exists := m.connections[key]; exists && managed != nil {
		m.closeManaged(key, managed)
		delete(m.connections, key)
		m.logger.Debug("removed connection", zap.String("key", key))
	}
}

func (m *ConnectionManager) closeManaged(key string, managed *ManagedConnection) {
	if managed == nil || managed.connector == nil {
		return
	}
	if err := managed.connector.Close(); err != nil {
		m.logger.Warn("failed to close pool",
			zap.String("key", key),
			zap.String("error", logging.SanitizeError(err)),
		)
	}
}

// cleanupExpiredConnections runs periodically to remove expired connections.
// Runs in a background goroutine until stopChan is closed.
func (m *ConnectionManager) cleanupExpiredConnections() {
	ticker := time.NewTicker(DefaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.performCleanup(time.Now())
		case <-m.stopChan:
			return
		}
	}
}

// performCleanup removes connections that haven't been used within TTL.
// Lock order: manager lock, then connection lock.
func (m *ConnectionManager) performCleanup(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}

	var expiredKeys []string
	for key, managed := range m.connections {
		if managed == nil {
			continue
		}
		managed.mu.Lock()
		idleTime := now.Sub(managed.lastUsed)
		managed.mu.Unlock()

		if idleTime > m.ttl {
			expiredKeys = append(expiredKeys, key)
			m.logger.Debug("marking connection for cleanup",
				zap.String("key", key),
				zap.Duration("idleTime", idleTime),
				zap.Duration("ttl", m.ttl),
			)
		}
	}

	for _, key := range expiredKeys {
		m.closeManaged(key, m.connections[key])
		delete(m.connections, key)
	}

	if len(expiredKeys) > 0 {
		m.logger.Info("cleaned up expired connections",
			zap.Int("count", len(expiredKeys)),
			zap.Int("remaining", len(m.connections)),
		)
	}
}

// Close closes all connections in the manager and stops the cleanup goroutine.
// This method is idempotent and safe to call multiple times.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil
	}

	m.stopped = true
	close(m.stopChan)

	for key, managed := range m.connections {
		m.closeManaged(key, managed)
	}

	m.connections = make(map[string]*ManagedConnection)
	m.logger.Info("connection manager closed")
	return nil
}

// GetStats returns statistics about the connection manager.
// Safe to call concurrently.
func (m *ConnectionManager) GetStats() ConnectionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	stats := ConnectionStats{
		TotalConnections:        len(m.connections),
		MaxPools:                m.maxPools,
		TTLMinutes:              int(m.ttl.Minutes()),
		ConnectionsByDatasource: make(map[string]int),
		ConnectionsByType:       make(map[string]int),
	}

	for key, managed := range m.connections {
		if datasourceID, _, ok := strings.Cut(key, ":"); ok {
			stats.ConnectionsByDatasource[datasourceID]++
		}
		if managed == nil {
			continue
		}
		managed.mu.Lock()
		idleSeconds := int(now.Sub(managed.lastUsed).Seconds())
		stats.ConnectionsByType[managed.connector.GetType()]++
		managed.mu.Unlock()
		if idleSeconds > stats.OldestIdleSeconds {
			stats.OldestIdleSeconds = idleSeconds
		}
	}

	return stats
}

// ConnectionStats contains statistics about the connection manager state.
type ConnectionStats struct {
	TotalConnections        int            `json:"total_connections"`
	MaxPools                int            `json:"max_pools"`
	TTLMinutes              int            `json:"ttl_minutes"`
	ConnectionsByDatasource map[string]int `json:"connections_by_datasource"`
	ConnectionsByType       map[string]int `json:"connections_by_type"`
	OldestIdleSeconds       int            `json:"oldest_idle_seconds"`
}
