package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/edda-engine/pkg/apperrors"
)

// ScanLock enforces one active scan per data source.
type ScanLock interface {
	// Acquire takes the data source's slot. It returns apperrors.ErrConflict
	// if the slot is held. The returned release func is safe to call more than once.
	Acquire(ctx context.Context, dataSourceID uuid.UUID) (release func(), err error)
}

// memoryScanLock holds slots in process.
type memoryScanLock struct {
	mu   sync.Mutex
	held map[uuid.UUID]struct{}
}

// NewMemoryScanLock creates an in-process lock.
func NewMemoryScanLock() ScanLock {
	return &memoryScanLock{held: make(map[uuid.UUID]struct{})}
}

func (l *memoryScanLock) Acquire(_ context.Context, dataSourceID uuid.UUID) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[dataSourceID]; ok {
		return nil, fmt.Errorf("scan already active for datasource %s: %w", dataSourceID, apperrors.ErrConflict)
	}
	l.held[dataSourceID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, dataSourceID)
			l.mu.Unlock()
		})
	}, nil
}

const scanLockKeyPrefix = "edda:scan-lock:"

// releaseScript deletes the key only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// redisScanLock holds slots as SET NX keys so the limit spans replicas.
// The TTL bounds how long a crashed holder can block a data source.
type redisScanLock struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisScanLock creates a lock backed by Redis with the given key TTL.
func NewRedisScanLock(client *redis.Client, ttl time.Duration, logger *zap.Logger) ScanLock {
	return &redisScanLock{
		client: client,
		ttl:    ttl,
		logger: logger.Named("scan-lock"),
	}
}

func scanLockKey(dataSourceID uuid.UUID) string {
	return scanLockKeyPrefix + dataSourceID.String()
}

func (l *redisScanLock) Acquire(ctx context.Context, dataSourceID uuid.UUID) (func(), error) {
	key := scanLockKey(dataSourceID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire scan lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("scan already active for datasource %s: %w", dataSourceID, apperrors.ErrConflict)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				l.logger.Warn("Failed to release scan lock",
					zap.String("datasource_id", dataSourceID.String()),
					zap.Error(err))
			}
		})
	}, nil
}
