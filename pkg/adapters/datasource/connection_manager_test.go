package datasource

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/edda-engine/pkg/retry"
)

type fakeConnector struct {
	mu      sync.Mutex
	pingErr error
	closed  bool
	dbType  string
}

func (f *fakeConnector) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeConnector) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConnector) GetType() string { return f.dbType }

func (f *fakeConnector) setPingErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingErr = err
}

func (f *fakeConnector) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newTestManager(t *testing.T, cfg ConnectionManagerConfig) *ConnectionManager {
	t.Helper()
	cm := NewConnectionManager(cfg, zaptest.NewLogger(t))
	cm.retryConfig = &retry.Config{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	t.Cleanup(func() { _ = cm.Close() })
	return cm
}

// countingFactory returns a factory that hands out fresh fake connectors.
func countingFactory(created *[]*fakeConnector, calls *int32) ConnectorFactory {
	var mu sync.Mutex
	return func(ctx context.Context, settings PoolSettings) (PoolConnector, error) {
		atomic.AddInt32(calls, 1)
		c := &fakeConnector{dbType: "postgres"}
		mu.Lock()
		*created = append(*created, c)
		mu.Unlock()
		return c, nil
	}
}

func TestConnectionManager_ReusesPoolPerKey(t *testing.T) {
	cm := newTestManager(t, ConnectionManagerConfig{})
	ctx := context.Background()
	dsID := uuid.New()

	var created []*fakeConnector
	var calls int32
	factory := countingFactory(&created, &calls)

	c1, err := cm.GetOrCreateConnection(ctx, dsID, PurposeScan, factory)
	require.NoError(t, err)
	c2, err := cm.GetOrCreateConnection(ctx, dsID, PurposeScan, factory)
	require.NoError(t, err)

	assert.Same(t, c1, c2, "same key should reuse the pool")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	_, err = cm.GetOrCreateConnection(ctx, dsID, "other", factory)
	require.NoError(t, err)
	_, err = cm.GetOrCreateConnection(ctx, uuid.New(), PurposeScan, factory)
	require.NoError(t, err)

	stats := cm.GetStats()
	assert.Equal(t, 3, stats.TotalConnections)
	assert.Equal(t, 2, stats.ConnectionsByDatasource[dsID.String()])
	assert.Equal(t, 3, stats.ConnectionsByType["postgres"])
}

func TestConnectionManager_ConcurrentCreateOpensOnePool(t *testing.T) {
	cm := newTestManager(t, ConnectionManagerConfig{})
	dsID := uuid.New()

	var created []*fakeConnector
	var calls int32
	factory := countingFactory(&created, &calls)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cm.GetOrCreateConnection(context.Background(), dsID, PurposeScan, factory)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestConnectionManager_RecreatesUnhealthyPool(t *testing.T) {
	cm := newTestManager(t, ConnectionManagerConfig{})
	ctx := context.Background()
	dsID := uuid.New()

	var created []*fakeConnector
	var calls int32
	factory := countingFactory(&created, &calls)

	first, err := cm.GetOrCreateConnection(ctx, dsID, PurposeScan, factory)
	require.NoError(t, err)

	created[0].setPingErr(errors.New("server closed the connection unexpectedly"))

	second, err := cm.GetOrCreateConnection(ctx, dsID, PurposeScan, factory)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.True(t, created[0].isClosed(), "unhealthy pool should be closed")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestConnectionManager_CreateErrorIsReturned(t *testing.T) {
	cm := newTestManager(t, ConnectionManagerConfig{})

	authErr := errors.New("password authentication failed for user \"scanner\"")
	var calls int32
	_, err := cm.GetOrCreateConnection(context.Background(), uuid.New(), PurposeScan,
		func(ctx context.Context, settings PoolSettings) (PoolConnector, error) {
			atomic.AddInt32(&calls, 1)
			return nil, authErr
		})

	require.ErrorIs(t, err, authErr)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "permanent errors are not retried")
	assert.Equal(t, 0, cm.GetStats().TotalConnections)
}

func TestConnectionManager_MaxPools(t *testing.T) {
	cm := newTestManager(t, ConnectionManagerConfig{MaxPools: 1})
	var created []*fakeConnector
	var calls int32
	factory := countingFactory(&created, &calls)

	_, err := cm.GetOrCreateConnection(context.Background(), uuid.New(), PurposeScan, factory)
	require.NoError(t, err)

	_, err = cm.GetOrCreateConnection(context.Background(), uuid.New(), PurposeScan, factory)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool limit")
}

func TestConnectionManager_PerformCleanup(t *testing.T) {
	cm := newTestManager(t, ConnectionManagerConfig{TTLMinutes: 1})
	var created []*fakeConnector
	var calls int32
	factory := countingFactory(&created, &calls)

	_, err := cm.GetOrCreateConnection(context.Background(), uuid.New(), PurposeScan, factory)
	require.NoError(t, err)

	cm.performCleanup(time.Now())
	assert.Equal(t, 1, cm.GetStats().TotalConnections, "fresh pool should survive cleanup")

	cm.performCleanup(time.Now().Add(2 * time.Minute))
	assert.Equal(t, 0, cm.GetStats().TotalConnections)
	assert.True(t, created[0].isClosed())
}

func TestConnectionManager_RemoveDatasource(t *testing.T) {
	cm := newTestManager(t, ConnectionManagerConfig{})
	var created []*fakeConnector
	var calls int32
	factory := countingFactory(&created, &calls)

	dsID := uuid.New()
	other := uuid.New()
	for _, purpose := range []string{PurposeScan, "other"} {
		_, err := cm.GetOrCreateConnection(context.Background(), dsID, purpose, factory)
		require.NoError(t, err)
	}
	_, err := cm.GetOrCreateConnection(context.Background(), other, PurposeScan, factory)
	require.NoError(t, err)

	cm.RemoveDatasource(dsID)

	stats := cm.GetStats()
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, 1, stats.ConnectionsByDatasource[other.String()])
}

func TestConnectionManager_CloseIsIdempotent(t *testing.T) {
	cm := NewConnectionManager(ConnectionManagerConfig{}, zaptest.NewLogger(t))
	var created []*fakeConnector
	var calls int32

	_, err := cm.GetOrCreateConnection(context.Background(), uuid.New(), PurposeScan, countingFactory(&created, &calls))
	require.NoError(t, err)

	require.NoError(t, cm.Close())
	require.NoError(t, cm.Close())
	assert.True(t, created[0].isClosed())

	_, err = cm.GetOrCreateConnection(context.Background(), uuid.New(), PurposeScan, countingFactory(&created, &calls))
	assert.Error(t, err, "closed manager should refuse new pools")
}

func TestNewConnectionManager_Defaults(t *testing.T) {
	cm := newTestManager(t, ConnectionManagerConfig{})

	assert.Equal(t, DefaultMaxPools, cm.GetStats().MaxPools)
	assert.Equal(t, DefaultConnectionTTLMinutes, cm.GetStats().TTLMinutes)
	assert.Equal(t, int32(DefaultPoolMaxConns), cm.Settings().MaxConns)
	assert.Equal(t, time.Duration(DefaultConnectionTTLMinutes)*time.Minute, cm.Settings().MaxIdleTime)
}
