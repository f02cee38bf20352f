package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	RedisImage = "redis:7-alpine"
	NATSImage  = "nats:2-alpine"
)

// serviceContainer is a started container and the host:port of its first exposed port.
type serviceContainer struct {
	container testcontainers.Container
	addr      string
}

var (
	redisOnce      sync.Once
	redisContainer *serviceContainer
	redisErr       error

	natsOnce      sync.Once
	natsContainer *serviceContainer
	natsErr       error
)

func startServiceContainer(ctx context.Context, image, port string, strategy wait.Strategy) (*serviceContainer, error) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{port},
			WaitingFor:   strategy,
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", image, err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s host: %w", image, err)
	}
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s port: %w", image, err)
	}
	return &serviceContainer{container: c, addr: fmt.Sprintf("%s:%s", host, mapped.Port())}, nil
}

// GetRedisClient returns a client on a shared Redis container. The database
// is flushed before returning.
func GetRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	redisOnce.Do(func() {
		redisContainer, redisErr = startServiceContainer(context.Background(), RedisImage, "6379/tcp",
			wait.ForListeningPort("6379/tcp"))
	})
	if redisErr != nil {
		t.Fatalf("Failed to setup redis: %v", redisErr)
	}

	client := redis.NewClient(&redis.Options{Addr: redisContainer.addr})
	t.Cleanup(func() { _ = client.Close() })
	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("Failed to flush redis: %v", err)
	}
	return client
}

// GetNATSConn returns a connection to a shared NATS container.
func GetNATSConn(t *testing.T) *nats.Conn {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	natsOnce.Do(func() {
		natsContainer, natsErr = startServiceContainer(context.Background(), NATSImage, "4222/tcp",
			wait.ForLog("Server is ready"))
	})
	if natsErr != nil {
		t.Fatalf("Failed to setup nats: %v", natsErr)
	}

	nc, err := nats.Connect("nats://" + natsContainer.addr)
	if err != nil {
		t.Fatalf("Failed to connect to nats: %v", err)
	}
	t.Cleanup(nc.Close)
	return nc
}
