// Package workerpool runs per-table scan work with bounded parallelism.
package workerpool

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Config configures the pool.
type Config struct {
	Workers int // Maximum concurrent items (default: 4)
}

// DefaultConfig returns the default scan worker configuration.
func DefaultConfig() Config {
	return Config{Workers: 4}
}

// Pool bounds how many work items run at once. It uses a semaphore so a new
// item starts as soon as any running item finishes.
type Pool struct {
	config Config
	logger *zap.Logger
}

// New creates a pool.
func New(config Config, logger *zap.Logger) *Pool {
	if config.Workers < 1 {
		config.Workers = DefaultConfig().Workers
	}
	return &Pool{
		config: config,
		logger: logger.Named("worker-pool"),
	}
}

// Workers returns the concurrency bound.
func (p *Pool) Workers() int {
	return p.config.Workers
}

// Item is a unit of work.
type Item[T any] struct {
	ID      string // For logging/tracking
	Execute func(ctx context.Context) (T, error)
}

// Result is the outcome of one Item. Index is the item's position in the
// submitted slice.
type Result[T any] struct {
	Index  int
	ID     string
	Result T
	Err    error
}

// Process executes all items and returns results in submission order.
// A failing or panicking item does not stop its siblings. Once ctx is done,
// items that have not started are not executed and report ctx.Err().
func Process[T any](
	ctx context.Context,
	pool *Pool,
	items []Item[T],
	onProgress func(completed, total int),
) []Result[T] {
	if len(items) == 0 {
		return nil
	}

	results := make([]Result[T], len(items))
	resultsChan := make(chan Result[T], len(items))
	sem := make(chan struct{}, pool.config.Workers)

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(index int, item Item[T]) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				resultsChan <- Result[T]{Index: index, ID: item.ID, Err: ctx.Err()}
				return
			}

			// select picks randomly when both cases are ready
			if err := ctx.Err(); err != nil {
				resultsChan <- Result[T]{Index: index, ID: item.ID, Err: err}
				return
			}

			resultsChan <- runItem(ctx, pool, index, item)
		}(i, item)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	completed := 0
	for result := range resultsChan {
		results[result.Index] = result
		completed++
		if onProgress != nil {
			onProgress(completed, len(items))
		}
	}

	return results
}

func runItem[T any](ctx context.Context, p *Pool, index int, item Item[T]) (res Result[T]) {
	res = Result[T]{Index: index, ID: item.ID}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Work item panicked",
				zap.String("item", item.ID),
				zap.Any("panic", r))
			res.Err = fmt.Errorf("work item %s panicked: %v", item.ID, r)
		}
	}()
	res.Result, res.Err = item.Execute(ctx)
	return res
}
