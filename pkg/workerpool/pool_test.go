package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestProcess_SubmissionOrder(t *testing.T) {
	pool := New(Config{Workers: 2}, zap.NewNop())

	items := []Item[string]{
		{ID: "orders", Execute: func(ctx context.Context) (string, error) {
			time.Sleep(20 * time.Millisecond)
			return "orders-done", nil
		}},
		{ID: "customers", Execute: func(ctx context.Context) (string, error) { return "customers-done", nil }},
		{ID: "payments", Execute: func(ctx context.Context) (string, error) { return "payments-done", nil }},
	}

	results := Process(context.Background(), pool, items, nil)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, r := range results {
		if r.Index != i || r.ID != items[i].ID {
			t.Errorf("result %d out of order: %+v", i, r)
		}
		if r.Err != nil {
			t.Errorf("item %s failed: %v", r.ID, r.Err)
		}
	}
	if results[0].Result != "orders-done" {
		t.Errorf("unexpected result: %s", results[0].Result)
	}
}

func TestProcess_ErrorsAndPanicsAreIsolated(t *testing.T) {
	pool := New(Config{Workers: 2}, zap.NewNop())

	expectedErr := errors.New("sample failed")
	items := []Item[int]{
		{ID: "ok", Execute: func(ctx context.Context) (int, error) { return 1, nil }},
		{ID: "fails", Execute: func(ctx context.Context) (int, error) { return 0, expectedErr }},
		{ID: "panics", Execute: func(ctx context.Context) (int, error) { panic("boom") }},
		{ID: "ok2", Execute: func(ctx context.Context) (int, error) { return 2, nil }},
	}

	results := Process(context.Background(), pool, items, nil)

	if results[0].Err != nil || results[3].Err != nil {
		t.Errorf("siblings should succeed: %v, %v", results[0].Err, results[3].Err)
	}
	if !errors.Is(results[1].Err, expectedErr) {
		t.Errorf("expected %v, got %v", expectedErr, results[1].Err)
	}
	if results[2].Err == nil {
		t.Error("expected panic to be reported as error")
	}
}

func TestProcess_EmptyItems(t *testing.T) {
	pool := New(DefaultConfig(), zap.NewNop())
	if results := Process[int](context.Background(), pool, nil, nil); results != nil {
		t.Errorf("expected nil results, got %v", results)
	}
}

func TestProcess_CancellationStopsPendingItems(t *testing.T) {
	pool := New(Config{Workers: 1}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	var executed atomic.Int32
	items := make([]Item[string], 5)
	items[0] = Item[string]{ID: "first", Execute: func(ctx context.Context) (string, error) {
		executed.Add(1)
		cancel()
		return "first", nil
	}}
	for i := 1; i < len(items); i++ {
		items[i] = Item[string]{ID: fmt.Sprintf("later%d", i), Execute: func(ctx context.Context) (string, error) {
			executed.Add(1)
			return "later", nil
		}}
	}

	// Only the first item may hold the single slot before cancellation.
	ordered := []Item[string]{items[0]}
	results := Process(ctx, pool, ordered, nil)
	if results[0].Err != nil {
		t.Fatalf("first item should complete: %v", results[0].Err)
	}

	results = Process(ctx, pool, items[1:], nil)
	for _, r := range results {
		if r.Err != context.Canceled {
			t.Errorf("expected context.Canceled for %s, got %v", r.ID, r.Err)
		}
	}
	if executed.Load() != 1 {
		t.Errorf("expected only 1 executed item, got %d", executed.Load())
	}
}

func TestProcess_ConcurrencyLimit(t *testing.T) {
	workers := 3
	pool := New(Config{Workers: workers}, zap.NewNop())

	var current atomic.Int32
	var maxObserved atomic.Int32

	items := make([]Item[bool], 10)
	for i := range items {
		items[i] = Item[bool]{
			ID: fmt.Sprintf("table%d", i),
			Execute: func(ctx context.Context) (bool, error) {
				c := current.Add(1)
				defer current.Add(-1)
				for {
					m := maxObserved.Load()
					if c <= m || maxObserved.CompareAndSwap(m, c) {
						break
					}
				}
				time.Sleep(30 * time.Millisecond)
				return true, nil
			},
		}
	}

	Process(context.Background(), pool, items, nil)

	if got := maxObserved.Load(); got > int32(workers) {
		t.Errorf("concurrency limit violated: observed %d, limit %d", got, workers)
	}
	if got := maxObserved.Load(); got < 2 {
		t.Errorf("expected some concurrency, max observed %d", got)
	}
}

func TestProcess_ProgressCallback(t *testing.T) {
	pool := New(Config{Workers: 2}, zap.NewNop())

	items := make([]Item[int], 4)
	for i := range items {
		n := i
		items[i] = Item[int]{ID: fmt.Sprint(n), Execute: func(ctx context.Context) (int, error) { return n, nil }}
	}

	var mu sync.Mutex
	var calls []int
	Process(context.Background(), pool, items, func(completed, total int) {
		mu.Lock()
		defer mu.Unlock()
		if total != 4 {
			t.Errorf("expected total 4, got %d", total)
		}
		calls = append(calls, completed)
	})

	if len(calls) != 4 || calls[3] != 4 {
		t.Errorf("unexpected progress calls: %v", calls)
	}
}

func TestNew_DefaultsWorkers(t *testing.T) {
	pool := New(Config{Workers: 0}, zap.NewNop())
	if pool.Workers() != 4 {
		t.Errorf("expected default 4 workers, got %d", pool.Workers())
	}
}
