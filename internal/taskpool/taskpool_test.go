package taskpool_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/triton-marine/umaa-assembly/internal/taskpool"
)

func TestWorkerPool_HigherPriorityRunsBeforeLower(t *testing.T) {
	pool := taskpool.NewWorkerPool(1)
	defer pool.Close()

	block := make(chan struct{})
	holdDone := pool.Submit(func(ctx context.Context) { <-block }, taskpool.High)

	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup
	wg.Add(3)
	record := func(name string) func(ctx context.Context) {
		return func(ctx context.Context) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			wg.Done()
		}
	}

	pool.Submit(record("low"), taskpool.Low)
	pool.Submit(record("high"), taskpool.High)
	pool.Submit(record("medium"), taskpool.Medium)

	close(block)
	<-holdDone.Done()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queued tasks never completed")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"high", "medium", "low"}, order)
}

func TestWorkerPool_CancelBeforeRunSkipsFn(t *testing.T) {
	pool := taskpool.NewWorkerPool(1)
	defer pool.Close()

	block := make(chan struct{})
	holdDone := pool.Submit(func(ctx context.Context) { <-block }, taskpool.High)

	ran := false
	future := pool.Submit(func(ctx context.Context) { ran = true }, taskpool.Low)
	future.Cancel()

	close(block)
	<-holdDone.Done()
	<-future.Done()

	require.False(t, ran, "a task cancelled before it runs must not execute fn")
}

func TestWorkerPool_SubmitRecurringFiresUntilCancelled(t *testing.T) {
	pool := taskpool.NewWorkerPool(1)
	defer pool.Close()

	var count int
	var mu sync.Mutex
	handle := pool.SubmitRecurring(func(ctx context.Context) {
		mu.Lock()
		count++
		mu.Unlock()
	}, 20*time.Millisecond, taskpool.Medium)

	time.Sleep(110 * time.Millisecond)
	handle.Cancel()

	mu.Lock()
	observed := count
	mu.Unlock()
	require.GreaterOrEqual(t, observed, 2, "recurring task should have fired more than once in 110ms at a 20ms interval")

	time.Sleep(60 * time.Millisecond)
	mu.Lock()
	afterCancel := count
	mu.Unlock()
	require.Equal(t, observed, afterCancel, "no further firings should occur after Cancel")
}
