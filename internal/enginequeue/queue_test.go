package enginequeue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitRunsTaskAndReturnsItsError(t *testing.T) {
	q := New(8)
	q.Start()
	defer q.Stop()

	t.Run("Success", func(t *testing.T) {
		err := q.Submit(func(ctx context.Context) error { return nil })
		assert.NoError(t, err)
	})

	t.Run("PropagatesTaskError", func(t *testing.T) {
		err := q.Submit(func(ctx context.Context) error { return fmt.Errorf("boom") })
		assert.EqualError(t, err, "boom")
	})
}

func TestTaskErrorDoesNotPoisonQueue(t *testing.T) {
	q := New(8)
	q.Start()
	defer q.Stop()

	require.Error(t, q.Submit(func(ctx context.Context) error { return fmt.Errorf("first fails") }))
	assert.NoError(t, q.Submit(func(ctx context.Context) error { return nil }))
}

func TestOnlyOneTaskRunsAtATime(t *testing.T) {
	q := New(8)
	q.Start()
	defer q.Stop()

	var running int32
	var maxConcurrent int32
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.Submit(func(ctx context.Context) error {
				n := atomic.AddInt32(&running, 1)
				for {
					cur := atomic.LoadInt32(&maxConcurrent)
					if n <= cur || atomic.CompareAndSwapInt32(&maxConcurrent, cur, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil
			})
		}()
	}

	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxConcurrent))
}

func TestFIFOOrdering(t *testing.T) {
	q := New(8)
	q.Start()
	defer q.Stop()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		// Submit sequentially to guarantee enqueue order, then let the
		// worker drain them; each submission blocks until its own task
		// runs, so we run submissions from separate goroutines started
		// in order and rely on the channel buffer to hold the backlog.
		go func() {
			defer wg.Done()
			_ = q.Submit(func(ctx context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}()
		time.Sleep(2 * time.Millisecond)
	}

	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestStopCancelsRunningTaskContext(t *testing.T) {
	q := New(8)
	q.Start()

	started := make(chan struct{})
	canceled := make(chan struct{})

	go func() {
		_ = q.Submit(func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			close(canceled)
			return ctx.Err()
		})
	}()

	<-started
	q.Stop()

	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("task context was not canceled on Stop")
	}
}

func TestStatsReportsBacklog(t *testing.T) {
	q := New(8)
	q.Start()
	defer q.Stop()

	release := make(chan struct{})
	go func() {
		_ = q.Submit(func(ctx context.Context) error {
			<-release
			return nil
		})
	}()

	// give the worker a moment to pick up the first task
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		_ = q.Submit(func(ctx context.Context) error { return nil })
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	stats := q.Stats()
	assert.True(t, stats.Running)
	assert.Equal(t, 1, stats.Pending)

	close(release)
	<-done
}
