package limiter

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrencyBound(t *testing.T) {
	const max = 3
	const jobs = 10

	l := New(max)
	defer l.Close()

	var running int32
	var peak int32
	var mu sync.Mutex
	release := make(chan struct{})
	started := make(chan struct{}, jobs)

	for i := 0; i < jobs; i++ {
		err := l.Schedule(func() {
			n := atomic.AddInt32(&running, 1)
			mu.Lock()
			if n > peak {
				peak = n
			}
			mu.Unlock()
			started <- struct{}{}
			<-release
			atomic.AddInt32(&running, -1)
		})
		require.NoError(t, err)
	}

	// Wait until the worker set is saturated.
	for i := 0; i < max; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("workers did not start")
		}
	}

	counts := l.Counts()
	assert.Equal(t, max, counts.Running)
	assert.Equal(t, jobs-max, counts.Queued)
	assert.Equal(t, 0, counts.Done)

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, l.Drain(ctx))

	mu.Lock()
	assert.LessOrEqual(t, peak, int32(max))
	mu.Unlock()
	assert.Equal(t, jobs, l.Counts().Done)
}

func TestFIFOOrder(t *testing.T) {
	// A single worker must release queued jobs in submission order.
	l := New(1)
	defer l.Close()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		require.NoError(t, l.Schedule(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, l.Drain(ctx))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestScheduleAfterClose(t *testing.T) {
	l := New(2)
	l.Close()
	err := l.Schedule(func() {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNonPositiveMaxFallsBack(t *testing.T) {
	l := New(0)
	defer l.Close()

	done := make(chan struct{})
	require.NoError(t, l.Schedule(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never ran")
	}
}

func TestDrainTimeout(t *testing.T) {
	l := New(1)
	defer l.Close()

	block := make(chan struct{})
	defer close(block)
	require.NoError(t, l.Schedule(func() { <-block }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Drain(ctx), context.DeadlineExceeded)
}
