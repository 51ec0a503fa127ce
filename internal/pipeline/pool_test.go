package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsAllTasks(t *testing.T) {
	p := NewWorkerPool(4, 8)
	defer p.Close()

	var ran int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		err := p.Submit(context.Background(), func() {
			defer wg.Done()
			atomic.AddInt64(&ran, 1)
		})
		require.NoError(t, err)
	}
	wg.Wait()
	assert.Equal(t, int64(100), atomic.LoadInt64(&ran))
}

func TestWorkerPoolDepthTracksInFlight(t *testing.T) {
	p := NewWorkerPool(1, 2)
	defer p.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func() {
		close(started)
		<-release
	}))
	<-started
	assert.GreaterOrEqual(t, p.Depth(), 1, "running task counts toward depth")

	require.NoError(t, p.Submit(context.Background(), func() {}))
	assert.GreaterOrEqual(t, p.Depth(), 2, "queued task counts toward depth")

	close(release)
}

func TestWorkerPoolSubmitBlocksUntilDrained(t *testing.T) {
	p := NewWorkerPool(1, 1)
	defer p.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func() {
		close(started)
		<-release
	}))
	<-started
	// Worker busy; this one fills the queue.
	require.NoError(t, p.Submit(context.Background(), func() {}))

	unblocked := make(chan error, 1)
	go func() {
		unblocked <- p.Submit(context.Background(), func() {})
	}()

	select {
	case <-unblocked:
		t.Fatal("submit returned while the queue was full")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-unblocked:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("submit never unblocked after the worker drained")
	}
}

func TestWorkerPoolSubmitHonorsContext(t *testing.T) {
	p := NewWorkerPool(1, 1)
	defer p.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func() {
		close(started)
		<-release
	}))
	<-started
	require.NoError(t, p.Submit(context.Background(), func() {}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Submit(ctx, func() {})
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
}

func TestWorkerPoolCloseStopsIntake(t *testing.T) {
	p := NewWorkerPool(2, 4)
	p.Close()
	p.Close() // idempotent

	err := p.Submit(context.Background(), func() {})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, p.Depth())
}
