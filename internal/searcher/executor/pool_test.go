package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsEveryTask(t *testing.T) {
	wp := NewWorkerPool(3)
	var n atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		require.NoError(t, wp.Submit(context.Background(), func() {
			defer wg.Done()
			n.Add(1)
		}))
	}
	wg.Wait()
	wp.Close()
	assert.Equal(t, int64(100), n.Load())
	assert.Equal(t, 3, wp.Size())
}

func TestWorkerPoolRejectsAfterClose(t *testing.T) {
	wp := NewWorkerPool(1)
	wp.Close()
	wp.Close()
	assert.ErrorIs(t, wp.Submit(context.Background(), func() {}), ErrPoolClosed)
}

func TestWorkerPoolSubmitHonoursContext(t *testing.T) {
	wp := NewWorkerPool(1)
	defer wp.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, wp.Submit(context.Background(), func() {
		close(started)
		<-block
	}))
	<-started
	// One worker busy, two buffered slots.
	require.NoError(t, wp.Submit(context.Background(), func() {}))
	require.NoError(t, wp.Submit(context.Background(), func() {}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, wp.Submit(ctx, func() {}), context.Canceled)
	close(block)
}
