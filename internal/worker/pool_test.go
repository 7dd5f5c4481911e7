package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partner-gateway-service/internal/metrics"
)

func TestPoolRunsTasks(t *testing.T) {
	p := NewPool(3, 10, metrics.NewUnregistered())

	var n atomic.Int32
	for i := 0; i < 10; i++ {
		require.True(t, p.Submit("count", func(context.Context) { n.Add(1) }))
	}

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int32(10), n.Load())
}

func TestPoolDropsWhenFull(t *testing.T) {
	p := NewPool(1, 1, metrics.NewUnregistered())

	release := make(chan struct{})
	started := make(chan struct{})
	require.True(t, p.Submit("block", func(context.Context) {
		close(started)
		<-release
	}))
	<-started

	require.True(t, p.Submit("queued", func(context.Context) {}))
	assert.False(t, p.Submit("dropped", func(context.Context) {}))

	close(release)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPoolRecoversPanics(t *testing.T) {
	p := NewPool(1, 4, metrics.NewUnregistered())

	var wg sync.WaitGroup
	wg.Add(1)
	require.True(t, p.Submit("panics", func(context.Context) { panic("boom") }))
	require.True(t, p.Submit("after", func(context.Context) { wg.Done() }))

	wg.Wait()
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPoolShutdown(t *testing.T) {
	t.Run("rejects submissions after shutdown", func(t *testing.T) {
		p := NewPool(1, 1, metrics.NewUnregistered())
		require.NoError(t, p.Shutdown(context.Background()))
		assert.False(t, p.Submit("late", func(context.Context) {}))
		assert.ErrorIs(t, p.Shutdown(context.Background()), ErrClosed)
	})

	t.Run("cancels running tasks when deadline passes", func(t *testing.T) {
		p := NewPool(1, 1, metrics.NewUnregistered())
		started := make(chan struct{})
		require.True(t, p.Submit("slow", func(ctx context.Context) {
			close(started)
			<-ctx.Done()
		}))
		<-started

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, p.Shutdown(ctx), context.DeadlineExceeded)
	})
}
