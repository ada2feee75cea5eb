package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPoolRunsTasks(t *testing.T) {
	p := NewPool(4, 16, zap.NewNop())

	var n atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(func(context.Context) { n.Add(1) }))
	}
	p.Stop()

	assert.Equal(t, int32(10), n.Load(), "Stop 会等待队列中的任务执行完")
}

func TestPoolRejectsWhenFull(t *testing.T) {
	p := NewPool(1, 1, zap.NewNop())
	defer p.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(func(context.Context) {
		close(started)
		<-release
	}))
	<-started

	require.NoError(t, p.Submit(func(context.Context) {}))
	assert.ErrorIs(t, p.Submit(func(context.Context) {}), ErrQueueFull)
	close(release)
}

func TestPoolRejectsAfterStop(t *testing.T) {
	p := NewPool(1, 1, zap.NewNop())
	p.Stop()
	p.Stop()
	assert.ErrorIs(t, p.Submit(func(context.Context) {}), ErrPoolClosed)
}

func TestPoolRecoversFromPanic(t *testing.T) {
	p := NewPool(1, 4, zap.NewNop())

	var ran atomic.Bool
	require.NoError(t, p.Submit(func(context.Context) { panic("boom") }))
	require.NoError(t, p.Submit(func(context.Context) { ran.Store(true) }))
	p.Stop()

	assert.True(t, ran.Load(), "panic 之后工作协程继续处理任务")
}

func TestPoolContextCancelledAfterStop(t *testing.T) {
	p := NewPool(1, 1, zap.NewNop())

	ctxCh := make(chan context.Context, 1)
	require.NoError(t, p.Submit(func(ctx context.Context) { ctxCh <- ctx }))
	p.Stop()

	select {
	case ctx := <-ctxCh:
		assert.Error(t, ctx.Err())
	case <-time.After(time.Second):
		t.Fatal("任务没有执行")
	}
}
