package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{Workers: 2, QueueSize: 8, MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestPool_RetriesUntilSuccess(t *testing.T) {
	p := NewPool(fastConfig())

	var calls int32
	require.NoError(t, p.Submit(Task{Kind: "calendar", Fn: func(ctx context.Context) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("provider unavailable")
		}
		return nil
	}}))

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestPool_ReportsFinalFailure(t *testing.T) {
	p := NewPool(fastConfig())

	var (
		mu     sync.Mutex
		failed []string
	)
	p.OnFailure = func(task Task, err error) {
		mu.Lock()
		defer mu.Unlock()
		failed = append(failed, task.Kind)
	}

	var calls int32
	require.NoError(t, p.Submit(Task{Kind: "notify", Fn: func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("smtp down")
	}}))
	require.NoError(t, p.Submit(Task{Kind: "panics", Fn: func(ctx context.Context) error {
		panic("boom")
	}}))

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.ElementsMatch(t, []string{"notify", "panics"}, failed)
}

func TestPool_SubmitNeverBlocks(t *testing.T) {
	p := NewPool(Config{Workers: 1, QueueSize: 1, MaxAttempts: 1})

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(Task{Kind: "slow", Fn: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}}))
	<-started
	require.NoError(t, p.Submit(Task{Kind: "queued", Fn: func(ctx context.Context) error { return nil }}))

	assert.Error(t, p.Submit(Task{Kind: "dropped", Fn: func(ctx context.Context) error { return nil }}))

	close(release)
	require.NoError(t, p.Shutdown(context.Background()))
	assert.ErrorIs(t, p.Submit(Task{Kind: "late"}), ErrPoolClosed)
}

func TestPool_Backoff(t *testing.T) {
	p := &Pool{cfg: Config{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}}
	assert.Equal(t, 100*time.Millisecond, p.backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.backoff(2))
	assert.Equal(t, 800*time.Millisecond, p.backoff(4))
	assert.Equal(t, time.Second, p.backoff(5))
}
