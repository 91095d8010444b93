package bookingcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roombooking/internal/domain"
	"roombooking/internal/pkg/clock"
)

type countingLoader struct {
	calls   int32
	release chan struct{}
	err     error
}

func (l *countingLoader) ListByTenant(ctx context.Context, tenant string) ([]domain.Booking, error) {
	atomic.AddInt32(&l.calls, 1)
	if l.release != nil {
		<-l.release
	}
	if l.err != nil {
		return nil, l.err
	}
	return []domain.Booking{{CalendarEventID: tenant + "-1"}}, nil
}

func TestCache_ServesWithinTTL(t *testing.T) {
	loader := &countingLoader{}
	fc := clock.NewFake(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))
	c := New(loader, DefaultTTL, fc)
	ctx := context.Background()

	rows, err := c.Get(ctx, "mc")
	require.NoError(t, err)
	assert.Equal(t, "mc-1", rows[0].CalendarEventID)

	fc.Advance(29 * time.Second)
	_, err = c.Get(ctx, "mc")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&loader.calls))

	fc.Advance(time.Second)
	_, err = c.Get(ctx, "mc")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&loader.calls), "expired at 30s")

	_, err = c.Get(ctx, "itp")
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&loader.calls), "tenants are cached separately")
}

func TestCache_CoalescesConcurrentMisses(t *testing.T) {
	loader := &countingLoader{release: make(chan struct{})}
	c := New(loader, DefaultTTL, clock.NewFake(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)))

	const callers = 20
	var wg sync.WaitGroup
	results := make([][]domain.Booking, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rows, err := c.Get(context.Background(), "mc")
			assert.NoError(t, err)
			results[i] = rows
		}(i)
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&loader.calls) == 1 }, time.Second, time.Millisecond)
	// let the rest of the callers pile onto the in-flight load
	time.Sleep(20 * time.Millisecond)
	close(loader.release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&loader.calls))
	for _, rows := range results {
		require.Len(t, rows, 1)
	}
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	loader := &countingLoader{err: errors.New("store unavailable")}
	c := New(loader, DefaultTTL, clock.NewFake(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)))

	_, err := c.Get(context.Background(), "mc")
	assert.Error(t, err)

	loader.err = nil
	rows, err := c.Get(context.Background(), "mc")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&loader.calls))
}
