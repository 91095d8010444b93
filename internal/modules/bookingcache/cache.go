// Package bookingcache serves per-tenant booking lists from a short-lived
// cache. Entries expire by age only; writes never invalidate them.
package bookingcache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"roombooking/internal/domain"
	"roombooking/internal/pkg/clock"
)

const DefaultTTL = 30 * time.Second

// Loader fetches the full booking list of a tenant from the Record Store.
type Loader interface {
	ListByTenant(ctx context.Context, tenant string) ([]domain.Booking, error)
}

type entry struct {
	bookings []domain.Booking
	loadedAt time.Time
}

// Cache coalesces concurrent misses for the same tenant into one load.
type Cache struct {
	loader Loader
	ttl    time.Duration
	clock  clock.Clock

	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]entry
}

func New(loader Loader, ttl time.Duration, c clock.Clock) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if c == nil {
		c = clock.Real()
	}
	return &Cache{
		loader:  loader,
		ttl:     ttl,
		clock:   c,
		entries: map[string]entry{},
	}
}

// Get returns the tenant's bookings, at most ttl old. The returned slice is
// shared between callers and must not be modified.
func (c *Cache) Get(ctx context.Context, tenant string) ([]domain.Booking, error) {
	if rows, ok := c.fresh(tenant); ok {
		return rows, nil
	}

	v, err, _ := c.group.Do(tenant, func() (any, error) {
		if rows, ok := c.fresh(tenant); ok {
			return rows, nil
		}
		// The load is shared, so it must not die with the first caller's
		// request.
		rows, err := c.loader.ListByTenant(context.WithoutCancel(ctx), tenant)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[tenant] = entry{bookings: rows, loadedAt: c.clock.Now()}
		c.mu.Unlock()
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Booking), nil
}

func (c *Cache) fresh(tenant string) ([]domain.Booking, bool) {
	c.mu.RLock()
	e, ok := c.entries[tenant]
	c.mu.RUnlock()
	if !ok || c.clock.Now().Sub(e.loadedAt) >= c.ttl {
		return nil, false
	}
	return e.bookings, true
}
