package citydir

import (
	"context"
	"sync"
	"time"
)

// Cached memoizes another directory's mapping for ttl. A failed refresh is
// returned to the caller and the previous mapping is discarded.
type Cached struct {
	inner Directory
	ttl   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	mapping Mapping
	loaded  time.Time
}

// NewCached wraps dir; ttl <= 0 disables memoization.
func NewCached(dir Directory, ttl time.Duration) *Cached {
	return &Cached{inner: dir, ttl: ttl, now: time.Now}
}

func (c *Cached) Mapping(ctx context.Context) (Mapping, error) {
	if c.ttl <= 0 {
		return c.inner.Mapping(ctx)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mapping != nil && c.now().Sub(c.loaded) < c.ttl {
		return c.mapping, nil
	}
	m, err := c.inner.Mapping(ctx)
	if err != nil {
		c.mapping = nil
		return nil, err
	}
	c.mapping, c.loaded = m, c.now()
	return m, nil
}
