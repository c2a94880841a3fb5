package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	v   []byte
	exp time.Time
}

type TTLOption func(*TTLCache)

// WithMaxEntries bounds the cache; when full, expired entries are purged
// and then the entry closest to expiry is evicted.
func WithMaxEntries(n int) TTLOption {
	return func(c *TTLCache) {
		if n > 0 {
			c.max = n
		}
	}
}

func WithClock(now func() time.Time) TTLOption {
	return func(c *TTLCache) { c.now = now }
}

// TTLCache is an in-process BytesCache.
type TTLCache struct {
	mu  sync.Mutex
	m   map[string]entry
	max int
	now func() time.Time
}

func NewTTLCache(opts ...TTLOption) *TTLCache {
	c := &TTLCache{m: make(map[string]entry), max: 1024, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *TTLCache) GetBytes(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok {
		return nil, false, nil
	}
	if c.expired(e) {
		delete(c.m, key)
		return nil, false, nil
	}
	return e.v, true, nil
}

// SetBytes stores value. A non-positive ttl never expires.
func (c *TTLCache) SetBytes(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.m[key]; !ok && len(c.m) >= c.max {
		c.evictLocked()
	}
	c.m[key] = entry{v: value, exp: exp}
	return nil
}

func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

func (c *TTLCache) Close() error { return nil }

func (c *TTLCache) expired(e entry) bool {
	return !e.exp.IsZero() && !c.now().Before(e.exp)
}

func (c *TTLCache) evictLocked() {
	for k, e := range c.m {
		if c.expired(e) {
			delete(c.m, k)
		}
	}
	if len(c.m) < c.max {
		return
	}
	var victim string
	var soonest time.Time
	first := true
	for k, e := range c.m {
		if first || (!e.exp.IsZero() && (soonest.IsZero() || e.exp.Before(soonest))) {
			victim, soonest, first = k, e.exp, false
		}
	}
	delete(c.m, victim)
}
