package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	tokens float64
	last   time.Time
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithIdleTTL drops buckets untouched for d; a dropped bucket comes back full.
func WithIdleTTL(d time.Duration) Option {
	return func(l *Limiter) { l.idleTTL = d }
}

// Limiter is a token bucket per key (typically a client IP).
type Limiter struct {
	mu       sync.Mutex
	m        map[string]*bucket
	capacity float64
	rate     float64 // tokens per second
	idleTTL  time.Duration
	lastGC   time.Time
	now      func() time.Time
}

// New returns a limiter refilling perSecond tokens up to burst. A
// non-positive perSecond disables limiting.
func New(perSecond float64, burst int, opts ...Option) *Limiter {
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{
		m:        make(map[string]*bucket),
		capacity: float64(burst),
		rate:     perSecond,
		idleTTL:  10 * time.Minute,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow consumes one token for key and reports whether one was available.
func (l *Limiter) Allow(key string) bool {
	if l == nil || l.rate <= 0 {
		return true
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.gcLocked(now)
	b, ok := l.m[key]
	if !ok {
		b = &bucket{tokens: l.capacity, last: now}
		l.m[key] = b
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens += elapsed * l.rate
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

func (l *Limiter) gcLocked(now time.Time) {
	if l.idleTTL <= 0 || now.Sub(l.lastGC) < l.idleTTL {
		return
	}
	l.lastGC = now
	for k, b := range l.m {
		if now.Sub(b.last) >= l.idleTTL {
			delete(l.m, k)
		}
	}
}
