package cache

import (
	"context"
	"fmt"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestTTLCacheExpiry(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}
	c := NewTTLCache(WithClock(clk.now))
	ctx := context.Background()

	_ = c.SetBytes(ctx, "k", []byte("v"), time.Minute)
	if b, ok, _ := c.GetBytes(ctx, "k"); !ok || string(b) != "v" {
		t.Fatalf("expected hit, got %q %v", b, ok)
	}

	clk.t = clk.t.Add(time.Minute)
	if _, ok, _ := c.GetBytes(ctx, "k"); ok {
		t.Fatalf("expected expiry")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry not removed")
	}
}

func TestTTLCacheNoTTLNeverExpires(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}
	c := NewTTLCache(WithClock(clk.now))
	_ = c.SetBytes(context.Background(), "k", []byte("v"), 0)
	clk.t = clk.t.Add(24 * time.Hour)
	if _, ok, _ := c.GetBytes(context.Background(), "k"); !ok {
		t.Fatalf("expected hit")
	}
}

func TestTTLCacheBounded(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}
	c := NewTTLCache(WithClock(clk.now), WithMaxEntries(3))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = c.SetBytes(ctx, fmt.Sprintf("k%d", i), []byte("v"), time.Duration(i+1)*time.Minute)
	}
	_ = c.SetBytes(ctx, "k3", []byte("v"), 10*time.Minute)

	if c.Len() != 3 {
		t.Fatalf("len = %d", c.Len())
	}
	if _, ok, _ := c.GetBytes(ctx, "k0"); ok {
		t.Fatalf("soonest-expiring entry should be evicted")
	}
	if _, ok, _ := c.GetBytes(ctx, "k3"); !ok {
		t.Fatalf("new entry missing")
	}
}

func TestNopCache(t *testing.T) {
	var c BytesCache = NopCache{}
	_ = c.SetBytes(context.Background(), "k", []byte("v"), time.Minute)
	if _, ok, err := c.GetBytes(context.Background(), "k"); ok || err != nil {
		t.Fatalf("nop cache hit")
	}
}

func TestRedisKeyPrefix(t *testing.T) {
	r := &RedisCache{prefix: "barfeed:"}
	if got := r.key("bars:AAPL"); got != "barfeed:bars:AAPL" {
		t.Fatalf("key = %q", got)
	}
}
