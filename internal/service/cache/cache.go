package cache

import (
	"context"
	"time"
)

// BytesCache stores raw bytes with a TTL. A miss is (nil, false, nil).
type BytesCache interface {
	GetBytes(ctx context.Context, key string) (b []byte, ok bool, err error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// NopCache never stores anything.
type NopCache struct{}

func (NopCache) GetBytes(context.Context, string) ([]byte, bool, error)       { return nil, false, nil }
func (NopCache) SetBytes(context.Context, string, []byte, time.Duration) error { return nil }
func (NopCache) Close() error                                                  { return nil }
