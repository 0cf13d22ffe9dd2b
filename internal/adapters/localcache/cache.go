// Package localcache is an in-process domain.Cache used when redis is not configured or unreachable.
package localcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"loo_review/internal/adapters/observability"
	"loo_review/internal/domain"
)

var _ domain.Cache = (*Cache)(nil)

// Cache keeps JSON-encoded values so callers get copies, matching the redis adapter.
type Cache struct {
	c *ttlcache.Cache[string, []byte]
}

func New(defaultTTL time.Duration) *Cache {
	c := ttlcache.New(ttlcache.WithTTL[string, []byte](defaultTTL))
	go c.Start() // evicts expired items
	return &Cache{c: c}
}

func (l *Cache) Close() { l.c.Stop() }

func (l *Cache) Get(_ context.Context, key string, dst any) (bool, error) {
	item := l.c.Get(key)
	if item == nil || item.IsExpired() {
		observability.ObserveCache("local", "miss")
		return false, nil
	}
	if err := json.Unmarshal(item.Value(), dst); err != nil {
		observability.ObserveCache("local", "miss")
		return false, nil
	}
	observability.ObserveCache("local", "hit")
	return true, nil
}

// Set stores v; ttlSec <= 0 uses the cache's default TTL.
func (l *Cache) Set(_ context.Context, key string, v any, ttlSec int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache value %s: %w", key, err)
	}
	ttl := ttlcache.DefaultTTL
	if ttlSec > 0 {
		ttl = time.Duration(ttlSec) * time.Second
	}
	l.c.Set(key, b, ttl)
	observability.ObserveCache("local", "set")
	return nil
}

func (l *Cache) Del(_ context.Context, key string) error {
	l.c.Delete(key)
	observability.ObserveCache("local", "del")
	return nil
}
