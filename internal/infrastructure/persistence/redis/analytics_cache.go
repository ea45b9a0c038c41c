package redis

import (
	"context"
	"errors"
)

// AnalyticsCache holds the 60s cache for C8's admin funnel queries, keyed by
// a query name plus its parameters so /funnel, /funnel/users, and
// /funnel/errors each get an independent entry.
type AnalyticsCache struct {
	cache *Cache
}

// NewAnalyticsCache builds an AnalyticsCache.
func NewAnalyticsCache(cache *Cache) *AnalyticsCache {
	return &AnalyticsCache{cache: cache}
}

// Get unmarshals a cached query result into dest, reporting a miss on
// ErrCacheMiss rather than returning it, so callers can fall through to a
// fresh query without a type switch.
func (a *AnalyticsCache) Get(ctx context.Context, queryName string, dest interface{}) (bool, error) {
	err := a.cache.Get(ctx, AnalyticsKey(queryName), dest)
	if errors.Is(err, ErrCacheMiss) {
		return false, nil
	}
	return err == nil, err
}

// Set stores a query result for TTLAnalyticsCache.
func (a *AnalyticsCache) Set(ctx context.Context, queryName string, value interface{}) error {
	return a.cache.Set(ctx, AnalyticsKey(queryName), value, TTLAnalyticsCache)
}
