package distance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/fleet-pricing/internal/models"
)

// CachedProvider caches provider quotes in Redis. Coordinates are rounded to
// four decimals (~11 m) when building keys, so nearby lookups for the same
// pickup/dropoff pair hit the cache instead of the paid routing API.
type CachedProvider struct {
	inner  Provider
	client *redis.Client
	ttl    time.Duration
}

func NewCachedProvider(inner Provider, addr, password string, ttl time.Duration) *CachedProvider {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &CachedProvider{inner: inner, client: c, ttl: ttl}
}

func (c *CachedProvider) Quote(ctx context.Context, from, to models.Coord) (Quote, error) {
	key := quoteKey(from, to)
	if b, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var q Quote
		if err := json.Unmarshal(b, &q); err == nil {
			return q, nil
		}
		// corrupt entry: drop it and fall through to the provider
		_ = c.client.Del(ctx, key).Err()
	}

	q, err := c.inner.Quote(ctx, from, to)
	if err != nil {
		return Quote{}, err
	}
	if b, err := json.Marshal(q); err == nil {
		_ = c.client.Set(ctx, key, b, c.ttl).Err()
	}
	return q, nil
}

func quoteKey(from, to models.Coord) string {
	return fmt.Sprintf("route:quote:%.4f,%.4f->%.4f,%.4f", from.Lat, from.Lon, to.Lat, to.Lon)
}
