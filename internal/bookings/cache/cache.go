// Package cache is a Redis read-through cache for booking list and
// availability reads. The orchestrator never reads through it.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"prayerroom/internal/bookings/events"
	"prayerroom/internal/metrics"
	"prayerroom/pkg/logger"
	"prayerroom/pkg/model"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "prayerroom:"

	// Entries outlive their freshness so they can stand in for the store
	// when it is unavailable.
	retentionFactor = 10

	invalidateTimeout = 2 * time.Second
)

type entry struct {
	CachedAt time.Time       `json:"cached_at"`
	Payload  json.RawMessage `json:"payload"`
}

// Cache is safe to use with a nil Redis client, in which case every read
// goes to the loader.
type Cache struct {
	redis *redis.Client
	ttl   time.Duration
	now   func() time.Time
	log   *logger.Logger
}

func New(client *redis.Client, ttl time.Duration, log *logger.Logger) *Cache {
	return &Cache{
		redis: client,
		ttl:   ttl,
		now:   time.Now,
		log:   log,
	}
}

func DayKey(resourceID, date string) string {
	return keyPrefix + "bookings:" + resourceID + ":" + date
}

func AvailabilityKey(resourceID, date string) string {
	return keyPrefix + "availability:" + resourceID + ":" + date
}

// ReadThrough returns the cached value for key or calls load and caches its
// result. stale is true when load failed and an expired entry was served
// in its place.
func ReadThrough[T any](ctx context.Context, c *Cache, key string, load func(ctx context.Context) (T, error)) (value T, stale bool, err error) {
	if c == nil || c.redis == nil || c.ttl <= 0 {
		value, err = load(ctx)
		return value, false, err
	}

	cached, found := c.get(ctx, key)
	if found && c.now().Sub(cached.CachedAt) < c.ttl {
		if err := json.Unmarshal(cached.Payload, &value); err == nil {
			metrics.ObserveCacheLookup("hit")
			return value, false, nil
		}
	}

	value, err = load(ctx)
	if err != nil {
		if found {
			var old T
			if jsonErr := json.Unmarshal(cached.Payload, &old); jsonErr == nil {
				metrics.ObserveCacheLookup("stale")
				c.log.Warn("Serving stale cache entry", "key", key, "cached_at", cached.CachedAt, "error", err)
				return old, true, nil
			}
		}
		return value, false, err
	}

	metrics.ObserveCacheLookup("miss")
	c.set(ctx, key, value)
	return value, false, nil
}

func (c *Cache) get(ctx context.Context, key string) (entry, bool) {
	raw, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			metrics.ObserveCacheLookup("error")
			c.log.Warn("Cache read failed", "key", key, "error", err)
		}
		return entry{}, false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.log.Warn("Discarding unreadable cache entry", "key", key, "error", err)
		return entry{}, false
	}
	return e, true
}

func (c *Cache) set(ctx context.Context, key string, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		c.log.Warn("Failed to encode cache entry", "key", key, "error", err)
		return
	}
	raw, err := json.Marshal(entry{CachedAt: c.now().UTC(), Payload: payload})
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, raw, c.ttl*retentionFactor).Err(); err != nil {
		c.log.Warn("Cache write failed", "key", key, "error", err)
	}
}

// Invalidate drops the cached list and availability of a day.
func (c *Cache) Invalidate(ctx context.Context, resourceID, date string) error {
	if c == nil || c.redis == nil {
		return nil
	}
	if err := c.redis.Del(ctx, DayKey(resourceID, date), AvailabilityKey(resourceID, date)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate %s %s: %w", resourceID, date, err)
	}
	return nil
}

// OnChange invalidates every day a change touches. Register it with the
// booking store's Subscribe so writes from any process clear the cache.
func (c *Cache) OnChange(event events.ChangeEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
	defer cancel()

	seen := make(map[string]bool, 2)
	for _, b := range []*model.Booking{event.Before, event.After} {
		if b == nil || seen[b.ResourceID+"|"+b.Date] {
			continue
		}
		seen[b.ResourceID+"|"+b.Date] = true
		if err := c.Invalidate(ctx, b.ResourceID, b.Date); err != nil {
			c.log.Warn("Cache invalidation failed", "booking_id", event.BookingID, "error", err)
		}
	}
}
