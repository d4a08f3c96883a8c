package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"prayerroom/internal/bookings/events"
	"prayerroom/pkg/logger"
	"prayerroom/pkg/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T) (*Cache, *miniredis.Miniredis, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	c := New(client, 30*time.Second, logger.Discard())
	c.now = func() time.Time { return clock }
	return c, mr, &clock
}

type counter struct {
	calls int
	value []string
	err   error
}

func (l *counter) load(context.Context) ([]string, error) {
	l.calls++
	return l.value, l.err
}

func TestReadThrough_HitAfterMiss(t *testing.T) {
	ctx := context.Background()
	c, mr, _ := newCache(t)
	loader := &counter{value: []string{"14:00"}}

	got, stale, err := ReadThrough(ctx, c, DayKey("prayer_room", "2026-01-16"), loader.load)
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Equal(t, []string{"14:00"}, got)
	assert.True(t, mr.Exists(DayKey("prayer_room", "2026-01-16")))

	got, stale, err = ReadThrough(ctx, c, DayKey("prayer_room", "2026-01-16"), loader.load)
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Equal(t, []string{"14:00"}, got)
	assert.Equal(t, 1, loader.calls)
}

func TestReadThrough_ExpiredEntryIsReloaded(t *testing.T) {
	ctx := context.Background()
	c, _, clock := newCache(t)
	loader := &counter{value: []string{"14:00"}}

	_, _, err := ReadThrough(ctx, c, "k", loader.load)
	require.NoError(t, err)

	*clock = clock.Add(time.Minute)
	loader.value = []string{"14:00", "15:00"}
	got, stale, err := ReadThrough(ctx, c, "k", loader.load)
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Equal(t, []string{"14:00", "15:00"}, got)
	assert.Equal(t, 2, loader.calls)
}

func TestReadThrough_ServesStaleWhenLoadFails(t *testing.T) {
	ctx := context.Background()
	c, _, clock := newCache(t)
	loader := &counter{value: []string{"14:00"}}

	_, _, err := ReadThrough(ctx, c, "k", loader.load)
	require.NoError(t, err)

	*clock = clock.Add(time.Minute)
	loader.err = errors.New("store unavailable")
	got, stale, err := ReadThrough(ctx, c, "k", loader.load)
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Equal(t, []string{"14:00"}, got)
}

func TestReadThrough_LoadErrorWithoutEntry(t *testing.T) {
	c, _, _ := newCache(t)
	loader := &counter{err: errors.New("store unavailable")}

	_, stale, err := ReadThrough(context.Background(), c, "k", loader.load)
	assert.Error(t, err)
	assert.False(t, stale)
}

func TestReadThrough_RedisDownFallsBackToLoader(t *testing.T) {
	c, mr, _ := newCache(t)
	mr.Close()
	loader := &counter{value: []string{"14:00"}}

	got, stale, err := ReadThrough(context.Background(), c, "k", loader.load)
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Equal(t, []string{"14:00"}, got)
}

func TestReadThrough_NilCache(t *testing.T) {
	loader := &counter{value: []string{"14:00"}}

	got, _, err := ReadThrough(context.Background(), New(nil, time.Minute, logger.Discard()), "k", loader.load)
	require.NoError(t, err)
	assert.Equal(t, []string{"14:00"}, got)

	var c *Cache
	_, _, err = ReadThrough(context.Background(), c, "k", loader.load)
	require.NoError(t, err)
	assert.NoError(t, c.Invalidate(context.Background(), "prayer_room", "2026-01-16"))
}

func TestOnChange_InvalidatesBothDays(t *testing.T) {
	ctx := context.Background()
	c, mr, _ := newCache(t)
	loader := &counter{value: []string{"x"}}
	for _, key := range []string{
		DayKey("prayer_room", "2026-01-16"),
		AvailabilityKey("prayer_room", "2026-01-16"),
		DayKey("prayer_room", "2026-01-17"),
		DayKey("prayer_room", "2026-01-18"),
	} {
		_, _, err := ReadThrough(ctx, c, key, loader.load)
		require.NoError(t, err)
	}

	before := &model.Booking{ID: "b1", ResourceID: "prayer_room", Date: "2026-01-16", Time: "14:00"}
	after := before.Clone()
	after.Date = "2026-01-17"
	c.OnChange(events.NewUpdated(before, after))

	assert.False(t, mr.Exists(DayKey("prayer_room", "2026-01-16")))
	assert.False(t, mr.Exists(AvailabilityKey("prayer_room", "2026-01-16")))
	assert.False(t, mr.Exists(DayKey("prayer_room", "2026-01-17")))
	assert.True(t, mr.Exists(DayKey("prayer_room", "2026-01-18")))
}
