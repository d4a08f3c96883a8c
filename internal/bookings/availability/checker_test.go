package availability

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"prayerroom/internal/bookings/repository"
	"prayerroom/pkg/logger"
	"prayerroom/pkg/model"
	"prayerroom/pkg/slot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func newChecker(t *testing.T) (*Checker, *repository.MemoryBookingRepository, *repository.MemorySlotClaimRepository) {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	bookings := repository.NewMemoryBookingRepository()
	claims := repository.NewMemorySlotClaimRepository()
	checker := NewChecker(bookings, claims, slot.NewClock(loc, time.Hour), 30*time.Minute, logger.Discard())
	checker.SetNow(func() time.Time { return now })
	return checker, bookings, claims
}

func create(t *testing.T, repo *repository.MemoryBookingRepository, tod, status string) *model.Booking {
	t.Helper()
	b := &model.Booking{
		ResourceID:      "prayer_room",
		Date:            "2026-01-16",
		Time:            tod,
		DurationMinutes: 60,
		Status:          status,
		Name:            "Alice",
	}
	require.NoError(t, repo.Create(context.Background(), b))
	return b
}

func TestIsSlotFree_EmptySlot(t *testing.T) {
	checker, _, _ := newChecker(t)
	free, err := checker.IsSlotFree(context.Background(), "prayer_room", "2026-01-16", "14:00", "")
	require.NoError(t, err)
	assert.True(t, free)
}

func TestIsSlotFree_ConfirmedOccupies(t *testing.T) {
	ctx := context.Background()
	checker, repo, _ := newChecker(t)
	confirmed := create(t, repo, "14:00", model.StatusConfirmed)

	free, err := checker.IsSlotFree(ctx, "prayer_room", "2026-01-16", "14:00", "")
	require.NoError(t, err)
	assert.False(t, free)

	free, err = checker.IsSlotFree(ctx, "prayer_room", "2026-01-16", "14:00", confirmed.ID)
	require.NoError(t, err)
	assert.True(t, free, "a booking does not block itself")
}

func TestIsSlotFree_PendingOnlyWhenHoldingClaim(t *testing.T) {
	ctx := context.Background()
	checker, repo, claims := newChecker(t)
	pending := create(t, repo, "14:00", model.StatusPending)

	free, err := checker.IsSlotFree(ctx, "prayer_room", "2026-01-16", "14:00", "")
	require.NoError(t, err)
	assert.True(t, free)

	require.NoError(t, claims.Claim(ctx, pending.SlotKey(), pending.ID))
	free, err = checker.IsSlotFree(ctx, "prayer_room", "2026-01-16", "14:00", "")
	require.NoError(t, err)
	assert.False(t, free)
}

func TestIsSlotFree_IgnoresInactive(t *testing.T) {
	checker, repo, _ := newChecker(t)
	create(t, repo, "14:00", model.StatusCancelled)
	create(t, repo, "14:00", model.StatusConflict)

	free, err := checker.IsSlotFree(context.Background(), "prayer_room", "2026-01-16", "14:00", "")
	require.NoError(t, err)
	assert.True(t, free)
}

func TestIsSlotFree_LeadTime(t *testing.T) {
	checker, _, _ := newChecker(t)
	// 12:00 UTC is 07:00 in New York.
	tests := []struct {
		tod  string
		want bool
	}{
		{"07:00", false},
		{"08:00", true},
		{"06:00", false},
	}
	for _, tt := range tests {
		free, err := checker.IsSlotFree(context.Background(), "prayer_room", "2026-01-10", tt.tod, "")
		require.NoError(t, err)
		assert.Equal(t, tt.want, free, tt.tod)
	}
}

func TestIsSlotFree_InvalidSlot(t *testing.T) {
	checker, _, _ := newChecker(t)
	_, err := checker.IsSlotFree(context.Background(), "prayer_room", "2026-01-16", "14:30", "")
	assert.Error(t, err)
}

func TestClaimSlot(t *testing.T) {
	ctx := context.Background()
	checker, repo, _ := newChecker(t)
	first := create(t, repo, "14:00", model.StatusPending)
	second := create(t, repo, "14:00", model.StatusPending)

	ok, err := checker.ClaimSlot(ctx, first)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = checker.ClaimSlot(ctx, second)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = checker.ClaimSlot(ctx, first)
	require.NoError(t, err)
	assert.True(t, ok, "claiming again is idempotent")
}

func TestClaimSlot_TakesOverStaleClaims(t *testing.T) {
	ctx := context.Background()
	checker, repo, claims := newChecker(t)

	cancelled := create(t, repo, "14:00", model.StatusCancelled)
	require.NoError(t, claims.Claim(ctx, cancelled.SlotKey(), cancelled.ID))

	next := create(t, repo, "14:00", model.StatusPending)
	ok, err := checker.ClaimSlot(ctx, next)
	require.NoError(t, err)
	assert.True(t, ok)

	holder, _ := claims.Holder(ctx, next.SlotKey())
	assert.Equal(t, next.ID, holder)
}

func TestClaimSlot_TakesOverFromRescheduledHolder(t *testing.T) {
	ctx := context.Background()
	checker, repo, claims := newChecker(t)

	moved := create(t, repo, "15:00", model.StatusConfirmed)
	require.NoError(t, claims.Claim(ctx, "prayer_room|2026-01-16|14:00", moved.ID))

	next := create(t, repo, "14:00", model.StatusPending)
	ok, err := checker.ClaimSlot(ctx, next)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClaimSlot_TakesOverFromDeletedHolder(t *testing.T) {
	ctx := context.Background()
	checker, repo, claims := newChecker(t)
	claims.SetClock(func() time.Time { return now.Add(-2 * time.Minute) })
	require.NoError(t, claims.Claim(ctx, "prayer_room|2026-01-16|14:00", "65a000000000000000000001"))

	next := create(t, repo, "14:00", model.StatusPending)
	ok, err := checker.ClaimSlot(ctx, next)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClaimSlot_RespectsFreshClaimOfUncommittedHolder(t *testing.T) {
	ctx := context.Background()
	checker, repo, claims := newChecker(t)
	claims.SetClock(func() time.Time { return now.Add(-10 * time.Second) })
	require.NoError(t, claims.Claim(ctx, "prayer_room|2026-01-16|14:00", "65a000000000000000000001"))

	next := create(t, repo, "14:00", model.StatusPending)
	ok, err := checker.ClaimSlot(ctx, next)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClaimSlot_ConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	checker, repo, _ := newChecker(t)

	const n = 16
	bookings := make([]*model.Booking, n)
	for i := range bookings {
		bookings[i] = create(t, repo, "14:00", model.StatusPending)
	}

	var winners int32
	var wg sync.WaitGroup
	for _, b := range bookings {
		wg.Add(1)
		go func(b *model.Booking) {
			defer wg.Done()
			if ok, err := checker.ClaimSlot(ctx, b); err == nil && ok {
				atomic.AddInt32(&winners, 1)
			}
		}(b)
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners)
}

func TestReleaseSlot(t *testing.T) {
	ctx := context.Background()
	checker, repo, claims := newChecker(t)
	b := create(t, repo, "14:00", model.StatusPending)

	_, err := checker.ClaimSlot(ctx, b)
	require.NoError(t, err)
	require.NoError(t, checker.ReleaseSlot(ctx, b))

	holder, _ := claims.Holder(ctx, b.SlotKey())
	assert.Empty(t, holder)
}

func TestDay(t *testing.T) {
	ctx := context.Background()
	checker, repo, _ := newChecker(t)
	create(t, repo, "14:00", model.StatusConfirmed)
	create(t, repo, "15:00", model.StatusCancelled)

	class := &model.Booking{
		ResourceID:       "prayer_room",
		Date:             "2026-01-16",
		Time:             "18:00",
		Status:           model.StatusConfirmed,
		IsClass:          true,
		ClassName:        "Tajweed",
		MaxParticipants:  10,
		ParticipantCount: 4,
	}
	require.NoError(t, repo.Create(ctx, class))

	day, err := checker.Day(ctx, "prayer_room", "2026-01-16", 13, 19)
	require.NoError(t, err)
	require.Len(t, day.Slots, 6)

	bySlot := map[string]model.SlotAvailability{}
	for _, s := range day.Slots {
		bySlot[s.Time] = s
	}
	assert.True(t, bySlot["13:00"].Available)
	assert.False(t, bySlot["14:00"].Available)
	assert.Equal(t, model.StatusConfirmed, bySlot["14:00"].Status)
	assert.True(t, bySlot["15:00"].Available, "cancelled bookings free the slot")
	assert.Equal(t, 6, bySlot["18:00"].Spots)
	assert.Equal(t, "Tajweed", bySlot["18:00"].ClassName)

	_, err = checker.Day(ctx, "prayer_room", "bad", 6, 22)
	assert.Error(t, err)
}
