// Package availability decides whether a slot can be granted and owns the
// atomic slot claims that back that decision.
package availability

import (
	"context"
	"errors"
	"fmt"
	bookingserrors "prayerroom/internal/bookings/errors"
	"prayerroom/internal/bookings/repository"
	"prayerroom/pkg/logger"
	"prayerroom/pkg/model"
	"prayerroom/pkg/slot"
	"time"
)

const (
	claimAttempts = 3

	// claimGrace covers the window in which a claim exists but its booking
	// has not been committed yet.
	claimGrace = time.Minute
)

var activeStatuses = []string{model.StatusPending, model.StatusConfirmed}

type Checker struct {
	bookings repository.BookingRepository
	claims   repository.SlotClaimRepository
	clock    slot.Clock
	leadTime time.Duration
	now      func() time.Time
	log      *logger.Logger
}

func NewChecker(
	bookings repository.BookingRepository,
	claims repository.SlotClaimRepository,
	clock slot.Clock,
	leadTime time.Duration,
	log *logger.Logger,
) *Checker {
	return &Checker{
		bookings: bookings,
		claims:   claims,
		clock:    clock,
		leadTime: leadTime,
		now:      time.Now,
		log:      log,
	}
}

// SetNow replaces the time source used for the lead-time rule.
func (c *Checker) SetNow(now func() time.Time) {
	c.now = now
}

func (c *Checker) Clock() slot.Clock {
	return c.clock
}

// OutsideLeadTime reports whether the slot starts at least the lead time from now.
func (c *Checker) OutsideLeadTime(date, tod string) (bool, error) {
	start, err := c.clock.Start(date, tod)
	if err != nil {
		return false, err
	}
	return start.Sub(c.now()) >= c.leadTime, nil
}

// IsSlotFree reports whether a booking other than excludeID occupies the
// slot. A confirmed booking always occupies it; a pending one only while it
// holds the slot claim.
func (c *Checker) IsSlotFree(ctx context.Context, resourceID, date, tod, excludeID string) (bool, error) {
	ok, err := c.OutsideLeadTime(date, tod)
	if err != nil || !ok {
		return false, err
	}

	bookings, err := c.bookings.Find(ctx, repository.Query{
		ResourceID: resourceID,
		Date:       date,
		Time:       tod,
		Statuses:   activeStatuses,
	})
	if err != nil {
		return false, fmt.Errorf("failed to query slot: %w", err)
	}

	holder, holderLoaded := "", false
	for _, b := range bookings {
		if b.ID == excludeID {
			continue
		}
		if b.Status == model.StatusConfirmed {
			return false, nil
		}
		if !holderLoaded {
			holder, err = c.claims.Holder(ctx, slot.Key(resourceID, date, tod))
			if err != nil {
				return false, err
			}
			holderLoaded = true
		}
		if holder == b.ID {
			return false, nil
		}
	}
	return true, nil
}

// ClaimSlot makes booking the owner of its slot claim. Claims held by a
// booking that no longer occupies the slot are taken over. It reports false
// when an active booking holds the slot.
func (c *Checker) ClaimSlot(ctx context.Context, booking *model.Booking) (bool, error) {
	key := booking.SlotKey()

	for attempt := 0; attempt < claimAttempts; attempt++ {
		err := c.claims.Claim(ctx, key, booking.ID)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, bookingserrors.ErrSlotTaken) {
			return false, err
		}

		claim, err := c.claims.Get(ctx, key)
		if err != nil {
			return false, err
		}
		if claim == nil {
			continue
		}

		stale, err := c.isStale(ctx, claim)
		if err != nil || !stale {
			return false, err
		}

		taken, err := c.claims.Takeover(ctx, key, claim.BookingID, booking.ID)
		if err != nil {
			return false, err
		}
		if taken {
			c.log.Info("Took over stale slot claim",
				"slot", key,
				"booking_id", booking.ID,
				"previous_holder", claim.BookingID,
			)
			return true, nil
		}
	}
	return false, nil
}

// isStale reports whether the claim's holder no longer occupies the slot.
// A missing holder is only stale once the claim is older than claimGrace.
func (c *Checker) isStale(ctx context.Context, claim *model.SlotClaim) (bool, error) {
	holder, err := c.bookings.FindByID(ctx, claim.BookingID)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrInvalidID) {
			return true, nil
		}
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return c.now().Sub(claim.ClaimedAt) > claimGrace, nil
		}
		return false, err
	}
	return !holder.IsActive() || holder.SlotKey() != claim.ID, nil
}

// ReleaseSlot drops the booking's claim on its slot if it holds it.
func (c *Checker) ReleaseSlot(ctx context.Context, booking *model.Booking) error {
	return c.claims.Release(ctx, booking.SlotKey(), booking.ID)
}

// Day lists the hourly slots between open and close with their occupancy.
func (c *Checker) Day(ctx context.Context, resourceID, date string, open, close int) (*model.DayAvailability, error) {
	if !slot.ValidDate(date) {
		return nil, fmt.Errorf("invalid date %q", date)
	}

	bookings, err := c.bookings.Find(ctx, repository.Query{
		ResourceID: resourceID,
		Date:       date,
		Statuses:   activeStatuses,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query day: %w", err)
	}

	byTime := make(map[string]*model.Booking, len(bookings))
	for _, b := range bookings {
		if existing, ok := byTime[b.Time]; ok && existing.Status == model.StatusConfirmed {
			continue
		}
		byTime[b.Time] = b
	}

	day := &model.DayAvailability{ResourceID: resourceID, Date: date}
	for _, tod := range slot.Hours(open, close) {
		s := model.SlotAvailability{Time: tod}

		if b, ok := byTime[tod]; ok {
			s.Status = b.Status
			s.BookingID = b.ID
			s.IsClass = b.IsClass
			if b.IsClass {
				s.ClassName = b.ClassName
				s.Spots = max(b.MaxParticipants-b.ParticipantCount, 0)
			}
		} else if ok, _ := c.OutsideLeadTime(date, tod); ok {
			s.Available = true
		}
		day.Slots = append(day.Slots, s)
	}
	return day, nil
}
