// Package events carries booking change events from the store to the
// lifecycle orchestrator and to live subscribers.
package events

import (
	"context"
	"errors"
	"prayerroom/pkg/model"
	"time"

	"github.com/google/uuid"
)

type ChangeType string

const (
	Created ChangeType = "booking.created"
	Updated ChangeType = "booking.updated"
	Deleted ChangeType = "booking.deleted"
)

// ChangeEvent describes one committed write. Before is nil for creations,
// After is nil for deletions.
type ChangeEvent struct {
	ID         string         `json:"id"`
	Type       ChangeType     `json:"type"`
	BookingID  string         `json:"booking_id"`
	Before     *model.Booking `json:"before,omitempty"`
	After      *model.Booking `json:"after,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func newEvent(t ChangeType, bookingID string, before, after *model.Booking) ChangeEvent {
	return ChangeEvent{
		ID:         uuid.New().String(),
		Type:       t,
		BookingID:  bookingID,
		Before:     before.Clone(),
		After:      after.Clone(),
		OccurredAt: time.Now().UTC(),
	}
}

func NewCreated(after *model.Booking) ChangeEvent {
	return newEvent(Created, after.ID, nil, after)
}

func NewUpdated(before, after *model.Booking) ChangeEvent {
	return newEvent(Updated, after.ID, before, after)
}

func NewDeleted(before *model.Booking) ChangeEvent {
	return newEvent(Deleted, before.ID, before, nil)
}

// Current is the latest known state of the booking.
func (e ChangeEvent) Current() *model.Booking {
	if e.After != nil {
		return e.After
	}
	return e.Before
}

type Publisher interface {
	Publish(ctx context.Context, event ChangeEvent) error
}

type PublisherFunc func(ctx context.Context, event ChangeEvent) error

func (f PublisherFunc) Publish(ctx context.Context, event ChangeEvent) error {
	return f(ctx, event)
}

// Fanout publishes to every publisher in order, even when one fails.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event ChangeEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
