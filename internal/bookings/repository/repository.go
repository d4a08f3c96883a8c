package repository

import (
	"context"
	mongotx "prayerroom/pkg/db/mongo"
	"prayerroom/pkg/model"
	"time"
)

const (
	CollectionName           = "Bookings"
	SlotClaimsCollectionName = "Slot_claims"
)

// Query selects bookings. Zero-valued fields do not filter.
type Query struct {
	ResourceID    string
	Date          string
	Time          string
	Statuses      []string
	UpdatedBefore time.Time
	Limit         int
}

type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) error
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	Find(ctx context.Context, q Query) ([]*model.Booking, error)
	Count(ctx context.Context, q Query) (int64, error)
	// Update applies patch atomically and returns the record before and after the write.
	Update(ctx context.Context, id string, patch *model.BookingPatch) (*model.Booking, *model.Booking, error)
	// Delete removes the record and returns it as it was.
	Delete(ctx context.Context, id string) (*model.Booking, error)
	// AddParticipant appends name only while the class is below capacity.
	AddParticipant(ctx context.Context, id, name string) (*model.Booking, *model.Booking, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

// SlotClaimRepository owns the unique per-slot claim documents.
type SlotClaimRepository interface {
	// Claim returns ErrSlotTaken when another booking holds the slot.
	// Claiming a slot the booking already holds succeeds.
	Claim(ctx context.Context, key, bookingID string) error
	// Holder returns the booking id holding key, or "" when unclaimed.
	Holder(ctx context.Context, key string) (string, error)
	// Get returns the claim on key, or nil when unclaimed.
	Get(ctx context.Context, key string) (*model.SlotClaim, error)
	// Takeover moves a claim from staleHolder to bookingID. It reports false
	// when the claim is no longer held by staleHolder.
	Takeover(ctx context.Context, key, staleHolder, bookingID string) (bool, error)
	// Release deletes the claim only if bookingID holds it.
	Release(ctx context.Context, key, bookingID string) error
}
