package repository

import (
	"context"
	bookingserrors "prayerroom/internal/bookings/errors"
	mongotx "prayerroom/pkg/db/mongo"
	"prayerroom/pkg/model"
	"slices"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryBookingRepository is a BookingRepository held in process memory.
// Records are copied on the way in and out.
type MemoryBookingRepository struct {
	mu       sync.RWMutex
	bookings map[string]*model.Booking
	now      func() time.Time
}

func NewMemoryBookingRepository() *MemoryBookingRepository {
	return &MemoryBookingRepository{
		bookings: make(map[string]*model.Booking),
		now:      time.Now,
	}
}

func (r *MemoryBookingRepository) Create(_ context.Context, booking *model.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if booking.ID == "" {
		booking.ID = primitive.NewObjectID().Hex()
	}
	now := r.now().UTC()
	booking.CreatedAt = now
	booking.UpdatedAt = now
	r.bookings[booking.ID] = booking.Clone()
	return nil
}

func (r *MemoryBookingRepository) FindByID(_ context.Context, id string) (*model.Booking, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	booking, ok := r.bookings[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	return booking.Clone(), nil
}

func (r *MemoryBookingRepository) Find(_ context.Context, q Query) ([]*model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*model.Booking
	for _, b := range r.bookings {
		if matches(b, q) {
			result = append(result, b.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

func (r *MemoryBookingRepository) Count(ctx context.Context, q Query) (int64, error) {
	q.Limit = 0
	bookings, err := r.Find(ctx, q)
	return int64(len(bookings)), err
}

func matches(b *model.Booking, q Query) bool {
	if q.ResourceID != "" && b.ResourceID != q.ResourceID {
		return false
	}
	if q.Date != "" && b.Date != q.Date {
		return false
	}
	if q.Time != "" && b.Time != q.Time {
		return false
	}
	if len(q.Statuses) > 0 && !slices.Contains(q.Statuses, b.Status) {
		return false
	}
	if !q.UpdatedBefore.IsZero() && !b.UpdatedAt.Before(q.UpdatedBefore) {
		return false
	}
	return true
}

func (r *MemoryBookingRepository) Update(_ context.Context, id string, patch *model.BookingPatch) (*model.Booking, *model.Booking, error) {
	if err := validateID(id); err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.bookings[id]
	if !ok {
		return nil, nil, bookingserrors.ErrNotFound
	}
	if patch.ExpectStatus != "" && current.Status != patch.ExpectStatus {
		return nil, nil, bookingserrors.ErrStatusChanged
	}

	before := current.Clone()
	patch.Apply(current)
	current.UpdatedAt = r.now().UTC()
	return before, current.Clone(), nil
}

func (r *MemoryBookingRepository) Delete(_ context.Context, id string) (*model.Booking, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	booking, ok := r.bookings[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	delete(r.bookings, id)
	return booking, nil
}

func (r *MemoryBookingRepository) AddParticipant(_ context.Context, id, name string) (*model.Booking, *model.Booking, error) {
	if err := validateID(id); err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.bookings[id]
	if !ok {
		return nil, nil, bookingserrors.ErrNotFound
	}
	if !current.IsClass {
		return nil, nil, bookingserrors.ErrNotAClass
	}
	if current.ParticipantCount >= current.MaxParticipants {
		return nil, nil, bookingserrors.ErrClassFull
	}

	before := current.Clone()
	current.Participants = append(current.Participants, name)
	current.ParticipantCount++
	current.UpdatedAt = r.now().UTC()
	return before, current.Clone(), nil
}

func (r *MemoryBookingRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return mongotx.NoTransaction{}.ExecuteTransaction(ctx, fn)
}

// SetClock overrides the time source used for created_at and updated_at.
func (r *MemoryBookingRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// MemorySlotClaimRepository is a SlotClaimRepository held in process memory.
type MemorySlotClaimRepository struct {
	mu     sync.Mutex
	claims map[string]model.SlotClaim
	now    func() time.Time
}

func NewMemorySlotClaimRepository() *MemorySlotClaimRepository {
	return &MemorySlotClaimRepository{
		claims: make(map[string]model.SlotClaim),
		now:    time.Now,
	}
}

func (r *MemorySlotClaimRepository) Claim(_ context.Context, key, bookingID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	claim, ok := r.claims[key]
	if ok {
		if claim.BookingID != bookingID {
			return bookingserrors.ErrSlotTaken
		}
		return nil
	}
	r.claims[key] = model.SlotClaim{ID: key, BookingID: bookingID, ClaimedAt: r.now().UTC()}
	return nil
}

func (r *MemorySlotClaimRepository) Holder(_ context.Context, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.claims[key].BookingID, nil
}

func (r *MemorySlotClaimRepository) Get(_ context.Context, key string) (*model.SlotClaim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	claim, ok := r.claims[key]
	if !ok {
		return nil, nil
	}
	return &claim, nil
}

func (r *MemorySlotClaimRepository) Takeover(_ context.Context, key, staleHolder, bookingID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	claim, ok := r.claims[key]
	if !ok || claim.BookingID != staleHolder {
		return false, nil
	}
	r.claims[key] = model.SlotClaim{ID: key, BookingID: bookingID, ClaimedAt: r.now().UTC()}
	return true, nil
}

func (r *MemorySlotClaimRepository) Release(_ context.Context, key, bookingID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.claims[key].BookingID == bookingID {
		delete(r.claims, key)
	}
	return nil
}

// SetClock overrides the time source used for claimed_at.
func (r *MemorySlotClaimRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}
