package service

import (
	"context"
	"errors"
	"fmt"
	"prayerroom/internal/bookings/cache"
	bookingserrors "prayerroom/internal/bookings/errors"
	"prayerroom/internal/bookings/events"
	"prayerroom/internal/bookings/repository"
	"prayerroom/internal/bookings/validator"
	mongotx "prayerroom/pkg/db/mongo"
	"prayerroom/pkg/config"
	apperrors "prayerroom/pkg/errors"
	"prayerroom/pkg/model"
	"prayerroom/pkg/sanitizer"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const MessageSlotTaken = "Time slot is no longer available"

type BookingService interface {
	Create(ctx context.Context, booking *model.Booking) error
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	List(ctx context.Context, resourceID, date string) ([]*model.Booking, bool, error)
	Availability(ctx context.Context, resourceID, date string) (*model.DayAvailability, error)
	Update(ctx context.Context, id string, updates *model.BookingUpdate) (*model.Booking, error)
	Cancel(ctx context.Context, id string) (*model.Booking, error)
	Delete(ctx context.Context, id string) error
	JoinClass(ctx context.Context, id, name string) (*model.Booking, error)
	Subscribe(filter events.Filter, onChange func(events.ChangeEvent)) func()
}

// Store is the booking store the service writes through.
type Store interface {
	Create(ctx context.Context, booking *model.Booking) error
	CreateInTx(ctx context.Context, booking *model.Booking, before mongotx.TransactionFunc) error
	Get(ctx context.Context, id string) (*model.Booking, error)
	Query(ctx context.Context, q repository.Query) ([]*model.Booking, error)
	Update(ctx context.Context, id string, patch *model.BookingPatch) (*model.Booking, error)
	Delete(ctx context.Context, id string) (*model.Booking, error)
	AddParticipant(ctx context.Context, id, name string) (*model.Booking, error)
	Subscribe(filter events.Filter, onChange func(events.ChangeEvent)) func()
}

type Checker interface {
	OutsideLeadTime(date, tod string) (bool, error)
	IsSlotFree(ctx context.Context, resourceID, date, tod, excludeID string) (bool, error)
	ClaimSlot(ctx context.Context, booking *model.Booking) (bool, error)
	Day(ctx context.Context, resourceID, date string, open, close int) (*model.DayAvailability, error)
}

type bookingService struct {
	store     Store
	checker   Checker
	cache     *cache.Cache
	validator *validator.BookingValidator
	cfg       *config.Config
}

func NewBookingService(
	store Store,
	checker Checker,
	cache *cache.Cache,
	validator *validator.BookingValidator,
	cfg *config.Config,
) BookingService {
	return &bookingService{
		store:     store,
		checker:   checker,
		cache:     cache,
		validator: validator,
		cfg:       cfg,
	}
}

// Create stores a new booking. Pending bookings are settled asynchronously
// by the lifecycle orchestrator; a booking created as confirmed claims its
// slot here and never gets a door code.
func (s *bookingService) Create(ctx context.Context, booking *model.Booking) error {
	s.sanitize(booking)
	s.applyDefaults(booking)
	if err := s.validate(booking); err != nil {
		return err
	}
	if err := s.checkLeadTime(booking.Date, booking.Time); err != nil {
		return err
	}

	var err error
	if booking.Status == model.StatusConfirmed {
		booking.ID = primitive.NewObjectID().Hex()
		err = s.store.CreateInTx(ctx, booking, func(txCtx context.Context) error {
			return s.claimNow(txCtx, booking)
		})
	} else {
		err = s.store.Create(ctx, booking)
	}
	if err != nil {
		s.cfg.Log.Error("Failed to create booking", "error", err)
		return s.mapError(err, booking.ID, "Failed to create booking")
	}

	s.cfg.Log.Info("Booking created successfully",
		"id", booking.ID,
		"resource_id", booking.ResourceID,
		"date", booking.Date,
		"time", booking.Time,
		"status", booking.Status,
		"is_class", booking.IsClass,
	)
	return nil
}

func (s *bookingService) claimNow(ctx context.Context, booking *model.Booking) error {
	free, err := s.checker.IsSlotFree(ctx, booking.ResourceID, booking.Date, booking.Time, booking.ID)
	if err != nil {
		return err
	}
	if !free {
		return apperrors.SlotConflict(MessageSlotTaken)
	}
	claimed, err := s.checker.ClaimSlot(ctx, booking)
	if err != nil {
		return err
	}
	if !claimed {
		return apperrors.SlotConflict(MessageSlotTaken)
	}
	return nil
}

func (s *bookingService) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	booking, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.mapError(err, id, "Failed to retrieve booking")
	}
	return booking, nil
}

// List returns every booking of a day. stale is set when the store could
// not be reached and a cached copy was served.
func (s *bookingService) List(ctx context.Context, resourceID, date string) ([]*model.Booking, bool, error) {
	bookings, stale, err := cache.ReadThrough(ctx, s.cache, cache.DayKey(resourceID, date), func(ctx context.Context) ([]*model.Booking, error) {
		return s.store.Query(ctx, repository.Query{ResourceID: resourceID, Date: date})
	})
	if err != nil {
		s.cfg.Log.Error("Failed to list bookings", "resource_id", resourceID, "date", date, "error", err)
		return nil, false, s.mapError(err, "", "Failed to retrieve bookings")
	}
	if bookings == nil {
		bookings = []*model.Booking{}
	}
	return bookings, stale, nil
}

func (s *bookingService) Availability(ctx context.Context, resourceID, date string) (*model.DayAvailability, error) {
	day, stale, err := cache.ReadThrough(ctx, s.cache, cache.AvailabilityKey(resourceID, date), func(ctx context.Context) (*model.DayAvailability, error) {
		return s.checker.Day(ctx, resourceID, date, s.cfg.OpenHour, s.cfg.CloseHour)
	})
	if err != nil {
		s.cfg.Log.Error("Failed to compute availability", "resource_id", resourceID, "date", date, "error", err)
		return nil, s.mapError(err, "", "Failed to compute availability")
	}
	day.Stale = stale
	return day, nil
}

// Update applies user edits. A reschedule is checked against the target
// slot before writing; the orchestrator re-checks it atomically and moves
// the door code.
func (s *bookingService) Update(ctx context.Context, id string, updates *model.BookingUpdate) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}
	s.sanitizeUpdate(updates)
	if err := s.validator.ValidateUpdate(updates); err != nil {
		s.cfg.Log.Warn("Booking update validation failed", "id", id, "error", err)
		return nil, apperrors.Validation("Invalid update input", map[string]any{"error": err.Error()})
	}

	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.mapError(err, id, "Failed to check booking existence")
	}
	if updates.Status == model.StatusCancelled {
		return s.cancel(ctx, existing)
	}
	if existing.Status == model.StatusCancelled {
		return nil, apperrors.Conflict("Cancelled bookings cannot be changed")
	}

	if updates.MaxParticipants != nil {
		if !existing.IsClass {
			return nil, apperrors.NotAClass(id)
		}
		if *updates.MaxParticipants < existing.ParticipantCount {
			return nil, apperrors.Validation("max_participants is below the current participant count", map[string]any{
				"participant_count": existing.ParticipantCount,
			})
		}
	}

	patch := updates.Patch()
	if patch.IsEmpty() {
		return existing, nil
	}

	target := existing.Clone()
	patch.Apply(target)
	if !target.SameSlot(existing) {
		if err := s.checkLeadTime(target.Date, target.Time); err != nil {
			return nil, err
		}
		free, err := s.checker.IsSlotFree(ctx, target.ResourceID, target.Date, target.Time, id)
		if err != nil {
			return nil, s.mapError(err, id, "Failed to check slot availability")
		}
		if !free {
			return nil, apperrors.SlotConflict(MessageSlotTaken)
		}
	}

	updated, err := s.store.Update(ctx, id, patch)
	if err != nil {
		s.cfg.Log.Error("Failed to update booking", "id", id, "error", err)
		return nil, s.mapError(err, id, "Failed to update booking")
	}

	s.cfg.Log.Info("Booking updated successfully", "id", id, "rescheduled", !target.SameSlot(existing))
	return updated, nil
}

func (s *bookingService) Cancel(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.mapError(err, id, "Failed to check booking existence")
	}
	return s.cancel(ctx, existing)
}

// cancel is idempotent: cancelling a cancelled booking returns it unchanged.
func (s *bookingService) cancel(ctx context.Context, existing *model.Booking) (*model.Booking, error) {
	if existing.Status == model.StatusCancelled {
		return existing, nil
	}

	status := model.StatusCancelled
	updated, err := s.store.Update(ctx, existing.ID, &model.BookingPatch{Status: &status})
	if err != nil {
		s.cfg.Log.Error("Failed to cancel booking", "id", existing.ID, "error", err)
		return nil, s.mapError(err, existing.ID, "Failed to cancel booking")
	}

	s.cfg.Log.Info("Booking cancelled", "id", existing.ID, "previous_status", existing.Status)
	return updated, nil
}

func (s *bookingService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return apperrors.InvalidInput("Booking ID cannot be empty")
	}

	if _, err := s.store.Delete(ctx, id); err != nil {
		return s.mapError(err, id, "Failed to delete booking")
	}

	s.cfg.Log.Info("Booking deleted successfully", "id", id)
	return nil
}

// JoinClass adds a participant to an active class. Capacity is enforced by
// the store's conditional write.
func (s *bookingService) JoinClass(ctx context.Context, id, name string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}
	name = sanitizer.TrimAndNormalize(name)
	if name == "" || len(name) > 100 {
		return nil, apperrors.Validation("Invalid participant", map[string]any{"name": "name is required and must be at most 100 characters"})
	}

	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.mapError(err, id, "Failed to check booking existence")
	}
	if !existing.IsClass {
		return nil, apperrors.NotAClass(id)
	}
	if !existing.IsActive() {
		return nil, apperrors.Conflict(fmt.Sprintf("Class is %s and cannot be joined", existing.Status))
	}
	if slices.Contains(existing.Participants, name) {
		return existing, nil
	}

	updated, err := s.store.AddParticipant(ctx, id, name)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrClassFull) {
			return nil, apperrors.ClassFull(id, existing.MaxParticipants)
		}
		return nil, s.mapError(err, id, "Failed to join class")
	}

	s.cfg.Log.Info("Participant joined class",
		"id", id,
		"participant_count", updated.ParticipantCount,
		"max_participants", updated.MaxParticipants,
	)
	return updated, nil
}

func (s *bookingService) Subscribe(filter events.Filter, onChange func(events.ChangeEvent)) func() {
	return s.store.Subscribe(filter, onChange)
}

// --- Helpers ---

func (s *bookingService) applyDefaults(b *model.Booking) {
	b.ID = ""
	b.Credential = nil
	b.Error = ""
	if b.ResourceID == "" {
		b.ResourceID = s.cfg.DefaultResourceID
	}
	if b.Status == "" {
		b.Status = model.StatusPending
	}
	// Slots have one fixed length; the door code window is derived from it.
	b.DurationMinutes = int(s.cfg.SlotDuration / time.Minute)
	if b.IsClass {
		// The host always takes the first place in the class.
		participants := []string{b.HostName}
		for _, p := range b.Participants {
			if p != b.HostName && !slices.Contains(participants, p) {
				participants = append(participants, p)
			}
		}
		b.Participants = participants
		b.ParticipantCount = len(participants)
	} else {
		b.Participants = nil
		b.ParticipantCount = 0
	}
}

func (s *bookingService) sanitize(b *model.Booking) {
	b.ResourceID = sanitizer.TrimAndNormalize(b.ResourceID)
	b.Name = sanitizer.TrimAndNormalize(b.Name)
	b.Email = sanitizer.NormalizeEmail(b.Email)
	b.Phone = normalizePhone(b.Phone)
	b.ClassName = sanitizer.TrimAndNormalize(b.ClassName)
	b.HostName = sanitizer.TrimAndNormalize(b.HostName)
	b.HostEmail = sanitizer.NormalizeEmail(b.HostEmail)
	for i, p := range b.Participants {
		b.Participants[i] = sanitizer.TrimAndNormalize(p)
	}
}

func (s *bookingService) sanitizeUpdate(u *model.BookingUpdate) {
	u.Name = sanitizer.TrimAndNormalize(u.Name)
	u.Email = sanitizer.NormalizeEmail(u.Email)
	u.Phone = normalizePhone(u.Phone)
	u.ClassName = sanitizer.TrimAndNormalize(u.ClassName)
}

// normalizePhone keeps unparseable input so the validator rejects it
// instead of silently dropping it.
func normalizePhone(phone string) string {
	if normalized := sanitizer.NormalizePhone(phone); normalized != "" {
		return normalized
	}
	return sanitizer.TrimAndNormalize(phone)
}

func (s *bookingService) validate(booking *model.Booking) error {
	if err := s.validator.Validate(booking); err != nil {
		s.cfg.Log.Warn("Booking validation failed", "error", err)
		return apperrors.Validation("Booking validation failed", map[string]any{"error": err.Error()})
	}
	return nil
}

func (s *bookingService) checkLeadTime(date, tod string) error {
	ok, err := s.checker.OutsideLeadTime(date, tod)
	if err != nil {
		return apperrors.InvalidInput(err.Error())
	}
	if !ok {
		return apperrors.Validation("Booking starts too soon", map[string]any{
			"lead_time": s.cfg.BookingLeadTime.String(),
		})
	}
	return nil
}

func (s *bookingService) mapError(err error, id, message string) error {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, bookingserrors.ErrNotFound):
		return apperrors.NotFoundWithID("Booking", id)
	case errors.Is(err, bookingserrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid booking ID format")
	case errors.Is(err, bookingserrors.ErrSlotTaken):
		return apperrors.SlotConflict(MessageSlotTaken)
	case errors.Is(err, bookingserrors.ErrNotAClass):
		return apperrors.NotAClass(id)
	case errors.Is(err, bookingserrors.ErrClassFull):
		return apperrors.ClassFull(id, 0)
	case errors.Is(err, context.DeadlineExceeded), mongo.IsTimeout(err), mongo.IsNetworkError(err):
		return apperrors.StoreUnavailable(err)
	default:
		return apperrors.Internal(message, err)
	}
}
