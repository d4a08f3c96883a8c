// Package store is the authoritative booking store. Every committed write is
// followed by a change event.
package store

import (
	"context"
	"prayerroom/internal/bookings/events"
	"prayerroom/internal/bookings/repository"
	mongotx "prayerroom/pkg/db/mongo"
	"prayerroom/pkg/logger"
	"prayerroom/pkg/model"
)

type Store struct {
	repo      repository.BookingRepository
	publisher events.Publisher
	hub       *events.Hub
	log       *logger.Logger
}

// New builds a store that publishes to publisher and serves subscriptions
// from hub. The hub must receive the same events, directly or through a
// broker.
func New(repo repository.BookingRepository, publisher events.Publisher, hub *events.Hub, log *logger.Logger) *Store {
	return &Store{
		repo:      repo,
		publisher: publisher,
		hub:       hub,
		log:       log,
	}
}

func (s *Store) Create(ctx context.Context, booking *model.Booking) error {
	if err := s.repo.Create(ctx, booking); err != nil {
		return err
	}
	s.emit(ctx, events.NewCreated(booking))
	return nil
}

// CreateInTx creates the booking inside fn's transaction and emits the event
// only once the transaction commits.
func (s *Store) CreateInTx(ctx context.Context, booking *model.Booking, before mongotx.TransactionFunc) error {
	err := s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		if err := before(txCtx); err != nil {
			return err
		}
		return s.repo.Create(txCtx, booking)
	})
	if err != nil {
		return err
	}
	s.emit(ctx, events.NewCreated(booking))
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*model.Booking, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Store) Query(ctx context.Context, q repository.Query) ([]*model.Booking, error) {
	return s.repo.Find(ctx, q)
}

func (s *Store) Count(ctx context.Context, q repository.Query) (int64, error) {
	return s.repo.Count(ctx, q)
}

// Update applies a partial write and returns the updated record.
func (s *Store) Update(ctx context.Context, id string, patch *model.BookingPatch) (*model.Booking, error) {
	before, after, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, events.NewUpdated(before, after))
	return after, nil
}

// Delete removes the record and returns it as it was.
func (s *Store) Delete(ctx context.Context, id string) (*model.Booking, error) {
	before, err := s.repo.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, events.NewDeleted(before))
	return before, nil
}

func (s *Store) AddParticipant(ctx context.Context, id, name string) (*model.Booking, error) {
	before, after, err := s.repo.AddParticipant(ctx, id, name)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, events.NewUpdated(before, after))
	return after, nil
}

// Subscribe calls onChange for every change matching filter until the
// returned function is called.
func (s *Store) Subscribe(filter events.Filter, onChange func(events.ChangeEvent)) func() {
	return s.hub.Subscribe(filter, onChange)
}

// emit never fails the write: the record is already committed and stuck
// pending bookings are re-dispatched by the sweeper.
func (s *Store) emit(ctx context.Context, event events.ChangeEvent) {
	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.log.Error("Failed to publish booking change event",
			"event_id", event.ID,
			"event_type", event.Type,
			"booking_id", event.BookingID,
			"error", err,
		)
	}
}
