package repository

import (
	"context"
	"errors"
	"fmt"
	bookingserrors "prayerroom/internal/bookings/errors"
	"prayerroom/pkg/config"
	mongotx "prayerroom/pkg/db/mongo"
	"prayerroom/pkg/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoBookingRepository struct {
	cfg        *config.Config
	db         *mongo.Database
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoBookingRepository{
		cfg:        cfg,
		db:         db,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// withTimeout wraps the context with a timeout if not already in a transaction.
// A SessionContext is returned unchanged with a no-op cancel, since wrapping it
// would detach the call from the transaction.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}

func validateID(id string) error {
	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}
	return nil
}

func (r *mongoBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if booking.ID == "" {
		booking.ID = primitive.NewObjectID().Hex()
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	booking.CreatedAt = now
	booking.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, booking); err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	if err := validateID(id); err != nil {
		return nil, err
	}

	var booking model.Booking
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}

	return &booking, nil
}

func (r *mongoBookingRepository) Find(ctx context.Context, q Query) ([]*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: 1}, {Key: "time", Value: 1}, {Key: "created_at", Value: 1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := r.collection.Find(ctx, buildFilter(q), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}

	return bookings, nil
}

func (r *mongoBookingRepository) Count(ctx context.Context, q Query) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, buildFilter(q))
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}

func buildFilter(q Query) bson.M {
	filter := bson.M{}
	if q.ResourceID != "" {
		filter["resource_id"] = q.ResourceID
	}
	if q.Date != "" {
		filter["date"] = q.Date
	}
	if q.Time != "" {
		filter["time"] = q.Time
	}
	if len(q.Statuses) > 0 {
		filter["status"] = bson.M{"$in": q.Statuses}
	}
	if !q.UpdatedBefore.IsZero() {
		filter["updated_at"] = bson.M{"$lt": q.UpdatedBefore}
	}
	return filter
}

func buildUpdate(patch *model.BookingPatch, now time.Time) bson.M {
	set := bson.M{"updated_at": now}
	unset := bson.M{}

	if patch.Date != nil {
		set["date"] = *patch.Date
	}
	if patch.Time != nil {
		set["time"] = *patch.Time
	}
	if patch.Status != nil {
		set["status"] = *patch.Status
	}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Email != nil {
		set["email"] = *patch.Email
	}
	if patch.Phone != nil {
		set["phone"] = *patch.Phone
	}
	if patch.ClassName != nil {
		set["class_name"] = *patch.ClassName
	}
	if patch.MaxParticipants != nil {
		set["max_participants"] = *patch.MaxParticipants
	}
	if patch.Error != nil {
		if *patch.Error == "" {
			unset["error"] = ""
		} else {
			set["error"] = *patch.Error
		}
	}
	if patch.ClearCredential {
		unset["credential"] = ""
	} else if patch.Credential != nil {
		set["credential"] = patch.Credential
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

func (r *mongoBookingRepository) Update(ctx context.Context, id string, patch *model.BookingPatch) (*model.Booking, *model.Booking, error) {
	if err := validateID(id); err != nil {
		return nil, nil, err
	}

	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	filter := bson.M{"_id": id}
	if patch.ExpectStatus != "" {
		filter["status"] = patch.ExpectStatus
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var before model.Booking
	err := r.collection.FindOneAndUpdate(ctx, filter, buildUpdate(patch, now), opts).Decode(&before)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil, r.classifyMiss(ctx, id, patch.ExpectStatus != "")
		}
		return nil, nil, fmt.Errorf("failed to update booking: %w", err)
	}

	after := before.Clone()
	patch.Apply(after)
	after.UpdatedAt = now
	return &before, after, nil
}

// classifyMiss explains why a conditional write matched nothing.
func (r *mongoBookingRepository) classifyMiss(ctx context.Context, id string, conditional bool) error {
	if !conditional {
		return bookingserrors.ErrNotFound
	}
	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return bookingserrors.ErrStatusChanged
}

func (r *mongoBookingRepository) Delete(ctx context.Context, id string) (*model.Booking, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	var before model.Booking
	err := r.collection.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&before)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to delete booking: %w", err)
	}

	return &before, nil
}

func (r *mongoBookingRepository) AddParticipant(ctx context.Context, id, name string) (*model.Booking, *model.Booking, error) {
	if err := validateID(id); err != nil {
		return nil, nil, err
	}

	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	filter := bson.M{
		"_id":      id,
		"is_class": true,
		"$expr":    bson.M{"$lt": bson.A{"$participant_count", "$max_participants"}},
	}
	update := bson.M{
		"$push": bson.M{"participants": name},
		"$inc":  bson.M{"participant_count": 1},
		"$set":  bson.M{"updated_at": now},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var before model.Booking
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&before)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil, r.classifyJoinMiss(ctx, id)
		}
		return nil, nil, fmt.Errorf("failed to add participant: %w", err)
	}

	after := before.Clone()
	after.Participants = append(after.Participants, name)
	after.ParticipantCount++
	after.UpdatedAt = now
	return &before, after, nil
}

func (r *mongoBookingRepository) classifyJoinMiss(ctx context.Context, id string) error {
	booking, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !booking.IsClass {
		return bookingserrors.ErrNotAClass
	}
	return bookingserrors.ErrClassFull
}

func (r *mongoBookingRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
