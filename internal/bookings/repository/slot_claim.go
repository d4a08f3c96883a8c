package repository

import (
	"context"
	"errors"
	"fmt"
	bookingserrors "prayerroom/internal/bookings/errors"
	"prayerroom/pkg/config"
	"prayerroom/pkg/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type mongoSlotClaimRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoSlotClaimRepository(cfg *config.Config) SlotClaimRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoSlotClaimRepository{
		cfg:        cfg,
		collection: db.Collection(SlotClaimsCollectionName),
	}
}

func (r *mongoSlotClaimRepository) Claim(ctx context.Context, key, bookingID string) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	claim := model.SlotClaim{
		ID:        key,
		BookingID: bookingID,
		ClaimedAt: time.Now().UTC(),
	}
	_, err := r.collection.InsertOne(ctx, claim)
	if err == nil {
		return nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to claim slot: %w", err)
	}

	holder, err := r.Holder(ctx, key)
	if err != nil {
		return err
	}
	if holder == bookingID {
		return nil
	}
	return bookingserrors.ErrSlotTaken
}

func (r *mongoSlotClaimRepository) Holder(ctx context.Context, key string) (string, error) {
	claim, err := r.Get(ctx, key)
	if err != nil || claim == nil {
		return "", err
	}
	return claim.BookingID, nil
}

func (r *mongoSlotClaimRepository) Get(ctx context.Context, key string) (*model.SlotClaim, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var claim model.SlotClaim
	err := r.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&claim)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read slot claim: %w", err)
	}
	return &claim, nil
}

func (r *mongoSlotClaimRepository) Takeover(ctx context.Context, key, staleHolder, bookingID string) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": key, "booking_id": staleHolder},
		bson.M{"$set": bson.M{"booking_id": bookingID, "claimed_at": time.Now().UTC()}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to take over slot claim: %w", err)
	}
	return result.ModifiedCount == 1, nil
}

func (r *mongoSlotClaimRepository) Release(ctx context.Context, key, bookingID string) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": key, "booking_id": bookingID}); err != nil {
		return fmt.Errorf("failed to release slot claim: %w", err)
	}
	return nil
}
