package notifications

import (
	"context"
	"fmt"
	"prayerroom/pkg/config"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// MongoQueue appends to the Mail collection. Items are never updated here.
type MongoQueue struct {
	collection *mongo.Collection
	timeout    time.Duration
}

func NewMongoQueue(cfg *config.Config) *MongoQueue {
	return &MongoQueue{
		collection: cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Collection(CollectionName),
		timeout:    cfg.WriteTimeout,
	}
}

func (q *MongoQueue) Enqueue(ctx context.Context, n Notification) error {
	if n.To == "" {
		return ErrNoRecipient
	}

	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	n.CreatedAt = time.Now().UTC()
	if _, err := q.collection.InsertOne(ctx, n); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", n.Template.Name, err)
	}
	return nil
}
