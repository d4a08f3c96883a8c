package events

import (
	"context"
	"fmt"
	"prayerroom/pkg/kafka"
)

const schemaVersion = "1"

type messagePublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// KafkaPublisher writes change events to a topic keyed by booking id, so
// every event for one booking lands on the same partition in order.
type KafkaPublisher struct {
	producer messagePublisher
	source   string
}

func NewKafkaPublisher(producer messagePublisher, source string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, source: source}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event ChangeEvent) error {
	msg, err := kafka.NewMessage().
		WithKey(event.BookingID).
		WithValue(event).
		WithEventID(event.ID).
		WithEventType(string(event.Type)).
		WithSchemaVersion(schemaVersion).
		WithSource(p.source).
		WithTimestamp(event.OccurredAt).
		Build()
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, msg)
}

// KafkaHandler decodes change events and hands them to fn. Undecodable
// payloads are permanent failures and go to the dead letter topic; errors
// from fn are retried.
func KafkaHandler(fn func(ctx context.Context, event ChangeEvent) error) kafka.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		var event ChangeEvent
		if err := msg.DecodeValue(&event); err != nil {
			return kafka.NewPermanentError("undecodable change event", err)
		}
		if event.BookingID == "" {
			return kafka.NewPermanentError(fmt.Sprintf("change event %s has no booking id", msg.GetEventID()), nil)
		}
		if err := fn(ctx, event); err != nil {
			return kafka.NewTransientError("change event handler failed", err)
		}
		return nil
	}
}
