package kafka_middleware

import (
	"context"
	"errors"
	"testing"

	"prayerroom/pkg/kafka"
	"prayerroom/pkg/logger"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMessage(t *testing.T, topic string) kafka.Message {
	t.Helper()
	msg, err := kafka.NewMessage().WithKey("b1").WithValue(map[string]string{"a": "b"}).WithEventType("booking.created").Build()
	require.NoError(t, err)
	msg.Topic = topic
	return msg
}

func TestMetricsConsumerMiddleware(t *testing.T) {
	Register()
	Register()

	mw := MetricsConsumerMiddleware()
	msg := testMessage(t, "metrics-consume")

	require.NoError(t, mw(context.Background(), msg, func(context.Context, kafka.Message) error { return nil }))
	require.Error(t, mw(context.Background(), msg, func(context.Context, kafka.Message) error { return errors.New("boom") }))

	assert.Equal(t, 1.0, testutil.ToFloat64(messagesConsumed.WithLabelValues("metrics-consume", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(messagesConsumed.WithLabelValues("metrics-consume", "error")))
}

func TestMetricsProducerMiddleware(t *testing.T) {
	mw := MetricsProducerMiddleware()
	msg := testMessage(t, "metrics-publish")

	require.NoError(t, mw(context.Background(), msg, func(context.Context, kafka.Message) error { return nil }))
	assert.Equal(t, 1.0, testutil.ToFloat64(messagesPublished.WithLabelValues("metrics-publish", "ok")))
}

func TestLoggingMiddlewarePassesErrorThrough(t *testing.T) {
	boom := errors.New("boom")
	log := logger.Discard()

	err := LoggingConsumerMiddleware(log)(context.Background(), testMessage(t, "t"), func(context.Context, kafka.Message) error { return boom })
	assert.ErrorIs(t, err, boom)

	err = LoggingProducerMiddleware(log)(context.Background(), testMessage(t, "t"), func(context.Context, kafka.Message) error { return nil })
	assert.NoError(t, err)
}
