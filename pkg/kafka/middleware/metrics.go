package kafka_middleware

import (
	"context"
	"sync"
	"time"

	"prayerroom/pkg/kafka"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	messagesPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "prayerroom",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Kafka messages published, by topic and result.",
		},
		[]string{"topic", "result"},
	)

	messagesConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "prayerroom",
			Subsystem: "kafka",
			Name:      "messages_consumed_total",
			Help:      "Kafka messages handled, by topic and result.",
		},
		[]string{"topic", "result"},
	)

	handleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "prayerroom",
			Subsystem: "kafka",
			Name:      "operation_duration_seconds",
			Help:      "Duration of Kafka publish and handle operations.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"topic", "operation"},
	)
)

// Register registers the Kafka collectors. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(messagesPublished, messagesConsumed, handleDuration)
	})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func MetricsProducerMiddleware() kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next func(ctx context.Context, msg kafka.Message) error) error {
		start := time.Now()
		err := next(ctx, msg)

		handleDuration.WithLabelValues(msg.Topic, "publish").Observe(time.Since(start).Seconds())
		messagesPublished.WithLabelValues(msg.Topic, result(err)).Inc()
		return err
	}
}

func MetricsConsumerMiddleware() kafka.ConsumerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		start := time.Now()
		err := next(ctx, msg)

		handleDuration.WithLabelValues(msg.Topic, "consume").Observe(time.Since(start).Seconds())
		messagesConsumed.WithLabelValues(msg.Topic, result(err)).Inc()
		return err
	}
}
