package main

import (
	"context"
	"prayerroom/internal/bookings/availability"
	"prayerroom/internal/bookings/events"
	"prayerroom/internal/bookings/lifecycle"
	"prayerroom/internal/bookings/repository"
	"prayerroom/internal/bookings/store"
	"prayerroom/internal/credentials"
	"prayerroom/internal/notifications"
	"prayerroom/pkg/app"
	"prayerroom/pkg/config"
	"prayerroom/pkg/kafka"
	kafka_config "prayerroom/pkg/kafka/config"
	kafka_middleware "prayerroom/pkg/kafka/middleware"
)

const ServiceName = "lifecycle"

// The lifecycle service consumes booking change events from Kafka and
// settles them: slot claims, door-code credentials and notifications. Only
// needed when the bookings API runs with EVENT_FEED=kafka.
func main() {
	cfg := config.Load(ServiceName)
	if cfg.EventFeed != config.EventFeedKafka {
		cfg.Log.Fatal("Lifecycle service requires EVENT_FEED=kafka", "event_feed", cfg.EventFeed)
	}
	cfg.SetMongo()

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log)
	kafka_middleware.Register()

	producer, err := kafka.NewProducer(kafkaCfg, cfg.BookingEventsTopic, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	producer.Use(kafka_middleware.MetricsProducerMiddleware())
	producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
	publisher := events.NewKafkaPublisher(producer, ServiceName)

	bookingRepo := repository.NewMongoBookingRepository(cfg)
	claimRepo := repository.NewMongoSlotClaimRepository(cfg)
	checker := availability.NewChecker(bookingRepo, claimRepo, cfg.Clock(), cfg.BookingLeadTime, cfg.Log)
	bookingStore := store.New(bookingRepo, publisher, events.NewHub(), cfg.Log)

	orchestrator := lifecycle.NewOrchestrator(
		bookingStore,
		checker,
		credentials.NewHTTPGateway(credentials.ConfigFrom(cfg), cfg.Log),
		notifications.NewMongoQueue(cfg),
		cfg.Clock(),
		cfg.Log,
	)
	dispatcher := lifecycle.NewDispatcher(orchestrator, cfg.DispatchWorkers, cfg.Log)

	// The offset is committed only after Dispatch returns, so a crash
	// mid-transition redelivers the event.
	consumer, err := kafka.NewConsumer(kafkaCfg, cfg.BookingEventsTopic, cfg.BookingEventsGroup, events.KafkaHandler(dispatcher.Dispatch), cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka consumer", "error", err)
	}
	consumer.Use(kafka_middleware.MetricsConsumerMiddleware())
	consumer.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
			cfg.Log.Fatal("Booking event consumer stopped", "error", err)
		}
	}()

	sweeper := lifecycle.NewSweeper(bookingStore, publisher, cfg.PendingSweepInterval, cfg.PendingStaleAfter, cfg.Log)
	go sweeper.Run(ctx)

	serverApp := app.NewApplication(cfg)
	serverApp.OnShutdown(cancel)
	serverApp.OnShutdown(func() {
		if err := consumer.Close(); err != nil {
			cfg.Log.Error("Failed to close Kafka consumer", "error", err)
		}
		if err := producer.Close(); err != nil {
			cfg.Log.Error("Failed to close Kafka producer", "error", err)
		}
	})
	serverApp.SetApp()

	cfg.Log.Info("Lifecycle service consuming booking changes",
		"topic", cfg.BookingEventsTopic,
		"group_id", cfg.BookingEventsGroup,
	)
	serverApp.Run()
}
