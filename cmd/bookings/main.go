package main

import (
	"context"
	"os"
	"prayerroom/internal/bookings/availability"
	"prayerroom/internal/bookings/cache"
	"prayerroom/internal/bookings/events"
	"prayerroom/internal/bookings/handler"
	"prayerroom/internal/bookings/lifecycle"
	"prayerroom/internal/bookings/repository"
	"prayerroom/internal/bookings/service"
	"prayerroom/internal/bookings/store"
	"prayerroom/internal/bookings/validator"
	"prayerroom/internal/credentials"
	"prayerroom/internal/notifications"
	"prayerroom/pkg/app"
	"prayerroom/pkg/config"
	"prayerroom/pkg/kafka"
	kafka_config "prayerroom/pkg/kafka/config"
	kafka_middleware "prayerroom/pkg/kafka/middleware"

	"github.com/google/uuid"
)

const ServiceName = "bookings"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	cfg.SetRedis()

	cfg.Log.Info("Starting Bookings service", "event_feed", cfg.EventFeed)
	serverApp := app.NewApplication(cfg)
	bookingService := initServices(cfg, serverApp)
	serverApp.SetApp(handler.NewBookingHandler(bookingService, cfg.DefaultResourceID, cfg.Log))
	serverApp.Run()
}

func initServices(cfg *config.Config, serverApp *app.Application) service.BookingService {
	bookingRepo := repository.NewMongoBookingRepository(cfg)
	claimRepo := repository.NewMongoSlotClaimRepository(cfg)
	checker := availability.NewChecker(bookingRepo, claimRepo, cfg.Clock(), cfg.BookingLeadTime, cfg.Log)
	hub := events.NewHub()

	var bookingStore *store.Store
	switch cfg.EventFeed {
	case config.EventFeedKafka:
		bookingStore = initKafkaFeed(cfg, serverApp, bookingRepo, hub)
	default:
		bookingStore = initMemoryFeed(cfg, serverApp, bookingRepo, checker, hub)
	}

	var bookingCache *cache.Cache
	if cfg.Client.Redis != nil {
		bookingCache = cache.New(cfg.Client.Redis, cfg.CacheTTL, cfg.Log)
		bookingStore.Subscribe(events.Filter{}, bookingCache.OnChange)
	}

	bookingService := service.NewBookingService(
		bookingStore,
		checker,
		bookingCache,
		validator.NewBookingValidator(cfg.Log),
		cfg,
	)

	cfg.Log.Info("Booking service initialized", "database", cfg.MongoDatabaseName)
	return bookingService
}

// initMemoryFeed runs the lifecycle orchestrator in this process. The store
// publishes to the subscription hub and to the dispatcher; the orchestrator
// writes back through the same store.
func initMemoryFeed(
	cfg *config.Config,
	serverApp *app.Application,
	bookingRepo repository.BookingRepository,
	checker *availability.Checker,
	hub *events.Hub,
) *store.Store {
	var dispatcher *lifecycle.Dispatcher
	dispatch := events.PublisherFunc(func(ctx context.Context, e events.ChangeEvent) error {
		return dispatcher.Publish(ctx, e)
	})
	bookingStore := store.New(bookingRepo, events.Fanout{hub, dispatch}, hub, cfg.Log)

	orchestrator := lifecycle.NewOrchestrator(
		bookingStore,
		checker,
		credentials.NewHTTPGateway(credentials.ConfigFrom(cfg), cfg.Log),
		notifications.NewMongoQueue(cfg),
		cfg.Clock(),
		cfg.Log,
	)
	dispatcher = lifecycle.NewDispatcher(orchestrator, cfg.DispatchWorkers, cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	dispatcher.Start(ctx)

	sweeper := lifecycle.NewSweeper(bookingStore, dispatch, cfg.PendingSweepInterval, cfg.PendingStaleAfter, cfg.Log)
	go sweeper.Run(ctx)

	serverApp.OnShutdown(cancel)
	serverApp.OnShutdown(dispatcher.Stop)

	cfg.Log.Info("Lifecycle orchestrator running in-process", "workers", cfg.DispatchWorkers)
	return bookingStore
}

// initKafkaFeed publishes change events to Kafka for the lifecycle service.
// The hub is fed back from the topic so subscribers also see writes made by
// other replicas and by the orchestrator.
func initKafkaFeed(
	cfg *config.Config,
	serverApp *app.Application,
	bookingRepo repository.BookingRepository,
	hub *events.Hub,
) *store.Store {
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

	// Every replica needs every event, so each gets its own group and only
	// reads what is published after it starts.
	feedCfg := *kafkaCfg
	feedCfg.ConsumerStartOffset = -1
	feedCfg.DLQTopic = ""
	consumer, err := kafka.NewConsumer(&feedCfg, cfg.BookingEventsTopic, feedGroupID(cfg), events.KafkaHandler(hub.Publish), cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka consumer", "error", err)
	}
	consumer.Use(kafka_middleware.MetricsConsumerMiddleware())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
			cfg.Log.Error("Booking event feed stopped", "error", err)
		}
	}()

	serverApp.OnShutdown(cancel)
	serverApp.OnShutdown(func() {
		if err := consumer.Close(); err != nil {
			cfg.Log.Error("Failed to close Kafka consumer", "error", err)
		}
		if err := producer.Close(); err != nil {
			cfg.Log.Error("Failed to close Kafka producer", "error", err)
		}
	})

	cfg.Log.Info("Publishing booking changes to Kafka", "topic", cfg.BookingEventsTopic)
	return store.New(bookingRepo, events.NewKafkaPublisher(producer, ServiceName), hub, cfg.Log)
}

func feedGroupID(cfg *config.Config) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = uuid.NewString()
	}
	return cfg.BookingEventsGroup + "-feed-" + host
}
