package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "prayerroom"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort = "8080"

	DefaultRateLimitRPS   = 5.0
	DefaultRateLimitBurst = 10

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultVenueTimezone   = "America/New_York"
	DefaultResourceID      = "prayer_room"
	DefaultSlotDurationMin = 60
	DefaultBookingLeadTime = 30 * time.Minute
	DefaultOpenHour        = 6
	DefaultCloseHour       = 22

	DefaultAccessAPIBaseURL = "http://localhost:9090/api/v1"
	DefaultGatewayTimeout   = 10 * time.Second

	DefaultRedisAddr = "localhost:6379"
	DefaultCacheTTL  = 5 * time.Minute

	DefaultEventFeed          = EventFeedMemory
	DefaultBookingEventsTopic = "booking-events"
	DefaultBookingEventsGroup = "booking-lifecycle"
	DefaultDispatchWorkers    = 4

	DefaultPendingSweepInterval = 1 * time.Minute
	DefaultPendingStaleAfter    = 5 * time.Minute
)

const (
	EventFeedMemory = "memory"
	EventFeedKafka  = "kafka"
)
