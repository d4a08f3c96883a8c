package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvRateLimitRPS   = "RATE_LIMIT_RPS"
	EnvRateLimitBurst = "RATE_LIMIT_BURST"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvVenueTimezone     = "VENUE_TIMEZONE"
	EnvDefaultResourceID = "DEFAULT_RESOURCE_ID"
	EnvSlotDurationMin   = "SLOT_DURATION_MIN"
	EnvBookingLeadTime   = "BOOKING_LEAD_TIME"
	EnvOpenHour          = "OPEN_HOUR"
	EnvCloseHour         = "CLOSE_HOUR"

	EnvAccessAPIBaseURL = "ACCESS_API_BASE_URL"
	EnvAccessAPIKey     = "ACCESS_API_KEY"
	EnvAccessLockMap    = "ACCESS_LOCK_MAP"
	EnvGatewayTimeout   = "GATEWAY_TIMEOUT"

	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvRedisDB       = "REDIS_DB"
	EnvCacheTTL      = "CACHE_TTL"

	EnvEventFeed          = "EVENT_FEED"
	EnvBookingEventsTopic = "BOOKING_EVENTS_TOPIC"
	EnvBookingEventsGroup = "BOOKING_EVENTS_GROUP"
	EnvDispatchWorkers    = "DISPATCH_WORKERS"

	EnvPendingSweepInterval = "PENDING_SWEEP_INTERVAL"
	EnvPendingStaleAfter    = "PENDING_STALE_AFTER"
)
