package config

import (
	"fmt"
	"net/url"
	"os"
	"prayerroom/pkg/client"
	"prayerroom/pkg/logger"
	"prayerroom/pkg/slot"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	Port string

	RateLimitRPS   float64
	RateLimitBurst int

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	VenueTimezone     string
	Location          *time.Location
	DefaultResourceID string
	SlotDuration      time.Duration
	BookingLeadTime   time.Duration
	OpenHour          int
	CloseHour         int

	AccessAPIBaseURL string
	AccessAPIKey     string
	AccessLockMap    map[string]string
	GatewayTimeout   time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	EventFeed          string
	BookingEventsTopic string
	BookingEventsGroup string
	DispatchWorkers    int

	PendingSweepInterval time.Duration
	PendingStaleAfter    time.Duration

	Log    *logger.Logger
	Client *client.Client

	lockMapErr error
}

// Load reads .env (when present) and the process environment. Invalid
// configuration is fatal.
func Load(serviceName string) *Config {
	_ = godotenv.Load()

	cfg := fromEnv()
	cfg.Log = logger.New(logger.Config{
		Level:     getEnvStr(EnvLogLevel, logger.INFO),
		Format:    logger.JSON,
		AddSource: true,
		Service:   serviceName,
	})
	cfg.Client = client.NewClient()

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func fromEnv() *Config {
	cfg := &Config{
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		Port: getEnvStr(EnvPort, DefaultPort),

		RateLimitRPS:   getEnvFloat(EnvRateLimitRPS, DefaultRateLimitRPS),
		RateLimitBurst: getEnvNum(EnvRateLimitBurst, DefaultRateLimitBurst),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		VenueTimezone:     getEnvStr(EnvVenueTimezone, DefaultVenueTimezone),
		DefaultResourceID: getEnvStr(EnvDefaultResourceID, DefaultResourceID),
		SlotDuration:      time.Duration(getEnvNum(EnvSlotDurationMin, DefaultSlotDurationMin)) * time.Minute,
		BookingLeadTime:   getEnvDuration(EnvBookingLeadTime, DefaultBookingLeadTime),
		OpenHour:          getEnvNum(EnvOpenHour, DefaultOpenHour),
		CloseHour:         getEnvNum(EnvCloseHour, DefaultCloseHour),

		AccessAPIBaseURL: strings.TrimRight(getEnvStr(EnvAccessAPIBaseURL, DefaultAccessAPIBaseURL), "/"),
		AccessAPIKey:     getEnvStr(EnvAccessAPIKey, ""),
		GatewayTimeout:   getEnvDuration(EnvGatewayTimeout, DefaultGatewayTimeout),

		RedisAddr:     getEnvStr(EnvRedisAddr, DefaultRedisAddr),
		RedisPassword: getEnvStr(EnvRedisPassword, ""),
		RedisDB:       getEnvNum(EnvRedisDB, 0),
		CacheTTL:      getEnvDuration(EnvCacheTTL, DefaultCacheTTL),

		EventFeed:          strings.ToLower(getEnvStr(EnvEventFeed, DefaultEventFeed)),
		BookingEventsTopic: getEnvStr(EnvBookingEventsTopic, DefaultBookingEventsTopic),
		BookingEventsGroup: getEnvStr(EnvBookingEventsGroup, DefaultBookingEventsGroup),
		DispatchWorkers:    getEnvNum(EnvDispatchWorkers, DefaultDispatchWorkers),

		PendingSweepInterval: getEnvDuration(EnvPendingSweepInterval, DefaultPendingSweepInterval),
		PendingStaleAfter:    getEnvDuration(EnvPendingStaleAfter, DefaultPendingStaleAfter),
	}

	cfg.AccessLockMap, cfg.lockMapErr = ParseLockMap(getEnvStr(EnvAccessLockMap, ""))
	if loc, err := time.LoadLocation(cfg.VenueTimezone); err == nil {
		cfg.Location = loc
	}
	return cfg
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) SetRedis() {
	cfg.Client.SetRedis(cfg.Log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
}

// Clock returns the slot clock for the venue timezone.
func (cfg *Config) Clock() slot.Clock {
	return slot.NewClock(cfg.Location, cfg.SlotDuration)
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if cfg.MongoURI == "" {
		errors = append(errors, "MongoURI cannot be empty")
	} else if len(cfg.MongoURI) < 10 || !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
		errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", cfg.MongoURI))
	}
	if cfg.MongoDatabaseName == "" {
		errors = append(errors, "MongoDatabaseName cannot be empty")
	}
	if cfg.MongoConnTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
	}

	if cfg.RateLimitRPS <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRPS must be positive, got: %g", cfg.RateLimitRPS))
	}
	if cfg.RateLimitBurst <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitBurst must be positive, got: %d", cfg.RateLimitBurst))
	}
	for name, d := range map[string]time.Duration{
		"RequestTimeout":       cfg.RequestTimeout,
		"IdempotencyTTL":       cfg.IdempotencyTTL,
		"ReadTimeout":          cfg.ReadTimeout,
		"WriteTimeout":         cfg.WriteTimeout,
		"IdleTimeout":          cfg.IdleTimeout,
		"ShutdownTimeout":      cfg.ShutdownTimeout,
		"GatewayTimeout":       cfg.GatewayTimeout,
		"CacheTTL":             cfg.CacheTTL,
		"PendingSweepInterval": cfg.PendingSweepInterval,
		"PendingStaleAfter":    cfg.PendingStaleAfter,
	} {
		if d <= 0 {
			errors = append(errors, fmt.Sprintf("%s must be positive, got: %s", name, d))
		}
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}

	if cfg.Location == nil {
		errors = append(errors, fmt.Sprintf("VenueTimezone must be a valid IANA zone, got: %s", cfg.VenueTimezone))
	}
	if cfg.DefaultResourceID == "" {
		errors = append(errors, "DefaultResourceID cannot be empty")
	}
	if cfg.SlotDuration <= 0 {
		errors = append(errors, fmt.Sprintf("SlotDuration must be positive, got: %s", cfg.SlotDuration))
	}
	if cfg.BookingLeadTime < 0 {
		errors = append(errors, fmt.Sprintf("BookingLeadTime cannot be negative, got: %s", cfg.BookingLeadTime))
	}
	if cfg.OpenHour < 0 || cfg.CloseHour > 24 || cfg.OpenHour >= cfg.CloseHour {
		errors = append(errors, fmt.Sprintf("OpenHour (%d) must be before CloseHour (%d) within 0-24", cfg.OpenHour, cfg.CloseHour))
	}

	if u, err := url.Parse(cfg.AccessAPIBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errors = append(errors, fmt.Sprintf("AccessAPIBaseURL must be an http(s) URL, got: %s", cfg.AccessAPIBaseURL))
	}
	if cfg.lockMapErr != nil {
		errors = append(errors, cfg.lockMapErr.Error())
	}

	if !slices.Contains([]string{EventFeedMemory, EventFeedKafka}, cfg.EventFeed) {
		errors = append(errors, fmt.Sprintf("EventFeed must be %q or %q, got: %s", EventFeedMemory, EventFeedKafka, cfg.EventFeed))
	}
	if cfg.EventFeed == EventFeedKafka && (cfg.BookingEventsTopic == "" || cfg.BookingEventsGroup == "") {
		errors = append(errors, "BookingEventsTopic and BookingEventsGroup are required when EventFeed is kafka")
	}
	if cfg.DispatchWorkers <= 0 {
		errors = append(errors, fmt.Sprintf("DispatchWorkers must be positive, got: %d", cfg.DispatchWorkers))
	}

	if len(errors) > 0 {
		slices.Sort(errors)
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"port", cfg.Port,
		"rate_limit_rps", cfg.RateLimitRPS,
		"rate_limit_burst", cfg.RateLimitBurst,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"venue_timezone", cfg.VenueTimezone,
		"default_resource_id", cfg.DefaultResourceID,
		"slot_duration", cfg.SlotDuration,
		"booking_lead_time", cfg.BookingLeadTime,
		"open_hour", cfg.OpenHour,
		"close_hour", cfg.CloseHour,
		"access_api_base_url", cfg.AccessAPIBaseURL,
		"access_api_key_set", cfg.AccessAPIKey != "",
		"access_lock_map_size", len(cfg.AccessLockMap),
		"gateway_timeout", cfg.GatewayTimeout,
		"redis_addr", cfg.RedisAddr,
		"redis_password_set", cfg.RedisPassword != "",
		"redis_db", cfg.RedisDB,
		"cache_ttl", cfg.CacheTTL,
		"event_feed", cfg.EventFeed,
		"booking_events_topic", cfg.BookingEventsTopic,
		"booking_events_group", cfg.BookingEventsGroup,
		"dispatch_workers", cfg.DispatchWorkers,
		"pending_sweep_interval", cfg.PendingSweepInterval,
		"pending_stale_after", cfg.PendingStaleAfter,
	)

	if _, ok := cfg.AccessLockMap[cfg.DefaultResourceID]; !ok {
		cfg.Log.Warn("Default resource has no lock mapping, confirmations will fail",
			"resource_id", cfg.DefaultResourceID,
		)
	}
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log)
}

// ParseLockMap parses "resource=lock,resource2=lock2".
func ParseLockMap(raw string) (map[string]string, error) {
	locks := make(map[string]string)
	for _, pair := range splitList(raw) {
		resource, lock, ok := strings.Cut(pair, "=")
		resource, lock = strings.TrimSpace(resource), strings.TrimSpace(lock)
		if !ok || resource == "" || lock == "" {
			return locks, fmt.Errorf("AccessLockMap entry must be resource=lock, got: %s", pair)
		}
		if _, dup := locks[resource]; dup {
			return locks, fmt.Errorf("AccessLockMap maps resource %s more than once", resource)
		}
		locks[resource] = lock
	}
	return locks, nil
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
