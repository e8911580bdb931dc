package main

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/timegrid-io/timegrid/libs/auth"
	"github.com/timegrid-io/timegrid/libs/config"
	"github.com/timegrid-io/timegrid/libs/db"
	"github.com/timegrid-io/timegrid/libs/httpx"
	"github.com/timegrid-io/timegrid/libs/kafkax"
	otelx "github.com/timegrid-io/timegrid/libs/otel"
	"github.com/timegrid-io/timegrid/libs/runtime"
	"github.com/timegrid-io/timegrid/services/availability-service/internal/availability"
	"github.com/timegrid-io/timegrid/services/availability-service/internal/cache"
	"github.com/timegrid-io/timegrid/services/availability-service/internal/consumer"
	"github.com/timegrid-io/timegrid/services/availability-service/internal/feed"
	"github.com/timegrid-io/timegrid/services/availability-service/internal/handlers"
	"github.com/timegrid-io/timegrid/services/availability-service/internal/outbox"
	"github.com/timegrid-io/timegrid/services/availability-service/internal/remote"
	"github.com/timegrid-io/timegrid/services/availability-service/internal/schedule"
	"github.com/timegrid-io/timegrid/services/availability-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "availability-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	settingsRepo := storage.NewSettingsRepository(pool)
	bookingsRepo := storage.NewBookingsRepository(pool)
	outboxRepo := outbox.NewRepository(pool)

	var settingsSource availability.SettingsSource = settingsRepo
	remoteProvider, err := remote.NewProvider(config.String("BUSINESS_GRPC_ADDR", ""))
	if err != nil {
		logger.Error("remote settings provider init failed; using local settings only", "err", err)
	} else if remoteProvider != nil {
		settingsSource = &settingsWithFallback{local: settingsRepo, remote: remoteProvider}
	}

	var cacheInvalidator handlers.CacheInvalidator = nopInvalidator{}
	var rdb *redis.Client
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		redisDB := 0
		if v, err := strconv.Atoi(config.String("REDIS_DB", "0")); err == nil && v >= 0 {
			redisDB = v
		}
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       redisDB,
		})
		defer func() { _ = rdb.Close() }()

		ttl := 5 * time.Minute
		if v, err := strconv.Atoi(config.String("SETTINGS_CACHE_TTL_SECONDS", "300")); err == nil && v > 0 {
			ttl = time.Duration(v) * time.Second
		}
		settingsCache := cache.NewSettingsCache(rdb, settingsSource, ttl, logger)
		settingsSource = settingsCache
		cacheInvalidator = settingsCache
		logger.Info("settings cache enabled", "redis_addr", addr, "ttl", ttl)

		if brokers := config.String("KAFKA_BROKERS", ""); strings.TrimSpace(brokers) != "" {
			// Per-instance group ID: the settings-updated topic is a broadcast,
			// every instance must see every event to drop its cache entry.
			invalidationConsumer := consumer.New(logger, settingsCache, consumer.Config{
				Brokers: brokers,
				GroupID: service + "-" + uuid.NewString(),
			})
			go invalidationConsumer.Run(ctx)
		}
	}

	feedTimeout := 5 * time.Second
	if v, err := strconv.Atoi(config.String("FEED_TIMEOUT_SECONDS", "5")); err == nil && v > 0 {
		feedTimeout = time.Duration(v) * time.Second
	}
	feedClient := feed.NewClient(settingsRepo, feedTimeout)

	fetchTimeout := 8 * time.Second
	if v, err := strconv.Atoi(config.String("BUSY_FETCH_TIMEOUT_SECONDS", "8")); err == nil && v > 0 {
		fetchTimeout = time.Duration(v) * time.Second
	}
	svc := availability.New(settingsSource, []availability.BusyFeed{
		{Name: "bookings", Source: bookingsRepo},
		{Name: "calendar-feed", Source: feedClient},
	}, fetchTimeout, logger)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	availabilityHandler := handlers.NewAvailabilityHandler(svc, logger)
	settingsHandler := handlers.NewSettingsHandler(settingsRepo, outboxRepo, cacheInvalidator, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	jwtSecret := config.String("JWT_SECRET", "dev-secret")
	mux.HandleFunc("/api/v1/public/availability", availabilityHandler.GetAvailability)
	mux.HandleFunc("/api/v1/slots/search", availabilityHandler.SearchSlots)
	mux.Handle("/api/v1/settings", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			settingsHandler.GetSettings(w, r)
		case http.MethodPut:
			settingsHandler.PutSettings(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}), jwtSecret))
	mux.Handle("/api/v1/settings/blackouts", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			settingsHandler.ListBlackouts(w, r)
		case http.MethodPost:
			settingsHandler.AddBlackout(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}), jwtSecret))
	mux.Handle("/api/v1/settings/blackouts/", requireAuth(http.HandlerFunc(settingsHandler.DeleteBlackout), jwtSecret))

	limitPerMinute := 120
	if v, err := strconv.Atoi(config.String("RATE_LIMIT_PER_MINUTE", "120")); err == nil && v > 0 {
		limitPerMinute = v
	}
	var rateLimitMW httpx.Middleware
	if rdb != nil {
		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, true)
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute)
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	bodyLimit := int64(1 << 20)
	if v, err := strconv.Atoi(config.String("REQUEST_BODY_LIMIT_BYTES", "1048576")); err == nil && v > 0 {
		bodyLimit = int64(v)
	}
	requestTimeout := 10 * time.Second
	if v, err := strconv.Atoi(config.String("REQUEST_TIMEOUT_SECONDS", "10")); err == nil && v > 0 {
		requestTimeout = time.Duration(v) * time.Second
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,PUT,OPTIONS")),
			AllowedHeaders: parseList(config.String("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id")),
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(bodyLimit),
		httpx.WithTimeout(requestTimeout),
		rateLimitMW,
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "availability")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// settingsWithFallback reads locally persisted settings first and falls back
// to the central business service for tenants that have not been migrated.
type settingsWithFallback struct {
	local  *storage.SettingsRepository
	remote remote.Provider
}

func (s *settingsWithFallback) SchedulingConfig(ctx context.Context, businessID string) (schedule.Config, error) {
	cfg, err := s.local.SchedulingConfig(ctx, businessID)
	if err == nil {
		return cfg, nil
	}
	if !storage.IsNotFound(err) {
		return schedule.Config{}, err
	}
	return s.remote.SchedulingConfig(ctx, businessID)
}

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type nopInvalidator struct{}

func (nopInvalidator) Invalidate(context.Context, string) error { return nil }

func requireAuth(next http.Handler, jwtSecret string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") || len(strings.TrimSpace(authHeader)) <= len("Bearer ") {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		claims, err := auth.ParseAndVerifyHS256(token, jwtSecret)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		r.Header.Del("X-User-Id")
		r.Header.Del("X-Business-Id")
		r.Header.Del("X-Role")
		r.Header.Set("X-User-Id", claims.Sub)
		r.Header.Set("X-Business-Id", claims.BusinessID)
		r.Header.Set("X-Role", claims.Role)
		next.ServeHTTP(w, r)
	})
}
