package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	limiterstdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"

	"github.com/sokoni-dev/backend-sokoni/internal/app"
	"github.com/sokoni-dev/backend-sokoni/internal/cart"
	"github.com/sokoni-dev/backend-sokoni/internal/catalog"
	"github.com/sokoni-dev/backend-sokoni/internal/checkout"
	"github.com/sokoni-dev/backend-sokoni/internal/common"
	"github.com/sokoni-dev/backend-sokoni/internal/config"
	"github.com/sokoni-dev/backend-sokoni/internal/db"
	"github.com/sokoni-dev/backend-sokoni/internal/events"
	"github.com/sokoni-dev/backend-sokoni/internal/health"
	"github.com/sokoni-dev/backend-sokoni/internal/obs"
	"github.com/sokoni-dev/backend-sokoni/internal/order"
	"github.com/sokoni-dev/backend-sokoni/internal/payment"
	"github.com/sokoni-dev/backend-sokoni/internal/pricing"
	"github.com/sokoni-dev/backend-sokoni/internal/ratelimit"
	"github.com/sokoni-dev/backend-sokoni/internal/rates"
	"github.com/sokoni-dev/backend-sokoni/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "sokoni")
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := cfg.OTLPEndpoint != ""
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName: "sokoni-api",
			Endpoint:    cfg.OTLPEndpoint,
			Exporter:    "otlp",
			Environment: cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.Migrate(db.MigrateURL(cfg.DatabaseURL)); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "sokoni-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	validate := validator.New()
	gapPolicy := pricing.TierGapFail
	if cfg.TierGapPolicy == "base_price" {
		gapPolicy = pricing.TierGapBasePrice
	}

	catalogStore := &catalog.PGStore{Pool: pool}
	ratesStore := &rates.PGStore{Pool: pool}
	cartStore := &cart.PGStore{Pool: pool}
	orderStore := order.NewPGStore(pool)
	paymentStore := &payment.PGStore{Pool: pool}

	bus := &events.Bus{Store: &events.PGStore{Pool: pool}}

	catalogSvc := &catalog.Service{
		Store:     catalogStore,
		Cache:     catalog.NewCache(redisClient, cfg.QuoteCacheTTL),
		Validate:  validate,
		GapPolicy: gapPolicy,
	}
	ratesSvc := &rates.Service{Store: ratesStore, Variations: catalogStore, Validate: validate}
	cartSvc := &cart.Service{
		Store:     cartStore,
		Catalog:   catalogStore,
		Rules:     ratesStore,
		Fees:      orderStore,
		GapPolicy: gapPolicy,
		TTL:       cfg.CartTTL,
	}
	orderSvc := &order.Service{Store: orderStore, Rules: ratesStore, Events: bus}
	checkoutSvc := &checkout.Service{
		Pool:     pool,
		Cart:     cartSvc,
		Orders:   orderStore,
		Events:   bus,
		Currency: cfg.Currency,
	}

	mpesa := payment.NewMpesa(
		cfg.MpesaBaseURL, cfg.MpesaConsumerKey, cfg.MpesaConsumerSecret,
		cfg.MpesaShortcode, cfg.MpesaPasskey, cfg.MpesaCallbackURL, cfg.MpesaTimeout,
	)
	paymentSvc := &payment.Service{
		Store:      paymentStore,
		Orders:     orderStore,
		Provider:   mpesa,
		Events:     bus,
		PendingTTL: cfg.PaymentPendingTTL,
	}
	paymentWebhook := &payment.Webhook{
		Store:     paymentStore,
		Orders:    orderStore,
		Provider:  mpesa,
		Replay:    redisClient,
		ReplayTTL: cfg.CallbackReplayTTL,
		Events:    bus,
	}

	catalogHandler := &catalog.Handler{Service: catalogSvc}
	ratesHandler := &rates.Handler{Service: ratesSvc}
	cartHandler := &cart.Handler{Service: cartSvc}
	orderHandler := &order.Handler{Service: orderSvc}
	orderAdmin := &order.AdminHandler{Service: orderSvc}
	checkoutHandler := &checkout.Handler{Service: checkoutSvc}
	paymentHandler := &payment.Handler{Service: paymentSvc}

	idem := common.Idem{R: redisClient, TTL: cfg.IdemTTL}

	apiLimiter, err := app.NewAPILimiter(redisClient, cfg.RateLimitRPS)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}
	// Tighter sliding-window limit for the price computation endpoints.
	quoteLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "sokoni:quote:"},
		Config: ratelimit.Config{
			Key:    clientKey,
			Window: time.Second,
			Max:    cfg.RateLimitRPS / 2,
		},
		OnError: func(err error) {
			logger.Error().Err(err).Msg("quote rate limiter")
		},
	}

	httpMetrics := obs.NewHTTPMetrics(metricsNamespace, nil, nil)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.AppEnv == "production"}.Middleware)
	r.Use(security.BodyLimit{Max: 1 << 20}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key", "X-User-ID", "X-Vendor-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(limiterstdlib.NewMiddleware(apiLimiter).Handler)
	r.Use(common.IdentityMiddleware)

	r.Handle("/metrics", promhttp.Handler())

	healthHandler := health.Handler{
		Checker: readinessChecker{db: pool, redis: redisClient},
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		catalogHandler.Routes(v)
		ratesHandler.Routes(v)
		orderHandler.Routes(v)
		orderAdmin.Routes(v)
		paymentHandler.Routes(v)

		v.Group(func(g chi.Router) {
			g.Use(quoteLimit.Middleware)
			cartHandler.Routes(g)
		})
		v.Group(func(g chi.Router) {
			g.Use(idem.Middleware)
			checkoutHandler.Routes(g)
		})

		v.Post("/webhooks/mpesa", paymentWebhook.Handle)
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	stop, stopCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopCancel()
	<-stop.Done()

	health.SetReady(false)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
	logger.Info().Msg("server stopped")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

// clientKey buckets quote traffic per caller: authenticated users by id,
// anonymous ones by IP.
func clientKey(r *http.Request) string {
	if id, ok := common.UserID(r.Context()); ok {
		return "u:" + id
	}
	return "ip:" + r.RemoteAddr
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
