package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sokoni-dev/backend-sokoni/internal/config"
	"github.com/sokoni-dev/backend-sokoni/internal/events"
	"github.com/sokoni-dev/backend-sokoni/internal/lock"
	"github.com/sokoni-dev/backend-sokoni/internal/obs"
	"github.com/sokoni-dev/backend-sokoni/internal/order"
	"github.com/sokoni-dev/backend-sokoni/internal/payment"
	"github.com/sokoni-dev/backend-sokoni/internal/rates"
	"github.com/sokoni-dev/backend-sokoni/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Str("proc", "worker").Logger()

	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "sokoni"), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
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
	defer func() {
		_ = redisClient.Close()
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	orderStore := order.NewPGStore(pool)
	paymentStore := &payment.PGStore{Pool: pool}
	ratesStore := &rates.PGStore{Pool: pool}
	bus := &events.Bus{Store: &events.PGStore{Pool: pool}}

	mpesa := payment.NewMpesa(
		cfg.MpesaBaseURL, cfg.MpesaConsumerKey, cfg.MpesaConsumerSecret,
		cfg.MpesaShortcode, cfg.MpesaPasskey, cfg.MpesaCallbackURL, cfg.MpesaTimeout,
	)

	handlers := &tasks.Handlers{
		Payments:  paymentStore,
		Orders:    orderStore,
		Recompute: &order.Service{Store: orderStore, Rules: ratesStore, Events: bus},
		Provider:  mpesa,
		Events:    bus,
		Lock:      lock.Locker{R: redisClient},
	}

	asynqOpt := asynq.RedisClientOpt{
		Addr:     redisOpts.Addr,
		Password: redisOpts.Password,
		DB:       redisOpts.DB,
	}
	srv := asynq.NewServer(asynqOpt, asynq.Config{
		Concurrency: 5,
		Logger:      asynqLogger{logger: logger},
	})
	mux := asynq.NewServeMux()
	handlers.Register(mux)

	scheduler := asynq.NewScheduler(asynqOpt, &asynq.SchedulerOpts{
		Logger: asynqLogger{logger: logger},
	})
	cron := "@every " + cfg.ReconcileInterval.String()
	if _, err := scheduler.Register(cron, tasks.NewPaymentReconcileTask()); err != nil {
		logger.Fatal().Err(err).Msg("register reconcile schedule")
	}

	go func() {
		if err := scheduler.Run(); err != nil {
			logger.Fatal().Err(err).Msg("scheduler exited unexpectedly")
		}
	}()
	go func() {
		logger.Info().Str("reconcile_every", cfg.ReconcileInterval.String()).Msg("worker starting")
		if err := srv.Run(mux); err != nil {
			logger.Fatal().Err(err).Msg("worker exited unexpectedly")
		}
	}()

	stop, stopCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopCancel()
	<-stop.Done()

	scheduler.Shutdown()
	srv.Shutdown()
	logger.Info().Msg("worker stopped")
}

// asynqLogger adapts zerolog to asynq's logging interface.
type asynqLogger struct {
	logger zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
