package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/medtrack/scheduling-service/internal/api"
	"github.com/medtrack/scheduling-service/internal/appointment"
	"github.com/medtrack/scheduling-service/internal/config"
	"github.com/medtrack/scheduling-service/internal/db"
	"github.com/medtrack/scheduling-service/internal/events"
	redisclient "github.com/medtrack/scheduling-service/internal/redis"
	"github.com/medtrack/scheduling-service/internal/schedule"
	"github.com/medtrack/scheduling-service/internal/slot"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		errLogger := zerolog.New(os.Stderr)
		errLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "api-server").Logger()
	if cfg.Env == "dev" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()

	if err := db.Migrate(rootCtx, pgPool); err != nil {
		logger.Fatal().Err(err).Msg("schema migration error")
	}
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	var sink events.Sink = events.NewPgSink(pgPool)
	if cfg.AMQPURL != "" {
		amqpSink, err := events.NewAmqpSink(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Fatal().Err(err).Msg("rabbitmq connection error")
		}
		defer amqpSink.Close()
		sink = events.Fanout{sink, amqpSink}
		logger.Info().Str("exchange", cfg.AMQPExchange).Msg("connected to RabbitMQ")
	}

	scheduleRepo := schedule.NewPgRepository(pgPool)
	slotRepo := slot.NewPgRepository(pgPool)
	apptRepo := appointment.NewPgRepository(pgPool)

	resolver := schedule.NewResolver(scheduleRepo)
	generator := slot.NewGenerator(slotRepo, resolver, cfg.SlotHorizonDays, logger)
	lifecycle := slot.NewLifecycle(slotRepo, generator, cfg.ReservationTTL, logger)

	scheduleSvc := schedule.NewService(scheduleRepo, generator, logger)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	apptSvc := appointment.NewService(apptRepo, lifecycle, locker, sink, logger)

	router := api.NewRouter(api.RouterConfig{
		Schedule:     scheduleSvc,
		Slots:        lifecycle,
		Appointments: apptSvc,
		PgPool:       pgPool,
		Redis:        rdb,
		JWTSecret:    cfg.JWTSecret,
		Env:          cfg.Env,
		Version:      version,
		Logger:       logger,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
