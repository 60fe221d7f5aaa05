// The sweep worker periodically clears expired slot reservations. It is an
// optimization, not a correctness requirement: every availability read sweeps
// lazily before trusting the data, so the system behaves the same with the
// worker stopped; reservations just linger in storage a little longer.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/medtrack/scheduling-service/internal/config"
	"github.com/medtrack/scheduling-service/internal/db"
	"github.com/medtrack/scheduling-service/internal/schedule"
	"github.com/medtrack/scheduling-service/internal/slot"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		errLogger := zerolog.New(os.Stderr)
		errLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "sweep-worker").Logger()
	if cfg.Env == "dev" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	logger.Info().Str("env", cfg.Env).Dur("interval", cfg.SweepInterval).Msg("sweep-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	slotRepo := slot.NewPgRepository(pgPool)
	resolver := schedule.NewResolver(schedule.NewPgRepository(pgPool))
	generator := slot.NewGenerator(slotRepo, resolver, cfg.SlotHorizonDays, logger)
	lifecycle := slot.NewLifecycle(slotRepo, generator, cfg.ReservationTTL, logger)

	runOnce(rootCtx, lifecycle, logger)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping sweep worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, lifecycle, logger)
		}
	}
}

func runOnce(ctx context.Context, lifecycle *slot.Lifecycle, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	cleared, err := lifecycle.SweepExpiredReservations(runCtx)
	if err != nil {
		logger.Error().Err(err).Msg("sweep run error")
		return
	}
	logger.Info().Int64("cleared", cleared).Dur("took", time.Since(start)).Msg("sweep run complete")
}
