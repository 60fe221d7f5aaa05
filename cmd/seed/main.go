// Seed fills the database with doctors, realistic weekly templates, a few
// date exceptions, and the materialized slots for the coming weeks. It also
// prints a doctor and a patient bearer token for poking the API by hand.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medtrack/scheduling-service/internal/api"
	"github.com/medtrack/scheduling-service/internal/config"
	"github.com/medtrack/scheduling-service/internal/db"
	"github.com/medtrack/scheduling-service/internal/schedule"
	"github.com/medtrack/scheduling-service/internal/slot"
)

const (
	doctorCount  = 25
	seedHorizon  = 14 // days of slots to materialize up front
	exceptionDay = 7  // days from now for the sample day-off exception
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	logger.Info().Msg("seed starting")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("apply schema")
	}

	gofakeit.Seed(time.Now().UnixNano())

	scheduleRepo := schedule.NewPgRepository(pool)
	slotRepo := slot.NewPgRepository(pool)
	resolver := schedule.NewResolver(scheduleRepo)
	generator := slot.NewGenerator(slotRepo, resolver, seedHorizon, logger)

	var firstDoctor uuid.UUID
	for i := 0; i < doctorCount; i++ {
		doctorID := uuid.New()
		if i == 0 {
			firstDoctor = doctorID
		}
		if err := seedDoctor(ctx, scheduleRepo, generator, doctorID); err != nil {
			logger.Fatal().Err(err).Str("doctor_id", doctorID.String()).Msg("seed doctor")
		}
		logger.Info().Str("doctor_id", doctorID.String()).Msgf("doctor seeded %d/%d", i+1, doctorCount)
	}

	printTokens(logger, cfg.JWTSecret, firstDoctor)
	logger.Info().Msg("seed complete")
}

func seedDoctor(ctx context.Context, repo *schedule.PgRepository, generator *slot.Generator, doctorID uuid.UUID) error {
	durations := []int{15, 30, 60}
	duration := durations[gofakeit.Number(0, len(durations)-1)]

	// Weekday mornings and afternoons, with a lunch gap.
	for dow := 1; dow <= 5; dow++ {
		day := dow
		for _, span := range [][2]schedule.TimeOfDay{
			{schedule.NewTimeOfDay(9, 0), schedule.NewTimeOfDay(12, 0)},
			{schedule.NewTimeOfDay(13, 0), schedule.NewTimeOfDay(17, 0)},
		} {
			if _, err := repo.UpsertTemplate(ctx, &schedule.AvailabilityRule{
				DoctorID:     doctorID,
				Kind:         schedule.KindTemplate,
				DayOfWeek:    &day,
				StartTime:    span[0],
				EndTime:      span[1],
				IsAvailable:  true,
				SlotDuration: duration,
			}); err != nil {
				return fmt.Errorf("upsert template: %w", err)
			}
		}
	}

	// One day off next week so resolution has an exception to exercise.
	if gofakeit.Bool() {
		dayOff := schedule.DateOnly(time.Now().AddDate(0, 0, exceptionDay))
		reason := gofakeit.RandomString([]string{"Conference", "Vacation", "Training day"})
		if _, err := repo.ReplaceExceptions(ctx, doctorID, dayOff, []schedule.AvailabilityRule{{
			DoctorID:     doctorID,
			Kind:         schedule.KindException,
			SpecificDate: &dayOff,
			StartTime:    schedule.NewTimeOfDay(0, 0),
			EndTime:      schedule.NewTimeOfDay(23, 59),
			IsAvailable:  false,
			SlotDuration: duration,
			Reason:       &reason,
		}}); err != nil {
			return fmt.Errorf("replace exceptions: %w", err)
		}
	}

	from := schedule.DateOnly(time.Now())
	if _, err := generator.EnsureSlotsForRange(ctx, doctorID, from, from.AddDate(0, 0, seedHorizon)); err != nil {
		return fmt.Errorf("materialize slots: %w", err)
	}
	return nil
}

func printTokens(logger zerolog.Logger, secret string, doctorID uuid.UUID) {
	doctorToken, err := api.NewToken(doctorID, api.RoleDoctor, secret, 24*time.Hour)
	if err != nil {
		logger.Error().Err(err).Msg("mint doctor token")
		return
	}
	patientToken, err := api.NewToken(uuid.New(), api.RolePatient, secret, 24*time.Hour)
	if err != nil {
		logger.Error().Err(err).Msg("mint patient token")
		return
	}
	fmt.Printf("doctor token:  %s\n", doctorToken)
	fmt.Printf("patient token: %s\n", patientToken)
}
