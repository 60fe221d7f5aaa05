package slot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medtrack/scheduling-service/internal/schedule"
)

// Resolver yields the periods governing a doctor's date. Implemented by
// schedule.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]schedule.Period, error)
}

// Generator expands resolved availability periods into persisted time slots.
// It runs redundantly and concurrently (every availability query may invoke
// it), so materialization has to be idempotent: fetch first, create on miss,
// and treat a lost creation race as somebody else having done the work.
type Generator struct {
	repo     Repository
	resolver Resolver
	horizon  int // days regenerated after a rule change
	log      zerolog.Logger
}

func NewGenerator(repo Repository, resolver Resolver, horizonDays int, log zerolog.Logger) *Generator {
	if horizonDays <= 0 {
		horizonDays = 90
	}
	return &Generator{
		repo:     repo,
		resolver: resolver,
		horizon:  horizonDays,
		log:      log,
	}
}

// EnsureSlots materializes the slots for one doctor and date, returning all
// slots covering the date's available periods in start-time order. Safe to
// call repeatedly and from concurrent requests.
func (g *Generator) EnsureSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]TimeSlot, error) {
	date = schedule.DateOnly(date)

	periods, err := g.resolver.Resolve(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("resolve availability: %w", err)
	}

	var slots []TimeSlot
	for _, period := range periods {
		if !period.IsAvailable {
			// Blocked time is represented by the absence of slots, never
			// by unavailable slot rows.
			continue
		}
		periodSlots, err := g.ensurePeriod(ctx, doctorID, date, period)
		if err != nil {
			return nil, err
		}
		slots = append(slots, periodSlots...)
	}
	return slots, nil
}

// ensurePeriod walks the period in slot-duration steps. A trailing remainder
// shorter than the duration is dropped; a truncated slot is never emitted.
func (g *Generator) ensurePeriod(ctx context.Context, doctorID uuid.UUID, date time.Time, period schedule.Period) ([]TimeSlot, error) {
	var slots []TimeSlot

	for start := period.StartTime; start.Add(period.SlotDuration) <= period.EndTime; start = start.Add(period.SlotDuration) {
		end := start.Add(period.SlotDuration)

		s, err := g.repo.GetByTuple(ctx, doctorID, date, start)
		if errors.Is(err, ErrSlotNotFound) {
			s, err = g.repo.Create(ctx, &TimeSlot{
				DoctorID:  doctorID,
				Date:      date,
				StartTime: start,
				EndTime:   end,
			})
			if errors.Is(err, ErrDuplicateSlot) {
				// A concurrent caller won the insert; their row is ours too.
				s, err = g.repo.GetByTuple(ctx, doctorID, date, start)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("ensure slot %s %s: %w", date.Format(time.DateOnly), start, err)
		}
		slots = append(slots, *s)
	}
	return slots, nil
}

// EnsureSlotsForRange materializes slots for every date in [from, to].
func (g *Generator) EnsureSlotsForRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]TimeSlot, error) {
	from = schedule.DateOnly(from)
	to = schedule.DateOnly(to)

	var all []TimeSlot
	for date := from; !date.After(to); date = date.AddDate(0, 0, 1) {
		slots, err := g.EnsureSlots(ctx, doctorID, date)
		if err != nil {
			return nil, err
		}
		all = append(all, slots...)
	}
	return all, nil
}

// Regenerate rebuilds the doctor's slots from the given date over the
// configured horizon. Unbooked slots are purged first; booked slots are
// immutable and survive any schedule edit, protecting in-flight appointments.
func (g *Generator) Regenerate(ctx context.Context, doctorID uuid.UUID, from time.Time) error {
	from = schedule.DateOnly(from)

	deleted, err := g.repo.DeleteUnbookedFrom(ctx, doctorID, from)
	if err != nil {
		return fmt.Errorf("purge unbooked slots: %w", err)
	}

	to := from.AddDate(0, 0, g.horizon)
	if _, err := g.EnsureSlotsForRange(ctx, doctorID, from, to); err != nil {
		return err
	}

	g.log.Debug().
		Str("doctor_id", doctorID.String()).
		Str("from", from.Format(time.DateOnly)).
		Int64("purged", deleted).
		Msg("slots regenerated")
	return nil
}
