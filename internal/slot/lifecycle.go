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

var ErrSlotUnavailable = errors.New("slot is not available")

// Lifecycle owns every transition of a materialized slot:
//
//	Free --Reserve--> Reserved --Book--> Booked --Release--> Free
//
// A reservation is a soft, time-boxed hold: it decays on its own once its
// deadline passes, with no scheduler involved. Correctness rests on two
// things only: the conditional updates in the repository (at most one caller
// moves a slot out of Free) and every read path sweeping or checking the
// clock before trusting availability.
type Lifecycle struct {
	repo      Repository
	generator *Generator
	holdTTL   time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

func NewLifecycle(repo Repository, generator *Generator, holdTTL time.Duration, log zerolog.Logger) *Lifecycle {
	if holdTTL <= 0 {
		holdTTL = 15 * time.Minute
	}
	return &Lifecycle{
		repo:      repo,
		generator: generator,
		holdTTL:   holdTTL,
		log:       log,
		now:       time.Now,
	}
}

// WithClock substitutes the time source. Intended for tests.
func (l *Lifecycle) WithClock(now func() time.Time) *Lifecycle {
	l.now = now
	return l
}

// Reserve places an advisory hold on a free slot for the configured TTL.
// Booked slots and slots under someone else's live hold fail with
// ErrSlotUnavailable.
func (l *Lifecycle) Reserve(ctx context.Context, slotID uuid.UUID) (*TimeSlot, error) {
	now := l.now()
	s, err := l.repo.Reserve(ctx, slotID, now.Add(l.holdTTL), now)
	if err != nil {
		return nil, l.transitionError(ctx, slotID, err)
	}
	return s, nil
}

// Book binds the slot to an appointment. Valid from Free, including a slot
// whose reservation has already lapsed; a live hold or an existing booking
// fails with ErrSlotUnavailable and never overwrites the bound appointment.
func (l *Lifecycle) Book(ctx context.Context, slotID, appointmentID uuid.UUID) (*TimeSlot, error) {
	s, err := l.repo.Book(ctx, slotID, appointmentID, l.now())
	if err != nil {
		return nil, l.transitionError(ctx, slotID, err)
	}
	return s, nil
}

// Release returns a booked or reserved slot to the free pool. Releasing a
// slot that is already free is a no-op, not an error.
func (l *Lifecycle) Release(ctx context.Context, slotID uuid.UUID) (*TimeSlot, error) {
	s, err := l.repo.Release(ctx, slotID)
	if err != nil {
		return nil, fmt.Errorf("release slot: %w", err)
	}
	return s, nil
}

// ReleaseByAppointment releases whichever slot the appointment occupies.
// Nothing to release is fine: the appointment may never have booked a slot.
func (l *Lifecycle) ReleaseByAppointment(ctx context.Context, appointmentID uuid.UUID) error {
	s, err := l.repo.GetByAppointment(ctx, appointmentID)
	if errors.Is(err, ErrSlotNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find slot for appointment: %w", err)
	}
	if _, err := l.repo.Release(ctx, s.ID); err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	return nil
}

// SweepExpiredReservations clears every reservation whose deadline has
// passed, returning those slots to the visible free pool. Called at the top
// of read paths; a background worker may also call it, but nothing depends
// on that.
func (l *Lifecycle) SweepExpiredReservations(ctx context.Context) (int64, error) {
	cleared, err := l.repo.ClearExpiredReservations(ctx, l.now())
	if err != nil {
		return 0, fmt.Errorf("sweep expired reservations: %w", err)
	}
	if cleared > 0 {
		l.log.Debug().Int64("cleared", cleared).Msg("expired reservations swept")
	}
	return cleared, nil
}

// AvailableSlots is the availability query contract: sweep expired holds,
// make sure the date's slots exist, then return the free ones in start-time
// order.
func (l *Lifecycle) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]TimeSlot, error) {
	if _, err := l.SweepExpiredReservations(ctx); err != nil {
		return nil, err
	}
	if _, err := l.generator.EnsureSlots(ctx, doctorID, date); err != nil {
		return nil, fmt.Errorf("ensure slots: %w", err)
	}
	return l.repo.ListAvailable(ctx, doctorID, schedule.DateOnly(date), l.now())
}

// Get returns one slot by ID.
func (l *Lifecycle) Get(ctx context.Context, slotID uuid.UUID) (*TimeSlot, error) {
	return l.repo.GetByID(ctx, slotID)
}

// Summary aggregates the doctor's slots per day over [from, to].
func (l *Lifecycle) Summary(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]DaySummary, error) {
	if _, err := l.SweepExpiredReservations(ctx); err != nil {
		return nil, err
	}

	from = schedule.DateOnly(from)
	to = schedule.DateOnly(to)
	now := l.now()

	var summaries []DaySummary
	for date := from; !date.After(to); date = date.AddDate(0, 0, 1) {
		slots, err := l.repo.ListForDate(ctx, doctorID, date)
		if err != nil {
			return nil, fmt.Errorf("list slots for %s: %w", date.Format(time.DateOnly), err)
		}
		day := DaySummary{Date: date, TotalSlots: len(slots), Slots: slots}
		for _, s := range slots {
			if s.IsBooked() {
				day.BookedSlots++
			} else if s.IsFree(now) {
				day.AvailableSlots++
			}
		}
		summaries = append(summaries, day)
	}
	return summaries, nil
}

// transitionError turns a failed conditional update into the caller-facing
// error: unknown slots stay NotFound, everything else means the slot was
// taken.
func (l *Lifecycle) transitionError(ctx context.Context, slotID uuid.UUID, err error) error {
	if !errors.Is(err, ErrNotTransitionable) {
		return err
	}
	if _, getErr := l.repo.GetByID(ctx, slotID); errors.Is(getErr, ErrSlotNotFound) {
		return ErrSlotNotFound
	}
	return ErrSlotUnavailable
}
