package slot

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/medtrack/scheduling-service/internal/schedule"
)

var (
	ErrSlotNotFound = errors.New("slot not found")

	// ErrDuplicateSlot is the structural duplicate-key kind every backend
	// raises when a concurrent creation loses the race on the
	// (doctor, date, start time) identity. The generator recovers from it
	// by re-fetching the winning row; it never reaches callers.
	ErrDuplicateSlot = errors.New("slot already exists for this doctor, date and start time")

	// ErrNotTransitionable signals that a conditional state update matched
	// no row: the slot either does not exist or is no longer in the state
	// the transition requires. Callers distinguish the two with a follow-up
	// read.
	ErrNotTransitionable = errors.New("slot is not in a state allowing this transition")
)

// Repository contains all DB interactions needed by the generator and the
// lifecycle manager. Reserve and Book are conditional updates keyed on the
// slot's current state; they must never be implemented as read-then-write.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*TimeSlot, error)
	GetByTuple(ctx context.Context, doctorID uuid.UUID, date time.Time, start schedule.TimeOfDay) (*TimeSlot, error)
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*TimeSlot, error)

	// Create inserts a new free slot; a lost race on the identity tuple
	// surfaces as ErrDuplicateSlot.
	Create(ctx context.Context, s *TimeSlot) (*TimeSlot, error)

	ListForDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]TimeSlot, error)
	ListAvailable(ctx context.Context, doctorID uuid.UUID, date time.Time, now time.Time) ([]TimeSlot, error)

	// Conditional transitions; ErrNotTransitionable when no row qualifies.
	Reserve(ctx context.Context, id uuid.UUID, until time.Time, now time.Time) (*TimeSlot, error)
	Book(ctx context.Context, id, appointmentID uuid.UUID, now time.Time) (*TimeSlot, error)
	Release(ctx context.Context, id uuid.UUID) (*TimeSlot, error)

	ClearExpiredReservations(ctx context.Context, now time.Time) (int64, error)
	DeleteUnbookedFrom(ctx context.Context, doctorID uuid.UUID, from time.Time) (int64, error)
}
