package slot

import (
	"time"

	"github.com/google/uuid"

	"github.com/medtrack/scheduling-service/internal/schedule"
)

// TimeSlot is one discrete bookable interval materialized from a doctor's
// resolved availability. Identity is the (doctor, date, start time) tuple,
// enforced by a unique index; that index is the only compare-and-set
// primitive slot materialization relies on.
//
// States: Free (available, no appointment, no live reservation), Reserved
// (ReservedUntil in the future), Booked (AppointmentID set). A reservation
// decays back to Free on its own once ReservedUntil passes; nothing stored
// records that decay, readers check the clock.
type TimeSlot struct {
	ID            uuid.UUID
	DoctorID      uuid.UUID
	Date          time.Time
	StartTime     schedule.TimeOfDay
	EndTime       schedule.TimeOfDay
	IsAvailable   bool
	AppointmentID *uuid.UUID
	ReservedUntil *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsReserved reports whether the slot holds a live reservation at the given
// instant. This predicate is the only truth about reservation state; the
// stored timestamp is never trusted without the clock.
func (s *TimeSlot) IsReserved(now time.Time) bool {
	return s.ReservedUntil != nil && s.ReservedUntil.After(now)
}

// IsBooked reports whether an appointment occupies the slot.
func (s *TimeSlot) IsBooked() bool {
	return s.AppointmentID != nil
}

// IsFree reports whether the slot can be reserved or booked at the given
// instant.
func (s *TimeSlot) IsFree(now time.Time) bool {
	return s.IsAvailable && !s.IsBooked() && !s.IsReserved(now)
}

// DaySummary aggregates a doctor's slots for one calendar date.
type DaySummary struct {
	Date           time.Time
	TotalSlots     int
	AvailableSlots int
	BookedSlots    int
	Slots          []TimeSlot
}
