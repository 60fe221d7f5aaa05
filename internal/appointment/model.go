package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/medtrack/scheduling-service/internal/schedule"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Appointment is a patient's claim on one booked time slot. The slot and the
// appointment reference each other by ID only; the workflow service is the
// single writer of that link.
type Appointment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Date      time.Time
	StartTime schedule.TimeOfDay
	EndTime   schedule.TimeOfDay
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClosingNote carries what the doctor records when finishing a visit. The
// medical record and prescription themselves live with external
// collaborators; this service only emits the creation events.
type ClosingNote struct {
	Notes        string
	Prescription string
}
