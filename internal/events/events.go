// Package events carries the side effects the scheduling core emits to
// external collaborators: medical-record and prescription creation on
// terminal appointment transitions, plus the appointment lifecycle audit
// trail.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	TypeAppointmentScheduled = "APPOINTMENT_SCHEDULED"
	TypeAppointmentApproved  = "APPOINTMENT_APPROVED"
	TypeAppointmentRejected  = "APPOINTMENT_REJECTED"
	TypeAppointmentCancelled = "APPOINTMENT_CANCELLED"
	TypeAppointmentStarted   = "APPOINTMENT_STARTED"
	TypeAppointmentCompleted = "APPOINTMENT_COMPLETED"

	TypeMedicalRecordCreate = "MEDICAL_RECORD_CREATE"
	TypePrescriptionCreate  = "PRESCRIPTION_CREATE"
)

type Event struct {
	Type          string         `json:"type"`
	AppointmentID uuid.UUID      `json:"appointment_id"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// Sink receives emitted events. Implementations must tolerate redelivery of
// lifecycle events but will see each clinical side-effect event exactly once
// per terminal transition.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// Fanout publishes to every sink, returning the first error after trying all
// of them.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, ev Event) error {
	var firstErr error
	for _, sink := range f {
		if err := sink.Publish(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Discard drops everything. Useful in tests.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
