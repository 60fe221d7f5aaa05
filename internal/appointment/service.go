package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medtrack/scheduling-service/internal/events"
	redisclient "github.com/medtrack/scheduling-service/internal/redis"
	"github.com/medtrack/scheduling-service/internal/slot"
)

var (
	ErrSlotOwnershipMismatch = errors.New("time slot does not belong to the selected doctor")
	ErrInvalidTransition     = errors.New("appointment status does not allow this transition")
	ErrSlotBeingBooked       = errors.New("slot is currently being booked, please retry")
	ErrMissingNotes          = errors.New("notes and prescription are required to finish an appointment")
)

// Slots is the slice of the slot lifecycle the workflow consumes.
// Implemented by *slot.Lifecycle.
type Slots interface {
	Get(ctx context.Context, slotID uuid.UUID) (*slot.TimeSlot, error)
	Book(ctx context.Context, slotID, appointmentID uuid.UUID) (*slot.TimeSlot, error)
	ReleaseByAppointment(ctx context.Context, appointmentID uuid.UUID) error
}

// Service is the appointment state machine:
//
//	pending -> approved -> in_progress -> completed
//	pending -> rejected
//	pending -> (cancelled: row deleted, slot released)
//
// Every transition is applied as a conditional update keyed on the expected
// current status, so a precondition violation or a lost race mutates nothing.
type Service struct {
	repo   Repository
	slots  Slots
	locker redisclient.Locker
	sink   events.Sink
	log    zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, slots Slots, locker redisclient.Locker, sink events.Sink, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		slots:  slots,
		locker: locker,
		sink:   sink,
		log:    log,
		now:    time.Now,
	}
}

// Schedule books the chosen slot for the patient and creates the pending
// appointment. The slot must belong to the requested doctor and must be free
// of bookings and live holds. A per-slot lock narrows the window in which two
// requests race; the conditional book underneath is what actually guarantees
// a single winner.
func (s *Service) Schedule(ctx context.Context, patientID, doctorID, slotID uuid.UUID) (*Appointment, error) {
	chosen, err := s.slots.Get(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if chosen.DoctorID != doctorID {
		return nil, ErrSlotOwnershipMismatch
	}

	var created *Appointment

	err = s.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		appt, err := s.repo.Create(lockCtx, &Appointment{
			PatientID: patientID,
			DoctorID:  doctorID,
			Date:      chosen.Date,
			StartTime: chosen.StartTime,
			EndTime:   chosen.EndTime,
			Status:    StatusPending,
		})
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		if _, err := s.slots.Book(lockCtx, slotID, appt.ID); err != nil {
			// The slot was taken between the read and the book; undo the
			// provisional appointment so it never dangles without a slot.
			if delErr := s.repo.Delete(lockCtx, appt.ID); delErr != nil {
				s.log.Error().Err(delErr).Str("appointment_id", appt.ID.String()).Msg("failed to undo appointment after lost booking race")
			}
			return err
		}

		created = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.emit(ctx, created.ID, events.TypeAppointmentScheduled, map[string]any{
		"patient_id": patientID.String(),
		"doctor_id":  doctorID.String(),
		"slot_id":    slotID.String(),
	})
	return created, nil
}

// Cancel removes the patient's own pending appointment and releases its slot
// back to the pool.
func (s *Service) Cancel(ctx context.Context, patientID, appointmentID uuid.UUID) error {
	appt, err := s.repo.GetByID(ctx, appointmentID)
	if err != nil {
		return err
	}
	if appt.PatientID != patientID {
		return ErrAppointmentNotFound
	}
	if appt.Status != StatusPending {
		return ErrInvalidTransition
	}

	if err := s.slots.ReleaseByAppointment(ctx, appointmentID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, appointmentID); err != nil {
		return err
	}

	s.emit(ctx, appointmentID, events.TypeAppointmentCancelled, map[string]any{
		"patient_id": patientID.String(),
	})
	return nil
}

// Approve moves the doctor's own pending appointment to approved.
func (s *Service) Approve(ctx context.Context, doctorID, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := s.transition(ctx, doctorID, appointmentID, StatusPending, StatusApproved)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, appt.ID, events.TypeAppointmentApproved, nil)
	return appt, nil
}

// Reject moves the doctor's own pending appointment to rejected and frees
// the slot for other patients.
func (s *Service) Reject(ctx context.Context, doctorID, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := s.transition(ctx, doctorID, appointmentID, StatusPending, StatusRejected)
	if err != nil {
		return nil, err
	}
	if err := s.slots.ReleaseByAppointment(ctx, appointmentID); err != nil {
		return nil, err
	}
	s.emit(ctx, appt.ID, events.TypeAppointmentRejected, nil)
	return appt, nil
}

// Start moves the doctor's own approved appointment to in_progress.
func (s *Service) Start(ctx context.Context, doctorID, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := s.transition(ctx, doctorID, appointmentID, StatusApproved, StatusInProgress)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, appt.ID, events.TypeAppointmentStarted, nil)
	return appt, nil
}

// Finish completes an in_progress appointment, emitting exactly one
// medical-record event and one prescription event. The conditional
// in_progress -> completed update is won before anything is emitted, so a
// concurrent double-finish emits once.
func (s *Service) Finish(ctx context.Context, doctorID, appointmentID uuid.UUID, note ClosingNote) (*Appointment, error) {
	if note.Notes == "" || note.Prescription == "" {
		return nil, ErrMissingNotes
	}
	return s.complete(ctx, doctorID, appointmentID, note, "finish")
}

// MarkNoShow completes an in_progress appointment the patient never showed
// up for. The clinical events still fire, with canned content recording the
// absence.
func (s *Service) MarkNoShow(ctx context.Context, doctorID, appointmentID uuid.UUID) (*Appointment, error) {
	note := ClosingNote{
		Notes:        "Patient did not show up for the appointment.",
		Prescription: "No prescription issued. Patient was absent.",
	}
	return s.complete(ctx, doctorID, appointmentID, note, "no_show")
}

func (s *Service) complete(ctx context.Context, doctorID, appointmentID uuid.UUID, note ClosingNote, reason string) (*Appointment, error) {
	appt, err := s.transition(ctx, doctorID, appointmentID, StatusInProgress, StatusCompleted)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, appt.ID, events.TypeMedicalRecordCreate, map[string]any{
		"patient_id": appt.PatientID.String(),
		"notes":      note.Notes,
	})
	s.emit(ctx, appt.ID, events.TypePrescriptionCreate, map[string]any{
		"doctor_id": appt.DoctorID.String(),
		"details":   note.Prescription,
	})
	s.emit(ctx, appt.ID, events.TypeAppointmentCompleted, map[string]any{
		"reason": reason,
	})
	return appt, nil
}

// transition loads the doctor's own appointment, checks the precondition,
// then applies the conditional status update. A CAS that matches no row after
// a successful load means another caller got there first, still an invalid
// transition from this caller's point of view.
func (s *Service) transition(ctx context.Context, doctorID, appointmentID uuid.UUID, from, to Status) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.DoctorID != doctorID {
		return nil, ErrAppointmentNotFound
	}
	if appt.Status != from {
		return nil, ErrInvalidTransition
	}

	updated, err := s.repo.UpdateStatus(ctx, appointmentID, from, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("update status: %w", err)
	}
	return updated, nil
}

// Get returns the appointment if the actor is its patient or doctor.
func (s *Service) Get(ctx context.Context, actorID, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != actorID && appt.DoctorID != actorID {
		return nil, ErrAppointmentNotFound
	}
	return appt, nil
}

// ListForPatient returns the patient's appointments ordered by date.
func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	return s.repo.ListByPatient(ctx, patientID)
}

// ListForDoctor returns the doctor's appointments ordered by date.
func (s *Service) ListForDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	return s.repo.ListByDoctor(ctx, doctorID)
}

func (s *Service) emit(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	ev := events.Event{
		Type:          eventType,
		AppointmentID: appointmentID,
		OccurredAt:    s.now(),
		Payload:       payload,
	}
	if err := s.sink.Publish(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to publish event")
	}
}
