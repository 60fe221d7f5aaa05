package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/medtrack/scheduling-service/internal/appointment"
	"github.com/medtrack/scheduling-service/internal/schedule"
	"github.com/medtrack/scheduling-service/internal/slot"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type TemplateRequest struct {
	DayOfWeek    int                `json:"day_of_week"`
	StartTime    schedule.TimeOfDay `json:"start_time"`
	EndTime      schedule.TimeOfDay `json:"end_time"`
	IsAvailable  bool               `json:"is_available"`
	SlotDuration int                `json:"slot_duration"`
}

type WeeklyTemplateRequest struct {
	Templates []TemplateRequest `json:"templates"`
}

type ExceptionPeriodRequest struct {
	StartTime    schedule.TimeOfDay `json:"start_time"`
	EndTime      schedule.TimeOfDay `json:"end_time"`
	IsAvailable  bool               `json:"is_available"`
	SlotDuration int                `json:"slot_duration"`
	Reason       string             `json:"reason"`
}

type ExceptionRequest struct {
	Date    string                   `json:"date"` // YYYY-MM-DD
	Periods []ExceptionPeriodRequest `json:"periods"`
}

type UpdateRuleRequest struct {
	StartTime    schedule.TimeOfDay `json:"start_time"`
	EndTime      schedule.TimeOfDay `json:"end_time"`
	IsAvailable  bool               `json:"is_available"`
	SlotDuration int                `json:"slot_duration"`
	Reason       *string            `json:"reason,omitempty"`
}

type RuleResponse struct {
	ID           uuid.UUID          `json:"id"`
	Kind         schedule.RuleKind  `json:"kind"`
	DayOfWeek    *int               `json:"day_of_week,omitempty"`
	SpecificDate *string            `json:"specific_date,omitempty"`
	StartTime    schedule.TimeOfDay `json:"start_time"`
	EndTime      schedule.TimeOfDay `json:"end_time"`
	IsAvailable  bool               `json:"is_available"`
	SlotDuration int                `json:"slot_duration"`
	Reason       *string            `json:"reason,omitempty"`
}

func toRuleResponse(r schedule.AvailabilityRule) RuleResponse {
	resp := RuleResponse{
		ID:           r.ID,
		Kind:         r.Kind,
		DayOfWeek:    r.DayOfWeek,
		StartTime:    r.StartTime,
		EndTime:      r.EndTime,
		IsAvailable:  r.IsAvailable,
		SlotDuration: r.SlotDuration,
		Reason:       r.Reason,
	}
	if r.SpecificDate != nil {
		d := r.SpecificDate.Format(time.DateOnly)
		resp.SpecificDate = &d
	}
	return resp
}

func toRuleResponses(rules []schedule.AvailabilityRule) []RuleResponse {
	out := make([]RuleResponse, 0, len(rules))
	for _, r := range rules {
		out = append(out, toRuleResponse(r))
	}
	return out
}

type AvailabilityResponse struct {
	Templates  []RuleResponse `json:"templates"`
	Exceptions []RuleResponse `json:"exceptions"`
}

type SlotResponse struct {
	ID        uuid.UUID          `json:"id"`
	DoctorID  uuid.UUID          `json:"doctor_id"`
	Date      string             `json:"date"`
	StartTime schedule.TimeOfDay `json:"start_time"`
	EndTime   schedule.TimeOfDay `json:"end_time"`
}

func toSlotResponse(s slot.TimeSlot) SlotResponse {
	return SlotResponse{
		ID:        s.ID,
		DoctorID:  s.DoctorID,
		Date:      s.Date.Format(time.DateOnly),
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
	}
}

type AvailableSlotsResponse struct {
	AvailableSlots []SlotResponse `json:"available_slots"`
}

type ReserveSlotResponse struct {
	Slot          SlotResponse `json:"slot"`
	ReservedUntil time.Time    `json:"reserved_until"`
}

type DaySummaryResponse struct {
	Date           string             `json:"date"`
	DayOfWeek      int                `json:"day_of_week"`
	TotalSlots     int                `json:"total_slots"`
	AvailableSlots int                `json:"available_slots"`
	BookedSlots    int                `json:"booked_slots"`
	Slots          []SummarySlotEntry `json:"slots"`
}

type SummarySlotEntry struct {
	ID            uuid.UUID          `json:"id"`
	StartTime     schedule.TimeOfDay `json:"start_time"`
	EndTime       schedule.TimeOfDay `json:"end_time"`
	IsAvailable   bool               `json:"is_available"`
	IsBooked      bool               `json:"is_booked"`
	AppointmentID *uuid.UUID         `json:"appointment_id,omitempty"`
}

type CreateAppointmentRequest struct {
	DoctorID   string `json:"doctor_id"`
	TimeSlotID string `json:"time_slot_id"`
}

type FinishAppointmentRequest struct {
	Notes        string `json:"notes"`
	Prescription string `json:"prescription"`
}

type AppointmentResponse struct {
	ID        uuid.UUID          `json:"id"`
	PatientID uuid.UUID          `json:"patient_id"`
	DoctorID  uuid.UUID          `json:"doctor_id"`
	Date      string             `json:"date"`
	StartTime schedule.TimeOfDay `json:"start_time"`
	EndTime   schedule.TimeOfDay `json:"end_time"`
	Status    string             `json:"status"`
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		PatientID: a.PatientID,
		DoctorID:  a.DoctorID,
		Date:      a.Date.Format(time.DateOnly),
		StartTime: a.StartTime,
		EndTime:   a.EndTime,
		Status:    string(a.Status),
	}
}

func toAppointmentResponses(appts []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentResponse(a))
	}
	return out
}
