package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medtrack/scheduling-service/internal/appointment"
	"github.com/medtrack/scheduling-service/internal/events"
	redisclient "github.com/medtrack/scheduling-service/internal/redis"
	"github.com/medtrack/scheduling-service/internal/schedule"
	"github.com/medtrack/scheduling-service/internal/slot"
)

const testSecret = "router-test-secret"

type testEnv struct {
	server       *httptest.Server
	doctorID     uuid.UUID
	patientID    uuid.UUID
	doctorToken  string
	patientToken string
}

// newTestEnv wires the full router over in-memory storage, with one doctor
// and one patient identity ready to authenticate as.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	scheduleRepo := schedule.NewMemoryRepository()
	slotRepo := slot.NewMemoryRepository()
	resolver := schedule.NewResolver(scheduleRepo)
	generator := slot.NewGenerator(slotRepo, resolver, 30, zerolog.Nop())
	lifecycle := slot.NewLifecycle(slotRepo, generator, 15*time.Minute, zerolog.Nop())
	scheduleSvc := schedule.NewService(scheduleRepo, generator, zerolog.Nop())
	apptSvc := appointment.NewService(appointment.NewMemoryRepository(), lifecycle, redisclient.NopLocker{}, events.Discard{}, zerolog.Nop())

	router := NewRouter(RouterConfig{
		Schedule:     scheduleSvc,
		Slots:        lifecycle,
		Appointments: apptSvc,
		JWTSecret:    testSecret,
		Env:          "test",
		Version:      "test",
		Logger:       zerolog.Nop(),
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	doctorID := uuid.New()
	patientID := uuid.New()
	doctorToken, err := NewToken(doctorID, RoleDoctor, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("mint doctor token: %v", err)
	}
	patientToken, err := NewToken(patientID, RolePatient, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("mint patient token: %v", err)
	}

	return &testEnv{
		server:       server,
		doctorID:     doctorID,
		patientID:    patientID,
		doctorToken:  doctorToken,
		patientToken: patientToken,
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("status %d, want %d", resp.StatusCode, want)
	}
}

// nextWeekday finds the next future date falling on the given weekday, so
// slot materialization (which starts today) always covers it.
func nextWeekday(day time.Weekday) string {
	d := time.Now().AddDate(0, 0, 1)
	for d.Weekday() != day {
		d = d.AddDate(0, 0, 1)
	}
	return d.Format(time.DateOnly)
}

func (e *testEnv) saveTemplate(t *testing.T, dow int) {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/availability/templates", e.doctorToken, TemplateRequest{
		DayOfWeek:    dow,
		StartTime:    schedule.NewTimeOfDay(9, 0),
		EndTime:      schedule.NewTimeOfDay(12, 0),
		IsAvailable:  true,
		SlotDuration: 60,
	})
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func TestRouterRejectsMissingAndInvalidTokens(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodGet, "/appointments", "", nil)
	requireStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	resp = e.do(t, http.MethodGet, "/appointments", "not-a-jwt", nil)
	requireStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()
}

func TestRouterEnforcesRoles(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodGet, "/availability", e.patientToken, nil)
	requireStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = e.do(t, http.MethodPost, "/appointments", e.doctorToken, CreateAppointmentRequest{
		DoctorID:   e.doctorID.String(),
		TimeSlotID: uuid.New().String(),
	})
	requireStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()
}

func TestHealthIsUnauthenticated(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodGet, "/health/live", "", nil)
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func TestAvailabilityRoundTrip(t *testing.T) {
	e := newTestEnv(t)
	e.saveTemplate(t, int(time.Monday))

	resp := e.do(t, http.MethodGet, "/availability", e.doctorToken, nil)
	requireStatus(t, resp, http.StatusOK)
	avail := decode[AvailabilityResponse](t, resp)
	if len(avail.Templates) != 1 {
		t.Fatalf("expected 1 template, got %d", len(avail.Templates))
	}
	if avail.Templates[0].StartTime != schedule.NewTimeOfDay(9, 0) {
		t.Fatalf("unexpected template: %+v", avail.Templates[0])
	}
}

func TestSaveTemplateConflict(t *testing.T) {
	e := newTestEnv(t)
	e.saveTemplate(t, int(time.Monday))

	resp := e.do(t, http.MethodPost, "/availability/templates", e.doctorToken, TemplateRequest{
		DayOfWeek:    int(time.Monday),
		StartTime:    schedule.NewTimeOfDay(11, 0),
		EndTime:      schedule.NewTimeOfDay(13, 0),
		IsAvailable:  true,
		SlotDuration: 60,
	})
	requireStatus(t, resp, http.StatusConflict)
	resp.Body.Close()
}

func TestBookingFlowOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	e.saveTemplate(t, int(time.Monday))
	date := nextWeekday(time.Monday)

	resp := e.do(t, http.MethodGet, fmt.Sprintf("/doctors/%s/slots?date=%s", e.doctorID, date), e.patientToken, nil)
	requireStatus(t, resp, http.StatusOK)
	listing := decode[AvailableSlotsResponse](t, resp)
	if len(listing.AvailableSlots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(listing.AvailableSlots))
	}
	chosen := listing.AvailableSlots[1]

	resp = e.do(t, http.MethodPost, "/appointments", e.patientToken, CreateAppointmentRequest{
		DoctorID:   e.doctorID.String(),
		TimeSlotID: chosen.ID.String(),
	})
	requireStatus(t, resp, http.StatusCreated)
	appt := decode[AppointmentResponse](t, resp)
	if appt.Status != "pending" {
		t.Fatalf("expected pending, got %s", appt.Status)
	}

	// The booked slot disappears; booking it again conflicts.
	resp = e.do(t, http.MethodGet, fmt.Sprintf("/doctors/%s/slots?date=%s", e.doctorID, date), e.patientToken, nil)
	requireStatus(t, resp, http.StatusOK)
	after := decode[AvailableSlotsResponse](t, resp)
	if len(after.AvailableSlots) != 2 {
		t.Fatalf("expected 2 slots after booking, got %d", len(after.AvailableSlots))
	}
	resp = e.do(t, http.MethodPost, "/appointments", e.patientToken, CreateAppointmentRequest{
		DoctorID:   e.doctorID.String(),
		TimeSlotID: chosen.ID.String(),
	})
	requireStatus(t, resp, http.StatusConflict)
	resp.Body.Close()

	// Doctor runs the visit to completion.
	for _, step := range []string{"approve", "start"} {
		resp = e.do(t, http.MethodPost, fmt.Sprintf("/appointments/%s/%s", appt.ID, step), e.doctorToken, nil)
		requireStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	}
	resp = e.do(t, http.MethodPost, fmt.Sprintf("/appointments/%s/finish", appt.ID), e.doctorToken, FinishAppointmentRequest{
		Notes:        "All good.",
		Prescription: "Rest and fluids.",
	})
	requireStatus(t, resp, http.StatusOK)
	final := decode[AppointmentResponse](t, resp)
	if final.Status != "completed" {
		t.Fatalf("expected completed, got %s", final.Status)
	}
}

func TestCancelAppointmentOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	e.saveTemplate(t, int(time.Tuesday))
	date := nextWeekday(time.Tuesday)

	resp := e.do(t, http.MethodGet, fmt.Sprintf("/doctors/%s/slots?date=%s", e.doctorID, date), e.patientToken, nil)
	requireStatus(t, resp, http.StatusOK)
	listing := decode[AvailableSlotsResponse](t, resp)

	resp = e.do(t, http.MethodPost, "/appointments", e.patientToken, CreateAppointmentRequest{
		DoctorID:   e.doctorID.String(),
		TimeSlotID: listing.AvailableSlots[0].ID.String(),
	})
	requireStatus(t, resp, http.StatusCreated)
	appt := decode[AppointmentResponse](t, resp)

	resp = e.do(t, http.MethodDelete, fmt.Sprintf("/appointments/%s", appt.ID), e.patientToken, nil)
	requireStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	resp = e.do(t, http.MethodGet, fmt.Sprintf("/doctors/%s/slots?date=%s", e.doctorID, date), e.patientToken, nil)
	requireStatus(t, resp, http.StatusOK)
	after := decode[AvailableSlotsResponse](t, resp)
	if len(after.AvailableSlots) != 3 {
		t.Fatalf("cancelled slot should be bookable again, got %d slots", len(after.AvailableSlots))
	}
}

func TestInvalidTransitionOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	e.saveTemplate(t, int(time.Wednesday))
	date := nextWeekday(time.Wednesday)

	resp := e.do(t, http.MethodGet, fmt.Sprintf("/doctors/%s/slots?date=%s", e.doctorID, date), e.patientToken, nil)
	requireStatus(t, resp, http.StatusOK)
	listing := decode[AvailableSlotsResponse](t, resp)

	resp = e.do(t, http.MethodPost, "/appointments", e.patientToken, CreateAppointmentRequest{
		DoctorID:   e.doctorID.String(),
		TimeSlotID: listing.AvailableSlots[0].ID.String(),
	})
	requireStatus(t, resp, http.StatusCreated)
	appt := decode[AppointmentResponse](t, resp)

	// pending -> in_progress is not a legal move.
	resp = e.do(t, http.MethodPost, fmt.Sprintf("/appointments/%s/start", appt.ID), e.doctorToken, nil)
	requireStatus(t, resp, http.StatusConflict)
	resp.Body.Close()
}

func TestReserveSlotOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	e.saveTemplate(t, int(time.Thursday))
	date := nextWeekday(time.Thursday)

	resp := e.do(t, http.MethodGet, fmt.Sprintf("/doctors/%s/slots?date=%s", e.doctorID, date), e.patientToken, nil)
	requireStatus(t, resp, http.StatusOK)
	listing := decode[AvailableSlotsResponse](t, resp)
	target := listing.AvailableSlots[0].ID

	resp = e.do(t, http.MethodPost, fmt.Sprintf("/slots/%s/reserve", target), e.patientToken, nil)
	requireStatus(t, resp, http.StatusOK)
	reserved := decode[ReserveSlotResponse](t, resp)
	if reserved.ReservedUntil.Before(time.Now()) {
		t.Fatalf("hold deadline already passed: %s", reserved.ReservedUntil)
	}

	resp = e.do(t, http.MethodPost, fmt.Sprintf("/slots/%s/reserve", target), e.patientToken, nil)
	requireStatus(t, resp, http.StatusConflict)
	resp.Body.Close()
}

func TestScheduleSummaryOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	e.saveTemplate(t, int(time.Friday))
	date := nextWeekday(time.Friday)

	resp := e.do(t, http.MethodGet, fmt.Sprintf("/doctors/%s/slots?date=%s", e.doctorID, date), e.patientToken, nil)
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = e.do(t, http.MethodGet, fmt.Sprintf("/schedule/summary?from=%s&to=%s", date, date), e.doctorToken, nil)
	requireStatus(t, resp, http.StatusOK)
	summary := decode[[]DaySummaryResponse](t, resp)
	if len(summary) != 1 {
		t.Fatalf("expected 1 day, got %d", len(summary))
	}
	if summary[0].TotalSlots != 3 || summary[0].AvailableSlots != 3 {
		t.Fatalf("unexpected summary: %+v", summary[0])
	}
}
