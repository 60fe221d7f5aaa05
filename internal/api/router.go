package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medtrack/scheduling-service/internal/appointment"
	"github.com/medtrack/scheduling-service/internal/schedule"
	"github.com/medtrack/scheduling-service/internal/slot"
)

type RouterConfig struct {
	Schedule     *schedule.Service
	Slots        *slot.Lifecycle
	Appointments *appointment.Service
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	JWTSecret    string
	Env          string
	Version      string
	Logger       zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		// Doctor: availability rule management and schedule overview.
		r.Group(func(r chi.Router) {
			r.Use(RequireRole(RoleDoctor))
			r.Get("/availability", getAvailabilityHandler(cfg.Schedule))
			r.Post("/availability/templates", saveTemplateHandler(cfg.Schedule))
			r.Put("/availability/templates", replaceWeeklyTemplateHandler(cfg.Schedule))
			r.Put("/availability/exceptions", setExceptionHandler(cfg.Schedule))
			r.Patch("/availability/rules/{id}", updateRuleHandler(cfg.Schedule))
			r.Delete("/availability/rules/{id}", deleteRuleHandler(cfg.Schedule))
			r.Get("/schedule/summary", scheduleSummaryHandler(cfg.Slots))
		})

		// Patient: slot discovery and booking.
		r.Group(func(r chi.Router) {
			r.Use(RequireRole(RolePatient))
			r.Get("/doctors/{doctorID}/slots", availableSlotsHandler(cfg.Slots))
			r.Post("/slots/{id}/reserve", reserveSlotHandler(cfg.Slots))
			r.Post("/appointments", createAppointmentHandler(cfg.Appointments))
			r.Delete("/appointments/{id}", cancelAppointmentHandler(cfg.Appointments))
		})

		// Either role: view appointments.
		r.Get("/appointments", listAppointmentsHandler(cfg.Appointments))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments))

		// Doctor: appointment workflow transitions.
		r.Group(func(r chi.Router) {
			r.Use(RequireRole(RoleDoctor))
			r.Post("/appointments/{id}/approve", transitionHandler(func(r *http.Request, doctorID, id uuid.UUID) (*appointment.Appointment, error) {
				return cfg.Appointments.Approve(r.Context(), doctorID, id)
			}))
			r.Post("/appointments/{id}/reject", transitionHandler(func(r *http.Request, doctorID, id uuid.UUID) (*appointment.Appointment, error) {
				return cfg.Appointments.Reject(r.Context(), doctorID, id)
			}))
			r.Post("/appointments/{id}/start", transitionHandler(func(r *http.Request, doctorID, id uuid.UUID) (*appointment.Appointment, error) {
				return cfg.Appointments.Start(r.Context(), doctorID, id)
			}))
			r.Post("/appointments/{id}/finish", finishAppointmentHandler(cfg.Appointments))
			r.Post("/appointments/{id}/no-show", transitionHandler(func(r *http.Request, doctorID, id uuid.UUID) (*appointment.Appointment, error) {
				return cfg.Appointments.MarkNoShow(r.Context(), doctorID, id)
			}))
		})
	})

	return r
}
