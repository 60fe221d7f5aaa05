package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medtrack/scheduling-service/internal/schedule"
)

func getAvailabilityHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := GetActor(r.Context())

		templates, exceptions, err := svc.Rules(r.Context(), actor.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{
			Templates:  toRuleResponses(templates),
			Exceptions: toRuleResponses(exceptions),
		})
	}
}

func saveTemplateHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := GetActor(r.Context())

		var req TemplateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		rule, err := svc.SaveTemplate(r.Context(), actor.ID, schedule.TemplateInput{
			DayOfWeek:    req.DayOfWeek,
			StartTime:    req.StartTime,
			EndTime:      req.EndTime,
			IsAvailable:  req.IsAvailable,
			SlotDuration: req.SlotDuration,
		})
		if err != nil {
			handleRuleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toRuleResponse(*rule))
	}
}

func replaceWeeklyTemplateHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := GetActor(r.Context())

		var req WeeklyTemplateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		inputs := make([]schedule.TemplateInput, 0, len(req.Templates))
		for _, t := range req.Templates {
			inputs = append(inputs, schedule.TemplateInput{
				DayOfWeek:    t.DayOfWeek,
				StartTime:    t.StartTime,
				EndTime:      t.EndTime,
				IsAvailable:  t.IsAvailable,
				SlotDuration: t.SlotDuration,
			})
		}

		rules, err := svc.ReplaceWeeklyTemplate(r.Context(), actor.ID, inputs)
		if err != nil {
			handleRuleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toRuleResponses(rules))
	}
}

func setExceptionHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := GetActor(r.Context())

		var req ExceptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		date, err := time.Parse(time.DateOnly, req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		inputs := make([]schedule.ExceptionInput, 0, len(req.Periods))
		for _, p := range req.Periods {
			inputs = append(inputs, schedule.ExceptionInput{
				StartTime:    p.StartTime,
				EndTime:      p.EndTime,
				IsAvailable:  p.IsAvailable,
				SlotDuration: p.SlotDuration,
				Reason:       p.Reason,
			})
		}

		rules, err := svc.SetException(r.Context(), actor.ID, date, inputs)
		if err != nil {
			handleRuleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toRuleResponses(rules))
	}
}

func updateRuleHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := GetActor(r.Context())

		ruleID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_rule_id", "id must be a valid UUID")
			return
		}

		var req UpdateRuleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		rule, err := svc.UpdateRule(r.Context(), actor.ID, ruleID, req.StartTime, req.EndTime, req.IsAvailable, req.SlotDuration, req.Reason)
		if err != nil {
			handleRuleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toRuleResponse(*rule))
	}
}

func deleteRuleHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := GetActor(r.Context())

		ruleID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_rule_id", "id must be a valid UUID")
			return
		}

		if err := svc.DeleteRule(r.Context(), actor.ID, ruleID); err != nil {
			handleRuleError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func handleRuleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrRuleNotFound):
		writeError(w, http.StatusNotFound, "rule_not_found", err.Error())
	case errors.Is(err, schedule.ErrRuleConflict):
		writeError(w, http.StatusConflict, "rule_conflict", err.Error())
	case errors.Is(err, schedule.ErrInvalidRule):
		writeError(w, http.StatusUnprocessableEntity, "invalid_rule", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
