package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medtrack/scheduling-service/internal/slot"
)

func availableSlotsHandler(lifecycle *slot.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorID must be a valid UUID")
			return
		}

		date, err := time.Parse(time.DateOnly, r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date query parameter must be YYYY-MM-DD")
			return
		}

		slots, err := lifecycle.AvailableSlots(r.Context(), doctorID, date)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		out := make([]SlotResponse, 0, len(slots))
		for _, s := range slots {
			out = append(out, toSlotResponse(s))
		}
		writeJSON(w, http.StatusOK, AvailableSlotsResponse{AvailableSlots: out})
	}
}

func reserveSlotHandler(lifecycle *slot.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		reserved, err := lifecycle.Reserve(r.Context(), slotID)
		if err != nil {
			handleSlotError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ReserveSlotResponse{
			Slot:          toSlotResponse(*reserved),
			ReservedUntil: *reserved.ReservedUntil,
		})
	}
}

func scheduleSummaryHandler(lifecycle *slot.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := GetActor(r.Context())

		from, err := time.Parse(time.DateOnly, r.URL.Query().Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "from query parameter must be YYYY-MM-DD")
			return
		}
		to, err := time.Parse(time.DateOnly, r.URL.Query().Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "to query parameter must be YYYY-MM-DD")
			return
		}
		if to.Before(from) {
			writeError(w, http.StatusBadRequest, "invalid_range", "to must not be before from")
			return
		}

		summaries, err := lifecycle.Summary(r.Context(), actor.ID, from, to)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		out := make([]DaySummaryResponse, 0, len(summaries))
		for _, day := range summaries {
			entry := DaySummaryResponse{
				Date:           day.Date.Format(time.DateOnly),
				DayOfWeek:      int(day.Date.Weekday()),
				TotalSlots:     day.TotalSlots,
				AvailableSlots: day.AvailableSlots,
				BookedSlots:    day.BookedSlots,
				Slots:          make([]SummarySlotEntry, 0, len(day.Slots)),
			}
			for _, s := range day.Slots {
				entry.Slots = append(entry.Slots, SummarySlotEntry{
					ID:            s.ID,
					StartTime:     s.StartTime,
					EndTime:       s.EndTime,
					IsAvailable:   s.IsAvailable && !s.IsBooked(),
					IsBooked:      s.IsBooked(),
					AppointmentID: s.AppointmentID,
				})
			}
			out = append(out, entry)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleSlotError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, slot.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, slot.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
