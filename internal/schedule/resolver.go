package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Resolver decides which availability rules govern a doctor's calendar date.
//
// Precedence is a single rule: if any exception exists for the date, the
// exception set completely replaces the weekly template for that date; even
// a lone exception marking the day unavailable suppresses every template
// period. Otherwise the day-of-week templates apply. No rules means the
// doctor is simply off that day.
type Resolver struct {
	repo Repository
}

func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve returns the ordered periods governing the date.
func (r *Resolver) Resolve(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Period, error) {
	date = DateOnly(date)

	exceptions, err := r.repo.ListExceptionsForDate(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list exceptions: %w", err)
	}
	if len(exceptions) > 0 {
		return periodsFromRules(exceptions), nil
	}

	templates, err := r.repo.ListTemplatesForDay(ctx, doctorID, int(date.Weekday()))
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return periodsFromRules(templates), nil
}

func periodsFromRules(rules []AvailabilityRule) []Period {
	periods := make([]Period, 0, len(rules))
	for _, rule := range rules {
		periods = append(periods, Period{
			StartTime:    rule.StartTime,
			EndTime:      rule.EndTime,
			IsAvailable:  rule.IsAvailable,
			SlotDuration: rule.SlotDuration,
		})
	}
	return periods
}
