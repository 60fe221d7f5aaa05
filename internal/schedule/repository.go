package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrRuleNotFound = errors.New("availability rule not found")

// Repository contains all DB interactions needed by the schedule service and
// the rule resolver.
type Repository interface {
	GetRuleByID(ctx context.Context, id uuid.UUID) (*AvailabilityRule, error)

	// Resolution lookups, both ordered by start time.
	ListTemplatesForDay(ctx context.Context, doctorID uuid.UUID, dayOfWeek int) ([]AvailabilityRule, error)
	ListExceptionsForDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]AvailabilityRule, error)

	// Rule management for a doctor's own schedule.
	ListTemplates(ctx context.Context, doctorID uuid.UUID) ([]AvailabilityRule, error)
	ListExceptionsFrom(ctx context.Context, doctorID uuid.UUID, from time.Time) ([]AvailabilityRule, error)
	UpsertTemplate(ctx context.Context, rule *AvailabilityRule) (*AvailabilityRule, error)
	ReplaceTemplates(ctx context.Context, doctorID uuid.UUID, rules []AvailabilityRule) ([]AvailabilityRule, error)
	ReplaceExceptions(ctx context.Context, doctorID uuid.UUID, date time.Time, rules []AvailabilityRule) ([]AvailabilityRule, error)
	UpdateRule(ctx context.Context, rule *AvailabilityRule) (*AvailabilityRule, error)
	DeleteRule(ctx context.Context, id uuid.UUID) error
}
