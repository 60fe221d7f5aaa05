package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrRuleConflict = errors.New("rule overlaps an existing template for this day")
	ErrInvalidRule  = errors.New("invalid availability rule")
)

const (
	minSlotDuration = 15  // minutes
	maxSlotDuration = 240 // minutes
)

// Regenerator rebuilds a doctor's unbooked future slots after a rule change.
// Implemented by the slot generator; an interface here keeps the dependency
// pointing one way.
type Regenerator interface {
	Regenerate(ctx context.Context, doctorID uuid.UUID, from time.Time) error
}

// Service owns a doctor's availability rules: weekly templates and
// date-specific exceptions. Every mutation triggers slot regeneration from
// today so materialized slots track the declared schedule; booked slots are
// never touched by regeneration.
type Service struct {
	repo  Repository
	regen Regenerator
	log   zerolog.Logger
	now   func() time.Time
}

func NewService(repo Repository, regen Regenerator, log zerolog.Logger) *Service {
	return &Service{
		repo:  repo,
		regen: regen,
		log:   log,
		now:   time.Now,
	}
}

// TemplateInput describes one weekly recurring period.
type TemplateInput struct {
	DayOfWeek    int
	StartTime    TimeOfDay
	EndTime      TimeOfDay
	IsAvailable  bool
	SlotDuration int
}

// ExceptionInput describes one period of a date-specific override.
type ExceptionInput struct {
	StartTime    TimeOfDay
	EndTime      TimeOfDay
	IsAvailable  bool
	SlotDuration int
	Reason       string
}

// Rules returns the doctor's weekly templates plus exceptions for today and
// later. Past exceptions are kept in storage but not reported here.
func (s *Service) Rules(ctx context.Context, doctorID uuid.UUID) (templates, exceptions []AvailabilityRule, err error) {
	templates, err = s.repo.ListTemplates(ctx, doctorID)
	if err != nil {
		return nil, nil, fmt.Errorf("list templates: %w", err)
	}
	exceptions, err = s.repo.ListExceptionsFrom(ctx, doctorID, DateOnly(s.now()))
	if err != nil {
		return nil, nil, fmt.Errorf("list exceptions: %w", err)
	}
	return templates, exceptions, nil
}

// SaveTemplate creates or updates the weekly template period keyed by
// (doctor, day-of-week, start time). Overlapping another template on the same
// day fails with ErrRuleConflict.
func (s *Service) SaveTemplate(ctx context.Context, doctorID uuid.UUID, in TemplateInput) (*AvailabilityRule, error) {
	if in.DayOfWeek < 0 || in.DayOfWeek > 6 {
		return nil, fmt.Errorf("%w: day_of_week must be 0-6", ErrInvalidRule)
	}
	if err := validatePeriod(in.StartTime, in.EndTime, in.IsAvailable, in.SlotDuration); err != nil {
		return nil, err
	}

	existing, err := s.repo.ListTemplatesForDay(ctx, doctorID, in.DayOfWeek)
	if err != nil {
		return nil, fmt.Errorf("list templates for day: %w", err)
	}
	for _, rule := range existing {
		if rule.StartTime == in.StartTime {
			continue // same key, this is an update
		}
		if Overlaps(in.StartTime, in.EndTime, rule.StartTime, rule.EndTime) {
			return nil, ErrRuleConflict
		}
	}

	dow := in.DayOfWeek
	rule, err := s.repo.UpsertTemplate(ctx, &AvailabilityRule{
		DoctorID:     doctorID,
		Kind:         KindTemplate,
		DayOfWeek:    &dow,
		StartTime:    in.StartTime,
		EndTime:      in.EndTime,
		IsAvailable:  in.IsAvailable,
		SlotDuration: in.SlotDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert template: %w", err)
	}

	if err := s.regenerate(ctx, doctorID); err != nil {
		return nil, err
	}
	return rule, nil
}

// ReplaceWeeklyTemplate swaps the doctor's entire weekly template in one
// transaction. Inputs must not overlap within a day.
func (s *Service) ReplaceWeeklyTemplate(ctx context.Context, doctorID uuid.UUID, inputs []TemplateInput) ([]AvailabilityRule, error) {
	rules := make([]AvailabilityRule, 0, len(inputs))
	for i, in := range inputs {
		if in.DayOfWeek < 0 || in.DayOfWeek > 6 {
			return nil, fmt.Errorf("%w: day_of_week must be 0-6", ErrInvalidRule)
		}
		if err := validatePeriod(in.StartTime, in.EndTime, in.IsAvailable, in.SlotDuration); err != nil {
			return nil, err
		}
		for _, prev := range inputs[:i] {
			if prev.DayOfWeek == in.DayOfWeek && Overlaps(in.StartTime, in.EndTime, prev.StartTime, prev.EndTime) {
				return nil, ErrRuleConflict
			}
		}
		dow := in.DayOfWeek
		rules = append(rules, AvailabilityRule{
			DoctorID:     doctorID,
			Kind:         KindTemplate,
			DayOfWeek:    &dow,
			StartTime:    in.StartTime,
			EndTime:      in.EndTime,
			IsAvailable:  in.IsAvailable,
			SlotDuration: in.SlotDuration,
		})
	}

	saved, err := s.repo.ReplaceTemplates(ctx, doctorID, rules)
	if err != nil {
		return nil, fmt.Errorf("replace templates: %w", err)
	}
	if err := s.regenerate(ctx, doctorID); err != nil {
		return nil, err
	}
	return saved, nil
}

// SetException replaces the doctor's exception set for one date. The swap is
// atomic: the previous set for that date is gone the moment the new one
// lands, so resolution never sees a mix of old and new periods.
func (s *Service) SetException(ctx context.Context, doctorID uuid.UUID, date time.Time, inputs []ExceptionInput) ([]AvailabilityRule, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: an exception needs at least one period", ErrInvalidRule)
	}
	date = DateOnly(date)

	rules := make([]AvailabilityRule, 0, len(inputs))
	for i, in := range inputs {
		if err := validatePeriod(in.StartTime, in.EndTime, in.IsAvailable, in.SlotDuration); err != nil {
			return nil, err
		}
		if in.Reason == "" {
			return nil, fmt.Errorf("%w: exception reason is required", ErrInvalidRule)
		}
		for _, prev := range inputs[:i] {
			if Overlaps(in.StartTime, in.EndTime, prev.StartTime, prev.EndTime) {
				return nil, ErrRuleConflict
			}
		}
		d := date
		reason := in.Reason
		rules = append(rules, AvailabilityRule{
			DoctorID:     doctorID,
			Kind:         KindException,
			SpecificDate: &d,
			StartTime:    in.StartTime,
			EndTime:      in.EndTime,
			IsAvailable:  in.IsAvailable,
			SlotDuration: in.SlotDuration,
			Reason:       &reason,
		})
	}

	saved, err := s.repo.ReplaceExceptions(ctx, doctorID, date, rules)
	if err != nil {
		return nil, fmt.Errorf("replace exceptions: %w", err)
	}
	if err := s.regenerate(ctx, doctorID); err != nil {
		return nil, err
	}
	return saved, nil
}

// UpdateRule edits one rule in place. The rule must belong to the doctor;
// rules owned by someone else are reported as not found.
func (s *Service) UpdateRule(ctx context.Context, doctorID, ruleID uuid.UUID, start, end TimeOfDay, isAvailable bool, slotDuration int, reason *string) (*AvailabilityRule, error) {
	rule, err := s.repo.GetRuleByID(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if rule.DoctorID != doctorID {
		return nil, ErrRuleNotFound
	}
	if err := validatePeriod(start, end, isAvailable, slotDuration); err != nil {
		return nil, err
	}

	if rule.Kind == KindTemplate {
		siblings, err := s.repo.ListTemplatesForDay(ctx, doctorID, *rule.DayOfWeek)
		if err != nil {
			return nil, fmt.Errorf("list templates for day: %w", err)
		}
		for _, sib := range siblings {
			if sib.ID == rule.ID {
				continue
			}
			if Overlaps(start, end, sib.StartTime, sib.EndTime) {
				return nil, ErrRuleConflict
			}
		}
	}

	rule.StartTime = start
	rule.EndTime = end
	rule.IsAvailable = isAvailable
	rule.SlotDuration = slotDuration
	if reason != nil {
		rule.Reason = reason
	}

	updated, err := s.repo.UpdateRule(ctx, rule)
	if err != nil {
		return nil, fmt.Errorf("update rule: %w", err)
	}
	if err := s.regenerate(ctx, doctorID); err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteRule removes one rule owned by the doctor.
func (s *Service) DeleteRule(ctx context.Context, doctorID, ruleID uuid.UUID) error {
	rule, err := s.repo.GetRuleByID(ctx, ruleID)
	if err != nil {
		return err
	}
	if rule.DoctorID != doctorID {
		return ErrRuleNotFound
	}
	if err := s.repo.DeleteRule(ctx, ruleID); err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return s.regenerate(ctx, doctorID)
}

func (s *Service) regenerate(ctx context.Context, doctorID uuid.UUID) error {
	from := DateOnly(s.now())
	if err := s.regen.Regenerate(ctx, doctorID, from); err != nil {
		s.log.Error().Err(err).Str("doctor_id", doctorID.String()).Msg("slot regeneration failed after rule change")
		return fmt.Errorf("regenerate slots: %w", err)
	}
	return nil
}

func validatePeriod(start, end TimeOfDay, isAvailable bool, slotDuration int) error {
	if end <= start {
		return fmt.Errorf("%w: end_time must be after start_time", ErrInvalidRule)
	}
	if isAvailable && (slotDuration < minSlotDuration || slotDuration > maxSlotDuration) {
		return fmt.Errorf("%w: slot_duration must be %d-%d minutes", ErrInvalidRule, minSlotDuration, maxSlotDuration)
	}
	return nil
}
