package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a mutex-guarded in-memory Repository used by tests and
// local experiments.
type MemoryRepository struct {
	mu    sync.Mutex
	rules map[uuid.UUID]AvailabilityRule
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rules: make(map[uuid.UUID]AvailabilityRule)}
}

func (m *MemoryRepository) GetRuleByID(_ context.Context, id uuid.UUID) (*AvailabilityRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rule, ok := m.rules[id]
	if !ok {
		return nil, ErrRuleNotFound
	}
	return &rule, nil
}

func (m *MemoryRepository) ListTemplatesForDay(_ context.Context, doctorID uuid.UUID, dayOfWeek int) ([]AvailabilityRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []AvailabilityRule
	for _, rule := range m.rules {
		if rule.DoctorID == doctorID && rule.Kind == KindTemplate && rule.DayOfWeek != nil && *rule.DayOfWeek == dayOfWeek {
			result = append(result, rule)
		}
	}
	sortByStart(result)
	return result, nil
}

func (m *MemoryRepository) ListExceptionsForDate(_ context.Context, doctorID uuid.UUID, date time.Time) ([]AvailabilityRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []AvailabilityRule
	for _, rule := range m.rules {
		if rule.DoctorID == doctorID && rule.Kind == KindException && rule.SpecificDate != nil && sameDay(*rule.SpecificDate, date) {
			result = append(result, rule)
		}
	}
	sortByStart(result)
	return result, nil
}

func (m *MemoryRepository) ListTemplates(_ context.Context, doctorID uuid.UUID) ([]AvailabilityRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []AvailabilityRule
	for _, rule := range m.rules {
		if rule.DoctorID == doctorID && rule.Kind == KindTemplate {
			result = append(result, rule)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if *result[i].DayOfWeek != *result[j].DayOfWeek {
			return *result[i].DayOfWeek < *result[j].DayOfWeek
		}
		return result[i].StartTime < result[j].StartTime
	})
	return result, nil
}

func (m *MemoryRepository) ListExceptionsFrom(_ context.Context, doctorID uuid.UUID, from time.Time) ([]AvailabilityRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fromDay := from.Format(time.DateOnly)
	var result []AvailabilityRule
	for _, rule := range m.rules {
		if rule.DoctorID == doctorID && rule.Kind == KindException && rule.SpecificDate != nil && rule.SpecificDate.Format(time.DateOnly) >= fromDay {
			result = append(result, rule)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].SpecificDate.Equal(*result[j].SpecificDate) {
			return result[i].SpecificDate.Before(*result[j].SpecificDate)
		}
		return result[i].StartTime < result[j].StartTime
	})
	return result, nil
}

func (m *MemoryRepository) UpsertTemplate(_ context.Context, rule *AvailabilityRule) (*AvailabilityRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, existing := range m.rules {
		if existing.DoctorID == rule.DoctorID && existing.Kind == KindTemplate &&
			*existing.DayOfWeek == *rule.DayOfWeek && existing.StartTime == rule.StartTime {
			existing.EndTime = rule.EndTime
			existing.IsAvailable = rule.IsAvailable
			existing.SlotDuration = rule.SlotDuration
			existing.Reason = rule.Reason
			existing.UpdatedAt = time.Now()
			m.rules[id] = existing
			return &existing, nil
		}
	}

	saved := m.store(*rule)
	return &saved, nil
}

func (m *MemoryRepository) ReplaceTemplates(_ context.Context, doctorID uuid.UUID, rules []AvailabilityRule) ([]AvailabilityRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, existing := range m.rules {
		if existing.DoctorID == doctorID && existing.Kind == KindTemplate {
			delete(m.rules, id)
		}
	}

	saved := make([]AvailabilityRule, 0, len(rules))
	for _, rule := range rules {
		saved = append(saved, m.store(rule))
	}
	return saved, nil
}

func (m *MemoryRepository) ReplaceExceptions(_ context.Context, doctorID uuid.UUID, date time.Time, rules []AvailabilityRule) ([]AvailabilityRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, existing := range m.rules {
		if existing.DoctorID == doctorID && existing.Kind == KindException && sameDay(*existing.SpecificDate, date) {
			delete(m.rules, id)
		}
	}

	saved := make([]AvailabilityRule, 0, len(rules))
	for _, rule := range rules {
		saved = append(saved, m.store(rule))
	}
	return saved, nil
}

func (m *MemoryRepository) UpdateRule(_ context.Context, rule *AvailabilityRule) (*AvailabilityRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.rules[rule.ID]
	if !ok {
		return nil, ErrRuleNotFound
	}
	existing.StartTime = rule.StartTime
	existing.EndTime = rule.EndTime
	existing.IsAvailable = rule.IsAvailable
	existing.SlotDuration = rule.SlotDuration
	existing.Reason = rule.Reason
	existing.UpdatedAt = time.Now()
	m.rules[rule.ID] = existing
	return &existing, nil
}

func (m *MemoryRepository) DeleteRule(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rules[id]; !ok {
		return ErrRuleNotFound
	}
	delete(m.rules, id)
	return nil
}

// store assumes m.mu is held.
func (m *MemoryRepository) store(rule AvailabilityRule) AvailabilityRule {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	m.rules[rule.ID] = rule
	return rule
}

// sameDay compares calendar dates, ignoring location.
func sameDay(a, b time.Time) bool {
	return a.Format(time.DateOnly) == b.Format(time.DateOnly)
}

func sortByStart(rules []AvailabilityRule) {
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].StartTime < rules[j].StartTime
	})
}
