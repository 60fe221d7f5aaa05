package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

// monday is a fixed Monday used across resolution tests.
var monday = time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

func seedTemplate(t *testing.T, repo *MemoryRepository, doctorID uuid.UUID, dow int, start, end TimeOfDay, duration int) AvailabilityRule {
	t.Helper()
	rule, err := repo.UpsertTemplate(context.Background(), &AvailabilityRule{
		DoctorID:     doctorID,
		Kind:         KindTemplate,
		DayOfWeek:    &dow,
		StartTime:    start,
		EndTime:      end,
		IsAvailable:  true,
		SlotDuration: duration,
	})
	if err != nil {
		t.Fatalf("seed template: %v", err)
	}
	return *rule
}

func seedException(t *testing.T, repo *MemoryRepository, doctorID uuid.UUID, date time.Time, start, end TimeOfDay, available bool, duration int) AvailabilityRule {
	t.Helper()
	d := DateOnly(date)
	reason := "override"
	rules, err := repo.ReplaceExceptions(context.Background(), doctorID, d, []AvailabilityRule{{
		DoctorID:     doctorID,
		Kind:         KindException,
		SpecificDate: &d,
		StartTime:    start,
		EndTime:      end,
		IsAvailable:  available,
		SlotDuration: duration,
		Reason:       &reason,
	}})
	if err != nil {
		t.Fatalf("seed exception: %v", err)
	}
	return rules[0]
}

func TestResolveTemplatesApplyByWeekday(t *testing.T) {
	repo := NewMemoryRepository()
	resolver := NewResolver(repo)
	doctorID := uuid.New()

	seedTemplate(t, repo, doctorID, int(time.Monday), NewTimeOfDay(9, 0), NewTimeOfDay(12, 0), 30)
	seedTemplate(t, repo, doctorID, int(time.Monday), NewTimeOfDay(13, 0), NewTimeOfDay(17, 0), 30)
	seedTemplate(t, repo, doctorID, int(time.Tuesday), NewTimeOfDay(8, 0), NewTimeOfDay(10, 0), 15)

	periods, err := resolver.Resolve(context.Background(), doctorID, monday)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(periods) != 2 {
		t.Fatalf("expected 2 periods for Monday, got %d", len(periods))
	}
	if periods[0].StartTime != NewTimeOfDay(9, 0) || periods[1].StartTime != NewTimeOfDay(13, 0) {
		t.Fatalf("periods out of order: %v", periods)
	}
}

func TestResolveExceptionReplacesTemplateEntirely(t *testing.T) {
	repo := NewMemoryRepository()
	resolver := NewResolver(repo)
	doctorID := uuid.New()

	seedTemplate(t, repo, doctorID, int(time.Monday), NewTimeOfDay(9, 0), NewTimeOfDay(12, 0), 30)
	seedTemplate(t, repo, doctorID, int(time.Monday), NewTimeOfDay(13, 0), NewTimeOfDay(17, 0), 30)
	seedException(t, repo, doctorID, monday, NewTimeOfDay(10, 0), NewTimeOfDay(11, 0), true, 30)

	periods, err := resolver.Resolve(context.Background(), doctorID, monday)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(periods) != 1 {
		t.Fatalf("exception should suppress all template periods, got %d periods", len(periods))
	}
	if periods[0].StartTime != NewTimeOfDay(10, 0) || periods[0].EndTime != NewTimeOfDay(11, 0) {
		t.Fatalf("unexpected period: %+v", periods[0])
	}
}

func TestResolveUnavailableExceptionBlocksWholeDay(t *testing.T) {
	repo := NewMemoryRepository()
	resolver := NewResolver(repo)
	doctorID := uuid.New()

	seedTemplate(t, repo, doctorID, int(time.Monday), NewTimeOfDay(9, 0), NewTimeOfDay(17, 0), 60)
	seedException(t, repo, doctorID, monday, NewTimeOfDay(0, 0), NewTimeOfDay(23, 59), false, 60)

	periods, err := resolver.Resolve(context.Background(), doctorID, monday)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(periods) != 1 {
		t.Fatalf("expected the single blocking period, got %d", len(periods))
	}
	if periods[0].IsAvailable {
		t.Fatal("blocking exception should resolve as unavailable")
	}
}

func TestResolveExceptionDoesNotLeakToOtherDates(t *testing.T) {
	repo := NewMemoryRepository()
	resolver := NewResolver(repo)
	doctorID := uuid.New()

	seedTemplate(t, repo, doctorID, int(time.Monday), NewTimeOfDay(9, 0), NewTimeOfDay(12, 0), 30)
	seedException(t, repo, doctorID, monday, NewTimeOfDay(0, 0), NewTimeOfDay(23, 59), false, 30)

	nextMonday := monday.AddDate(0, 0, 7)
	periods, err := resolver.Resolve(context.Background(), doctorID, nextMonday)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(periods) != 1 || !periods[0].IsAvailable {
		t.Fatalf("template should govern the following Monday, got %+v", periods)
	}
}

func TestResolveNoRulesMeansDayOff(t *testing.T) {
	repo := NewMemoryRepository()
	resolver := NewResolver(repo)

	periods, err := resolver.Resolve(context.Background(), uuid.New(), monday)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(periods) != 0 {
		t.Fatalf("expected no periods, got %d", len(periods))
	}
}

func TestResolveIgnoresOtherDoctors(t *testing.T) {
	repo := NewMemoryRepository()
	resolver := NewResolver(repo)
	doctorA := uuid.New()
	doctorB := uuid.New()

	seedTemplate(t, repo, doctorA, int(time.Monday), NewTimeOfDay(9, 0), NewTimeOfDay(12, 0), 30)

	periods, err := resolver.Resolve(context.Background(), doctorB, monday)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(periods) != 0 {
		t.Fatalf("doctor B should have no periods, got %d", len(periods))
	}
}
