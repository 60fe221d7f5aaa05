package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// recordingRegenerator counts regeneration triggers and captures the last
// starting date.
type recordingRegenerator struct {
	calls int
	from  time.Time
	err   error
}

func (r *recordingRegenerator) Regenerate(_ context.Context, _ uuid.UUID, from time.Time) error {
	r.calls++
	r.from = from
	return r.err
}

func newTestService(repo Repository, regen Regenerator) *Service {
	svc := NewService(repo, regen, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2025, 9, 1, 10, 30, 0, 0, time.UTC) }
	return svc
}

func TestSaveTemplateTriggersRegeneration(t *testing.T) {
	repo := NewMemoryRepository()
	regen := &recordingRegenerator{}
	svc := newTestService(repo, regen)
	doctorID := uuid.New()

	rule, err := svc.SaveTemplate(context.Background(), doctorID, TemplateInput{
		DayOfWeek:    1,
		StartTime:    NewTimeOfDay(9, 0),
		EndTime:      NewTimeOfDay(12, 0),
		IsAvailable:  true,
		SlotDuration: 30,
	})
	if err != nil {
		t.Fatalf("save template: %v", err)
	}
	if rule.ID == uuid.Nil {
		t.Fatal("expected a persisted rule with an ID")
	}
	if regen.calls != 1 {
		t.Fatalf("expected 1 regeneration, got %d", regen.calls)
	}
	want := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	if !regen.from.Equal(want) {
		t.Fatalf("regeneration should start today: got %s want %s", regen.from, want)
	}
}

func TestSaveTemplateRejectsOverlap(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, &recordingRegenerator{})
	doctorID := uuid.New()

	if _, err := svc.SaveTemplate(context.Background(), doctorID, TemplateInput{
		DayOfWeek: 1, StartTime: NewTimeOfDay(9, 0), EndTime: NewTimeOfDay(12, 0), IsAvailable: true, SlotDuration: 30,
	}); err != nil {
		t.Fatalf("save first template: %v", err)
	}

	_, err := svc.SaveTemplate(context.Background(), doctorID, TemplateInput{
		DayOfWeek: 1, StartTime: NewTimeOfDay(11, 0), EndTime: NewTimeOfDay(13, 0), IsAvailable: true, SlotDuration: 30,
	})
	if !errors.Is(err, ErrRuleConflict) {
		t.Fatalf("expected ErrRuleConflict, got %v", err)
	}
}

func TestSaveTemplateSameStartUpdatesInPlace(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, &recordingRegenerator{})
	doctorID := uuid.New()

	first, err := svc.SaveTemplate(context.Background(), doctorID, TemplateInput{
		DayOfWeek: 1, StartTime: NewTimeOfDay(9, 0), EndTime: NewTimeOfDay(12, 0), IsAvailable: true, SlotDuration: 30,
	})
	if err != nil {
		t.Fatalf("save template: %v", err)
	}

	second, err := svc.SaveTemplate(context.Background(), doctorID, TemplateInput{
		DayOfWeek: 1, StartTime: NewTimeOfDay(9, 0), EndTime: NewTimeOfDay(11, 0), IsAvailable: true, SlotDuration: 60,
	})
	if err != nil {
		t.Fatalf("update template: %v", err)
	}
	if second.ID != first.ID {
		t.Fatal("same (day, start) key should update the existing rule")
	}
	if second.EndTime != NewTimeOfDay(11, 0) || second.SlotDuration != 60 {
		t.Fatalf("update not applied: %+v", second)
	}
}

func TestSaveTemplateValidation(t *testing.T) {
	svc := newTestService(NewMemoryRepository(), &recordingRegenerator{})
	doctorID := uuid.New()

	cases := []struct {
		name string
		in   TemplateInput
	}{
		{"bad day", TemplateInput{DayOfWeek: 7, StartTime: NewTimeOfDay(9, 0), EndTime: NewTimeOfDay(10, 0), IsAvailable: true, SlotDuration: 30}},
		{"end before start", TemplateInput{DayOfWeek: 1, StartTime: NewTimeOfDay(12, 0), EndTime: NewTimeOfDay(9, 0), IsAvailable: true, SlotDuration: 30}},
		{"duration too short", TemplateInput{DayOfWeek: 1, StartTime: NewTimeOfDay(9, 0), EndTime: NewTimeOfDay(10, 0), IsAvailable: true, SlotDuration: 5}},
		{"duration too long", TemplateInput{DayOfWeek: 1, StartTime: NewTimeOfDay(9, 0), EndTime: NewTimeOfDay(10, 0), IsAvailable: true, SlotDuration: 300}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.SaveTemplate(context.Background(), doctorID, tc.in); !errors.Is(err, ErrInvalidRule) {
				t.Fatalf("expected ErrInvalidRule, got %v", err)
			}
		})
	}
}

func TestReplaceWeeklyTemplateSwapsAll(t *testing.T) {
	repo := NewMemoryRepository()
	regen := &recordingRegenerator{}
	svc := newTestService(repo, regen)
	doctorID := uuid.New()

	if _, err := svc.SaveTemplate(context.Background(), doctorID, TemplateInput{
		DayOfWeek: 2, StartTime: NewTimeOfDay(9, 0), EndTime: NewTimeOfDay(12, 0), IsAvailable: true, SlotDuration: 30,
	}); err != nil {
		t.Fatalf("seed template: %v", err)
	}

	saved, err := svc.ReplaceWeeklyTemplate(context.Background(), doctorID, []TemplateInput{
		{DayOfWeek: 1, StartTime: NewTimeOfDay(8, 0), EndTime: NewTimeOfDay(12, 0), IsAvailable: true, SlotDuration: 60},
		{DayOfWeek: 1, StartTime: NewTimeOfDay(13, 0), EndTime: NewTimeOfDay(16, 0), IsAvailable: true, SlotDuration: 60},
	})
	if err != nil {
		t.Fatalf("replace weekly template: %v", err)
	}
	if len(saved) != 2 {
		t.Fatalf("expected 2 saved rules, got %d", len(saved))
	}

	templates, _, err := svc.Rules(context.Background(), doctorID)
	if err != nil {
		t.Fatalf("rules: %v", err)
	}
	if len(templates) != 2 {
		t.Fatalf("old Tuesday template should be gone, have %d templates", len(templates))
	}
	for _, rule := range templates {
		if *rule.DayOfWeek != 1 {
			t.Fatalf("unexpected surviving rule: %+v", rule)
		}
	}
}

func TestReplaceWeeklyTemplateRejectsIntraInputOverlap(t *testing.T) {
	svc := newTestService(NewMemoryRepository(), &recordingRegenerator{})

	_, err := svc.ReplaceWeeklyTemplate(context.Background(), uuid.New(), []TemplateInput{
		{DayOfWeek: 1, StartTime: NewTimeOfDay(9, 0), EndTime: NewTimeOfDay(12, 0), IsAvailable: true, SlotDuration: 30},
		{DayOfWeek: 1, StartTime: NewTimeOfDay(11, 0), EndTime: NewTimeOfDay(14, 0), IsAvailable: true, SlotDuration: 30},
	})
	if !errors.Is(err, ErrRuleConflict) {
		t.Fatalf("expected ErrRuleConflict, got %v", err)
	}
}

func TestSetExceptionReplacesDateAtomically(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, &recordingRegenerator{})
	doctorID := uuid.New()
	date := time.Date(2025, 9, 8, 0, 0, 0, 0, time.UTC)

	if _, err := svc.SetException(context.Background(), doctorID, date, []ExceptionInput{
		{StartTime: NewTimeOfDay(9, 0), EndTime: NewTimeOfDay(11, 0), IsAvailable: true, SlotDuration: 30, Reason: "short day"},
		{StartTime: NewTimeOfDay(14, 0), EndTime: NewTimeOfDay(16, 0), IsAvailable: true, SlotDuration: 30, Reason: "short day"},
	}); err != nil {
		t.Fatalf("set exception: %v", err)
	}

	saved, err := svc.SetException(context.Background(), doctorID, date, []ExceptionInput{
		{StartTime: NewTimeOfDay(0, 0), EndTime: NewTimeOfDay(23, 59), IsAvailable: false, SlotDuration: 30, Reason: "sick leave"},
	})
	if err != nil {
		t.Fatalf("replace exception: %v", err)
	}
	if len(saved) != 1 {
		t.Fatalf("expected 1 exception after replace, got %d", len(saved))
	}

	stored, err := repo.ListExceptionsForDate(context.Background(), doctorID, date)
	if err != nil {
		t.Fatalf("list exceptions: %v", err)
	}
	if len(stored) != 1 || stored[0].IsAvailable {
		t.Fatalf("old exception set should be gone, have %+v", stored)
	}
}

func TestSetExceptionRequiresPeriodsAndReason(t *testing.T) {
	svc := newTestService(NewMemoryRepository(), &recordingRegenerator{})
	date := time.Date(2025, 9, 8, 0, 0, 0, 0, time.UTC)

	if _, err := svc.SetException(context.Background(), uuid.New(), date, nil); !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule for empty periods, got %v", err)
	}

	_, err := svc.SetException(context.Background(), uuid.New(), date, []ExceptionInput{
		{StartTime: NewTimeOfDay(9, 0), EndTime: NewTimeOfDay(11, 0), IsAvailable: true, SlotDuration: 30},
	})
	if !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule for missing reason, got %v", err)
	}
}

func TestUpdateRuleChecksOwnership(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, &recordingRegenerator{})
	owner := uuid.New()

	rule := seedTemplate(t, repo, owner, 1, NewTimeOfDay(9, 0), NewTimeOfDay(12, 0), 30)

	_, err := svc.UpdateRule(context.Background(), uuid.New(), rule.ID, NewTimeOfDay(9, 0), NewTimeOfDay(11, 0), true, 30, nil)
	if !errors.Is(err, ErrRuleNotFound) {
		t.Fatalf("foreign rule should look not-found, got %v", err)
	}

	updated, err := svc.UpdateRule(context.Background(), owner, rule.ID, NewTimeOfDay(9, 0), NewTimeOfDay(11, 0), true, 30, nil)
	if err != nil {
		t.Fatalf("update own rule: %v", err)
	}
	if updated.EndTime != NewTimeOfDay(11, 0) {
		t.Fatalf("update not applied: %+v", updated)
	}
}

func TestUpdateRuleRejectsSiblingOverlap(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, &recordingRegenerator{})
	doctorID := uuid.New()

	rule := seedTemplate(t, repo, doctorID, 1, NewTimeOfDay(9, 0), NewTimeOfDay(11, 0), 30)
	seedTemplate(t, repo, doctorID, 1, NewTimeOfDay(13, 0), NewTimeOfDay(16, 0), 30)

	_, err := svc.UpdateRule(context.Background(), doctorID, rule.ID, NewTimeOfDay(9, 0), NewTimeOfDay(14, 0), true, 30, nil)
	if !errors.Is(err, ErrRuleConflict) {
		t.Fatalf("expected ErrRuleConflict, got %v", err)
	}
}

func TestDeleteRuleTriggersRegeneration(t *testing.T) {
	repo := NewMemoryRepository()
	regen := &recordingRegenerator{}
	svc := newTestService(repo, regen)
	doctorID := uuid.New()

	rule := seedTemplate(t, repo, doctorID, 1, NewTimeOfDay(9, 0), NewTimeOfDay(12, 0), 30)

	if err := svc.DeleteRule(context.Background(), doctorID, rule.ID); err != nil {
		t.Fatalf("delete rule: %v", err)
	}
	if regen.calls != 1 {
		t.Fatalf("expected 1 regeneration, got %d", regen.calls)
	}
	if _, err := repo.GetRuleByID(context.Background(), rule.ID); !errors.Is(err, ErrRuleNotFound) {
		t.Fatalf("rule should be gone, got %v", err)
	}
}

func TestMutationFailsWhenRegenerationFails(t *testing.T) {
	repo := NewMemoryRepository()
	regen := &recordingRegenerator{err: errors.New("db down")}
	svc := newTestService(repo, regen)

	_, err := svc.SaveTemplate(context.Background(), uuid.New(), TemplateInput{
		DayOfWeek: 1, StartTime: NewTimeOfDay(9, 0), EndTime: NewTimeOfDay(12, 0), IsAvailable: true, SlotDuration: 30,
	})
	if err == nil {
		t.Fatal("expected the regeneration failure to surface")
	}
}

func TestRulesOmitsPastExceptions(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, &recordingRegenerator{})
	doctorID := uuid.New()

	past := time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC)
	future := time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC)
	seedException(t, repo, doctorID, past, NewTimeOfDay(9, 0), NewTimeOfDay(12, 0), false, 30)
	seedException(t, repo, doctorID, future, NewTimeOfDay(9, 0), NewTimeOfDay(12, 0), false, 30)

	_, exceptions, err := svc.Rules(context.Background(), doctorID)
	if err != nil {
		t.Fatalf("rules: %v", err)
	}
	if len(exceptions) != 1 {
		t.Fatalf("expected only the future exception, got %d", len(exceptions))
	}
	if !exceptions[0].SpecificDate.Equal(future) {
		t.Fatalf("wrong exception reported: %+v", exceptions[0])
	}
}
