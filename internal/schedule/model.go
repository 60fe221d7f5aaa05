package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type RuleKind string

const (
	KindTemplate  RuleKind = "template"
	KindException RuleKind = "exception"
)

// TimeOfDay is a zone-less wall-clock time, stored as minutes since midnight.
type TimeOfDay int

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time of day %q out of range", s)
	}
	return NewTimeOfDay(h, m), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// Add returns the time of day d minutes later. The result may pass midnight;
// callers compare against period ends before using it.
func (t TimeOfDay) Add(minutes int) TimeOfDay {
	return t + TimeOfDay(minutes)
}

// On anchors the time of day onto a calendar date.
func (t TimeOfDay) On(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, date.Location())
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("time of day must be a %q string, got %s", "HH:MM", s)
	}
	parsed, err := ParseTimeOfDay(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// DateOnly truncates a timestamp to its calendar date.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// AvailabilityRule is a declarative statement about when a doctor works.
// Template rules recur weekly by day-of-week; exception rules pin a single
// calendar date and take absolute precedence over templates on that date.
type AvailabilityRule struct {
	ID           uuid.UUID
	DoctorID     uuid.UUID
	Kind         RuleKind
	DayOfWeek    *int       // templates: 0=Sunday .. 6=Saturday
	SpecificDate *time.Time // exceptions
	StartTime    TimeOfDay
	EndTime      TimeOfDay
	IsAvailable  bool
	SlotDuration int // minutes, meaningful when IsAvailable
	Reason       *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Period is one resolved stretch of a doctor's day. Unavailable periods are
// carried through resolution so callers can tell explicit blocked time apart
// from the absence of any rule, but they are never expanded into slots.
type Period struct {
	StartTime    TimeOfDay
	EndTime      TimeOfDay
	IsAvailable  bool
	SlotDuration int
}

// Overlaps reports whether two half-open [start,end) intervals intersect.
func Overlaps(aStart, aEnd, bStart, bEnd TimeOfDay) bool {
	return aStart < bEnd && aEnd > bStart
}
