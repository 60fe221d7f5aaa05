package slot

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medtrack/scheduling-service/internal/schedule"
)

// MemoryRepository implements Repository over mutex-guarded maps. Transitions
// hold the lock for check-and-update, matching the atomicity the conditional
// SQL updates give the Postgres implementation.
type MemoryRepository struct {
	mu    sync.Mutex
	slots map[uuid.UUID]TimeSlot
	byKey map[slotKey]uuid.UUID
}

type slotKey struct {
	doctorID uuid.UUID
	date     string
	start    schedule.TimeOfDay
}

func keyOf(doctorID uuid.UUID, date time.Time, start schedule.TimeOfDay) slotKey {
	return slotKey{doctorID: doctorID, date: schedule.DateOnly(date).Format(time.DateOnly), start: start}
}

// sameDay compares calendar dates, ignoring location. Callers mix UTC
// midnights parsed from requests with local midnights from the clock.
func sameDay(a, b time.Time) bool {
	return a.Format(time.DateOnly) == b.Format(time.DateOnly)
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		slots: make(map[uuid.UUID]TimeSlot),
		byKey: make(map[slotKey]uuid.UUID),
	}
}

func (m *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(id)
}

func (m *MemoryRepository) GetByTuple(_ context.Context, doctorID uuid.UUID, date time.Time, start schedule.TimeOfDay) (*TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byKey[keyOf(doctorID, date, start)]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return m.get(id)
}

func (m *MemoryRepository) GetByAppointment(_ context.Context, appointmentID uuid.UUID) (*TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.slots {
		if s.AppointmentID != nil && *s.AppointmentID == appointmentID {
			out := s
			return &out, nil
		}
	}
	return nil, ErrSlotNotFound
}

func (m *MemoryRepository) Create(_ context.Context, s *TimeSlot) (*TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := keyOf(s.DoctorID, s.Date, s.StartTime)
	if _, exists := m.byKey[key]; exists {
		return nil, ErrDuplicateSlot
	}

	created := *s
	created.ID = uuid.New()
	created.Date = schedule.DateOnly(s.Date)
	created.IsAvailable = true
	created.AppointmentID = nil
	created.ReservedUntil = nil
	now := time.Now()
	created.CreatedAt = now
	created.UpdatedAt = now

	m.slots[created.ID] = created
	m.byKey[key] = created.ID
	out := created
	return &out, nil
}

func (m *MemoryRepository) ListForDate(_ context.Context, doctorID uuid.UUID, date time.Time) ([]TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []TimeSlot
	for _, s := range m.slots {
		if s.DoctorID == doctorID && sameDay(s.Date, date) {
			result = append(result, s)
		}
	}
	sortByStart(result)
	return result, nil
}

func (m *MemoryRepository) ListAvailable(_ context.Context, doctorID uuid.UUID, date time.Time, now time.Time) ([]TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []TimeSlot
	for _, s := range m.slots {
		if s.DoctorID == doctorID && sameDay(s.Date, date) && s.IsFree(now) {
			result = append(result, s)
		}
	}
	sortByStart(result)
	return result, nil
}

func (m *MemoryRepository) Reserve(_ context.Context, id uuid.UUID, until time.Time, now time.Time) (*TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[id]
	if !ok || !s.IsFree(now) {
		return nil, ErrNotTransitionable
	}
	u := until
	s.ReservedUntil = &u
	s.UpdatedAt = time.Now()
	m.slots[id] = s
	out := s
	return &out, nil
}

func (m *MemoryRepository) Book(_ context.Context, id, appointmentID uuid.UUID, now time.Time) (*TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[id]
	if !ok || !s.IsFree(now) {
		return nil, ErrNotTransitionable
	}
	a := appointmentID
	s.AppointmentID = &a
	s.IsAvailable = false
	s.ReservedUntil = nil
	s.UpdatedAt = time.Now()
	m.slots[id] = s
	out := s
	return &out, nil
}

func (m *MemoryRepository) Release(_ context.Context, id uuid.UUID) (*TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	s.AppointmentID = nil
	s.IsAvailable = true
	s.ReservedUntil = nil
	s.UpdatedAt = time.Now()
	m.slots[id] = s
	out := s
	return &out, nil
}

func (m *MemoryRepository) ClearExpiredReservations(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cleared int64
	for id, s := range m.slots {
		if s.ReservedUntil != nil && !s.ReservedUntil.After(now) {
			s.ReservedUntil = nil
			s.UpdatedAt = time.Now()
			m.slots[id] = s
			cleared++
		}
	}
	return cleared, nil
}

func (m *MemoryRepository) DeleteUnbookedFrom(_ context.Context, doctorID uuid.UUID, from time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fromDay := from.Format(time.DateOnly)
	var deleted int64
	for id, s := range m.slots {
		if s.DoctorID == doctorID && s.Date.Format(time.DateOnly) >= fromDay && s.AppointmentID == nil {
			delete(m.byKey, keyOf(s.DoctorID, s.Date, s.StartTime))
			delete(m.slots, id)
			deleted++
		}
	}
	return deleted, nil
}

// get assumes m.mu is held.
func (m *MemoryRepository) get(id uuid.UUID) (*TimeSlot, error) {
	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	out := s
	return &out, nil
}

func sortByStart(slots []TimeSlot) {
	sort.Slice(slots, func(i, j int) bool {
		return slots[i].StartTime < slots[j].StartTime
	})
}
