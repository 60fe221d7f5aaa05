package slot

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medtrack/scheduling-service/internal/schedule"
)

// SQLSTATE class 23505, unique_violation.
const pgUniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const slotColumns = `id, doctor_id, date, start_time, end_time, is_available, appointment_id, reserved_until, created_at, updated_at`

// Helpers

func todFromPg(t pgtype.Time) schedule.TimeOfDay {
	return schedule.TimeOfDay(t.Microseconds / int64(time.Minute/time.Microsecond))
}

func todToPg(t schedule.TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t) * int64(time.Minute/time.Microsecond), Valid: true}
}

func scanSlot(row pgx.Row) (*TimeSlot, error) {
	var s TimeSlot
	var start, end pgtype.Time

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.Date,
		&start,
		&end,
		&s.IsAvailable,
		&s.AppointmentID,
		&s.ReservedUntil,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.StartTime = todFromPg(start)
	s.EndTime = todFromPg(end)
	return &s, nil
}

func scanSlots(rows pgx.Rows) ([]TimeSlot, error) {
	defer rows.Close()

	var result []TimeSlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// Interface methods

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) GetByTuple(ctx context.Context, doctorID uuid.UUID, date time.Time, start schedule.TimeOfDay) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE doctor_id = $1 AND date = $2 AND start_time = $3
	`, doctorID, date, todToPg(start))
	return scanSlot(row)
}

func (r *PgRepository) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE appointment_id = $1
	`, appointmentID)
	return scanSlot(row)
}

func (r *PgRepository) Create(ctx context.Context, s *TimeSlot) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO time_slots
			(id, doctor_id, date, start_time, end_time, is_available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, true, now(), now())
		RETURNING `+slotColumns+`
	`, uuid.New(), s.DoctorID, s.Date, todToPg(s.StartTime), todToPg(s.EndTime))

	created, err := scanSlot(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateSlot
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) ListForDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]TimeSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE doctor_id = $1 AND date = $2
		ORDER BY start_time
	`, doctorID, date)
	if err != nil {
		return nil, err
	}
	return scanSlots(rows)
}

func (r *PgRepository) ListAvailable(ctx context.Context, doctorID uuid.UUID, date time.Time, now time.Time) ([]TimeSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE doctor_id = $1
		  AND date = $2
		  AND is_available
		  AND appointment_id IS NULL
		  AND (reserved_until IS NULL OR reserved_until <= $3)
		ORDER BY start_time
	`, doctorID, date, now)
	if err != nil {
		return nil, err
	}
	return scanSlots(rows)
}

// Reserve places a time-boxed hold on a free slot. The WHERE clause is the
// transition guard: booked slots and live reservations never match, so at
// most one concurrent caller gets the row.
func (r *PgRepository) Reserve(ctx context.Context, id uuid.UUID, until time.Time, now time.Time) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE time_slots
		SET reserved_until = $2,
		    updated_at = now()
		WHERE id = $1
		  AND is_available
		  AND appointment_id IS NULL
		  AND (reserved_until IS NULL OR reserved_until <= $3)
		RETURNING `+slotColumns+`
	`, id, until, now)

	s, err := scanSlot(row)
	if errors.Is(err, ErrSlotNotFound) {
		return nil, ErrNotTransitionable
	}
	return s, err
}

// Book binds a free slot (or one whose reservation has lapsed) to an
// appointment, under the same conditional-update guard as Reserve.
func (r *PgRepository) Book(ctx context.Context, id, appointmentID uuid.UUID, now time.Time) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE time_slots
		SET appointment_id = $2,
		    is_available = false,
		    reserved_until = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND is_available
		  AND appointment_id IS NULL
		  AND (reserved_until IS NULL OR reserved_until <= $3)
		RETURNING `+slotColumns+`
	`, id, appointmentID, now)

	s, err := scanSlot(row)
	if errors.Is(err, ErrSlotNotFound) {
		return nil, ErrNotTransitionable
	}
	return s, err
}

// Release returns the slot to the free pool. Unconditional on state, so a
// repeat release is a no-op rather than an error.
func (r *PgRepository) Release(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE time_slots
		SET appointment_id = NULL,
		    is_available = true,
		    reserved_until = NULL,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+slotColumns+`
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ClearExpiredReservations(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE time_slots
		SET reserved_until = NULL,
		    updated_at = now()
		WHERE reserved_until IS NOT NULL
		  AND reserved_until <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) DeleteUnbookedFrom(ctx context.Context, doctorID uuid.UUID, from time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM time_slots
		WHERE doctor_id = $1
		  AND date >= $2
		  AND appointment_id IS NULL
	`, doctorID, from)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
