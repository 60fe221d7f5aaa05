package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const ruleColumns = `id, doctor_id, kind, day_of_week, specific_date, start_time, end_time, is_available, slot_duration, reason, created_at, updated_at`

// Helpers

func todFromPg(t pgtype.Time) TimeOfDay {
	return TimeOfDay(t.Microseconds / int64(time.Minute/time.Microsecond))
}

func todToPg(t TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t) * int64(time.Minute/time.Microsecond), Valid: true}
}

func scanRule(row pgx.Row) (*AvailabilityRule, error) {
	var r AvailabilityRule
	var start, end pgtype.Time

	err := row.Scan(
		&r.ID,
		&r.DoctorID,
		&r.Kind,
		&r.DayOfWeek,
		&r.SpecificDate,
		&start,
		&end,
		&r.IsAvailable,
		&r.SlotDuration,
		&r.Reason,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}

	r.StartTime = todFromPg(start)
	r.EndTime = todFromPg(end)
	return &r, nil
}

func scanRules(rows pgx.Rows) ([]AvailabilityRule, error) {
	defer rows.Close()

	var result []AvailabilityRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Interface methods

func (r *PgRepository) GetRuleByID(ctx context.Context, id uuid.UUID) (*AvailabilityRule, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+ruleColumns+`
		FROM availability_rules
		WHERE id = $1
	`, id)
	return scanRule(row)
}

func (r *PgRepository) ListTemplatesForDay(ctx context.Context, doctorID uuid.UUID, dayOfWeek int) ([]AvailabilityRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM availability_rules
		WHERE doctor_id = $1 AND kind = 'template' AND day_of_week = $2
		ORDER BY start_time
	`, doctorID, dayOfWeek)
	if err != nil {
		return nil, err
	}
	return scanRules(rows)
}

func (r *PgRepository) ListExceptionsForDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]AvailabilityRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM availability_rules
		WHERE doctor_id = $1 AND kind = 'exception' AND specific_date = $2
		ORDER BY start_time
	`, doctorID, date)
	if err != nil {
		return nil, err
	}
	return scanRules(rows)
}

func (r *PgRepository) ListTemplates(ctx context.Context, doctorID uuid.UUID) ([]AvailabilityRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM availability_rules
		WHERE doctor_id = $1 AND kind = 'template'
		ORDER BY day_of_week, start_time
	`, doctorID)
	if err != nil {
		return nil, err
	}
	return scanRules(rows)
}

func (r *PgRepository) ListExceptionsFrom(ctx context.Context, doctorID uuid.UUID, from time.Time) ([]AvailabilityRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM availability_rules
		WHERE doctor_id = $1 AND kind = 'exception' AND specific_date >= $2
		ORDER BY specific_date, start_time
	`, doctorID, from)
	if err != nil {
		return nil, err
	}
	return scanRules(rows)
}

func (r *PgRepository) UpsertTemplate(ctx context.Context, rule *AvailabilityRule) (*AvailabilityRule, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO availability_rules
			(id, doctor_id, kind, day_of_week, start_time, end_time, is_available, slot_duration, reason, created_at, updated_at)
		VALUES ($1, $2, 'template', $3, $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (doctor_id, day_of_week, start_time) WHERE kind = 'template'
		DO UPDATE SET
			end_time = EXCLUDED.end_time,
			is_available = EXCLUDED.is_available,
			slot_duration = EXCLUDED.slot_duration,
			reason = EXCLUDED.reason,
			updated_at = now()
		RETURNING `+ruleColumns+`
	`, uuid.New(), rule.DoctorID, rule.DayOfWeek, todToPg(rule.StartTime), todToPg(rule.EndTime),
		rule.IsAvailable, rule.SlotDuration, rule.Reason)

	return scanRule(row)
}

func (r *PgRepository) ReplaceTemplates(ctx context.Context, doctorID uuid.UUID, rules []AvailabilityRule) ([]AvailabilityRule, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM availability_rules
		WHERE doctor_id = $1 AND kind = 'template'
	`, doctorID); err != nil {
		return nil, fmt.Errorf("delete templates: %w", err)
	}

	saved, err := insertRules(ctx, tx, rules)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return saved, nil
}

func (r *PgRepository) ReplaceExceptions(ctx context.Context, doctorID uuid.UUID, date time.Time, rules []AvailabilityRule) ([]AvailabilityRule, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Clearing the old set first keeps the per-date exception set unique
	// without ever tripping the constraint.
	if _, err := tx.Exec(ctx, `
		DELETE FROM availability_rules
		WHERE doctor_id = $1 AND kind = 'exception' AND specific_date = $2
	`, doctorID, date); err != nil {
		return nil, fmt.Errorf("delete exceptions: %w", err)
	}

	saved, err := insertRules(ctx, tx, rules)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return saved, nil
}

func insertRules(ctx context.Context, tx pgx.Tx, rules []AvailabilityRule) ([]AvailabilityRule, error) {
	saved := make([]AvailabilityRule, 0, len(rules))
	for _, rule := range rules {
		row := tx.QueryRow(ctx, `
			INSERT INTO availability_rules
				(id, doctor_id, kind, day_of_week, specific_date, start_time, end_time, is_available, slot_duration, reason, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
			RETURNING `+ruleColumns+`
		`, uuid.New(), rule.DoctorID, rule.Kind, rule.DayOfWeek, rule.SpecificDate,
			todToPg(rule.StartTime), todToPg(rule.EndTime), rule.IsAvailable, rule.SlotDuration, rule.Reason)

		inserted, err := scanRule(row)
		if err != nil {
			return nil, fmt.Errorf("insert rule: %w", err)
		}
		saved = append(saved, *inserted)
	}
	return saved, nil
}

func (r *PgRepository) UpdateRule(ctx context.Context, rule *AvailabilityRule) (*AvailabilityRule, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE availability_rules
		SET start_time = $2,
		    end_time = $3,
		    is_available = $4,
		    slot_duration = $5,
		    reason = $6,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+ruleColumns+`
	`, rule.ID, todToPg(rule.StartTime), todToPg(rule.EndTime), rule.IsAvailable, rule.SlotDuration, rule.Reason)

	return scanRule(row)
}

func (r *PgRepository) DeleteRule(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM availability_rules
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}
