package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/timegrid-io/timegrid/libs/db"
	"github.com/timegrid-io/timegrid/services/availability-service/internal/schedule"
)

type SettingsRepository struct {
	pool *db.Pool
}

func NewSettingsRepository(pool *db.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// SettingsRecord is a business's persisted scheduling configuration plus the
// optional external calendar feed it subscribes to.
type SettingsRecord struct {
	BusinessID      string
	Config          schedule.Config
	CalendarFeedURL string
	UpdatedAt       time.Time
}

func (r *SettingsRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *SettingsRepository) Get(ctx context.Context, businessID string) (SettingsRecord, error) {
	rec := SettingsRecord{BusinessID: businessID}
	var horizonDays *int
	err := r.pool.QueryRow(ctx, `
		SELECT slot_duration_minutes, time_zone,
			before_buffer_minutes, after_buffer_minutes, min_lead_minutes,
			horizon_days, slot_step_minutes,
			COALESCE(calendar_feed_url, ''), updated_at
		FROM scheduling_settings
		WHERE business_id = $1
	`, businessID).Scan(
		&rec.Config.TimeSlotDuration,
		&rec.Config.TimeZone,
		&rec.Config.MinAvailableTimeBeforeSlot,
		&rec.Config.MinAvailableTimeAfterSlot,
		&rec.Config.MinTimeBeforeFirstSlot,
		&horizonDays,
		&rec.Config.SlotStartMinuteStep,
		&rec.CalendarFeedURL,
		&rec.UpdatedAt,
	)
	if err != nil {
		return SettingsRecord{}, err
	}
	rec.Config.MaxDaysBeforeLastSlot = horizonDays

	if rec.Config.AvailablePeriods, err = r.listShifts(ctx, businessID); err != nil {
		return SettingsRecord{}, err
	}
	if rec.Config.UnavailablePeriods, err = r.listBlackouts(ctx, businessID); err != nil {
		return SettingsRecord{}, err
	}
	return rec, nil
}

// SchedulingConfig satisfies the availability service's settings source.
func (r *SettingsRepository) SchedulingConfig(ctx context.Context, businessID string) (schedule.Config, error) {
	rec, err := r.Get(ctx, businessID)
	if err != nil {
		return schedule.Config{}, err
	}
	return rec.Config, nil
}

// CalendarFeedURL returns the business's external calendar feed URL, or ""
// when no feed is configured.
func (r *SettingsRepository) CalendarFeedURL(ctx context.Context, businessID string) (string, error) {
	var url string
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(calendar_feed_url, '')
		FROM scheduling_settings
		WHERE business_id = $1
	`, businessID).Scan(&url)
	return url, err
}

// SaveTx replaces the business's settings inside tx. Shifts and blackouts are
// rewritten wholesale; the settings document is small and always updated as a
// unit, so diffing rows buys nothing.
func (r *SettingsRepository) SaveTx(ctx context.Context, tx pgx.Tx, rec SettingsRecord) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO scheduling_settings
			(business_id, slot_duration_minutes, time_zone,
			 before_buffer_minutes, after_buffer_minutes, min_lead_minutes,
			 horizon_days, slot_step_minutes, calendar_feed_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
		ON CONFLICT (business_id) DO UPDATE
		SET slot_duration_minutes = EXCLUDED.slot_duration_minutes,
			time_zone = EXCLUDED.time_zone,
			before_buffer_minutes = EXCLUDED.before_buffer_minutes,
			after_buffer_minutes = EXCLUDED.after_buffer_minutes,
			min_lead_minutes = EXCLUDED.min_lead_minutes,
			horizon_days = EXCLUDED.horizon_days,
			slot_step_minutes = EXCLUDED.slot_step_minutes,
			calendar_feed_url = EXCLUDED.calendar_feed_url,
			updated_at = now()
	`, rec.BusinessID, rec.Config.TimeSlotDuration, rec.Config.TimeZone,
		rec.Config.MinAvailableTimeBeforeSlot, rec.Config.MinAvailableTimeAfterSlot,
		rec.Config.MinTimeBeforeFirstSlot, rec.Config.MaxDaysBeforeLastSlot,
		rec.Config.SlotStartMinuteStep, rec.CalendarFeedURL)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM working_shifts WHERE business_id = $1`, rec.BusinessID); err != nil {
		return err
	}
	for _, period := range rec.Config.AvailablePeriods {
		for _, sh := range period.Shifts {
			if _, err := tx.Exec(ctx, `
				INSERT INTO working_shifts (business_id, weekday, start_clock, end_clock)
				VALUES ($1, $2, $3, $4)
			`, rec.BusinessID, period.WeekDay, sh.Start, sh.End); err != nil {
				return err
			}
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM blackout_periods WHERE business_id = $1`, rec.BusinessID); err != nil {
		return err
	}
	for _, b := range rec.Config.UnavailablePeriods {
		if _, err := tx.Exec(ctx, `
			INSERT INTO blackout_periods
				(id, business_id,
				 start_year, start_month, start_day, start_hour, start_minute,
				 end_year, end_month, end_day, end_hour, end_minute)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, uuid.NewString(), rec.BusinessID,
			b.StartAt.Year, b.StartAt.Month, b.StartAt.Day, b.StartAt.Hour, b.StartAt.Minute,
			b.EndAt.Year, b.EndAt.Month, b.EndAt.Day, b.EndAt.Hour, b.EndAt.Minute); err != nil {
			return err
		}
	}
	return nil
}

// Blackout is a stored blackout row together with its identifier, for the
// granular add/delete admin endpoints.
type Blackout struct {
	ID     string
	Period schedule.BlackoutPeriod
}

func (r *SettingsRepository) ListBlackouts(ctx context.Context, businessID string) ([]Blackout, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id,
			start_year, start_month, start_day, start_hour, start_minute,
			end_year, end_month, end_day, end_hour, end_minute
		FROM blackout_periods
		WHERE business_id = $1
		ORDER BY start_month ASC, start_day ASC
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Blackout
	for rows.Next() {
		var b Blackout
		if err := rows.Scan(
			&b.ID,
			&b.Period.StartAt.Year, &b.Period.StartAt.Month, &b.Period.StartAt.Day,
			&b.Period.StartAt.Hour, &b.Period.StartAt.Minute,
			&b.Period.EndAt.Year, &b.Period.EndAt.Month, &b.Period.EndAt.Day,
			&b.Period.EndAt.Hour, &b.Period.EndAt.Minute,
		); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// AddBlackoutTx inserts a single blackout inside tx and bumps the settings
// document's updated_at. Returns the new row's id.
func (r *SettingsRepository) AddBlackoutTx(ctx context.Context, tx pgx.Tx, businessID string, b schedule.BlackoutPeriod) (string, error) {
	id := uuid.NewString()
	_, err := tx.Exec(ctx, `
		INSERT INTO blackout_periods
			(id, business_id,
			 start_year, start_month, start_day, start_hour, start_minute,
			 end_year, end_month, end_day, end_hour, end_minute)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, id, businessID,
		b.StartAt.Year, b.StartAt.Month, b.StartAt.Day, b.StartAt.Hour, b.StartAt.Minute,
		b.EndAt.Year, b.EndAt.Month, b.EndAt.Day, b.EndAt.Hour, b.EndAt.Minute)
	if err != nil {
		return "", err
	}
	return id, r.touchTx(ctx, tx, businessID)
}

// DeleteBlackoutTx removes one blackout inside tx. Reports whether a row was
// actually deleted so the caller can 404 on unknown ids.
func (r *SettingsRepository) DeleteBlackoutTx(ctx context.Context, tx pgx.Tx, businessID, id string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		DELETE FROM blackout_periods WHERE business_id = $1 AND id = $2
	`, businessID, id)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	return true, r.touchTx(ctx, tx, businessID)
}

func (r *SettingsRepository) touchTx(ctx context.Context, tx pgx.Tx, businessID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE scheduling_settings SET updated_at = now() WHERE business_id = $1
	`, businessID)
	return err
}

func (r *SettingsRepository) listShifts(ctx context.Context, businessID string) ([]schedule.AvailablePeriod, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT weekday, start_clock, end_clock
		FROM working_shifts
		WHERE business_id = $1
		ORDER BY weekday ASC, start_clock ASC
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byWeekday := map[int]int{}
	var out []schedule.AvailablePeriod
	for rows.Next() {
		var weekday int
		var sh schedule.Shift
		if err := rows.Scan(&weekday, &sh.Start, &sh.End); err != nil {
			return nil, err
		}
		idx, ok := byWeekday[weekday]
		if !ok {
			idx = len(out)
			byWeekday[weekday] = idx
			out = append(out, schedule.AvailablePeriod{WeekDay: weekday})
		}
		out[idx].Shifts = append(out[idx].Shifts, sh)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *SettingsRepository) listBlackouts(ctx context.Context, businessID string) ([]schedule.BlackoutPeriod, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_year, start_month, start_day, start_hour, start_minute,
			end_year, end_month, end_day, end_hour, end_minute
		FROM blackout_periods
		WHERE business_id = $1
		ORDER BY start_month ASC, start_day ASC
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schedule.BlackoutPeriod
	for rows.Next() {
		var b schedule.BlackoutPeriod
		if err := rows.Scan(
			&b.StartAt.Year, &b.StartAt.Month, &b.StartAt.Day, &b.StartAt.Hour, &b.StartAt.Minute,
			&b.EndAt.Year, &b.EndAt.Month, &b.EndAt.Day, &b.EndAt.Hour, &b.EndAt.Minute,
		); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
