// Package storage holds the Postgres repositories of the availability
// service: scheduling settings and the read side of confirmed bookings.
package storage

import (
	"context"
	"time"

	"github.com/timegrid-io/timegrid/libs/db"
	"github.com/timegrid-io/timegrid/services/availability-service/internal/interval"
)

type BookingsRepository struct {
	pool *db.Pool
}

func NewBookingsRepository(pool *db.Pool) *BookingsRepository {
	return &BookingsRepository{pool: pool}
}

// BusyPeriods returns the intervals of every booked appointment intersecting
// [from, to). Cancelled appointments never block availability.
func (r *BookingsRepository) BusyPeriods(ctx context.Context, businessID string, from, to time.Time) ([]interval.Period, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_time, end_time
		FROM appointments
		WHERE business_id = $1
			AND status = 'booked'
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, businessID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []interval.Period
	for rows.Next() {
		var p interval.Period
		if err := rows.Scan(&p.Start, &p.End); err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return periods, nil
}
