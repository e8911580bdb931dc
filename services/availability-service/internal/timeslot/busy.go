// Package timeslot implements the availability engine: busy-interval
// aggregation and the day-by-day, shift-by-shift slot search. Everything here
// is pure computation; callers supply the configuration, the busy intervals,
// and the search window.
package timeslot

import (
	"time"

	"github.com/timegrid-io/timegrid/services/availability-service/internal/interval"
	"github.com/timegrid-io/timegrid/services/availability-service/internal/schedule"
)

// ResolveBlackouts materializes the settings' blackout periods as absolute
// busy periods intersecting [from, to). Yearless blackouts recur for every
// year the window can touch.
func ResolveBlackouts(s schedule.Settings, from, to time.Time) []interval.Period {
	window := interval.Period{Start: from, End: to}
	var out []interval.Period
	for _, b := range s.Blackouts {
		if b.StartAt.Year != nil {
			if p := b.Resolve(0, s.Location); p.Overlaps(window) {
				out = append(out, p)
			}
			continue
		}
		// A wrapping blackout that started late last year can still cover
		// the window start, hence the extra year below.
		firstYear := from.In(s.Location).Year() - 1
		lastYear := to.In(s.Location).Year()
		for year := firstYear; year <= lastYear; year++ {
			if p := b.Resolve(year, s.Location); p.Overlaps(window) {
				out = append(out, p)
			}
		}
	}
	return out
}

// AggregateBusy folds the resolved blackout periods and the externally
// supplied busy periods (bookings, calendar feeds) into one ascending list
// with fully-encompassed intervals removed. The result is what Find consumes.
func AggregateBusy(s schedule.Settings, from, to time.Time, external []interval.Period) []interval.Period {
	combined := ResolveBlackouts(s, from, to)
	for _, p := range external {
		if !p.End.After(p.Start) {
			continue
		}
		combined = append(combined, p)
	}
	if len(combined) == 0 {
		return nil
	}
	return interval.DropContained(combined)
}
