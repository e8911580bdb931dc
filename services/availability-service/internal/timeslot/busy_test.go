package timeslot

import (
	"testing"
	"time"

	"github.com/timegrid-io/timegrid/services/availability-service/internal/interval"
	"github.com/timegrid-io/timegrid/services/availability-service/internal/schedule"
)

func TestResolveBlackouts_FixedYear(t *testing.T) {
	cfg := mondayConfig(30)
	cfg.UnavailablePeriods = []schedule.BlackoutPeriod{
		{
			StartAt: schedule.Moment{Year: intp(2026), Month: 2, Day: 10},
			EndAt:   schedule.Moment{Year: intp(2026), Month: 2, Day: 12},
		},
	}
	s := settings(t, cfg)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	got := ResolveBlackouts(s, from, to)
	if len(got) != 1 {
		t.Fatalf("expected one period, got %v", got)
	}
	if !got[0].Start.Equal(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)) ||
		!got[0].End.Equal(time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected period: %v", got[0])
	}

	// Outside the window the blackout must not materialize.
	if got := ResolveBlackouts(s, to, to.AddDate(0, 1, 0)); len(got) != 0 {
		t.Fatalf("expected no periods, got %v", got)
	}
}

func TestResolveBlackouts_YearlessRecursPerYear(t *testing.T) {
	cfg := mondayConfig(30)
	cfg.UnavailablePeriods = []schedule.BlackoutPeriod{
		{
			StartAt: schedule.Moment{Month: 0, Day: 1},
			EndAt:   schedule.Moment{Month: 0, Day: 2},
		},
	}
	s := settings(t, cfg)

	from := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2028, 2, 1, 0, 0, 0, 0, time.UTC)
	got := ResolveBlackouts(s, from, to)
	if len(got) != 3 {
		t.Fatalf("expected occurrences for 2026, 2027 and 2028, got %v", got)
	}
	for i, year := range []int{2026, 2027, 2028} {
		if got[i].Start.Year() != year {
			t.Fatalf("occurrence %d: expected year %d, got %s", i, year, got[i].Start)
		}
	}
}

func TestResolveBlackouts_WrappingCoversWindowStart(t *testing.T) {
	cfg := mondayConfig(30)
	cfg.UnavailablePeriods = []schedule.BlackoutPeriod{
		{
			StartAt: schedule.Moment{Month: 11, Day: 28},
			EndAt:   schedule.Moment{Month: 0, Day: 3},
		},
	}
	s := settings(t, cfg)

	// The window opens mid-occurrence: the wrap that started the previous
	// December must still be found.
	from := time.Date(2027, 1, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2027, 1, 15, 0, 0, 0, 0, time.UTC)
	got := ResolveBlackouts(s, from, to)
	if len(got) != 1 {
		t.Fatalf("expected one period, got %v", got)
	}
	if !got[0].Start.Equal(time.Date(2026, 12, 28, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start: %s", got[0].Start)
	}
}

func TestAggregateBusy_MergesSourcesAndDropsContained(t *testing.T) {
	cfg := mondayConfig(30)
	cfg.UnavailablePeriods = []schedule.BlackoutPeriod{
		{
			StartAt: schedule.Moment{Year: intp(2026), Month: 2, Day: 2, Hour: intp(10)},
			EndAt:   schedule.Moment{Year: intp(2026), Month: 2, Day: 2, Hour: intp(12)},
		},
	}
	s := settings(t, cfg)

	external := []interval.Period{
		// Fully inside the blackout, must be dropped.
		{Start: monday.Add(10*time.Hour + 30*time.Minute), End: monday.Add(11 * time.Hour)},
		{Start: monday.Add(14 * time.Hour), End: monday.Add(15 * time.Hour)},
		// Degenerate, must be ignored.
		{Start: monday.Add(16 * time.Hour), End: monday.Add(16 * time.Hour)},
	}
	got := AggregateBusy(s, monday, monday.AddDate(0, 0, 1), external)
	if len(got) != 2 {
		t.Fatalf("expected 2 periods, got %v", got)
	}
	if !got[0].Start.Equal(monday.Add(10 * time.Hour)) {
		t.Fatalf("expected blackout first, got %v", got[0])
	}
	if !got[1].Start.Equal(monday.Add(14 * time.Hour)) {
		t.Fatalf("expected external second, got %v", got[1])
	}
}

func TestAggregateBusy_EmptyInputs(t *testing.T) {
	s := settings(t, mondayConfig(30))
	if got := AggregateBusy(s, monday, monday.AddDate(0, 0, 1), nil); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}
