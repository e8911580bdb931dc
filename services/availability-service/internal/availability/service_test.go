package availability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/timegrid-io/timegrid/services/availability-service/internal/interval"
	"github.com/timegrid-io/timegrid/services/availability-service/internal/schedule"
)

// 2026-03-02 is a Monday.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

type fakeSettings struct {
	cfg schedule.Config
	err error
}

func (f *fakeSettings) SchedulingConfig(ctx context.Context, businessID string) (schedule.Config, error) {
	return f.cfg, f.err
}

type fakeBusy struct {
	periods []interval.Period
	err     error
	delay   time.Duration
	calls   int
}

func (f *fakeBusy) BusyPeriods(ctx context.Context, businessID string, from, to time.Time) ([]interval.Period, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.periods, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mondayConfig() schedule.Config {
	return schedule.Config{
		TimeSlotDuration: 30,
		TimeZone:         "UTC",
		AvailablePeriods: []schedule.AvailablePeriod{
			{WeekDay: 1, Shifts: []schedule.Shift{{Start: "09:00", End: "12:00"}}},
		},
		SlotStartMinuteStep: 30,
	}
}

func newTestService(settings SettingsSource, feeds ...BusyFeed) *Service {
	svc := New(settings, feeds, time.Second, testLogger())
	svc.now = func() time.Time { return monday.AddDate(0, 0, -7) }
	return svc
}

func TestGetAvailability_ReturnsUTCStarts(t *testing.T) {
	bookings := &fakeBusy{periods: []interval.Period{
		{Start: monday.Add(10 * time.Hour), End: monday.Add(10*time.Hour + 30*time.Minute)},
	}}
	svc := newTestService(&fakeSettings{cfg: mondayConfig()}, BusyFeed{Name: "bookings", Source: bookings})

	starts, err := svc.GetAvailability(context.Background(), "biz-1", 0, monday, monday.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"09:00", "09:30", "11:00", "11:30"}
	if len(starts) != len(want) {
		t.Fatalf("expected %d starts, got %v", len(want), starts)
	}
	for i, w := range want {
		if got := starts[i].Format("15:04"); got != w {
			t.Fatalf("start %d: expected %s, got %s", i, w, got)
		}
		if starts[i].Location() != time.UTC {
			t.Fatalf("start %d not UTC: %s", i, starts[i])
		}
	}
	if bookings.calls != 1 {
		t.Fatalf("expected one source call, got %d", bookings.calls)
	}
}

func TestFindSlots_DurationOverride(t *testing.T) {
	svc := newTestService(&fakeSettings{cfg: mondayConfig()})
	slots, err := svc.FindSlots(context.Background(), "biz-1", 90, monday, monday.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 90-minute slots on a 30-minute grid inside 09:00-12:00.
	if len(slots) != 4 {
		t.Fatalf("expected 4 slots, got %d", len(slots))
	}
	if slots[0].Duration != 90*time.Minute {
		t.Fatalf("expected 90m duration, got %s", slots[0].Duration)
	}
}

func TestFindSlots_ConfigErrorPassesThrough(t *testing.T) {
	cfg := mondayConfig()
	cfg.TimeZone = "Mars/Olympus"
	svc := newTestService(&fakeSettings{cfg: cfg})

	_, err := svc.FindSlots(context.Background(), "biz-1", 0, monday, monday.AddDate(0, 0, 1))
	var cfgErr *schedule.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if cfgErr.Field != "timeZone" {
		t.Fatalf("expected timeZone field, got %q", cfgErr.Field)
	}
}

func TestFindSlots_SourceFailureIsHardFailure(t *testing.T) {
	healthy := &fakeBusy{}
	broken := &fakeBusy{err: errors.New("connection refused")}
	svc := newTestService(&fakeSettings{cfg: mondayConfig()},
		BusyFeed{Name: "bookings", Source: healthy},
		BusyFeed{Name: "calendar-feed", Source: broken},
	)

	_, err := svc.FindSlots(context.Background(), "biz-1", 0, monday, monday.AddDate(0, 0, 1))
	var srcErr *SourceError
	if !errors.As(err, &srcErr) {
		t.Fatalf("expected SourceError, got %v", err)
	}
	if srcErr.Source != "calendar-feed" {
		t.Fatalf("expected calendar-feed attribution, got %q", srcErr.Source)
	}
}

func TestFindSlots_SourceTimeout(t *testing.T) {
	slow := &fakeBusy{delay: 5 * time.Second}
	svc := New(&fakeSettings{cfg: mondayConfig()},
		[]BusyFeed{{Name: "calendar-feed", Source: slow}},
		20*time.Millisecond, testLogger())
	svc.now = func() time.Time { return monday.AddDate(0, 0, -7) }

	_, err := svc.FindSlots(context.Background(), "biz-1", 0, monday, monday.AddDate(0, 0, 1))
	var srcErr *SourceError
	if !errors.As(err, &srcErr) {
		t.Fatalf("expected SourceError, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestFindSlots_SettingsFailure(t *testing.T) {
	svc := newTestService(&fakeSettings{err: errors.New("row scan failed")})
	_, err := svc.FindSlots(context.Background(), "biz-1", 0, monday, monday.AddDate(0, 0, 1))
	var srcErr *SourceError
	if !errors.As(err, &srcErr) {
		t.Fatalf("expected SourceError, got %v", err)
	}
	if srcErr.Source != "settings" {
		t.Fatalf("expected settings attribution, got %q", srcErr.Source)
	}
}

func TestComputeSlots_Stateless(t *testing.T) {
	busy := []interval.Period{
		{Start: monday.Add(10 * time.Hour), End: monday.Add(10*time.Hour + 30*time.Minute)},
	}
	now := monday.AddDate(0, 0, -7)
	slots, err := ComputeSlots(mondayConfig(), busy, monday, monday.AddDate(0, 0, 1), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 4 {
		t.Fatalf("expected 4 slots, got %d", len(slots))
	}
	again, err := ComputeSlots(mondayConfig(), busy, monday, monday.AddDate(0, 0, 1), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range slots {
		if slots[i] != again[i] {
			t.Fatalf("slot %d differs between identical calls", i)
		}
	}
}
