package schedule

import (
	"errors"
	"testing"
	"time"
)

func intp(v int) *int { return &v }

func baseConfig() Config {
	return Config{
		TimeSlotDuration: 30,
		TimeZone:         "UTC",
		AvailablePeriods: []AvailablePeriod{
			{WeekDay: 1, Shifts: []Shift{{Start: "09:00", End: "12:00"}}},
		},
	}
}

func TestValidate_Defaults(t *testing.T) {
	s, err := Validate(baseConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.SlotStepMinutes != DefaultSlotStepMinutes {
		t.Fatalf("expected default step %d, got %d", DefaultSlotStepMinutes, s.SlotStepMinutes)
	}
	if s.SlotDuration != 30*time.Minute {
		t.Fatalf("unexpected duration: %s", s.SlotDuration)
	}
	if s.HorizonDays != 0 {
		t.Fatalf("expected unbounded horizon, got %d", s.HorizonDays)
	}
	if got := s.Shifts[1]; len(got) != 1 || got[0].StartMinute != 9*60 || got[0].EndMinute != 12*60 {
		t.Fatalf("unexpected shifts: %v", got)
	}
}

func TestValidate_MergesOverlappingShifts(t *testing.T) {
	cfg := baseConfig()
	cfg.AvailablePeriods = []AvailablePeriod{
		{WeekDay: 1, Shifts: []Shift{
			{Start: "09:00", End: "12:00"},
			{Start: "11:00", End: "13:00"},
		}},
	}
	s, err := Validate(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := s.Shifts[1]
	if len(got) != 1 || got[0].StartMinute != 9*60 || got[0].EndMinute != 13*60 {
		t.Fatalf("expected merged shift 09:00-13:00, got %v", got)
	}
}

func TestValidate_FirstPeriodPerWeekdayWins(t *testing.T) {
	cfg := baseConfig()
	cfg.AvailablePeriods = []AvailablePeriod{
		{WeekDay: 2, Shifts: []Shift{{Start: "08:00", End: "10:00"}}},
		{WeekDay: 2, Shifts: []Shift{{Start: "14:00", End: "16:00"}}},
	}
	s, err := Validate(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := s.Shifts[2]
	if len(got) != 1 || got[0].StartMinute != 8*60 {
		t.Fatalf("expected only the first weekday entry, got %v", got)
	}
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero duration", func(c *Config) { c.TimeSlotDuration = 0 }, "timeSlotDuration"},
		{"step too large", func(c *Config) { c.SlotStartMinuteStep = 31 }, "slotStartMinuteStep"},
		{"negative before buffer", func(c *Config) { c.MinAvailableTimeBeforeSlot = -1 }, "minAvailableTimeBeforeSlot"},
		{"negative after buffer", func(c *Config) { c.MinAvailableTimeAfterSlot = -5 }, "minAvailableTimeAfterSlot"},
		{"horizon below one day", func(c *Config) { c.MaxDaysBeforeLastSlot = intp(0) }, "maxDaysBeforeLastSlot"},
		{"lead time beyond horizon", func(c *Config) {
			c.MaxDaysBeforeLastSlot = intp(2)
			c.MinTimeBeforeFirstSlot = 3 * 24 * 60
		}, "minTimeBeforeFirstSlot"},
		{"bad timezone", func(c *Config) { c.TimeZone = "Mars/Olympus" }, "timeZone"},
		{"missing timezone", func(c *Config) { c.TimeZone = "" }, "timeZone"},
		{"weekday out of range", func(c *Config) {
			c.AvailablePeriods[0].WeekDay = 8
		}, "availablePeriods"},
		{"malformed shift", func(c *Config) {
			c.AvailablePeriods[0].Shifts[0].Start = "25:00"
		}, "availablePeriods[weekDay=1].shifts"},
		{"inverted shift", func(c *Config) {
			c.AvailablePeriods[0].Shifts[0] = Shift{Start: "14:00", End: "09:00"}
		}, "availablePeriods[weekDay=1].shifts"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := baseConfig()
			tc.mutate(&cfg)
			_, err := Validate(cfg)
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cfgErr.Field != tc.field {
				t.Fatalf("expected field %q, got %q (%s)", tc.field, cfgErr.Field, cfgErr.Reason)
			}
		})
	}
}

func TestValidate_BlackoutYearSymmetry(t *testing.T) {
	cfg := baseConfig()
	cfg.UnavailablePeriods = []BlackoutPeriod{
		{
			StartAt: Moment{Year: intp(2026), Month: 0, Day: 1},
			EndAt:   Moment{Month: 0, Day: 2},
		},
	}
	_, err := Validate(cfg)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestValidate_BlackoutMinuteWithoutHour(t *testing.T) {
	cfg := baseConfig()
	cfg.UnavailablePeriods = []BlackoutPeriod{
		{
			StartAt: Moment{Month: 0, Day: 1, Minute: intp(30)},
			EndAt:   Moment{Month: 0, Day: 2},
		},
	}
	if _, err := Validate(cfg); err == nil {
		t.Fatal("expected error for minute without hour")
	}
}

func TestValidate_BlackoutNegativeSpanWithYears(t *testing.T) {
	cfg := baseConfig()
	cfg.UnavailablePeriods = []BlackoutPeriod{
		{
			StartAt: Moment{Year: intp(2026), Month: 5, Day: 10},
			EndAt:   Moment{Year: intp(2026), Month: 5, Day: 5},
		},
	}
	if _, err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative span")
	}
}

func TestResolve_YearlessWrapsIntoNextYear(t *testing.T) {
	b := BlackoutPeriod{
		StartAt: Moment{Month: 11, Day: 20},
		EndAt:   Moment{Month: 0, Day: 10},
	}
	p := b.Resolve(2026, time.UTC)
	if !p.Start.Equal(time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start: %s", p.Start)
	}
	if !p.End.Equal(time.Date(2027, 1, 11, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end: %s", p.End)
	}
}

func TestResolve_HourDefaults(t *testing.T) {
	b := BlackoutPeriod{
		StartAt: Moment{Year: intp(2026), Month: 2, Day: 5, Hour: intp(14), Minute: intp(30)},
		EndAt:   Moment{Year: intp(2026), Month: 2, Day: 6},
	}
	p := b.Resolve(0, time.UTC)
	if !p.Start.Equal(time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start: %s", p.Start)
	}
	// Hourless end means end of day, i.e. the following midnight.
	if !p.End.Equal(time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end: %s", p.End)
	}
}
