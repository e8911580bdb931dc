package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/timegrid-io/timegrid/services/availability-service/internal/interval"
)

// ConfigError reports a structurally invalid scheduling configuration.
// Field names the offending setting so the business owner can correct it.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "scheduling config: " + e.Field + ": " + e.Reason
}

func errConfig(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks cfg, resolves all defaults, and merges overlapping shifts
// per weekday into their minimal cover. It is pure: cfg is never mutated and
// no search executes before it succeeds.
func Validate(cfg Config) (Settings, error) {
	if cfg.TimeSlotDuration < 1 {
		return Settings{}, errConfig("timeSlotDuration", "must be at least 1 minute, got %d", cfg.TimeSlotDuration)
	}

	step := cfg.SlotStartMinuteStep
	if step == 0 {
		step = DefaultSlotStepMinutes
	}
	if step < 1 || step > 30 {
		return Settings{}, errConfig("slotStartMinuteStep", "must be between 1 and 30 minutes, got %d", cfg.SlotStartMinuteStep)
	}

	if cfg.MinAvailableTimeBeforeSlot < 0 {
		return Settings{}, errConfig("minAvailableTimeBeforeSlot", "must not be negative, got %d", cfg.MinAvailableTimeBeforeSlot)
	}
	if cfg.MinAvailableTimeAfterSlot < 0 {
		return Settings{}, errConfig("minAvailableTimeAfterSlot", "must not be negative, got %d", cfg.MinAvailableTimeAfterSlot)
	}
	if cfg.MinTimeBeforeFirstSlot < 0 {
		return Settings{}, errConfig("minTimeBeforeFirstSlot", "must not be negative, got %d", cfg.MinTimeBeforeFirstSlot)
	}

	horizonDays := 0
	if cfg.MaxDaysBeforeLastSlot != nil {
		if *cfg.MaxDaysBeforeLastSlot < 1 {
			return Settings{}, errConfig("maxDaysBeforeLastSlot", "must be at least 1 day, got %d", *cfg.MaxDaysBeforeLastSlot)
		}
		horizonDays = *cfg.MaxDaysBeforeLastSlot
		if cfg.MinTimeBeforeFirstSlot > horizonDays*24*60 {
			return Settings{}, errConfig("minTimeBeforeFirstSlot",
				"%d minutes exceeds the %d-day horizon; no slot can ever be produced", cfg.MinTimeBeforeFirstSlot, horizonDays)
		}
	}

	if cfg.TimeZone == "" {
		return Settings{}, errConfig("timeZone", "is required")
	}
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return Settings{}, errConfig("timeZone", "unrecognized IANA zone %q", cfg.TimeZone)
	}

	shifts := make(map[int][]DayShift, len(cfg.AvailablePeriods))
	for _, period := range cfg.AvailablePeriods {
		if period.WeekDay < 1 || period.WeekDay > 7 {
			return Settings{}, errConfig("availablePeriods", "weekDay must be an ISO weekday between 1 and 7, got %d", period.WeekDay)
		}
		if _, ok := shifts[period.WeekDay]; ok {
			// Only the first period per weekday is consulted.
			continue
		}
		merged, err := mergeShifts(period.WeekDay, period.Shifts)
		if err != nil {
			return Settings{}, err
		}
		if len(merged) > 0 {
			shifts[period.WeekDay] = merged
		}
	}

	for i, blackout := range cfg.UnavailablePeriods {
		if err := validateBlackout(i, blackout, loc); err != nil {
			return Settings{}, err
		}
	}

	return Settings{
		SlotDuration:    time.Duration(cfg.TimeSlotDuration) * time.Minute,
		Shifts:          shifts,
		Blackouts:       cfg.UnavailablePeriods,
		Location:        loc,
		BeforeBuffer:    time.Duration(cfg.MinAvailableTimeBeforeSlot) * time.Minute,
		AfterBuffer:     time.Duration(cfg.MinAvailableTimeAfterSlot) * time.Minute,
		MinLeadTime:     time.Duration(cfg.MinTimeBeforeFirstSlot) * time.Minute,
		HorizonDays:     horizonDays,
		SlotStepMinutes: step,
	}, nil
}

func mergeShifts(weekDay int, raw []Shift) ([]DayShift, error) {
	field := fmt.Sprintf("availablePeriods[weekDay=%d].shifts", weekDay)

	parsed := make([]DayShift, 0, len(raw))
	for _, sh := range raw {
		start, ok := parseClock(sh.Start)
		if !ok {
			return nil, errConfig(field, "malformed shift start %q, want 24-hour HH:MM", sh.Start)
		}
		end, ok := parseClock(sh.End)
		if !ok {
			return nil, errConfig(field, "malformed shift end %q, want 24-hour HH:MM", sh.End)
		}
		if end <= start {
			return nil, errConfig(field, "shift %s-%s is inverted or empty", sh.Start, sh.End)
		}
		parsed = append(parsed, DayShift{StartMinute: start, EndMinute: end})
	}
	if len(parsed) == 0 {
		return nil, nil
	}

	sort.Slice(parsed, func(i, j int) bool {
		if parsed[i].StartMinute == parsed[j].StartMinute {
			return parsed[i].EndMinute > parsed[j].EndMinute
		}
		return parsed[i].StartMinute < parsed[j].StartMinute
	})

	merged := parsed[:1]
	for _, sh := range parsed[1:] {
		last := &merged[len(merged)-1]
		if sh.StartMinute <= last.EndMinute {
			if sh.EndMinute > last.EndMinute {
				last.EndMinute = sh.EndMinute
			}
			continue
		}
		merged = append(merged, sh)
	}
	return merged, nil
}

// parseClock parses a 24-hour "HH:MM" string into minutes since start of day.
func parseClock(s string) (int, bool) {
	if len(s) != 5 || s[2] != ':' {
		return 0, false
	}
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	hour := int(s[0]-'0')*10 + int(s[1]-'0')
	minute := int(s[3]-'0')*10 + int(s[4]-'0')
	if hour > 23 || minute > 59 {
		return 0, false
	}
	return hour*60 + minute, true
}

// leapReferenceYear is used to bound yearless moments; it is a leap year so a
// recurring February 29 blackout stays representable.
const leapReferenceYear = 2000

func validateBlackout(index int, b BlackoutPeriod, loc *time.Location) error {
	field := fmt.Sprintf("unavailablePeriods[%d]", index)

	if (b.StartAt.Year == nil) != (b.EndAt.Year == nil) {
		return errConfig(field, "startAt and endAt must both carry a year or neither")
	}
	if err := validateMoment(field+".startAt", b.StartAt); err != nil {
		return err
	}
	if err := validateMoment(field+".endAt", b.EndAt); err != nil {
		return err
	}

	resolved := b.Resolve(leapReferenceYear, loc)
	if !resolved.End.After(resolved.Start) {
		return errConfig(field, "resolves to an empty or negative span")
	}
	return nil
}

func validateMoment(field string, m Moment) error {
	if m.Month < 0 || m.Month > 11 {
		return errConfig(field, "month must be between 0 and 11, got %d", m.Month)
	}
	year := leapReferenceYear
	if m.Year != nil {
		year = *m.Year
	}
	if m.Day < 1 || m.Day > daysInMonth(year, time.Month(m.Month+1)) {
		return errConfig(field, "day %d is out of range for month %d", m.Day, m.Month)
	}
	if m.Hour == nil && m.Minute != nil {
		return errConfig(field, "minute given without hour")
	}
	if m.Hour != nil && (*m.Hour < 0 || *m.Hour > 23) {
		return errConfig(field, "hour must be between 0 and 23, got %d", *m.Hour)
	}
	if m.Minute != nil && (*m.Minute < 0 || *m.Minute > 59) {
		return errConfig(field, "minute must be between 0 and 59, got %d", *m.Minute)
	}
	return nil
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Resolve materializes the blackout as an absolute period in loc. The given
// year is used for yearless moments; a yearless end preceding its start rolls
// forward one year. A start without an hour resolves to start of day, an end
// without an hour to end of day.
func (b BlackoutPeriod) Resolve(year int, loc *time.Location) interval.Period {
	startYear, endYear := year, year
	if b.StartAt.Year != nil {
		startYear = *b.StartAt.Year
	}
	if b.EndAt.Year != nil {
		endYear = *b.EndAt.Year
	}

	start := momentTime(b.StartAt, startYear, loc, false)
	end := momentTime(b.EndAt, endYear, loc, true)
	if b.StartAt.Year == nil && !end.After(start) {
		end = momentTime(b.EndAt, endYear+1, loc, true)
	}
	return interval.Period{Start: start, End: end}
}

func momentTime(m Moment, year int, loc *time.Location, endOfDay bool) time.Time {
	month := time.Month(m.Month + 1)
	if m.Hour == nil {
		if endOfDay {
			// End of day is the following midnight (half-open periods).
			return time.Date(year, month, m.Day+1, 0, 0, 0, 0, loc)
		}
		return time.Date(year, month, m.Day, 0, 0, 0, 0, loc)
	}
	minute := 0
	if m.Minute != nil {
		minute = *m.Minute
	}
	return time.Date(year, month, m.Day, *m.Hour, minute, 0, 0, loc)
}
