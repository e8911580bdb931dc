// Package schedule defines the scheduling configuration consumed by the
// time-slot engine: recurring weekly shifts, blackout periods, buffers and
// alignment policy, plus the validation that turns the loosely-typed wire
// form into a fully-defaulted immutable Settings value.
package schedule

import (
	"time"
)

// Moment is a calendar point used to describe blackout periods. Year is
// optional: without it the moment recurs every year. Month is zero-based
// (January = 0) to match the public wire shape.
type Moment struct {
	Year   *int `json:"year,omitempty"`
	Month  int  `json:"month"`
	Day    int  `json:"day"`
	Hour   *int `json:"hour,omitempty"`
	Minute *int `json:"minute,omitempty"`
}

// Shift is a half-open working interval within one calendar day,
// expressed as 24-hour "HH:MM" wall-clock strings.
type Shift struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// AvailablePeriod is the set of shifts recurring on one ISO weekday
// (Monday = 1 .. Sunday = 7).
type AvailablePeriod struct {
	WeekDay int     `json:"weekDay"`
	Shifts  []Shift `json:"shifts"`
}

// BlackoutPeriod removes availability regardless of shifts. Both moments must
// either carry a year or neither; a yearless end that precedes its start
// wraps into the next year.
type BlackoutPeriod struct {
	StartAt Moment `json:"startAt"`
	EndAt   Moment `json:"endAt"`
}

// Config is the raw, wire-shaped scheduling configuration. It is validated
// and defaulted once per request by Validate; nothing downstream reads it.
type Config struct {
	TimeSlotDuration           int               `json:"timeSlotDuration"`
	AvailablePeriods           []AvailablePeriod `json:"availablePeriods"`
	UnavailablePeriods         []BlackoutPeriod  `json:"unavailablePeriods,omitempty"`
	TimeZone                   string            `json:"timeZone"`
	MinAvailableTimeBeforeSlot int               `json:"minAvailableTimeBeforeSlot,omitempty"`
	MinAvailableTimeAfterSlot  int               `json:"minAvailableTimeAfterSlot,omitempty"`
	MinTimeBeforeFirstSlot     int               `json:"minTimeBeforeFirstSlot,omitempty"`
	MaxDaysBeforeLastSlot      *int              `json:"maxDaysBeforeLastSlot,omitempty"`
	SlotStartMinuteStep        int               `json:"slotStartMinuteStep,omitempty"`
}

// DayShift is a validated shift as minutes since start of day, half-open.
type DayShift struct {
	StartMinute int
	EndMinute   int
}

// Settings is the validated, fully-defaulted form of a Config. It is
// immutable for the duration of one search call and safe for concurrent use.
type Settings struct {
	SlotDuration time.Duration
	// Shifts maps ISO weekday (1..7) to its merged, ascending,
	// non-overlapping shifts.
	Shifts       map[int][]DayShift
	Blackouts    []BlackoutPeriod
	Location     *time.Location
	BeforeBuffer time.Duration
	AfterBuffer  time.Duration
	// MinLeadTime is the minimum distance between now and the first slot.
	MinLeadTime time.Duration
	// HorizonDays caps how far into the future slots may be offered;
	// zero means unbounded.
	HorizonDays int
	// SlotStepMinutes is the minute granularity slot starts align to,
	// counted from start of the local day.
	SlotStepMinutes int
}

const DefaultSlotStepMinutes = 5
