package timeslot

import (
	"time"

	"github.com/timegrid-io/timegrid/services/availability-service/internal/interval"
	"github.com/timegrid-io/timegrid/services/availability-service/internal/schedule"
)

// Slot is a candidate bookable interval. StartAt and EndAt are absolute
// instants; callers normalize to UTC at the boundary.
type Slot struct {
	StartAt  time.Time
	EndAt    time.Time
	Duration time.Duration
}

// Find walks whole calendar days in the settings' zone from the effective
// lower bound to the effective upper bound and emits every non-conflicting
// slot. busy must be aggregated (ascending, encompassed intervals removed;
// see AggregateBusy). now anchors the lead-time and horizon boundaries.
//
// A slot start always lands on a multiple of the alignment step counted from
// start of the local day. The slot's leading buffer must be free and inside
// the clipped shift; a busy interval ending exactly where the leading buffer
// begins still conflicts. The trailing requirement is symmetric: the slot end
// plus the after-slot buffer must be free and inside the clipped shift, and a
// busy interval starting exactly at that trailing edge does not conflict.
//
// Zero slots is a legitimate result, not an error.
func Find(s schedule.Settings, busy []interval.Period, from, to, now time.Time) []Slot {
	lower := now.Add(s.BeforeBuffer + s.MinLeadTime)
	if from.After(lower) {
		lower = from
	}
	upper := to
	if s.HorizonDays > 0 {
		if horizon := now.AddDate(0, 0, s.HorizonDays); horizon.Before(upper) {
			upper = horizon
		}
	}
	if !upper.After(lower) {
		return nil
	}

	var slots []Slot
	day := startOfDay(lower.In(s.Location))
	for day.Before(upper) {
		if shifts, ok := s.Shifts[isoWeekday(day)]; ok {
			for _, shift := range shifts {
				slots = appendShiftSlots(slots, s, busy, day, shift, lower, upper)
			}
		}
		day = startOfDay(day.AddDate(0, 0, 1))
	}
	return slots
}

// appendShiftSlots scans one shift of one day. The cursor marks the earliest
// permissible slot start; it only ever moves forward, jumping straight to the
// end of a conflicting busy interval rather than stepping through it.
func appendShiftSlots(slots []Slot, s schedule.Settings, busy []interval.Period, day time.Time, shift schedule.DayShift, lower, upper time.Time) []Slot {
	shiftStart := minuteOfDay(day, shift.StartMinute)
	shiftEnd := minuteOfDay(day, shift.EndMinute)

	ws := shiftStart
	if lower.After(ws) {
		ws = lower
	}
	we := shiftEnd
	if upper.Before(we) {
		we = upper
	}
	if !we.After(ws) {
		return slots
	}

	// Only busy intervals that can reach into the buffered shift matter.
	relevant := busy[:0:0]
	windowLow := ws.Add(-s.BeforeBuffer)
	windowHigh := we.Add(s.AfterBuffer)
	for _, b := range busy {
		if b.End.Before(windowLow) || !b.Start.Before(windowHigh) {
			continue
		}
		relevant = append(relevant, b)
	}

	step := s.SlotStepMinutes
	cursor := ws.Add(s.BeforeBuffer)
	// The shift boundary itself may be touched by the leading buffer.
	cursorExclusive := false
	busyIdx := 0
	m := (shift.StartMinute / step) * step

	for {
		startAt := minuteOfDay(day, m)
		if startAt.Add(s.SlotDuration + s.AfterBuffer).After(we) {
			return slots
		}
		if startAt.Before(cursor) || (cursorExclusive && startAt.Equal(cursor)) {
			m += step
			continue
		}
		endAt := startAt.Add(s.SlotDuration)

		conflicted := false
		for busyIdx < len(relevant) {
			b := relevant[busyIdx]
			if b.End.Before(startAt.Add(-s.BeforeBuffer)) {
				busyIdx++
				continue
			}
			if b.Start.Before(endAt.Add(s.AfterBuffer)) {
				// Jump past the blocked region; the next slot's leading
				// buffer must begin strictly after this busy end.
				cursor = b.End.Add(s.BeforeBuffer)
				cursorExclusive = true
				busyIdx++
				conflicted = true
			}
			break
		}
		if conflicted {
			continue
		}

		slots = append(slots, Slot{StartAt: startAt, EndAt: endAt, Duration: s.SlotDuration})
		m += step
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// minuteOfDay resolves a wall-clock minute offset on the given day. time.Date
// normalizes the overflow, which keeps shift times correct across DST changes.
func minuteOfDay(day time.Time, m int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 0, m, 0, 0, day.Location())
}

// isoWeekday maps Go's Sunday-based weekday to ISO numbering, Monday = 1.
func isoWeekday(t time.Time) int {
	return (int(t.Weekday())+6)%7 + 1
}
