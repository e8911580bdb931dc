package interval

import (
	"sort"
	"time"
)

// Period is a half-open absolute time interval [Start, End).
type Period struct {
	Start time.Time
	End   time.Time
}

func (p Period) Duration() time.Duration {
	return p.End.Sub(p.Start)
}

func (p Period) Overlaps(o Period) bool {
	return p.Start.Before(o.End) && o.Start.Before(p.End)
}

// Contains reports whether o lies entirely within p. Equal bounds count as contained.
func (p Period) Contains(o Period) bool {
	return !p.Start.After(o.Start) && !p.End.Before(o.End)
}

// sortAscending orders by start time; ties are broken by the later end first,
// so that a containing interval always precedes the intervals it contains.
func sortAscending(periods []Period) {
	sort.Slice(periods, func(i, j int) bool {
		if periods[i].Start.Equal(periods[j].Start) {
			return periods[i].End.After(periods[j].End)
		}
		return periods[i].Start.Before(periods[j].Start)
	})
}

// MergeCover collapses the given periods into the minimal ascending set of
// non-overlapping periods covering the same time. Touching periods merge.
func MergeCover(periods []Period) []Period {
	if len(periods) == 0 {
		return nil
	}
	sorted := make([]Period, len(periods))
	copy(sorted, periods)
	sortAscending(sorted)

	merged := make([]Period, 0, len(sorted))
	cur := sorted[0]
	for _, p := range sorted[1:] {
		if !p.Start.After(cur.End) {
			if p.End.After(cur.End) {
				cur.End = p.End
			}
			continue
		}
		merged = append(merged, cur)
		cur = p
	}
	return append(merged, cur)
}

// DropContained sorts the periods ascending and removes every period fully
// contained within another, keeping the containing one. Periods with identical
// bounds collapse to one. Overlapping-but-not-nested periods are kept as-is.
func DropContained(periods []Period) []Period {
	if len(periods) == 0 {
		return nil
	}
	sorted := make([]Period, len(periods))
	copy(sorted, periods)
	sortAscending(sorted)

	// After sorting, a period is contained iff it does not extend past the
	// last kept period, so a single forward scan suffices.
	kept := make([]Period, 0, len(sorted))
	kept = append(kept, sorted[0])
	for _, p := range sorted[1:] {
		if kept[len(kept)-1].Contains(p) {
			continue
		}
		kept = append(kept, p)
	}
	return kept
}
