// Package availability orchestrates a single availability request: load the
// business's scheduling configuration, validate it, gather busy intervals from
// the external collaborators, and run the slot search.
package availability

import (
	"context"
	"log/slog"
	"time"

	"github.com/timegrid-io/timegrid/services/availability-service/internal/interval"
	"github.com/timegrid-io/timegrid/services/availability-service/internal/schedule"
	"github.com/timegrid-io/timegrid/services/availability-service/internal/timeslot"
)

// SettingsSource supplies the persisted scheduling configuration of a business.
type SettingsSource interface {
	SchedulingConfig(ctx context.Context, businessID string) (schedule.Config, error)
}

// BusySource supplies absolute busy intervals intersecting [from, to), in any
// order. Confirmed bookings and calendar feeds both implement this.
type BusySource interface {
	BusyPeriods(ctx context.Context, businessID string, from, to time.Time) ([]interval.Period, error)
}

// SourceError marks a collaborator failure. The request fails as a whole: an
// empty busy list substituted for a failed source would report availability
// that may not exist.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string { return e.Source + " source: " + e.Err.Error() }

func (e *SourceError) Unwrap() error { return e.Err }

// BusyFeed names a busy source so failures can be attributed.
type BusyFeed struct {
	Name   string
	Source BusySource
}

type Service struct {
	settings SettingsSource
	feeds    []BusyFeed
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func New(settings SettingsSource, feeds []BusyFeed, fetchTimeout time.Duration, logger *slog.Logger) *Service {
	return &Service{
		settings: settings,
		feeds:    feeds,
		timeout:  fetchTimeout,
		logger:   logger,
		now:      time.Now,
	}
}

// GetAvailability returns the UTC start instants of every bookable slot of the
// given duration within [from, to). durationMinutes <= 0 means the configured
// default duration. An empty result is success, not an error.
func (s *Service) GetAvailability(ctx context.Context, businessID string, durationMinutes int, from, to time.Time) ([]time.Time, error) {
	slots, err := s.FindSlots(ctx, businessID, durationMinutes, from, to)
	if err != nil {
		return nil, err
	}
	starts := make([]time.Time, len(slots))
	for i, slot := range slots {
		starts[i] = slot.StartAt.UTC()
	}
	return starts, nil
}

// FindSlots is GetAvailability with full slot detail.
func (s *Service) FindSlots(ctx context.Context, businessID string, durationMinutes int, from, to time.Time) ([]timeslot.Slot, error) {
	cfg, err := s.settings.SchedulingConfig(ctx, businessID)
	if err != nil {
		return nil, &SourceError{Source: "settings", Err: err}
	}
	if durationMinutes > 0 {
		cfg.TimeSlotDuration = durationMinutes
	}
	set, err := schedule.Validate(cfg)
	if err != nil {
		return nil, err
	}

	external, err := s.fetchBusy(ctx, businessID, from, to)
	if err != nil {
		return nil, err
	}

	busy := timeslot.AggregateBusy(set, from, to, external)
	slots := timeslot.Find(set, busy, from, to, s.now())
	s.logger.DebugContext(ctx, "availability computed",
		slog.String("business_id", businessID),
		slog.Int("busy_intervals", len(busy)),
		slog.Int("slots", len(slots)))
	return slots, nil
}

// fetchBusy queries all busy sources concurrently under one timeout and joins
// the results. Any source failure fails the fetch.
func (s *Service) fetchBusy(ctx context.Context, businessID string, from, to time.Time) ([]interval.Period, error) {
	if len(s.feeds) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		name    string
		periods []interval.Period
		err     error
	}
	results := make(chan result, len(s.feeds))
	for _, f := range s.feeds {
		go func(f BusyFeed) {
			periods, err := f.Source.BusyPeriods(ctx, businessID, from, to)
			results <- result{name: f.Name, periods: periods, err: err}
		}(f)
	}

	var combined []interval.Period
	var firstErr error
	for range s.feeds {
		r := <-results
		if r.err != nil {
			if firstErr == nil {
				firstErr = &SourceError{Source: r.name, Err: r.err}
			}
			continue
		}
		combined = append(combined, r.periods...)
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return combined, nil
}

// ComputeSlots validates cfg and runs the search over caller-supplied busy
// intervals. This is the stateless entry point behind the slot-search endpoint;
// it touches no external collaborators.
func ComputeSlots(cfg schedule.Config, busy []interval.Period, from, to, now time.Time) ([]timeslot.Slot, error) {
	set, err := schedule.Validate(cfg)
	if err != nil {
		return nil, err
	}
	aggregated := timeslot.AggregateBusy(set, from, to, busy)
	return timeslot.Find(set, aggregated, from, to, now), nil
}
