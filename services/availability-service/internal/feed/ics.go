// Package feed pulls busy intervals out of an external ICS calendar feed.
package feed

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/timegrid-io/timegrid/services/availability-service/internal/interval"
)

// URLResolver supplies the feed URL of a business. An empty URL means the
// business has no external calendar.
type URLResolver interface {
	CalendarFeedURL(ctx context.Context, businessID string) (string, error)
}

// yearSpan bounds events that declare no end: an open-ended event is treated
// as busy for one year from its start.
const yearSpan = 1

type Client struct {
	resolver URLResolver
	http     *http.Client
}

func NewClient(resolver URLResolver, timeout time.Duration) *Client {
	return &Client{
		resolver: resolver,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// BusyPeriods downloads the business's feed and returns the busy intervals of
// its events intersecting [from, to). Cancelled events and events whose
// summary begins with "cancel" do not block availability.
func (c *Client) BusyPeriods(ctx context.Context, businessID string, from, to time.Time) ([]interval.Period, error) {
	url, err := c.resolver.CalendarFeedURL(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("resolve feed url: %w", err)
	}
	if url == "" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch feed: unexpected status %d", resp.StatusCode)
	}

	cal, err := ics.ParseCalendar(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	window := interval.Period{Start: from, End: to}
	var periods []interval.Period
	for _, event := range cal.Events() {
		if skipEvent(event) {
			continue
		}
		start, err := event.GetStartAt()
		if err != nil {
			continue
		}
		end, err := event.GetEndAt()
		if err != nil {
			end = start.AddDate(yearSpan, 0, 0)
		}
		p := interval.Period{Start: start, End: end}
		if p.End.After(p.Start) && p.Overlaps(window) {
			periods = append(periods, p)
		}
	}
	return periods, nil
}

func skipEvent(event *ics.VEvent) bool {
	if p := event.GetProperty(ics.ComponentPropertyStatus); p != nil && strings.EqualFold(p.Value, "CANCELLED") {
		return true
	}
	if p := event.GetProperty(ics.ComponentPropertySummary); p != nil &&
		strings.HasPrefix(strings.ToLower(strings.TrimSpace(p.Value)), "cancel") {
		return true
	}
	return false
}
