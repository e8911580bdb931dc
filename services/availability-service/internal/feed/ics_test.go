package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type fakeResolver struct {
	url string
	err error
}

func (f *fakeResolver) CalendarFeedURL(ctx context.Context, businessID string) (string, error) {
	return f.url, f.err
}

const sampleFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//timegrid//test//EN
BEGIN:VEVENT
UID:evt-1
DTSTART:20260302T100000Z
DTEND:20260302T103000Z
SUMMARY:Team sync
END:VEVENT
BEGIN:VEVENT
UID:evt-2
DTSTART:20260302T110000Z
DTEND:20260302T113000Z
STATUS:CANCELLED
SUMMARY:Dentist
END:VEVENT
BEGIN:VEVENT
UID:evt-3
DTSTART:20260302T120000Z
DTEND:20260302T123000Z
SUMMARY:Cancelled review
END:VEVENT
BEGIN:VEVENT
UID:evt-4
DTSTART:20260302T130000Z
SUMMARY:Renovation
END:VEVENT
END:VCALENDAR
`

func feedServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(strings.ReplaceAll(body, "\n", "\r\n")))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBusyPeriods_FiltersCancelledEvents(t *testing.T) {
	srv := feedServer(t, sampleFeed)
	client := NewClient(&fakeResolver{url: srv.URL}, 2*time.Second)

	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	periods, err := client.BusyPeriods(context.Background(), "biz-1", from, from.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(periods) != 2 {
		t.Fatalf("expected 2 periods, got %v", periods)
	}
	if !periods[0].Start.Equal(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected first period: %v", periods[0])
	}
	// The open-ended event spans one year from its start.
	if !periods[1].End.Equal(time.Date(2027, 3, 2, 13, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected open-ended span: %v", periods[1])
	}
}

func TestBusyPeriods_WindowIntersection(t *testing.T) {
	srv := feedServer(t, sampleFeed)
	client := NewClient(&fakeResolver{url: srv.URL}, 2*time.Second)

	// A window the week before: only the open-ended event could reach it,
	// and it has not started yet.
	from := time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC)
	periods, err := client.BusyPeriods(context.Background(), "biz-1", from, from.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(periods) != 0 {
		t.Fatalf("expected no periods, got %v", periods)
	}
}

func TestBusyPeriods_NoFeedConfigured(t *testing.T) {
	client := NewClient(&fakeResolver{url: ""}, 2*time.Second)
	periods, err := client.BusyPeriods(context.Background(), "biz-1", time.Now(), time.Now().AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if periods != nil {
		t.Fatalf("expected nil, got %v", periods)
	}
}

func TestBusyPeriods_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(&fakeResolver{url: srv.URL}, 2*time.Second)
	if _, err := client.BusyPeriods(context.Background(), "biz-1", time.Now(), time.Now().AddDate(0, 0, 7)); err == nil {
		t.Fatal("expected error for non-200 feed response")
	}
}
