//go:build protogen

package remote

import (
	"context"
	"time"

	"github.com/timegrid-io/timegrid/libs/grpcx"
	schedulingv1 "github.com/timegrid-io/timegrid/protos/gen/scheduling/v1"
	"github.com/timegrid-io/timegrid/services/availability-service/internal/schedule"
)

// Provider fetches scheduling configuration from the central business service
// for tenants not yet migrated to locally persisted settings.
type Provider interface {
	SchedulingConfig(ctx context.Context, businessID string) (schedule.Config, error)
}

type grpcProvider struct {
	client schedulingv1.SchedulingServiceClient
}

func NewProvider(addr string) (Provider, error) {
	if addr == "" {
		return nil, nil
	}
	conn, err := grpcx.Dial(context.Background(), addr, grpcx.DialOptions{Timeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}
	return &grpcProvider{client: schedulingv1.NewSchedulingServiceClient(conn)}, nil
}

func (p *grpcProvider) SchedulingConfig(ctx context.Context, businessID string) (schedule.Config, error) {
	resp, err := p.client.GetSchedulingConfig(ctx, &schedulingv1.SchedulingConfigRequest{
		BusinessId: businessID,
	})
	if err != nil {
		return schedule.Config{}, err
	}

	cfg := schedule.Config{
		TimeSlotDuration:           int(resp.GetSlotDurationMinutes()),
		TimeZone:                   resp.GetTimeZone(),
		MinAvailableTimeBeforeSlot: int(resp.GetBeforeBufferMinutes()),
		MinAvailableTimeAfterSlot:  int(resp.GetAfterBufferMinutes()),
		MinTimeBeforeFirstSlot:     int(resp.GetMinLeadMinutes()),
		SlotStartMinuteStep:        int(resp.GetSlotStepMinutes()),
	}
	if resp.HorizonDays != nil {
		days := int(resp.GetHorizonDays())
		cfg.MaxDaysBeforeLastSlot = &days
	}
	for _, period := range resp.GetAvailablePeriods() {
		p := schedule.AvailablePeriod{WeekDay: int(period.GetWeekDay())}
		for _, sh := range period.GetShifts() {
			p.Shifts = append(p.Shifts, schedule.Shift{Start: sh.GetStartClock(), End: sh.GetEndClock()})
		}
		cfg.AvailablePeriods = append(cfg.AvailablePeriods, p)
	}
	for _, blackout := range resp.GetUnavailablePeriods() {
		cfg.UnavailablePeriods = append(cfg.UnavailablePeriods, schedule.BlackoutPeriod{
			StartAt: momentFromProto(blackout.GetStartAt()),
			EndAt:   momentFromProto(blackout.GetEndAt()),
		})
	}
	return cfg, nil
}

func momentFromProto(m *schedulingv1.Moment) schedule.Moment {
	out := schedule.Moment{
		Month: int(m.GetMonth()),
		Day:   int(m.GetDay()),
	}
	if m.Year != nil {
		year := int(m.GetYear())
		out.Year = &year
	}
	if m.Hour != nil {
		hour := int(m.GetHour())
		out.Hour = &hour
	}
	if m.Minute != nil {
		minute := int(m.GetMinute())
		out.Minute = &minute
	}
	return out
}
