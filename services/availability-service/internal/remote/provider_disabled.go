//go:build !protogen

package remote

import (
	"context"

	"github.com/timegrid-io/timegrid/services/availability-service/internal/schedule"
)

// Provider fetches scheduling configuration from the central business service
// for tenants not yet migrated to locally persisted settings.
type Provider interface {
	SchedulingConfig(ctx context.Context, businessID string) (schedule.Config, error)
}

// NewProvider is a no-op until protos are generated (build with -tags protogen).
func NewProvider(_ string) (Provider, error) {
	return nil, nil
}
