package cache

import (
	"context"
	"time"

	"sipim/backend/internal/domain"
)

// DashboardCache keeps computed dashboard reports keyed by date range. Entries
// expire by TTL only; slightly stale reports are acceptable.
type DashboardCache interface {
	Get(ctx context.Context, key string) (*domain.DashboardReport, bool, error)
	Set(ctx context.Context, key string, value *domain.DashboardReport, ttl time.Duration) error
}

type NoopDashboardCache struct{}

func (NoopDashboardCache) Get(_ context.Context, _ string) (*domain.DashboardReport, bool, error) {
	return nil, false, nil
}

func (NoopDashboardCache) Set(_ context.Context, _ string, _ *domain.DashboardReport, _ time.Duration) error {
	return nil
}
