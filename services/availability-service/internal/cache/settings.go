// Package cache is a Redis read-through layer over the settings repository.
// Availability is read-heavy and settings change rarely; the cache is
// invalidated by the settings-updated consumer on every write.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/timegrid-io/timegrid/services/availability-service/internal/availability"
	"github.com/timegrid-io/timegrid/services/availability-service/internal/schedule"
)

type SettingsCache struct {
	rdb    *redis.Client
	source availability.SettingsSource
	ttl    time.Duration
	logger *slog.Logger
}

func NewSettingsCache(rdb *redis.Client, source availability.SettingsSource, ttl time.Duration, logger *slog.Logger) *SettingsCache {
	return &SettingsCache{rdb: rdb, source: source, ttl: ttl, logger: logger}
}

func settingsKey(businessID string) string {
	return "availability:settings:" + businessID
}

// SchedulingConfig serves from Redis when possible and falls back to the
// underlying repository. Redis being down degrades to repository reads, it
// never fails the request.
func (c *SettingsCache) SchedulingConfig(ctx context.Context, businessID string) (schedule.Config, error) {
	key := settingsKey(businessID)
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var cfg schedule.Config
		if err := json.Unmarshal(data, &cfg); err == nil {
			return cfg, nil
		}
		c.logger.WarnContext(ctx, "dropping undecodable cached settings", slog.String("key", key))
		_ = c.rdb.Del(ctx, key).Err()
	} else if !errors.Is(err, redis.Nil) {
		c.logger.WarnContext(ctx, "settings cache read failed", slog.String("error", err.Error()))
	}

	cfg, err := c.source.SchedulingConfig(ctx, businessID)
	if err != nil {
		return schedule.Config{}, err
	}
	if data, err := json.Marshal(cfg); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.WarnContext(ctx, "settings cache write failed", slog.String("error", err.Error()))
		}
	}
	return cfg, nil
}

// Invalidate drops the cached settings of one business.
func (c *SettingsCache) Invalidate(ctx context.Context, businessID string) error {
	return c.rdb.Del(ctx, settingsKey(businessID)).Err()
}
