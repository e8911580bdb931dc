// Package consumer listens for settings-updated events and drops the affected
// business's cached settings. Every instance joins its own consumer group so
// the invalidation reaches all of them; no inbox dedup is needed since
// dropping a cache key twice is harmless.
package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/timegrid-io/timegrid/libs/kafkax"
	"github.com/timegrid-io/timegrid/services/availability-service/internal/outbox"
)

// Invalidator is the cache surface the consumer needs.
type Invalidator interface {
	Invalidate(ctx context.Context, businessID string) error
}

type Consumer struct {
	reader *kafka.Reader
	cache  Invalidator
	logger *slog.Logger
}

type Config struct {
	Brokers string
	GroupID string
}

func New(logger *slog.Logger, cache Invalidator, cfg Config) *Consumer {
	brokers := kafkax.SplitBrokers(cfg.Brokers)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  cfg.GroupID,
		Topic:    outbox.TopicSettingsUpdated,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader: reader,
		cache:  cache,
		logger: logger,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}

		ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
		ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
			),
		)
		c.handle(ctxSpan, span, msg)
		span.End()
	}
}

func (c *Consumer) handle(ctx context.Context, span trace.Span, msg kafka.Message) {
	meta := kafkax.ExtractEventMeta(msg)

	var payload outbox.SettingsUpdatedPayload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		c.logger.Error("undecodable settings event", "err", err, "event_id", meta.EventID)
		span.RecordError(err)
		return
	}
	if payload.BusinessID == "" {
		c.logger.Warn("settings event without business id", "event_id", meta.EventID)
		return
	}

	if err := c.cache.Invalidate(ctx, payload.BusinessID); err != nil {
		c.logger.Error("cache invalidation failed", "err", err, "business_id", payload.BusinessID)
		span.RecordError(err)
		return
	}
	c.logger.Info("settings cache invalidated",
		"business_id", payload.BusinessID, "event_id", meta.EventID)
}
