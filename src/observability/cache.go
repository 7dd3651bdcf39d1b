package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"personal/discord_client/src/cache"
)

// RegisterCacheMetrics reports the entity cache sizes as the cache.entries gauge,
// one series per kind. Unregister the returned registration when the cache goes away.
func RegisterCacheMetrics(c *cache.Cache) (metric.Registration, error) {
	meter := otel.Meter("discord_client/cache")

	entries, err := meter.Int64ObservableGauge(
		"cache.entries",
		metric.WithDescription("Number of cached entities, by kind"),
		metric.WithUnit("{entity}"),
	)
	if err != nil {
		return nil, err
	}

	users := metric.WithAttributes(attribute.String("kind", "user"))
	emojis := metric.WithAttributes(attribute.String("kind", "emoji"))
	messages := metric.WithAttributes(attribute.String("kind", "message"))

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := c.Stats()
		o.ObserveInt64(entries, int64(stats.Users), users)
		o.ObserveInt64(entries, int64(stats.Emojis), emojis)
		o.ObserveInt64(entries, int64(stats.Messages), messages)
		return nil
	}, entries)
}
