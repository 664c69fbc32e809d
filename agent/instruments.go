package agent

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/hupe1980/insightmesh/core"
)

// instruments export per-call metrics through OpenTelemetry. With no meter
// provider installed they are no-ops.
type instruments struct {
	calls       metric.Int64Counter
	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter
	retries     metric.Int64Counter
	tokens      metric.Int64Counter
	duration    metric.Float64Histogram
}

func newInstruments(m metric.Meter) *instruments {
	fallback := noop.NewMeterProvider().Meter(instrumentationName)
	counter := func(name, desc string) metric.Int64Counter {
		c, err := m.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			c, _ = fallback.Int64Counter(name)
		}
		return c
	}
	hist, err := m.Float64Histogram("insightmesh.agent.duration",
		metric.WithDescription("Agent call duration"), metric.WithUnit("s"))
	if err != nil {
		hist, _ = fallback.Float64Histogram("insightmesh.agent.duration")
	}
	return &instruments{
		calls:       counter("insightmesh.agent.calls", "Agent calls by outcome"),
		cacheHits:   counter("insightmesh.agent.cache.hits", "Agent cache hits"),
		cacheMisses: counter("insightmesh.agent.cache.misses", "Agent cache misses"),
		retries:     counter("insightmesh.agent.retries", "Agent retries"),
		tokens:      counter("insightmesh.agent.tokens", "Tokens consumed by agent calls"),
		duration:    hist,
	}
}

func (i *instruments) record(ctx context.Context, agentName string, m core.Metrics, success bool) {
	attrs := metric.WithAttributes(attribute.String("agent", agentName))
	i.calls.Add(ctx, 1, metric.WithAttributes(attribute.String("agent", agentName), attribute.Bool("success", success)))
	i.duration.Record(ctx, m.ExecutionSeconds, attrs)
	if m.CacheHits > 0 {
		i.cacheHits.Add(ctx, int64(m.CacheHits), attrs)
	}
	if m.CacheMisses > 0 {
		i.cacheMisses.Add(ctx, int64(m.CacheMisses), attrs)
	}
	if m.RetryCount > 0 {
		i.retries.Add(ctx, int64(m.RetryCount), attrs)
	}
	if m.TotalTokens > 0 {
		i.tokens.Add(ctx, int64(m.TotalTokens), attrs)
	}
}
