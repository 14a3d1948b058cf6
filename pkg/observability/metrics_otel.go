package observability

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/platinummonkey/rolesync"

// OTelMetrics mirrors the Prometheus collectors as OpenTelemetry instruments so they reach
// an OTLP collector when OTel is enabled.
type OTelMetrics struct {
	engineOperations metric.Int64Counter
	engineDuration   metric.Float64Histogram

	authorityRequests metric.Int64Counter
	authorityDuration metric.Float64Histogram

	cacheLookups metric.Int64Counter
}

// NewOTelMetrics creates the instruments on provider's meter.
func NewOTelMetrics(provider metric.MeterProvider) (*OTelMetrics, error) {
	meter := provider.Meter(meterName)

	m := &OTelMetrics{}
	var err error

	m.engineOperations, err = meter.Int64Counter(
		"rolesync.engine.operations",
		metric.WithDescription("Engine operations by outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine operations counter: %w", err)
	}

	m.engineDuration, err = meter.Float64Histogram(
		"rolesync.engine.duration",
		metric.WithDescription("Engine operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine duration histogram: %w", err)
	}

	m.authorityRequests, err = meter.Int64Counter(
		"rolesync.authority.requests",
		metric.WithDescription("Requests sent to the authority"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authority requests counter: %w", err)
	}

	m.authorityDuration, err = meter.Float64Histogram(
		"rolesync.authority.duration",
		metric.WithDescription("Authority request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authority duration histogram: %w", err)
	}

	m.cacheLookups, err = meter.Int64Counter(
		"rolesync.resolver.cache.lookups",
		metric.WithDescription("Effective permission cache lookups by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache lookups counter: %w", err)
	}

	return m, nil
}

// RecordOperation records an engine operation.
func (m *OTelMetrics) RecordOperation(ctx context.Context, operation string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("error", err != nil),
	)
	m.engineOperations.Add(ctx, 1, attrs)
	m.engineDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordAuthorityRequest records one authority call.
func (m *OTelMetrics) RecordAuthorityRequest(ctx context.Context, op string, status int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("status", strconv.Itoa(status)),
	)
	m.authorityRequests.Add(ctx, 1, attrs)
	m.authorityDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordCacheLookup records a resolver cache hit or miss.
func (m *OTelMetrics) RecordCacheLookup(ctx context.Context, hit bool) {
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.Bool("hit", hit)))
}
