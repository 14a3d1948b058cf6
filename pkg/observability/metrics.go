package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the assignment engine and its collaborators.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry
	otel     *OTelMetrics

	// Engine metrics
	EngineOperationsTotal   *prometheus.CounterVec
	EngineOperationDuration *prometheus.HistogramVec

	// Synchronization metrics
	AssignmentFetchFailuresTotal prometheus.Counter
	RefreshesTotal               *prometheus.CounterVec

	// Notification metrics
	BroadcastFailuresTotal *prometheus.CounterVec
	NotifierDroppedTotal   prometheus.Counter

	// Cache metrics
	ResolverCacheTotal *prometheus.CounterVec

	// Authority client metrics
	AuthorityRequestsTotal   *prometheus.CounterVec
	AuthorityRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all collectors on registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		EngineOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rolesync_engine_operations_total",
				Help: "Total number of engine operations by outcome",
			},
			[]string{"operation", "status"},
		),
		EngineOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rolesync_engine_operation_duration_seconds",
				Help:    "Engine operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		AssignmentFetchFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rolesync_assignment_fetch_failures_total",
				Help: "Per-role permission fetches that degraded to an empty set",
			},
		),
		RefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rolesync_refreshes_total",
				Help: "Assignment map refreshes by outcome (applied or discarded)",
			},
			[]string{"result"},
		),
		BroadcastFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rolesync_broadcast_failures_total",
				Help: "Remote broadcast failures swallowed by the notifier",
			},
			[]string{"channel"},
		),
		NotifierDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rolesync_notifier_dropped_total",
				Help: "Events dropped because a subscriber channel was full",
			},
		),
		ResolverCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rolesync_resolver_cache_total",
				Help: "Effective permission cache lookups by result",
			},
			[]string{"result"},
		),
		AuthorityRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rolesync_authority_requests_total",
				Help: "Requests sent to the authority",
			},
			[]string{"op", "status"},
		),
		AuthorityRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rolesync_authority_request_duration_seconds",
				Help:    "Authority request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
	}

	registry.MustRegister(
		m.EngineOperationsTotal,
		m.EngineOperationDuration,
		m.AssignmentFetchFailuresTotal,
		m.RefreshesTotal,
		m.BroadcastFailuresTotal,
		m.NotifierDroppedTotal,
		m.ResolverCacheTotal,
		m.AuthorityRequestsTotal,
		m.AuthorityRequestDuration,
	)

	return m
}

// WithOTel mirrors every observation into OpenTelemetry instruments as well.
func (m *Metrics) WithOTel(om *OTelMetrics) *Metrics {
	if m != nil {
		m.otel = om
	}
	return m
}

// ObserveOperation records the outcome and duration of an engine operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.EngineOperationsTotal.WithLabelValues(operation, status).Inc()
	elapsed := time.Since(start)
	m.EngineOperationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
	if m.otel != nil {
		m.otel.RecordOperation(context.Background(), operation, elapsed, err)
	}
}

// AssignmentFetchFailed counts a per-role fetch that degraded to an empty set.
func (m *Metrics) AssignmentFetchFailed() {
	if m == nil {
		return
	}
	m.AssignmentFetchFailuresTotal.Inc()
}

// RefreshCompleted records whether a refresh was applied or discarded as stale.
func (m *Metrics) RefreshCompleted(applied bool) {
	if m == nil {
		return
	}
	result := "applied"
	if !applied {
		result = "discarded"
	}
	m.RefreshesTotal.WithLabelValues(result).Inc()
}

// BroadcastFailed counts a swallowed broadcast failure on channel.
func (m *Metrics) BroadcastFailed(channel string) {
	if m == nil {
		return
	}
	m.BroadcastFailuresTotal.WithLabelValues(channel).Inc()
}

// EventDropped counts an event not delivered to a full subscriber.
func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.NotifierDroppedTotal.Inc()
}

// CacheLookup records a resolver cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ResolverCacheTotal.WithLabelValues(result).Inc()
	if m.otel != nil {
		m.otel.RecordCacheLookup(context.Background(), hit)
	}
}

// ObserveAuthorityRequest records one authority call. status is the HTTP status, or 0 when
// no response arrived.
func (m *Metrics) ObserveAuthorityRequest(op string, status int, start time.Time) {
	if m == nil {
		return
	}
	m.AuthorityRequestsTotal.WithLabelValues(op, strconv.Itoa(status)).Inc()
	elapsed := time.Since(start)
	m.AuthorityRequestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
	if m.otel != nil {
		m.otel.RecordAuthorityRequest(context.Background(), op, status, elapsed)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
