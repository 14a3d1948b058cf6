package observability

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	require.NotNil(t, m)

	// Registering twice on the same registry must panic.
	assert.Panics(t, func() { NewMetrics(registry) })
}

func TestMetrics_ObserveOperation(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	start := time.Now()

	m.ObserveOperation("delete_role", start, nil)
	m.ObserveOperation("delete_role", start, errors.New("boom"))
	m.ObserveOperation("delete_role", start, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EngineOperationsTotal.WithLabelValues("delete_role", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EngineOperationsTotal.WithLabelValues("delete_role", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.EngineOperationDuration))
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.AssignmentFetchFailed()
	m.RefreshCompleted(true)
	m.RefreshCompleted(false)
	m.RefreshCompleted(false)
	m.BroadcastFailed("redis")
	m.EventDropped()
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.ObserveAuthorityRequest("list_roles", 200, time.Now())
	m.ObserveAuthorityRequest("list_roles", 0, time.Now())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AssignmentFetchFailuresTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshesTotal.WithLabelValues("applied")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RefreshesTotal.WithLabelValues("discarded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BroadcastFailuresTotal.WithLabelValues("redis")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotifierDroppedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResolverCacheTotal.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResolverCacheTotal.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthorityRequestsTotal.WithLabelValues("list_roles", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthorityRequestsTotal.WithLabelValues("list_roles", "0")))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveOperation("x", time.Now(), nil)
		m.AssignmentFetchFailed()
		m.RefreshCompleted(true)
		m.BroadcastFailed("redis")
		m.EventDropped()
		m.CacheLookup(true)
		m.ObserveAuthorityRequest("x", 200, time.Now())
	})

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveOperation("create_role", time.Now(), nil)

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `rolesync_engine_operations_total{operation="create_role",status="success"} 1`))
}
