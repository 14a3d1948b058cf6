package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error   { return nil }
func fail(context.Context) error { return errors.New("connection refused") }

func TestHealthChecker_Check(t *testing.T) {
	tests := []struct {
		name     string
		critical bool
		check    CheckFunc
		want     string
	}{
		{"no failures", true, ok, StatusHealthy},
		{"critical failure", true, fail, StatusUnhealthy},
		{"optional failure", false, fail, StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthChecker("1.2.3")
			h.AddCheck("authority", true, ok)
			h.AddCheck("dep", tt.critical, tt.check)

			status := h.Check(context.Background())
			assert.Equal(t, tt.want, status.Status)
			assert.Equal(t, "1.2.3", status.Version)
			assert.Len(t, status.Dependencies, 2)
		})
	}
}

func TestHealthChecker_CriticalWinsOverDegraded(t *testing.T) {
	h := NewHealthChecker("")
	h.AddCheck("redis", false, fail)
	h.AddCheck("authority", true, fail)
	h.AddCheck("other", false, fail)

	status := h.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, "connection refused", status.Dependencies["authority"].Message)
}

func TestRedisCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	check := RedisCheck(client)
	require.NoError(t, check(context.Background()))

	mr.Close()
	assert.Error(t, check(context.Background()))
}

func TestHealthChecker_Routes(t *testing.T) {
	h := NewHealthChecker("dev")
	h.AddCheck("authority", true, fail)

	mux := http.NewServeMux()
	RegisterHealthRoutes(mux, h)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	for _, path := range []string{"/health", "/health/ready"} {
		rr = httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code, path)

		var status HealthStatus
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&status))
		assert.Equal(t, StatusUnhealthy, status.Status)
		assert.Contains(t, status.Dependencies, "authority")
	}
}
