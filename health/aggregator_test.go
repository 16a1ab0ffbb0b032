package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/apphost"
)

func ok(context.Context) error { return nil }

func TestAggregator_CheckAll(t *testing.T) {
	a := NewAggregator()
	require.NoError(t, a.RegisterCheck(Named("db", ok)))
	require.NoError(t, a.RegisterCheck(Named("cache", func(context.Context) error { return errors.New("down") })))
	assert.ErrorIs(t, a.RegisterCheck(Named("db", ok)), ErrCheckAlreadyRegistered)
	assert.Equal(t, []string{"cache", "db"}, a.Names())

	status := a.CheckAll(t.Context())
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, StatusHealthy, status.Checks["db"].Status)
	assert.Equal(t, "down", status.Checks["cache"].Error)
	assert.False(t, a.IsReady(t.Context()))

	require.NoError(t, a.UnregisterCheck("cache"))
	assert.ErrorIs(t, a.UnregisterCheck("cache"), ErrCheckNotFound)
	assert.True(t, a.IsReady(t.Context()))
}

func TestAggregator_EmptyIsHealthy(t *testing.T) {
	status := NewAggregator().CheckAll(t.Context())
	assert.True(t, status.Healthy())
	assert.Empty(t, status.Checks)
}

func TestAggregator_Timeout(t *testing.T) {
	a := NewAggregator(WithTimeout(10 * time.Millisecond))
	require.NoError(t, a.RegisterCheck(Named("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})))

	status := a.CheckAll(t.Context())
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Contains(t, status.Checks["slow"].Error, "deadline exceeded")
}

func TestFromServices_SharesOneAggregator(t *testing.T) {
	services := apphost.NewContainer()
	first, err := FromServices(services)
	require.NoError(t, err)
	second, err := FromServices(services)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestReadinessHandler(t *testing.T) {
	a := NewAggregator()
	require.NoError(t, a.RegisterCheck(Named("db", func(context.Context) error { return errors.New("refused") })))

	req := httptest.NewRequest(http.MethodGet, "/ready?format=json", nil)
	rec := httptest.NewRecorder()
	ReadinessHandler(a).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body AggregatedStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, StatusUnhealthy, body.Status)
	assert.Equal(t, "refused", body.Checks["db"].Error)

	rec = httptest.NewRecorder()
	LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}
