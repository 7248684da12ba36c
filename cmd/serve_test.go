package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildServer_Routes(t *testing.T) {
	c := sqliteConfig(t)
	st := newSQLiteStore(t)

	handler, checker := buildServer(st, c)
	assert.Nil(t, checker, "monitoring disabled")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/reports/monthly", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestBuildServer_MonitoringEnabled(t *testing.T) {
	c := sqliteConfig(t)
	c.Monitoring.Enabled = true
	c.Monitoring.FailureRateThreshold = 0.5

	_, checker := buildServer(newSQLiteStore(t), c)
	assert.NotNil(t, checker)
}
