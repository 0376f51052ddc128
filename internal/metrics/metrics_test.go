// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/synchro/synchroweb/internal/metrics"
)

func TestAccountEvent(t *testing.T) {
	m := metrics.New()

	m.AccountEvent("signup", "success")
	m.AccountEvent("signup", "success")
	m.AccountEvent("login", "unauthorized")

	expected := `
# HELP synchroweb_account_events_total Account lifecycle operations by event and outcome.
# TYPE synchroweb_account_events_total counter
synchroweb_account_events_total{event="login",outcome="unauthorized"} 1
synchroweb_account_events_total{event="signup",outcome="success"} 2
`
	err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "synchroweb_account_events_total")
	require.NoError(t, err)
}

func TestMiddleware(t *testing.T) {
	m := metrics.New()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/dist/:secret/:filename", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/fail", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusForbidden, "no")
	})

	for _, path := range []string{"/dist/a/x.zip", "/dist/b/y.zip", "/fail"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	expected := `
# HELP synchroweb_http_requests_total Total number of HTTP requests handled.
# TYPE synchroweb_http_requests_total counter
synchroweb_http_requests_total{method="GET",path="/dist/:secret/:filename",status="200"} 2
synchroweb_http_requests_total{method="GET",path="/fail",status="403"} 1
`
	err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "synchroweb_http_requests_total")
	require.NoError(t, err)
}

func TestHandler(t *testing.T) {
	m := metrics.New()
	m.AccountEvent("verify", "success")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `synchroweb_account_events_total{event="verify",outcome="success"} 1`)
}
