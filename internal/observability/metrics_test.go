package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/kitchenledger/kitchenledger/internal/jobs"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobCollectors(t *testing.T) {
	metrics := NewMetrics()
	jobs := jobmetrics.NewMetrics(metrics.Registerer())

	_ = jobs.Track("invoices_overdue_sweep").End(nil)
	_ = jobs.Track("invoices_overdue_sweep").End(errors.New("boom"))

	body := scrape(t, metrics)
	assert.Contains(t, body, `kitchenledger_jobs_total{job="invoices_overdue_sweep",status="success"} 1`)
	assert.Contains(t, body, `kitchenledger_jobs_failures_total{job="invoices_overdue_sweep"} 1`)
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/api/v1/invoices/{id}")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices/abc", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	assert.Contains(t, body, `kitchenledger_http_requests_total{code="418",route="/api/v1/invoices/{id}"} 1`)
	assert.Contains(t, body, `kitchenledger_http_request_duration_seconds_bucket{route="/api/v1/invoices/{id}"`)
	assert.Contains(t, body, "kitchenledger_http_requests_in_flight 0")
}

func TestNilMetricsHandlerUnavailable(t *testing.T) {
	var m *Metrics
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
