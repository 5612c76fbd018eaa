package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	jobmetrics "github.com/storefront-admin/storefront/internal/jobs"
	"github.com/storefront-admin/storefront/internal/rbac"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobMetrics(t *testing.T) {
	metrics := NewMetrics()
	jobs := jobmetrics.NewMetrics(metrics.Registerer())
	_ = jobs.Track("rbac:catalog_sync").End(nil)

	body := scrape(t, metrics)
	if !strings.Contains(body, `storefront_jobs_total{job="rbac:catalog_sync",status="success"} 1`) {
		t.Fatalf("expected body to contain storefront_jobs_total, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, "storefront_http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, "storefront_http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}

func TestMetricsRecordDecision(t *testing.T) {
	metrics := NewMetrics()
	metrics.RecordDecision(rbac.ModeAny, rbac.VerdictForbidden)
	metrics.RecordDecision("", rbac.VerdictAuthorized)
	metrics.RecordDecision(rbac.ModeAll, rbac.VerdictAuthorized)

	body := scrape(t, metrics)
	if !strings.Contains(body, `storefront_authz_decisions_total{mode="any",verdict="forbidden"} 1`) {
		t.Fatalf("expected forbidden decision, got: %s", body)
	}
	if !strings.Contains(body, `storefront_authz_decisions_total{mode="all",verdict="authorized"} 2`) {
		t.Fatalf("expected authorized decisions, got: %s", body)
	}
}

func TestMetricsRecordCacheLookup(t *testing.T) {
	metrics := NewMetrics()
	metrics.RecordCacheLookup(rbac.CacheHit)
	metrics.RecordCacheLookup(rbac.CacheHit)
	metrics.RecordCacheLookup(rbac.CacheMiss)

	body := scrape(t, metrics)
	if !strings.Contains(body, `storefront_rbac_cache_lookups_total{result="hit"} 2`) {
		t.Fatalf("expected cache hits, got: %s", body)
	}
	if !strings.Contains(body, `storefront_rbac_cache_lookups_total{result="miss"} 1`) {
		t.Fatalf("expected cache miss, got: %s", body)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var metrics *Metrics
	metrics.RecordDecision(rbac.ModeAll, rbac.VerdictAuthorized)
	metrics.RecordCacheLookup(rbac.CacheHit)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
