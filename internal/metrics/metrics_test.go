package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordCycleOutcomes(t *testing.T) {
	before := testutil.ToFloat64(importCyclesTotal.WithLabelValues("fetch_error", "timer"))
	RecordCycle("timer", true, 0, 0, 0, 0, time.Second)
	if got := testutil.ToFloat64(importCyclesTotal.WithLabelValues("fetch_error", "timer")); got != before+1 {
		t.Fatalf("fetch_error cycles = %v, want %v", got, before+1)
	}

	beforeImported := testutil.ToFloat64(importsTotal.WithLabelValues("imported"))
	RecordCycle("manual", false, 3, 2, 1, 1, time.Second)
	if got := testutil.ToFloat64(importsTotal.WithLabelValues("imported")); got != beforeImported+1 {
		t.Fatalf("imported = %v, want %v", got, beforeImported+1)
	}
	if got := testutil.ToFloat64(importCyclesTotal.WithLabelValues("partial", "manual")); got < 1 {
		t.Fatalf("partial manual cycles = %v", got)
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/items/{id}", "418"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items/42", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/items/{id}", "418")); got != before+1 {
		t.Fatalf("requests = %v, want %v", got, before+1)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	SetOutstandingCodes(4)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "showcase_outstanding_import_codes 4") {
		t.Fatalf("gauge not exported:\n%s", rec.Body.String())
	}
}
