package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Post("/count", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/teapot", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	ok := httpRequestsTotal.WithLabelValues("POST", "200")
	teapot := httpRequestsTotal.WithLabelValues("GET", "418")
	beforeOK, beforeTeapot := testutil.ToFloat64(ok), testutil.ToFloat64(teapot)

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodPost, "/count", nil),
		httptest.NewRequest(http.MethodGet, "/teapot", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	if val := testutil.ToFloat64(ok) - beforeOK; val != 1 {
		t.Errorf("Expected httpRequestsTotal for POST /count to be 1, got %f", val)
	}
	if val := testutil.ToFloat64(teapot) - beforeTeapot; val != 1 {
		t.Errorf("Expected httpRequestsTotal for GET /teapot to be 1, got %f", val)
	}
	if val := testutil.CollectAndCount(httpRequestDurationSeconds); val <= 0 {
		t.Errorf("Expected httpRequestDurationSeconds to be observed, got %d", val)
	}
}
