package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/catalog-search/internal/core/domain"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(body)
}

func TestMiddlewareRecordsStatusAndNormalizedPath(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/search?q=x", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/random/123", nil))

	out := scrape(t, m.Handler())
	if !strings.Contains(out, `catalog_http_requests_total{method="GET",path="/v1/search",service="api",status="418"} 1`) {
		t.Fatalf("missing search request sample:\n%s", out)
	}
	if !strings.Contains(out, `path="other"`) {
		t.Fatalf("unknown paths must collapse to other:\n%s", out)
	}
}

func TestSearchObserverSamples(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.ObserveNormalization("translate", true)
	m.ObserveCache(true)
	m.ObserveCache(false)
	m.ObserveRetrieval(domain.StageFullTextAny, 12)
	m.ObserveRerank("fallback", 150*time.Millisecond)
	m.ObserveSearch(time.Second, 12)

	out := scrape(t, m.Handler())
	for _, want := range []string{
		`catalog_search_normalization_total{outcome="fallback",step="translate"} 1`,
		`catalog_search_cache_lookups_total{result="hit"} 1`,
		`catalog_search_cache_lookups_total{result="miss"} 1`,
		`catalog_search_retrieval_total{stage="fulltext_any"} 1`,
		`catalog_search_rerank_total{outcome="fallback"} 1`,
		`catalog_search_duration_seconds_count 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestWorkerMetricsTrackStatus(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.StartRecord()
	m.FinishRecord(10*time.Millisecond, nil)
	m.StartRecord()
	m.FinishRecord(10*time.Millisecond, errors.New("embed failed"))
	m.StartRecord()
	m.FinishRecord(10*time.Millisecond, domain.WrapError(domain.ErrTemporary, "ollama.embed", errors.New("503")))

	out := scrape(t, m.Handler())
	if !strings.Contains(out, `catalog_worker_record_index_total{service="worker",status="success"} 1`) ||
		!strings.Contains(out, `catalog_worker_record_index_total{service="worker",status="error"} 1`) ||
		!strings.Contains(out, `catalog_worker_record_index_total{service="worker",status="temporary"} 1`) {
		t.Fatalf("unexpected worker samples:\n%s", out)
	}
	if !strings.Contains(out, `catalog_worker_record_index_in_flight{service="worker"} 0`) {
		t.Fatalf("in-flight gauge must return to zero:\n%s", out)
	}
}

func TestNormalizePathCollapsesRecordIDs(t *testing.T) {
	cases := map[string]string{
		"/v1/search":              "/v1/search",
		"/v1/records/42/changed":  "/v1/records/{id}/changed",
		"/v1/records/7/somewhere": "other",
		"/v1/records":             "other",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}
