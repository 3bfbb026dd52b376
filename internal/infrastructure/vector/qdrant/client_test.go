package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kirillkom/catalog-search/internal/core/domain"
	"github.com/kirillkom/catalog-search/internal/infrastructure/resilience"
)

func TestUpsertRecordEnsuresCollectionOncePerVectorSize(t *testing.T) {
	var ensureCalls int32
	var distance string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/records":
			atomic.AddInt32(&ensureCalls, 1)
			var body struct {
				Vectors struct {
					Distance string `json:"distance"`
				} `json:"vectors"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			distance = body.Vectors.Distance
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/records/points":
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "records", nil)
	for i := 0; i < 2; i++ {
		if err := client.UpsertRecord(context.Background(), 7, []float32{0.1, 0.2}); err != nil {
			t.Fatalf("UpsertRecord() error = %v", err)
		}
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected ensure collection called once, got %d", got)
	}
	if distance != "Dot" {
		t.Fatalf("expected dot-product collection, got %q", distance)
	}
}

func TestEnsureCollectionConflictIsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/collections/records" {
			http.Error(w, "already exists", http.StatusConflict)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := New(server.URL, "records", nil)
	if err := client.UpsertRecord(context.Background(), 1, []float32{1}); err != nil {
		t.Fatalf("UpsertRecord() error = %v", err)
	}
}

func TestEnsureCollectionIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/records" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL, "records", nil)
	err := client.UpsertRecord(context.Background(), 1, []float32{0.1, 0.2})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected error to include body, got %v", err)
	}
}

func TestSearchReturnsRecordHitsInOrder(t *testing.T) {
	var limit float64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/records/points/search" {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		limit, _ = body["limit"].(float64)
		_, _ = w.Write([]byte(`{"result":[{"id":12,"score":0.91},{"id":"not-a-record","score":0.5},{"id":3,"score":0.42}]}`))
	}))
	defer server.Close()

	client := New(server.URL, "records", resilience.NewExecutor(resilience.DefaultConfig()))
	hits, err := client.Search(context.Background(), []float32{0.1, 0.2}, 100)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if limit != 100 {
		t.Fatalf("expected limit 100, got %v", limit)
	}
	if len(hits) != 2 || hits[0].RecordID != 12 || hits[1].RecordID != 3 {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}

func TestSearchMissingCollectionIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "collection not found", http.StatusNotFound)
	}))
	defer server.Close()

	hits, err := New(server.URL, "records", nil).Search(context.Background(), []float32{1}, 10)
	if err != nil || len(hits) != 0 {
		t.Fatalf("expected no hits and no error, got %v %v", hits, err)
	}
}

func TestSearchServerErrorIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := New(server.URL, "records", nil).Search(context.Background(), []float32{1}, 10)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestDeleteRecordSendsPointID(t *testing.T) {
	var points []int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/records/points/delete" {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Points []int64 `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		points = body.Points
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	if err := New(server.URL, "records", nil).DeleteRecord(context.Background(), 42); err != nil {
		t.Fatalf("DeleteRecord() error = %v", err)
	}
	if len(points) != 1 || points[0] != 42 {
		t.Fatalf("unexpected points %v", points)
	}
}
