package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/catalog-search/internal/core/domain"
)

func rerankCandidates() []domain.Record {
	return []domain.Record{
		{ID: 501, Title: "Secret Title A", Owner: "Acme Owner", ShortDescription: "hand pump for wells"},
		{ID: 502, Title: "Secret Title B", Partner: "Beta Partner", ShortDescription: "solar powered drip irrigation"},
		{ID: 503, Title: "Secret Title C", DataSource: "Gamma Registry", LongDescription: "community seed bank"},
	}
}

func TestRerankParsesScoredEntriesAndSorts(t *testing.T) {
	gen := &generatorFake{generateJSON: func(string, string) (string, error) {
		return `[{"id":"Doc 1","score":40},{"id":"Doc 3","score":250},{"id":"Doc 2"},{"id":"Doc 9","score":99}]`, nil
	}}
	r := NewReranker(gen, RerankConfig{}, nil)

	got, fromModel := r.Rerank(context.Background(), "water for crops", rerankCandidates())
	if !fromModel {
		t.Fatalf("expected a model ranking")
	}
	want := []domain.ScoredResult{{RecordID: 503, Score: 100}, {RecordID: 502, Score: 50}, {RecordID: 501, Score: 40}}
	if len(got) != len(want) {
		t.Fatalf("expected %d results, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("result %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestRerankAcceptsLegacyHandlesAndWrappedObjects(t *testing.T) {
	cases := map[string]string{
		"bare":    `["Doc 2", "doc 1"]`,
		"wrapped": "```json\n{\"results\": [{\"handle\": \"Doc 2\", \"score\": \"50\"}, {\"id\": 1, \"score\": 50}]}\n```",
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			gen := &generatorFake{generateJSON: func(string, string) (string, error) { return payload, nil }}
			got, _ := NewReranker(gen, RerankConfig{}, nil).Rerank(context.Background(), "q", rerankCandidates())
			if len(got) != 2 || got[0].RecordID != 502 || got[1].RecordID != 501 {
				t.Fatalf("unexpected ranking: %+v", got)
			}
			for _, r := range got {
				if r.Score != domain.DefaultScore {
					t.Fatalf("expected default score, got %+v", r)
				}
			}
		})
	}
}

func TestRerankKeepsFirstOccurrenceOfDuplicates(t *testing.T) {
	gen := &generatorFake{generateJSON: func(string, string) (string, error) {
		return `[{"id":"Doc 1","score":70},{"id":"Doc 1","score":95},{"id":"Doc 2","score":-5}]`, nil
	}}
	got, _ := NewReranker(gen, RerankConfig{}, nil).Rerank(context.Background(), "q", rerankCandidates())
	if len(got) != 2 || got[0] != (domain.ScoredResult{RecordID: 501, Score: 70}) || got[1] != (domain.ScoredResult{RecordID: 502, Score: 0}) {
		t.Fatalf("unexpected ranking: %+v", got)
	}
}

func TestRerankFallsBackToRetrievalOrder(t *testing.T) {
	cases := map[string]func(string, string) (string, error){
		"call error":   func(string, string) (string, error) { return "", errors.New("timeout") },
		"prose":        func(string, string) (string, error) { return "Doc 2 is the best match", nil },
		"bad entries":  func(string, string) (string, error) { return `[1.5, true]`, nil },
		"unresolvable": func(string, string) (string, error) { return `[{"id":"Doc 77","score":90}]`, nil },
	}
	for name, respond := range cases {
		t.Run(name, func(t *testing.T) {
			gen := &generatorFake{generateJSON: respond}
			got, fromModel := NewReranker(gen, RerankConfig{MaxResults: 2}, nil).Rerank(context.Background(), "q", rerankCandidates())
			if fromModel {
				t.Fatalf("fallback ranking reported as a model ranking")
			}
			want := []domain.ScoredResult{{RecordID: 501, Score: 50}, {RecordID: 502, Score: 50}}
			if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
				t.Fatalf("unexpected fallback ranking: %+v", got)
			}
		})
	}
}

func TestRerankWithoutFreeTextReturnsEmpty(t *testing.T) {
	gen := &generatorFake{}
	got, _ := NewReranker(gen, RerankConfig{}, nil).Rerank(context.Background(), "q", []domain.Record{{ID: 1, Title: "only title"}})
	if len(got) != 0 {
		t.Fatalf("expected empty ranking, got %+v", got)
	}
	if gen.JSONCalls() != 0 {
		t.Fatalf("model must not be called without documents")
	}
}

func TestRerankPromptIsSanitizedAndTruncated(t *testing.T) {
	candidates := rerankCandidates()
	candidates[0].LongDescription = strings.Repeat("x", 2000)
	gen := &generatorFake{generateJSON: func(string, string) (string, error) { return `[]`, nil }}
	NewReranker(gen, RerankConfig{DocChars: 100}, nil).Rerank(context.Background(), "water", candidates)

	prompt := gen.lastJSON
	for _, forbidden := range []string{"Secret Title", "Acme Owner", "Beta Partner", "Gamma Registry", "501", "502", "503"} {
		if strings.Contains(prompt, forbidden) {
			t.Fatalf("prompt leaks %q", forbidden)
		}
	}
	if strings.Contains(prompt, strings.Repeat("x", 101)) {
		t.Fatalf("document text was not truncated")
	}
	if !strings.Contains(prompt, "[Doc 3]") || !strings.Contains(prompt, "water") {
		t.Fatalf("prompt misses handles or query: %s", prompt)
	}
}

func TestRerankScoresAreBoundedAndNonIncreasing(t *testing.T) {
	gen := &generatorFake{generateJSON: func(string, string) (string, error) {
		return `[{"id":"Doc 2","score":12.6},{"id":"Doc 1","score":1e9},{"id":"Doc 3","score":-1e9}]`, nil
	}}
	got, _ := NewReranker(gen, RerankConfig{}, nil).Rerank(context.Background(), "q", rerankCandidates())
	for i, r := range got {
		if r.Score < 0 || r.Score > 100 {
			t.Fatalf("score out of range: %+v", r)
		}
		if i > 0 && got[i-1].Score < r.Score {
			t.Fatalf("ranking not sorted: %+v", got)
		}
	}
	if got[0].RecordID != 501 || got[1].Score != 13 {
		t.Fatalf("unexpected ranking: %+v", got)
	}
}

func TestRerankMixedEntryKinds(t *testing.T) {
	gen := &generatorFake{generateJSON: func(string, string) (string, error) {
		return `[{"id":"Doc 3","score":90},"Doc 1",{"id":"Doc 2","score":null}]`, nil
	}}
	got, fromModel := NewReranker(gen, RerankConfig{}, nil).Rerank(context.Background(), "q", rerankCandidates())
	if !fromModel {
		t.Fatalf("expected a model ranking")
	}
	want := []domain.ScoredResult{{RecordID: 503, Score: 90}, {RecordID: 501, Score: 50}, {RecordID: 502, Score: 50}}
	if len(got) != len(want) {
		t.Fatalf("expected %d results, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("result %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}
