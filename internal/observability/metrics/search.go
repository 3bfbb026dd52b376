package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/catalog-search/internal/core/domain"
)

type searchCollectors struct {
	normalizationTotal *prometheus.CounterVec
	cacheTotal         *prometheus.CounterVec
	retrievalTotal     *prometheus.CounterVec
	candidates         *prometheus.HistogramVec
	rerankTotal        *prometheus.CounterVec
	rerankDuration     *prometheus.HistogramVec
	searchDuration     prometheus.Histogram
	searchResults      prometheus.Histogram
}

func newSearchCollectors() searchCollectors {
	return searchCollectors{
		normalizationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "normalization_total",
				Help:      "Query normalization steps by outcome.",
			},
			[]string{"step", "outcome"},
		),
		cacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "cache_lookups_total",
				Help:      "Ranked-result cache lookups by result.",
			},
			[]string{"result"},
		),
		retrievalTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "retrieval_total",
				Help:      "Candidate retrievals by the stage that answered.",
			},
			[]string{"stage"},
		),
		candidates: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "candidates",
				Help:      "Candidates returned per retrieval.",
				Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 200},
			},
			[]string{"stage"},
		),
		rerankTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "rerank_total",
				Help:      "Rerank calls by outcome (model, fallback, empty).",
			},
			[]string{"outcome"},
		),
		rerankDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "rerank_duration_seconds",
				Help:      "Rerank duration in seconds by outcome.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
			},
			[]string{"outcome"},
		),
		searchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "duration_seconds",
				Help:      "End-to-end search duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		searchResults: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "ranked_results",
				Help:      "Ranked results per search.",
				Buckets:   []float64{0, 1, 5, 10, 25, 50},
			},
		),
	}
}

func (c searchCollectors) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.normalizationTotal,
		c.cacheTotal,
		c.retrievalTotal,
		c.candidates,
		c.rerankTotal,
		c.rerankDuration,
		c.searchDuration,
		c.searchResults,
	}
}

func (m *HTTPServerMetrics) ObserveNormalization(step string, fellBack bool) {
	outcome := "ok"
	if fellBack {
		outcome = "fallback"
	}
	m.search.normalizationTotal.WithLabelValues(step, outcome).Inc()
}

func (m *HTTPServerMetrics) ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.search.cacheTotal.WithLabelValues(result).Inc()
}

func (m *HTTPServerMetrics) ObserveRetrieval(stage domain.RetrievalStage, candidates int) {
	m.search.retrievalTotal.WithLabelValues(string(stage)).Inc()
	m.search.candidates.WithLabelValues(string(stage)).Observe(float64(candidates))
}

func (m *HTTPServerMetrics) ObserveRerank(outcome string, duration time.Duration) {
	m.search.rerankTotal.WithLabelValues(outcome).Inc()
	m.search.rerankDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) ObserveSearch(duration time.Duration, total int) {
	m.search.searchDuration.Observe(duration.Seconds())
	m.search.searchResults.Observe(float64(total))
}
