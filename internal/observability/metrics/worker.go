package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/catalog-search/internal/core/domain"
)

type WorkerMetrics struct {
	service  string
	registry *prometheus.Registry

	indexTotal    *prometheus.CounterVec
	indexDuration *prometheus.HistogramVec
	indexInFlight prometheus.Gauge
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	indexTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "record_index_total",
			Help:      "Total indexed records by status.",
		},
		[]string{"service", "status"},
	)
	indexDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "record_index_duration_seconds",
			Help:      "Record indexing duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	indexInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "record_index_in_flight",
			Help:      "Number of in-flight record indexing tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(indexTotal, indexDuration, indexInFlight)

	return &WorkerMetrics{
		service:       service,
		registry:      registry,
		indexTotal:    indexTotal,
		indexDuration: indexDuration,
		indexInFlight: indexInFlight,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartRecord() {
	m.indexInFlight.Inc()
}

func (m *WorkerMetrics) FinishRecord(duration time.Duration, err error) {
	m.indexInFlight.Dec()

	status := "success"
	switch {
	case domain.IsKind(err, domain.ErrTemporary):
		status = "temporary"
	case err != nil:
		status = "error"
	}

	m.indexTotal.WithLabelValues(m.service, status).Inc()
	m.indexDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}
