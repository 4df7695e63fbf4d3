package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the build service.
type Metrics struct {
	RequestsConsumed prometheus.Counter
	StatusProduced   prometheus.Counter
	ParseErrors      prometheus.Counter
	PipelineRunning  prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Build metrics.
	RequestOutcomes   *prometheus.CounterVec   // labels: status={completed,error,restore}
	SelectionDuration *prometheus.HistogramVec // labels: policy
	SelectionRecords  *prometheus.HistogramVec // labels: policy

	// Storage metrics.
	StorageRequests    *prometheus.CounterVec   // labels: method={status,restore,fetch}, outcome={success,error}
	StorageCache       *prometheus.CounterVec   // labels: result={hit,miss}
	StorageAPIDuration *prometheus.HistogramVec // labels: method
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RequestsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "metget",
			Name:      "requests_consumed_total",
			Help:      "Total build requests read from the source topic.",
		}),
		StatusProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "metget",
			Name:      "status_produced_total",
			Help:      "Total status updates written to the sink topic.",
		}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "metget",
			Name:      "parse_errors_total",
			Help:      "Total messages that could not be decoded as build requests.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "metget",
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "metget",
			Name:      "batch_size",
			Help:      "Number of build requests per batch extracted from Kafka.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "metget",
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch consume-build-publish cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}),
		RequestOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metget",
			Name:      "request_outcomes_total",
			Help:      "Build requests by final status.",
		}, []string{"status"}),
		SelectionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "metget",
			Name:      "selection_duration_seconds",
			Help:      "Duration of one domain's catalog selection.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"policy"}),
		SelectionRecords: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "metget",
			Name:      "selection_records",
			Help:      "Number of files selected for one domain.",
			Buckets:   []float64{1, 6, 12, 24, 48, 96, 192, 384},
		}, []string{"policy"}),
		StorageRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metget",
			Name:      "storage_requests_total",
			Help:      "Object storage requests by method and outcome.",
		}, []string{"method", "outcome"}),
		StorageCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metget",
			Name:      "storage_status_cache_total",
			Help:      "Object status cache lookups by result.",
		}, []string{"result"}),
		StorageAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "metget",
			Name:      "storage_api_duration_seconds",
			Help:      "Object storage request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 30},
		}, []string{"method"}),
	}

	prometheus.MustRegister(
		m.RequestsConsumed,
		m.StatusProduced,
		m.ParseErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.RequestOutcomes,
		m.SelectionDuration,
		m.SelectionRecords,
		m.StorageRequests,
		m.StorageCache,
		m.StorageAPIDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		RequestsConsumed:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "metget", Name: "requests_consumed_total"}),
		StatusProduced:          prometheus.NewCounter(prometheus.CounterOpts{Namespace: "metget", Name: "status_produced_total"}),
		ParseErrors:             prometheus.NewCounter(prometheus.CounterOpts{Namespace: "metget", Name: "parse_errors_total"}),
		PipelineRunning:         prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "metget", Name: "pipeline_running"}),
		BatchSize:               prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "metget", Name: "batch_size"}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "metget", Name: "batch_processing_duration_seconds"}),
		RequestOutcomes:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "metget", Name: "request_outcomes_total"}, []string{"status"}),
		SelectionDuration:       prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "metget", Name: "selection_duration_seconds"}, []string{"policy"}),
		SelectionRecords:        prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "metget", Name: "selection_records"}, []string{"policy"}),
		StorageRequests:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "metget", Name: "storage_requests_total"}, []string{"method", "outcome"}),
		StorageCache:            prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "metget", Name: "storage_status_cache_total"}, []string{"result"}),
		StorageAPIDuration:      prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "metget", Name: "storage_api_duration_seconds"}, []string{"method"}),
	}
}
