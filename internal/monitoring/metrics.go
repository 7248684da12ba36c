// Package monitoring exposes ingest metrics to Prometheus and watches the
// upload log for failure spikes.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kpi"

// Metrics holds the ingest counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	UploadsTotal       *prometheus.CounterVec
	RowsIngested       prometheus.Counter
	RowsStored         prometheus.Counter
	RowsDropped        *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	IngestDuration     prometheus.Histogram
	UploadFailRate     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		UploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Ingest runs by final status.",
		}, []string{"status"}),
		RowsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_ingested_total",
			Help:      "Data rows read from uploaded files.",
		}),
		RowsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_stored_total",
			Help:      "Normalized records appended to the store.",
		}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Rows dropped during normalization by reason.",
		}, []string{"reason"}),
		ValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Failed validation checks by check name.",
		}, []string{"check"}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Wall time of one ingest run.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		UploadFailRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upload_fail_rate",
			Help:      "Share of finished uploads that failed in the lookback window.",
		}),
	}
	reg.MustRegister(
		m.UploadsTotal, m.RowsIngested, m.RowsStored, m.RowsDropped,
		m.ValidationFailures, m.IngestDuration, m.UploadFailRate,
	)
	return m
}

// RunStats is what one ingest run reports to ObserveRun.
type RunStats struct {
	Status          string
	RowsIn          int
	RowsStored      int64
	DroppedPeriod   int
	DroppedRequired int
	FailedChecks    []string
	Duration        time.Duration
}

// ObserveRun records the outcome of one ingest run.
func (m *Metrics) ObserveRun(s RunStats) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(s.Status).Inc()
	m.RowsIngested.Add(float64(s.RowsIn))
	m.RowsStored.Add(float64(s.RowsStored))
	m.RowsDropped.WithLabelValues("period").Add(float64(s.DroppedPeriod))
	m.RowsDropped.WithLabelValues("required").Add(float64(s.DroppedRequired))
	for _, check := range s.FailedChecks {
		m.ValidationFailures.WithLabelValues(check).Inc()
	}
	m.IngestDuration.Observe(s.Duration.Seconds())
}

// SetFailRate publishes the latest upload failure rate.
func (m *Metrics) SetFailRate(rate float64) {
	if m == nil {
		return
	}
	m.UploadFailRate.Set(rate)
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
