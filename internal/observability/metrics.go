package observability

import (
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hoststatus"

// Metrics stores Prometheus collectors for one agent run. The agent is
// short-lived, so the registry is written to a node_exporter textfile instead
// of being served.
type Metrics struct {
	registry *prometheus.Registry

	generationsTotal   *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	chunksTotal        *prometheus.CounterVec
	deliveryDuration   prometheus.Histogram
	lastRunTimestamp   prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		generationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generations_total",
				Help:      "Total number of report generations by provider and result.",
			},
			[]string{"provider", "result"},
		),
		generationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "Report generation duration in seconds grouped by provider.",
				Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
			},
			[]string{"provider"},
		),
		chunksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunks_total",
				Help:      "Total number of report chunks by delivery status.",
			},
			[]string{"status"},
		),
		deliveryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "delivery_duration_seconds",
				Help:      "Single chunk delivery duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		lastRunTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time of the last finished run.",
			},
		),
	}

	registry.MustRegister(
		m.generationsTotal,
		m.generationDuration,
		m.chunksTotal,
		m.deliveryDuration,
		m.lastRunTimestamp,
	)

	return m
}

// ObserveGeneration records one generation attempt. result is "ok" or the
// generation error kind.
func (m *Metrics) ObserveGeneration(provider, result string, duration time.Duration) {
	if m == nil {
		return
	}

	providerLabel := normalizeLabel(provider)
	m.generationsTotal.WithLabelValues(providerLabel, normalizeLabel(result)).Inc()
	m.generationDuration.WithLabelValues(providerLabel).Observe(max(duration.Seconds(), 0))
}

func (m *Metrics) ObserveDelivery(status string, duration time.Duration) {
	if m == nil {
		return
	}

	m.chunksTotal.WithLabelValues(normalizeLabel(status)).Inc()
	m.deliveryDuration.Observe(max(duration.Seconds(), 0))
}

func (m *Metrics) MarkRun(finishedAt time.Time) {
	if m == nil {
		return
	}

	m.lastRunTimestamp.Set(float64(finishedAt.UnixNano()) / float64(time.Second))
}

// WriteTextfile atomically replaces path with the current metric values.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}

	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("metrics textfile path is empty")
	}

	return prometheus.WriteToTextfile(path, m.registry)
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
