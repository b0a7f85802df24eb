// Package metrics holds the pipeline's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	ticksTotal        *prometheus.CounterVec
	tickDuration      *prometheus.HistogramVec
	ticksSkipped      *prometheus.CounterVec
	publishTotal      *prometheus.CounterVec
	generationTotal   *prometheus.CounterVec
	engagementFetches *prometheus.CounterVec
	queueDepth        *prometheus.GaugeVec
}

// New registers the collectors on reg. A fresh prometheus.NewRegistry()
// keeps tests isolated.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		ticksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "crier",
				Name:      "ticks_total",
				Help:      "Scheduler ticks run, by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		tickDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "crier",
				Name:      "tick_duration_seconds",
				Help:      "Duration of scheduler ticks in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms to ~7m
			},
			[]string{"kind"},
		),
		ticksSkipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "crier",
				Name:      "ticks_skipped_total",
				Help:      "Ticks skipped because the previous run of the same kind still held its lease",
			},
			[]string{"kind"},
		),
		publishTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "crier",
				Name:      "publish_total",
				Help:      "Publish attempts by platform and result",
			},
			[]string{"platform", "result"}, // "success", "transient", "rejected", "credential_missing", "skipped"
		),
		generationTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "crier",
				Name:      "generation_total",
				Help:      "Content generation attempts by result",
			},
			[]string{"result"},
		),
		engagementFetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "crier",
				Name:      "engagement_fetch_total",
				Help:      "Engagement fetches by platform and result",
			},
			[]string{"platform", "result"}, // "stored", "unavailable", "error"
		),
		queueDepth: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "crier",
				Name:      "queue_due_items",
				Help:      "Due items seen by the last queue flush",
			},
			[]string{"kind"},
		),
	}
}

func (m *Metrics) Tick(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ticksTotal.WithLabelValues(kind, outcome).Inc()
	m.tickDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) TickSkipped(kind string) {
	if m == nil {
		return
	}
	m.ticksSkipped.WithLabelValues(kind).Inc()
}

func (m *Metrics) Publish(platform, result string) {
	if m == nil {
		return
	}
	m.publishTotal.WithLabelValues(platform, result).Inc()
}

func (m *Metrics) Generation(result string) {
	if m == nil {
		return
	}
	m.generationTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) EngagementFetch(platform, result string) {
	if m == nil {
		return
	}
	m.engagementFetches.WithLabelValues(platform, result).Inc()
}

func (m *Metrics) DueItems(kind string, n int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(kind).Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
