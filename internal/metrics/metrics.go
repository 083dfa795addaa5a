// Package metrics exposes Prometheus instrumentation for ingestion cycles.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the ingestor collectors. A nil *Metrics records nothing.
type Metrics struct {
	ItemsUpserted    *prometheus.CounterVec
	ItemUpsertErrors *prometheus.CounterVec
	SourceFailures   *prometheus.CounterVec
	TopicsAdded      *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ItemsUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingestor_items_upserted_total",
			Help: "Items written to storage, by source",
		}, []string{"source"}),
		ItemUpsertErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingestor_item_upsert_errors_total",
			Help: "Items that failed to write, by source",
		}, []string{"source"}),
		SourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingestor_source_failures_total",
			Help: "Sources whose fetch or decode failed",
		}, []string{"source"}),
		TopicsAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingestor_topics_added_total",
			Help: "Topic tags attached to items, by topic",
		}, []string{"topic"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ingestor_cycle_duration_seconds",
			Help:    "Wall time of one ingestion cycle",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
	}
	reg.MustRegister(m.ItemsUpserted, m.ItemUpsertErrors, m.SourceFailures, m.TopicsAdded, m.CycleDuration)
	return m
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ItemUpserted counts one stored item.
func (m *Metrics) ItemUpserted(source string) {
	if m == nil {
		return
	}
	m.ItemsUpserted.WithLabelValues(source).Inc()
}

// ItemFailed counts one item that could not be stored.
func (m *Metrics) ItemFailed(source string) {
	if m == nil {
		return
	}
	m.ItemUpsertErrors.WithLabelValues(source).Inc()
}

// SourceFailed counts one failed source fetch or decode.
func (m *Metrics) SourceFailed(source string) {
	if m == nil {
		return
	}
	m.SourceFailures.WithLabelValues(source).Inc()
}

// TopicAdded counts one topic tag.
func (m *Metrics) TopicAdded(topic string) {
	if m == nil {
		return
	}
	m.TopicsAdded.WithLabelValues(topic).Inc()
}

// ObserveCycle records the duration of a finished cycle.
func (m *Metrics) ObserveCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.CycleDuration.Observe(d.Seconds())
}
