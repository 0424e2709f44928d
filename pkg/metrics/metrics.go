// Package metrics defines the Prometheus collectors used by the broadcast
// tools and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	BuildsTotal        *prometheus.CounterVec
	BuildPhaseDuration *prometheus.HistogramVec
	BatchesTotal       *prometheus.CounterVec
	RecordsAssigned    prometheus.Counter
	BroadcastLength    *prometheus.GaugeVec
	BroadcastBuckets   *prometheus.GaugeVec
	TraversalsTotal    *prometheus.CounterVec
	TuningBlocks       prometheus.Histogram
	AccessBlocks       prometheus.Histogram
	IndexHops          prometheus.Histogram
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates all collectors and registers them with reg. A nil reg uses a
// fresh private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	blockBuckets := prometheus.ExponentialBuckets(1, 2, 14)
	m := &Metrics{
		BuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broadcast_builds_total",
				Help: "Broadcast builds by mode and status (ok, input_error, corrupt, error).",
			},
			[]string{"mode", "status"},
		),
		BuildPhaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "broadcast_build_phase_duration_seconds",
				Help:    "Duration of each construction phase in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"mode", "phase"},
		),
		BatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broadcast_batches_total",
				Help: "Record batches submitted by outcome (accepted, rejected).",
			},
			[]string{"outcome"},
		),
		RecordsAssigned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "broadcast_records_assigned_total",
				Help: "Total records assigned to buckets.",
			},
		),
		BroadcastLength: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "broadcast_length_blocks",
				Help: "Blocks per cycle of the last assembled broadcast.",
			},
			[]string{"mode"},
		),
		BroadcastBuckets: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "broadcast_buckets",
				Help: "Buckets per cycle of the last assembled broadcast, replicas included.",
			},
			[]string{"mode"},
		),
		TraversalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broadcast_traversals_total",
				Help: "Simulated lookups by result (found, not_found, error).",
			},
			[]string{"result"},
		),
		TuningBlocks: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "broadcast_tuning_blocks",
				Help:    "Blocks read per lookup.",
				Buckets: []float64{2, 3, 4, 5, 6, 7, 8, 10, 12, 16, 24, 32},
			},
		),
		AccessBlocks: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "broadcast_access_blocks",
				Help:    "Blocks elapsed from tune-in to the record per lookup.",
				Buckets: blockBuckets,
			},
		),
		IndexHops: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "broadcast_index_hops",
				Help:    "Global index blocks consulted per lookup.",
				Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10, 16},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "broadcast_report_cache_hits_total",
				Help: "Total sweep report cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "broadcast_report_cache_misses_total",
				Help: "Total sweep report cache misses.",
			},
		),
		gatherer: reg,
	}

	reg.MustRegister(
		m.BuildsTotal,
		m.BuildPhaseDuration,
		m.BatchesTotal,
		m.RecordsAssigned,
		m.BroadcastLength,
		m.BroadcastBuckets,
		m.TraversalsTotal,
		m.TuningBlocks,
		m.AccessBlocks,
		m.IndexHops,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Gatherer exposes the backing registry, mainly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}
