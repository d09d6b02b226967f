// Package metrics exposes engine telemetry as Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "loom"

// Metrics holds the collectors of one engine. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	ticks          prometheus.Counter
	opsApplied     prometheus.Counter
	opsSkipped     prometheus.Counter
	edgesPruned    prometheus.Counter
	consolidations prometheus.Counter

	nodes      prometheus.Gauge
	edges      prometheus.Gauge
	temporary  prometheus.Gauge
	hyperedges prometheus.Gauge
	emergence  prometheus.Gauge

	tickDuration prometheus.Histogram
}

// New creates the collectors and registers them on reg. A nil reg creates
// unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Number of completed engine ticks",
		}),
		opsApplied: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ops_applied_total",
			Help:      "Queued structural operations applied",
		}),
		opsSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ops_skipped_total",
			Help:      "Queued structural operations rejected and skipped",
		}),
		edgesPruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edges_pruned_total",
			Help:      "Edges flagged temporary by consolidation",
		}),
		consolidations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consolidations_total",
			Help:      "Consolidation passes run",
		}),
		nodes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nodes",
			Help:      "Nodes in the vector store, processor nodes included",
		}),
		edges: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "edges",
			Help:      "Edges stored in the sparse graph",
		}),
		temporary: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "edges_temporary",
			Help:      "Edges flagged temporary and awaiting compaction",
		}),
		hyperedges: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hyperedges",
			Help:      "Registered hyperedges",
		}),
		emergence: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "emergence",
			Help:      "Total processor state divided by total node activation",
		}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one engine tick",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}
}

// TickSample is what the engine reports after each tick.
type TickSample struct {
	Duration       time.Duration
	OpsApplied     int
	OpsSkipped     int
	Nodes          int
	Edges          int
	TemporaryEdges int
	Hyperedges     int
	Emergence      float64
}

// ObserveTick records one tick.
func (m *Metrics) ObserveTick(s TickSample) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.opsApplied.Add(float64(s.OpsApplied))
	m.opsSkipped.Add(float64(s.OpsSkipped))
	m.nodes.Set(float64(s.Nodes))
	m.edges.Set(float64(s.Edges))
	m.temporary.Set(float64(s.TemporaryEdges))
	m.hyperedges.Set(float64(s.Hyperedges))
	m.emergence.Set(s.Emergence)
	m.tickDuration.Observe(s.Duration.Seconds())
}

// ObserveConsolidation records one consolidation pass.
func (m *Metrics) ObserveConsolidation(flagged int) {
	if m == nil {
		return
	}
	m.consolidations.Inc()
	m.edgesPruned.Add(float64(flagged))
}

// Handler serves the collectors of g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
