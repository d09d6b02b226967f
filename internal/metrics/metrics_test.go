package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				out[mf.GetName()] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[mf.GetName()] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				out[mf.GetName()] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func TestObserveTick(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveTick(TickSample{Duration: time.Millisecond, OpsApplied: 3, OpsSkipped: 1, Nodes: 7, Edges: 12, Hyperedges: 1, Emergence: 0.25})
	m.ObserveTick(TickSample{Duration: time.Millisecond, OpsApplied: 2, Nodes: 8, Edges: 14, TemporaryEdges: 2, Hyperedges: 1, Emergence: 0.5})
	m.ObserveConsolidation(4)

	got := gather(t, reg)
	want := map[string]float64{
		"loom_ticks_total":           2,
		"loom_ops_applied_total":     5,
		"loom_ops_skipped_total":     1,
		"loom_nodes":                 8,
		"loom_edges":                 14,
		"loom_edges_temporary":       2,
		"loom_hyperedges":            1,
		"loom_emergence":             0.5,
		"loom_tick_duration_seconds": 2,
		"loom_consolidations_total":  1,
		"loom_edges_pruned_total":    4,
	}
	for name, v := range want {
		if got[name] != v {
			t.Errorf("%s = %v, want %v", name, got[name], v)
		}
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveTick(TickSample{Nodes: 1})
	m.ObserveConsolidation(1)
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).ObserveTick(TickSample{Nodes: 2})

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "loom_nodes 2") {
		t.Errorf("metrics output missing loom_nodes:\n%s", body)
	}
}
