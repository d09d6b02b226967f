package simulation

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"testing"

	"github.com/nvandessel/loom/internal/models"
)

// unitTolerance is the allowed deviation of a node vector's norm from 1.
const unitTolerance = 1e-6

// AssertWeightConverges checks that the edge weight lies in [lo, hi] in
// every phase from afterPhase onward.
func AssertWeightConverges(t *testing.T, r Result, from, to string, lo, hi float64, afterPhase int) {
	t.Helper()
	key := EdgeKey(from, to)
	for i := afterPhase; i < len(r.Phases); i++ {
		w, ok := r.Phases[i].Weights[key]
		if !ok {
			t.Errorf("AssertWeightConverges: phase %d: edge %s not found", i, key)
			continue
		}
		if w < lo || w > hi {
			t.Errorf("AssertWeightConverges: phase %d: %s = %.4f, want in [%.4f, %.4f]", i, key, w, lo, hi)
		}
	}
}

// AssertWeightIncreases checks that the edge weight at the last phase
// exceeds the weight at the first phase.
func AssertWeightIncreases(t *testing.T, r Result, from, to string) {
	t.Helper()
	key := EdgeKey(from, to)
	if len(r.Phases) < 2 {
		t.Errorf("AssertWeightIncreases: need at least 2 phases, have %d", len(r.Phases))
		return
	}
	first, ok1 := r.Phases[0].Weights[key]
	last, ok2 := r.Last().Weights[key]
	if !ok1 || !ok2 {
		t.Errorf("AssertWeightIncreases: edge %s missing (first=%v, last=%v)", key, ok1, ok2)
		return
	}
	if last <= first {
		t.Errorf("AssertWeightIncreases: %s went from %.4f to %.4f, want increase", key, first, last)
	}
}

// AssertWeightsBounded checks that every edge weight in every phase lies
// inside [lo, hi].
func AssertWeightsBounded(t *testing.T, r Result, lo, hi float64) {
	t.Helper()
	for _, p := range r.Phases {
		for key, w := range p.Weights {
			if math.IsNaN(w) || w < lo || w > hi {
				t.Errorf("AssertWeightsBounded: phase %d: %s = %v, want in [%v, %v]", p.Index, key, w, lo, hi)
			}
		}
	}
}

// AssertUnitNorm checks that every active node vector has unit norm.
func AssertUnitNorm(t *testing.T, r Result) {
	t.Helper()
	e := r.Session.Engine()
	for _, n := range e.Nodes() {
		if !n.Active {
			continue
		}
		v, err := e.Vector(n.ID)
		if err != nil {
			t.Errorf("AssertUnitNorm: node %d: %v", n.ID, err)
			continue
		}
		var sum float64
		for _, x := range v {
			sum += x * x
		}
		if norm := math.Sqrt(sum); math.Abs(norm-1) > unitTolerance {
			t.Errorf("AssertUnitNorm: node %d (%s) norm = %.9f, want 1", n.ID, n.Label, norm)
		}
	}
}

// AssertFired checks that at least min hyperedge firings were reported
// in the given phase.
func AssertFired(t *testing.T, r Result, phase, min int) {
	t.Helper()
	if phase >= len(r.Phases) {
		t.Errorf("AssertFired: phase %d out of range (have %d)", phase, len(r.Phases))
		return
	}
	if got := r.Phases[phase].Fired(); got < min {
		t.Errorf("AssertFired: phase %d fired %d times, want at least %d", phase, got, min)
	}
}

// AssertHyperedgeState checks that the state of hyperedge id at the end
// of the last phase lies in [lo, hi].
func AssertHyperedgeState(t *testing.T, r Result, id models.HyperedgeID, lo, hi float64) {
	t.Helper()
	for _, h := range r.Last().Hyperedges {
		if h.ID != id {
			continue
		}
		if h.State < lo || h.State > hi {
			t.Errorf("AssertHyperedgeState: hyperedge %d (%s) state = %.4f, want in [%.4f, %.4f]", id, h.Type, h.State, lo, hi)
		}
		return
	}
	t.Errorf("AssertHyperedgeState: hyperedge %d not found", id)
}

// AssertTemporary checks the temporary flag of an edge at the last phase.
func AssertTemporary(t *testing.T, r Result, from, to string, want bool) {
	t.Helper()
	key := EdgeKey(from, to)
	got, ok := r.Last().Temporary[key]
	if !ok {
		t.Errorf("AssertTemporary: edge %s not found", key)
		return
	}
	if got != want {
		t.Errorf("AssertTemporary: %s temporary = %v, want %v (weight %.4f)", key, got, want, r.Last().Weights[key])
	}
}

// AssertNoActivationCollapse checks that every stimulated label stayed
// above floor at the end of every phase.
func AssertNoActivationCollapse(t *testing.T, r Result, floor float64, labels ...string) {
	t.Helper()
	for _, p := range r.Phases {
		for _, l := range labels {
			if a := p.Activations[l]; a < floor {
				t.Errorf("AssertNoActivationCollapse: phase %d: %s activation = %.4f, want >= %.4f", p.Index, l, a, floor)
			}
		}
	}
}

// AssertJournaled checks that the journal holds one tick record per tick
// the scenario ran.
func AssertJournaled(t *testing.T, r Result) {
	t.Helper()
	j := r.Session.Journal()
	if j == nil {
		t.Error("AssertJournaled: session has no journal")
		return
	}
	if err := r.Session.Flush(context.Background()); err != nil {
		t.Fatalf("AssertJournaled: flush: %v", err)
	}
	ticks, err := j.Ticks(context.Background(), r.Session.Run().ID, 0)
	if err != nil {
		t.Fatalf("AssertJournaled: %v", err)
	}
	if len(ticks) != r.Ticks() {
		t.Errorf("AssertJournaled: journal has %d ticks, want %d", len(ticks), r.Ticks())
	}
}

// FormatPhaseDebug returns a human-readable dump of one phase for
// debugging failed tests.
func FormatPhaseDebug(p PhaseResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Phase %d", p.Index)
	if p.Label != "" {
		fmt.Fprintf(&b, " (%s)", p.Label)
	}
	fmt.Fprintf(&b, " ===\ntick=%d active=%d emergence=%.4f fired=%d\n",
		p.Snapshot.Tick, p.Snapshot.ActiveNodes, p.Snapshot.Emergence, p.Fired())

	keys := make([]string, 0, len(p.Weights))
	for k := range p.Weights {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteString("Edges:\n")
	for _, k := range keys {
		tmp := ""
		if p.Temporary[k] {
			tmp = " (temporary)"
		}
		fmt.Fprintf(&b, "  %s: %.4f%s\n", k, p.Weights[k], tmp)
	}

	b.WriteString("Hyperedges:\n")
	for _, h := range p.Hyperedges {
		fmt.Fprintf(&b, "  %d %s %v state=%.4f usage=%d\n", h.ID, h.Type, h.Participants, h.State, h.Usage)
	}
	return b.String()
}
