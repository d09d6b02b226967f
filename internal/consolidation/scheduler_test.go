package consolidation

import (
	"math"
	"testing"

	"github.com/nvandessel/loom/internal/graph"
	"github.com/nvandessel/loom/internal/hebbian"
	"github.com/nvandessel/loom/internal/hyperedge"
	"github.com/nvandessel/loom/internal/models"
	"github.com/nvandessel/loom/internal/vecstore"
)

func newGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.New(4, 16, graph.DefaultBounds())
	if err != nil {
		t.Fatalf("graph.New: %v", err)
	}
	if err := g.SetNodes(4); err != nil {
		t.Fatalf("SetNodes: %v", err)
	}
	return g
}

func TestDue(t *testing.T) {
	s, err := New(Config{Interval: 5, StrengthenFactor: 1.1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tests := []struct {
		tick uint64
		want bool
	}{
		{0, false},
		{1, false},
		{5, true},
		{7, false},
		{10, true},
	}
	for _, tt := range tests {
		if got := s.Due(tt.tick); got != tt.want {
			t.Errorf("Due(%d) = %v, want %v", tt.tick, got, tt.want)
		}
	}
}

func TestRun_FlagsOnlyWeakEdges(t *testing.T) {
	g := newGraph(t)
	edges := []struct {
		src, dst models.NodeID
		w        float64
	}{
		{0, 1, 0.5},
		{0, 2, 0.05},
		{1, 2, -0.03},
		{2, 3, -0.5},
		{3, 0, DefaultConfig().PruneThreshold},
	}
	for _, e := range edges {
		if _, err := g.CreateEdge(e.src, e.dst, e.w, 0); err != nil {
			t.Fatalf("CreateEdge: %v", err)
		}
	}

	cfg := DefaultConfig()
	cfg.CompactEvery = 0
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rep := s.Run(1000, g, nil)
	if rep.Flagged != 2 || rep.Temporary != 2 || rep.Compacted != 0 {
		t.Errorf("report = %+v, want 2 flagged, 2 temporary, none compacted", rep)
	}

	for _, e := range edges {
		w, ok := g.Weight(e.src, e.dst)
		if !ok || w != e.w {
			t.Errorf("%d->%d weight changed to %v", e.src, e.dst, w)
		}
		f, _ := g.Flags(e.src, e.dst)
		weak := e.w > -cfg.PruneThreshold && e.w < cfg.PruneThreshold
		if f.Has(models.FlagTemporary) != weak {
			t.Errorf("%d->%d (w=%v) temporary = %v, want %v", e.src, e.dst, e.w, f.Has(models.FlagTemporary), weak)
		}
	}

	// A second pass does not count already flagged edges again.
	if rep := s.Run(2000, g, nil); rep.Flagged != 0 {
		t.Errorf("second pass flagged %d", rep.Flagged)
	}
}

func TestRun_Compaction(t *testing.T) {
	g := newGraph(t)
	_, _ = g.CreateEdge(0, 1, 0.5, 0)
	_, _ = g.CreateEdge(1, 2, 0.01, 0)

	s, err := New(Config{Interval: 1, PruneThreshold: 0.1, StrengthenFactor: 1.1, CompactEvery: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if rep := s.Run(1, g, nil); rep.Compacted != 0 || g.Len() != 2 {
		t.Errorf("first pass compacted %d, Len %d", rep.Compacted, g.Len())
	}
	rep := s.Run(2, g, nil)
	if rep.Compacted != 1 || g.Len() != 1 || rep.Temporary != 0 {
		t.Errorf("second pass = %+v, Len %d; want one edge compacted", rep, g.Len())
	}
	if err := g.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestRun_RecoveredEdgeSurvivesCompaction(t *testing.T) {
	tests := []struct {
		name        string
		delta       float64 // added to the edge between the passes
		wantExists  bool
		wantRestore int
	}{
		{"recovered above threshold", 0.5, true, 1},
		{"recovered negative", -0.5, true, 1},
		{"recovered to exactly the threshold", 0.05, true, 1},
		{"still weak", 0.01, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGraph(t)
			_, _ = g.CreateEdge(0, 1, 0.05, 0)
			_, _ = g.CreateEdge(2, 3, 0.5, 0)

			s, err := New(Config{Interval: 1, PruneThreshold: 0.1, StrengthenFactor: 1.1, CompactEvery: 2})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if rep := s.Run(1, g, nil); rep.Flagged != 1 {
				t.Fatalf("first pass flagged %d, want 1", rep.Flagged)
			}
			if _, err := g.AddWeight(0, 1, tt.delta); err != nil {
				t.Fatalf("AddWeight: %v", err)
			}

			rep := s.Run(2, g, nil)
			if rep.Restored != tt.wantRestore {
				t.Errorf("second pass restored %d, want %d", rep.Restored, tt.wantRestore)
			}
			w, ok := g.Weight(0, 1)
			if ok != tt.wantExists {
				t.Fatalf("0->1 exists = %v (w=%v), want %v", ok, w, tt.wantExists)
			}
			if ok {
				if f, _ := g.Flags(0, 1); f.Has(models.FlagTemporary) {
					t.Errorf("recovered edge 0->1 (w=%v) is still temporary", w)
				}
			}
			if _, ok := g.Weight(2, 3); !ok {
				t.Error("strong edge 2->3 was removed")
			}
			if err := g.Validate(); err != nil {
				t.Errorf("Validate: %v", err)
			}
		})
	}
}

func TestRun_BackpropagatedEdgeSurvivesCompaction(t *testing.T) {
	store, err := vecstore.New(vecstore.DefaultLayout(), 8)
	if err != nil {
		t.Fatalf("vecstore.New: %v", err)
	}
	g, err := graph.New(8, 64, graph.DefaultBounds())
	if err != nil {
		t.Fatalf("graph.New: %v", err)
	}
	for _, l := range []string{"a", "b"} {
		if _, err := store.CreateNode(l); err != nil {
			t.Fatalf("CreateNode: %v", err)
		}
		if _, err := g.AddNode(); err != nil {
			t.Fatalf("AddNode: %v", err)
		}
	}
	learner, err := hebbian.New(hebbian.DefaultConfig(), store)
	if err != nil {
		t.Fatalf("hebbian.New: %v", err)
	}
	reg, err := hyperedge.NewRegistry(hyperedge.DefaultConfig(), store, g, learner)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if _, err := g.CreateEdge(0, 1, 0.05, 0); err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}
	id, err := reg.Create([]models.NodeID{0, 1}, models.ProcessorAnd)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	cfg := DefaultConfig()
	cfg.CompactEvery = 2
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Run(1000, g, reg)
	if f, _ := g.Flags(0, 1); !f.Has(models.FlagTemporary) {
		t.Fatal("weak edge 0->1 was not flagged")
	}

	for i := 0; i < 200; i++ {
		_ = store.SetActivation(0, 0.95)
		_ = store.SetActivation(1, 0.95)
		if _, err := reg.Compute(id); err != nil {
			t.Fatalf("Compute: %v", err)
		}
	}
	before, _ := g.Weight(0, 1)
	if math.Abs(before) < cfg.PruneThreshold {
		t.Fatalf("back-propagation left 0->1 at %v", before)
	}

	rep := s.Run(2000, g, reg)
	w, ok := g.Weight(0, 1)
	if !ok {
		t.Fatalf("compaction removed 0->1 with weight %v (report %+v)", before, rep)
	}
	if w != before {
		t.Errorf("consolidation changed 0->1 from %v to %v", before, w)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	bad := []Config{
		{Interval: 0, StrengthenFactor: 1.1},
		{Interval: 1, StrengthenFactor: 0.5},
		{Interval: 1, StrengthenFactor: 1.1, PruneThreshold: -1},
		{Interval: 1, StrengthenFactor: 1.1, CompactEvery: -1},
	}
	for i, cfg := range bad {
		if err := cfg.Validate(); err == nil {
			t.Errorf("config %d should fail validation", i)
		}
	}
}
