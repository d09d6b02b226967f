package graph

import (
	"errors"
	"math"
	"testing"

	"github.com/nvandessel/loom/internal/models"
)

type recordingLearner struct {
	calls []float64
}

func (r *recordingLearner) UpdatePair(a, b models.NodeID, rate float64) error {
	r.calls = append(r.calls, rate)
	return nil
}

func newTestGraph(t *testing.T, nodes, edges int) *Graph {
	t.Helper()
	g, err := New(nodes, edges, DefaultBounds())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := g.SetNodes(nodes); err != nil {
		t.Fatalf("SetNodes: %v", err)
	}
	return g
}

func TestCreateEdge_RowInsertOrder(t *testing.T) {
	g := newTestGraph(t, 8, 32)

	// Edges in other rows on both sides of row 3 so the shift crosses rows.
	mustCreate(t, g, 1, 2, 0.5)
	mustCreate(t, g, 5, 6, 0.5)

	for _, dst := range []models.NodeID{7, 0, 4, 2, 6} {
		mustCreate(t, g, 3, dst, 0.1*float64(dst))
	}

	if err := g.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if g.Len() != 7 {
		t.Errorf("Len = %d, want 7", g.Len())
	}

	targets, weights := g.Neighbors(3)
	want := []models.NodeID{7, 0, 4, 2, 6}
	if len(targets) != len(want) {
		t.Fatalf("row 3 has %d targets, want %d", len(targets), len(want))
	}
	for i := range want {
		if targets[i] != want[i] {
			t.Errorf("targets[%d] = %d, want %d", i, targets[i], want[i])
		}
		if math.Abs(weights[i]-0.1*float64(want[i])) > 1e-12 {
			t.Errorf("weights[%d] = %v", i, weights[i])
		}
	}

	if w, ok := g.Weight(5, 6); !ok || w != 0.5 {
		t.Errorf("row 5 disturbed by insert: %v, %v", w, ok)
	}

	rp := g.RowPtr()
	if rp[len(rp)-1] != uint32(g.Len()) {
		t.Errorf("rowPtr tail = %d, want %d", rp[len(rp)-1], g.Len())
	}
}

func TestCreateEdge_UpdateInPlace(t *testing.T) {
	g := newTestGraph(t, 3, 4)
	mustCreate(t, g, 0, 1, 0.3)

	created, err := g.CreateEdge(0, 1, 0.7, 0)
	if err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}
	if created {
		t.Error("second CreateEdge should update, not insert")
	}
	if g.Len() != 1 {
		t.Errorf("Len = %d, want 1", g.Len())
	}
	if w, _ := g.Weight(0, 1); w != 0.7 {
		t.Errorf("weight = %v, want 0.7", w)
	}
}

func TestCreateEdge_Errors(t *testing.T) {
	g := newTestGraph(t, 2, 1)

	if _, err := g.CreateEdge(0, 5, 0.1, 0); !errors.Is(err, models.ErrInvalidIndex) {
		t.Errorf("out of range dst: expected ErrInvalidIndex, got %v", err)
	}
	mustCreate(t, g, 0, 1, 0.1)
	if _, err := g.CreateEdge(1, 0, 0.1, 0); !errors.Is(err, models.ErrCapacityExceeded) {
		t.Errorf("full graph: expected ErrCapacityExceeded, got %v", err)
	}

	if err := g.Grow(2); err != nil {
		t.Fatalf("Grow: %v", err)
	}
	mustCreate(t, g, 1, 0, 0.1)
	if err := g.Validate(); err != nil {
		t.Errorf("Validate after grow: %v", err)
	}
}

func TestCreateEdge_ClampsWeight(t *testing.T) {
	g := newTestGraph(t, 2, 4)
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"above max", 3, 1},
		{"below min", -4, -1},
		{"nan", math.NaN(), -1},
		{"inside", 0.25, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := g.CreateEdge(0, 1, tt.in, 0); err != nil {
				t.Fatalf("CreateEdge: %v", err)
			}
			if w, _ := g.Weight(0, 1); w != tt.want {
				t.Errorf("weight = %v, want %v", w, tt.want)
			}
		})
	}
}

func TestCreateBidirectional(t *testing.T) {
	g := newTestGraph(t, 4, 8)
	learner := &recordingLearner{}

	n, err := g.CreateBidirectional(0, 2, 0.4, 0, learner)
	if err != nil {
		t.Fatalf("CreateBidirectional: %v", err)
	}
	if n != 2 {
		t.Errorf("inserted = %d, want 2", n)
	}
	for _, p := range [][2]models.NodeID{{0, 2}, {2, 0}} {
		w, ok := g.Weight(p[0], p[1])
		if !ok || w != 0.4 {
			t.Errorf("%d->%d = %v, %v; want 0.4", p[0], p[1], w, ok)
		}
		if f, _ := g.Flags(p[0], p[1]); !f.Has(models.FlagBidirectional) {
			t.Errorf("%d->%d missing bidirectional flag", p[0], p[1])
		}
	}

	n, err = g.CreateBidirectional(0, 2, 0.9, 0, learner)
	if err != nil {
		t.Fatalf("CreateBidirectional again: %v", err)
	}
	if n != 0 || g.Len() != 2 {
		t.Errorf("re-create inserted %d, Len %d; want 0, 2", n, g.Len())
	}
	for _, p := range [][2]models.NodeID{{0, 2}, {2, 0}} {
		if w, _ := g.Weight(p[0], p[1]); w != 0.9 {
			t.Errorf("%d->%d = %v, want 0.9", p[0], p[1], w)
		}
	}

	if len(learner.calls) != 2 || math.Abs(learner.calls[0]-0.04) > 1e-12 {
		t.Errorf("learner calls = %v, want two with the first at 0.04", learner.calls)
	}
}

func TestCreateBidirectional_AllOrNothing(t *testing.T) {
	g := newTestGraph(t, 3, 3)
	mustCreate(t, g, 2, 1, 0.1)
	mustCreate(t, g, 2, 0, 0.1)

	if _, err := g.CreateBidirectional(0, 1, 0.5, 0, nil); !errors.Is(err, models.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if _, ok := g.Weight(0, 1); ok {
		t.Error("half of a failed bidirectional edge was written")
	}
}

func TestMarkTemporaryAndCompact(t *testing.T) {
	g := newTestGraph(t, 4, 8)
	mustCreate(t, g, 0, 1, 0.5)
	mustCreate(t, g, 0, 2, 0.01)
	mustCreate(t, g, 1, 3, 0.02)
	mustCreate(t, g, 2, 3, 0.6)

	if err := g.MarkTemporary(0, 2); err != nil {
		t.Fatalf("MarkTemporary: %v", err)
	}
	if err := g.MarkTemporary(1, 3); err != nil {
		t.Fatalf("MarkTemporary: %v", err)
	}
	if err := g.MarkTemporary(3, 0); !errors.Is(err, models.ErrInvalidIndex) {
		t.Errorf("missing edge: expected ErrInvalidIndex, got %v", err)
	}
	if got := g.CountTemporary(); got != 2 {
		t.Errorf("CountTemporary = %d, want 2", got)
	}

	if removed := g.Compact(); removed != 2 {
		t.Errorf("Compact removed %d, want 2", removed)
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate after compact: %v", err)
	}
	if g.Len() != 2 {
		t.Errorf("Len = %d, want 2", g.Len())
	}
	if _, ok := g.Weight(0, 2); ok {
		t.Error("temporary edge survived compaction")
	}
	if w, ok := g.Weight(2, 3); !ok || w != 0.6 {
		t.Errorf("2->3 = %v, %v; want 0.6", w, ok)
	}
}

func TestAddWeight(t *testing.T) {
	g := newTestGraph(t, 2, 2)
	mustCreate(t, g, 0, 1, 0.95)

	for i := 0; i < 10; i++ {
		if _, err := g.AddWeight(0, 1, 0.1); err != nil {
			t.Fatalf("AddWeight: %v", err)
		}
	}
	if w, _ := g.Weight(0, 1); w != 1 {
		t.Errorf("weight = %v, want clamped 1", w)
	}
	if _, err := g.AddWeight(1, 0, 0.1); !errors.Is(err, models.ErrInvalidIndex) {
		t.Errorf("missing edge: expected ErrInvalidIndex, got %v", err)
	}
}

func TestGrowNodes(t *testing.T) {
	g := newTestGraph(t, 2, 4)
	mustCreate(t, g, 1, 0, 0.2)

	if err := g.GrowNodes(5); err != nil {
		t.Fatalf("GrowNodes: %v", err)
	}
	if _, err := g.AddNode(); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	mustCreate(t, g, 2, 1, 0.3)
	if err := g.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if g.NodeCap() != 5 || g.Nodes() != 3 {
		t.Errorf("NodeCap %d Nodes %d, want 5 and 3", g.NodeCap(), g.Nodes())
	}
}

func TestRestore(t *testing.T) {
	g := newTestGraph(t, 3, 4)
	mustCreate(t, g, 0, 1, 0.2)
	mustCreate(t, g, 2, 0, -0.4)

	cols, vals, flags := g.Edges()
	r, err := Restore(g.Nodes(), g.Cap(), g.Bounds(), g.RowPtr(), cols, vals, flags)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if w, ok := r.Weight(2, 0); !ok || w != -0.4 {
		t.Errorf("restored 2->0 = %v, %v", w, ok)
	}

	bad := append([]uint32(nil), g.RowPtr()...)
	bad[1] = 3
	if _, err := Restore(g.Nodes(), g.Cap(), g.Bounds(), bad, cols, vals, flags); err == nil {
		t.Error("Restore should reject a corrupt row pointer")
	}
}

func mustCreate(t *testing.T, g *Graph, src, dst models.NodeID, w float64) {
	t.Helper()
	if _, err := g.CreateEdge(src, dst, w, 0); err != nil {
		t.Fatalf("CreateEdge(%d, %d): %v", src, dst, err)
	}
}
