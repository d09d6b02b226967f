package hebbian

import (
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/nvandessel/loom/internal/constants"
	"github.com/nvandessel/loom/internal/graph"
	"github.com/nvandessel/loom/internal/models"
	"github.com/nvandessel/loom/internal/vecmath"
	"github.com/nvandessel/loom/internal/vecstore"
)

// maxStep caps every pull coefficient. At 0.5 both sides meet halfway;
// anything larger would carry them past each other. Near the ball boundary
// the conformal factor grows without bound, so the spatial pull hits this
// cap first.
const maxStep = 0.5

// Engine applies Hebbian updates to the vectors of a store and the weights
// of a graph. It is not safe for concurrent use.
type Engine struct {
	cfg   Config
	store *vecstore.Store
}

// New creates an engine over store.
func New(cfg Config, store *vecstore.Store) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid hebbian config: %w", err)
	}
	if cfg.Rule == "" {
		cfg.Rule = RulePlain
	}
	return &Engine{cfg: cfg, store: store}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// SetStore points the engine at a different store, used after a load
// replaces the arena.
func (e *Engine) SetStore(store *vecstore.Store) { e.store = store }

// UpdatePair pulls the vectors of a and b toward each other.
//
// The semantic subregions move symmetrically by rate*SemanticPull times
// their difference (capped at half of it, so they never cross), both sides using the difference computed before
// either moves. The spatial pull is additionally scaled by the squared
// conformal factor 2/(1-r^2) of each node, so nodes near the ball
// boundary move further in Euclidean terms. The auxiliary field pull is
// scaled by 1+a_i*b_i: agreeing fields converge faster than opposing ones.
// Both vectors are re-projected and renormalized afterwards.
func (e *Engine) UpdatePair(a, b models.NodeID, rate float64) error {
	va := e.store.View(a)
	vb := e.store.View(b)
	if va == nil || vb == nil {
		return fmt.Errorf("update pair %d, %d: %w", a, b, models.ErrInvalidIndex)
	}
	if a == b || rate == 0 {
		return nil
	}
	layout := e.store.Layout()

	k := math.Min(rate*e.cfg.SemanticPull, maxStep)
	sa, sb := layout.Semantic.Slice(va), layout.Semantic.Slice(vb)
	for i := range sa {
		d := sb[i] - sa[i]
		sa[i] += k * d
		sb[i] -= k * d
	}

	pa, pb := layout.Spatial.Slice(va), layout.Spatial.Slice(vb)
	ca := vecmath.ConformalFactor(pa, constants.BallRadius)
	cb := vecmath.ConformalFactor(pb, constants.BallRadius)
	ka := math.Min(rate*e.cfg.SpatialPull*ca*ca, maxStep)
	kb := math.Min(rate*e.cfg.SpatialPull*cb*cb, maxStep)
	for i := range pa {
		d := pb[i] - pa[i]
		pa[i] += ka * d
		pb[i] -= kb * d
	}
	vecmath.ProjectToBall(pa, constants.BallRadius)
	vecmath.ProjectToBall(pb, constants.BallRadius)

	fa, fb := layout.Field.Slice(va), layout.Field.Slice(vb)
	for i := range fa {
		resonance := math.Max(0, 1+fa[i]*fb[i])
		d := fb[i] - fa[i]
		step := math.Min(rate*e.cfg.FieldPull*resonance, maxStep) * d
		fa[i] += step
		fb[i] -= step
	}

	e.store.Finalize(a)
	e.store.Finalize(b)
	return nil
}

// ActiveSet returns the nodes whose activation exceeds threshold and whose
// active flag is set.
func (e *Engine) ActiveSet(threshold float64) *roaring.Bitmap {
	active := roaring.New()
	for i := 0; i < e.store.Len(); i++ {
		id := models.NodeID(i)
		if e.store.Activation(id) > threshold && e.store.IsActive(id) {
			active.Add(uint32(id))
		}
	}
	return active
}

// GlobalStats summarizes one global pass.
type GlobalStats struct {
	Active  int
	Updated int
}

// UpdateGlobal strengthens every non-temporary edge whose endpoints are
// both above the configured threshold by act_i*act_j*eta*mod (or the Oja
// form of it). Weights stay inside the graph's bounds.
func (e *Engine) UpdateGlobal(g *graph.Graph, mod Modulation) GlobalStats {
	return e.UpdateGlobalThreshold(g, e.cfg.Threshold, mod)
}

// UpdateGlobalThreshold is UpdateGlobal with an explicit threshold.
func (e *Engine) UpdateGlobalThreshold(g *graph.Graph, threshold float64, mod Modulation) GlobalStats {
	active := e.ActiveSet(threshold)
	stats := GlobalStats{Active: int(active.GetCardinality())}
	if stats.Active < 2 {
		return stats
	}
	eta := e.cfg.LearningRate * float64(mod)

	it := active.Iterator()
	for it.HasNext() {
		src := models.NodeID(it.Next())
		ai := e.store.Activation(src)
		row := g.Row(src)
		for k, dst := range row.Targets {
			if row.Flags[k].Has(models.FlagTemporary) || !active.Contains(uint32(dst)) {
				continue
			}
			aj := e.store.Activation(dst)
			delta := ai * aj
			if e.cfg.Rule == RuleOja {
				delta -= aj * aj * row.Weights[k]
			}
			g.AddWeightAt(row.Start+k, eta*delta)
			stats.Updated++
		}
	}
	return stats
}
