package kernel

import (
	"errors"
	"fmt"

	"github.com/nvandessel/loom/internal/models"
)

// ErrNotEmpty is returned by Bootstrap on an engine that already has nodes.
var ErrNotEmpty = errors.New("topology is not empty")

// seedNode is one primordial node and the edits applied to its vector.
type seedNode struct {
	label string
	edit  func(v []float64, e *Engine)
}

var primordial = []seedNode{
	{"self", func(v []float64, e *Engine) { v[e.cfg.Layout.Identity.Start] = 1 }},
	{"now", nil},
	{"here", func(v []float64, e *Engine) { clear(e.cfg.Layout.Spatial.Slice(v)) }},
	{"other", nil},
	{"approach", func(v []float64, e *Engine) { v[e.cfg.Layout.Field.Start] = 0.8 }},
	{"avoid", func(v []float64, e *Engine) { v[e.cfg.Layout.Field.Start] = -0.8 }},
	{"surprise", func(v []float64, e *Engine) { setField(v, e, 1, 1) }},
}

// setField writes x at offset i of the field subregion when it is wide enough.
func setField(v []float64, e *Engine, i int, x float64) {
	if i < e.cfg.Layout.Field.Len {
		v[e.cfg.Layout.Field.Start+i] = x
	}
}

var primordialLinks = []struct {
	a, b   string
	weight float64
}{
	{"self", "now", 0.9},
	{"self", "here", 0.9},
	{"self", "other", 0.3},
}

// Bootstrap seeds an empty engine with the primordial topology: the
// self, now, here and other invariants, the approach, avoid and surprise
// field seeds, their links, and a resonance hyperedge over self, now and
// here that starts the engine with some activity.
func (e *Engine) Bootstrap() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.store.Len() > 0 {
		return fmt.Errorf("bootstrap: %d nodes present: %w", e.store.Len(), ErrNotEmpty)
	}

	ids := make(map[string]models.NodeID, len(primordial))
	for _, s := range primordial {
		id, err := e.createNode(s.label)
		if err != nil {
			return fmt.Errorf("bootstrap %s: %w", s.label, err)
		}
		ids[s.label] = id
		if s.edit != nil {
			s.edit(e.store.View(id), e)
			e.store.Finalize(id)
		}
	}
	for _, l := range primordialLinks {
		if err := e.createBidirectional(ids[l.a], ids[l.b], l.weight); err != nil {
			return fmt.Errorf("bootstrap %s<->%s: %w", l.a, l.b, err)
		}
	}
	awareness := []models.NodeID{ids["self"], ids["now"], ids["here"]}
	if _, err := e.registry.Create(awareness, models.ProcessorResonance); err != nil {
		return fmt.Errorf("bootstrap awareness: %w", err)
	}
	for label, a := range map[string]float64{"self": 1, "now": 0.8, "here": 0.8} {
		if err := e.store.SetActivation(ids[label], a); err != nil {
			return err
		}
	}

	e.logger.Info("bootstrapped primordial topology", "nodes", e.store.Len(), "edges", e.graph.Len())
	e.decisions.Record("bootstrap", "nodes", e.store.Len(), "edges", e.graph.Len(), "hyperedges", e.registry.Len())
	return nil
}
