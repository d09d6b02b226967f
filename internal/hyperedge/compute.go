package hyperedge

import (
	"fmt"
	"math"

	"github.com/nvandessel/loom/internal/constants"
	"github.com/nvandessel/loom/internal/models"
	"github.com/nvandessel/loom/internal/vecmath"
)

// readout summarizes participant activations for one compute.
type readout struct {
	arity  int
	active int
	avg    float64
	max    float64
	acts   []float64
}

// respond maps a readout to the processor's new value for its type.
func (r *Registry) respond(typ models.ProcessorType, in readout) float64 {
	switch typ {
	case models.ProcessorAnd:
		if in.active == in.arity {
			return in.avg
		}
	case models.ProcessorOr:
		if in.active > 0 {
			return in.max
		}
	case models.ProcessorXor:
		if in.active%2 == 1 {
			return in.avg
		}
	case models.ProcessorThreshold:
		if in.active >= 2 {
			return in.avg
		}
	case models.ProcessorResonance:
		amplified := in.avg * (1 + float64(in.active)*r.cfg.ResonanceGain)
		return math.Min(amplified, constants.MaxVectorMagnitude)
	case models.ProcessorInhibit:
		// The strongest participant is damped by the mean pressure of the
		// active group.
		return math.Max(0, in.max-in.avg*float64(in.active)/float64(in.arity))
	case models.ProcessorSequence:
		for i := 1; i < len(in.acts); i++ {
			if in.acts[i] > in.acts[i-1] {
				return 0
			}
		}
		return in.avg
	case models.ProcessorCustom:
		return in.avg
	}
	return 0
}

// Compute updates the state of hyperedge id from its participants and
// returns the new state. The state is a 90/10 blend of the previous state
// and the type-specific response, and the processor node's activation
// mirrors it. When the state exceeds the threshold the hyperedge counts a
// use and back-propagates into its participants.
func (r *Registry) Compute(id models.HyperedgeID) (float64, error) {
	if int(id) >= len(r.edges) {
		return 0, fmt.Errorf("hyperedge %d (have %d): %w", id, len(r.edges), models.ErrInvalidIndex)
	}
	h := &r.edges[id]

	in := readout{arity: h.Arity(), acts: make([]float64, h.Arity())}
	var sum float64
	for i, p := range h.Participants {
		a := r.store.Activation(p)
		in.acts[i] = a
		sum += a
		if a > r.cfg.Threshold {
			in.active++
		}
		if a > in.max {
			in.max = a
		}
	}
	in.avg = sum / float64(in.arity)

	next := r.respond(h.Type, in)
	h.State = vecmath.Clamp(r.cfg.Retention*h.State+(1-r.cfg.Retention)*next, 0, constants.MaxVectorMagnitude)
	_ = r.store.SetActivation(h.Processor, h.State)

	if h.State > r.cfg.Threshold {
		h.Usage++
		if err := r.backpropagate(h); err != nil {
			return h.State, err
		}
	}
	return h.State, nil
}

// backpropagate strengthens the pairwise bonds among participants: every
// ordered pair is pulled together at rate state*BackpropScale and any
// existing edge between them gains the same amount. No edges are created.
func (r *Registry) backpropagate(h *Hyperedge) error {
	rate := h.State * r.cfg.BackpropScale
	for _, a := range h.Participants {
		for _, b := range h.Participants {
			if a == b {
				continue
			}
			if r.learner != nil {
				if err := r.learner.UpdatePair(a, b, rate); err != nil {
					return fmt.Errorf("backpropagate hyperedge %d: %w", h.ID, err)
				}
			}
			if _, ok := r.graph.Weight(a, b); ok {
				if _, err := r.graph.AddWeight(a, b, rate); err != nil {
					return fmt.Errorf("backpropagate hyperedge %d: %w", h.ID, err)
				}
			}
		}
	}
	return nil
}

// ComputeStats summarizes one pass over the registry.
type ComputeStats struct {
	Computed int
	Fired    int
	Errors   int
}

// ComputeAll runs Compute for every hyperedge in ascending id order, so
// participants shared between hyperedges see a fixed update order. Errors
// are counted, not returned; a failing hyperedge never stops the pass.
func (r *Registry) ComputeAll() ComputeStats {
	var stats ComputeStats
	for i := range r.edges {
		state, err := r.Compute(models.HyperedgeID(i))
		stats.Computed++
		if err != nil {
			stats.Errors++
			continue
		}
		if state > r.cfg.Threshold {
			stats.Fired++
		}
	}
	return stats
}

// Strengthen multiplies the state of every hyperedge used more than
// usageThreshold times by factor, clamps it, and resets the usage counter.
// It returns the ids that were strengthened.
func (r *Registry) Strengthen(usageThreshold uint32, factor float64) []models.HyperedgeID {
	var out []models.HyperedgeID
	for i := range r.edges {
		h := &r.edges[i]
		if h.Usage <= usageThreshold {
			continue
		}
		h.State = math.Min(h.State*factor, constants.MaxVectorMagnitude)
		h.Usage = 0
		out = append(out, h.ID)
	}
	return out
}
