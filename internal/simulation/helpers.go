package simulation

import (
	"maps"
	"strconv"
)

// Repeat returns n copies of phase, labelled by index when the phase has
// no label of its own.
func Repeat(n int, phase Phase) []Phase {
	phases := make([]Phase, n)
	for i := range phases {
		p := phase
		p.Stimulus = maps.Clone(phase.Stimulus)
		p.Context = maps.Clone(phase.Context)
		if p.Label == "" {
			p.Label = strconv.Itoa(i)
		}
		phases[i] = p
	}
	return phases
}

// Stimulate builds a phase that holds every label at the same activation.
func Stimulate(ticks int, activation float64, labels ...string) Phase {
	stim := make(map[string]float64, len(labels))
	for _, l := range labels {
		stim[l] = activation
	}
	return Phase{Ticks: ticks, Stimulus: stim}
}

// Chain links consecutive labels with directed edges of the given weight.
func Chain(weight float64, labels ...string) []EdgeSpec {
	if len(labels) < 2 {
		return nil
	}
	edges := make([]EdgeSpec, 0, len(labels)-1)
	for i := 1; i < len(labels); i++ {
		edges = append(edges, EdgeSpec{From: labels[i-1], To: labels[i], Weight: weight})
	}
	return edges
}
