// Package simulation provides a multi-phase test harness for validating
// emergent dynamics of the tick cycle.
//
// The simulation exercises the real session, engine, journal and
// consolidation scheduler. No mocks. Scenarios are Go builders that
// construct a seeded topology and run phases of ticks under held stimuli
// and context, capturing edge weights, activations and hyperedge state at
// the end of every phase for property-based assertions.
//
// Each run gets an isolated project directory via t.TempDir() and a
// sandboxed HOME to prevent touching user data.
//
// Usage:
//
//	func TestOjaConvergence(t *testing.T) {
//	    r := simulation.NewRunner(t)
//	    result := r.Run(simulation.Scenario{
//	        Name:   "oja-convergence",
//	        Nodes:  []string{"a", "b"},
//	        Edges:  []simulation.EdgeSpec{{From: "a", To: "b", Weight: 0.1}},
//	        Phases: simulation.Repeat(10, simulation.Phase{Ticks: 30, Stimulus: ...}),
//	    })
//	    simulation.AssertWeightConverges(t, result, "a", "b", 0.45, 0.55, 5)
//	}
package simulation
