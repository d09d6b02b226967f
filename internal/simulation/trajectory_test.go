package simulation_test

import (
	"testing"

	"github.com/nvandessel/loom/internal/kernel"
	"github.com/nvandessel/loom/internal/session"
	"github.com/nvandessel/loom/internal/simulation"
	"github.com/nvandessel/loom/internal/vecmath"
)

func TestTrajectory_PullsTowardTarget(t *testing.T) {
	var (
		target []float64
		before float64
	)
	similarity := func(s *session.Session) float64 {
		e := s.Engine()
		id, err := s.Resolve("drifter")
		if err != nil {
			t.Fatal(err)
		}
		v, err := e.Vector(id)
		if err != nil {
			t.Fatal(err)
		}
		return vecmath.CosineSimilarity(v, target)
	}

	r := simulation.NewRunner(t)
	result := r.Run(simulation.Scenario{
		Name:  "trajectory",
		Nodes: []string{"drifter", "anchor"},
		Phases: []simulation.Phase{
			{
				Label: "evolve",
				Ticks: 60,
				Before: func(_ int, s *session.Session) {
					id, err := s.Resolve("anchor")
					if err != nil {
						t.Fatal(err)
					}
					target, err = s.Engine().Vector(id)
					if err != nil {
						t.Fatal(err)
					}
					before = similarity(s)
				},
				Evolve: []simulation.EvolveSpec{{
					Label:    "drifter",
					Toward:   "anchor",
					Duration: 0.5,
					Curve:    kernel.CurveSigmoid,
					Rate:     5,
				}},
			},
		},
	})

	after := similarity(result.Session)
	if after <= before {
		t.Errorf("similarity to anchor went from %.4f to %.4f, want increase", before, after)
	}

	expired := 0
	for _, rep := range result.Last().Reports {
		expired += rep.Expired
	}
	if expired != 1 {
		t.Errorf("expired trajectories = %d, want 1", expired)
	}
	if n := result.Last().Snapshot.Trajectories; n != 0 {
		t.Errorf("active trajectories = %d, want 0 after the duration elapsed", n)
	}
	simulation.AssertUnitNorm(t, result)
	simulation.AssertJournaled(t, result)
}
