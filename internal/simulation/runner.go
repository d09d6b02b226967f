package simulation

import (
	"context"
	"fmt"
	"testing"

	"github.com/nvandessel/loom/internal/config"
	"github.com/nvandessel/loom/internal/kernel"
	"github.com/nvandessel/loom/internal/models"
	"github.com/nvandessel/loom/internal/session"
)

// Runner executes simulation scenarios against a real session.
type Runner struct {
	t testing.TB
}

// NewRunner creates a runner with an isolated HOME.
func NewRunner(t testing.TB) *Runner {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	return &Runner{t: t}
}

// DefaultConfig returns the configuration every scenario starts from:
// a small single-worker topology with checkpoints disabled.
func DefaultConfig() *config.LoomConfig {
	cfg := config.Default()
	cfg.Engine.NodeCapacity = 64
	cfg.Engine.EdgesPerNode = 16
	cfg.Engine.Workers = 1
	cfg.Persistence.CheckpointEvery = 0
	return cfg
}

// Run executes all phases of the scenario and returns per-phase results.
// The session stays open until the test ends.
func (r *Runner) Run(s Scenario) Result {
	r.t.Helper()
	ctx := context.Background()

	cfg := DefaultConfig()
	if s.Configure != nil {
		s.Configure(cfg)
	}

	sess, err := session.Create(ctx, session.Options{
		Root:    r.t.TempDir(),
		Config:  cfg,
		Command: "simulation:" + s.Name,
	}, s.Bootstrap)
	if err != nil {
		r.t.Fatalf("simulation %q: create session: %v", s.Name, err)
	}
	r.t.Cleanup(func() { sess.Close(context.Background()) })

	r.seed(ctx, sess, s)

	result := Result{Session: sess}
	for i, phase := range s.Phases {
		result.Phases = append(result.Phases, r.runPhase(ctx, sess, i, phase))
	}
	return result
}

func (r *Runner) seed(ctx context.Context, sess *session.Session, s Scenario) {
	r.t.Helper()
	for _, label := range s.Nodes {
		if _, err := sess.CreateNode(ctx, label); err != nil {
			r.t.Fatalf("simulation %q: create node %q: %v", s.Name, label, err)
		}
	}
	for _, e := range s.Edges {
		kind := kernel.OpEdge
		if e.Bidirectional {
			kind = kernel.OpBidirectional
		}
		op := kernel.Op{Kind: kind, From: e.From, To: e.To, Weight: e.Weight}
		if err := sess.Apply(ctx, op); err != nil {
			r.t.Fatalf("simulation %q: %s: %v", s.Name, op, err)
		}
	}
	for _, h := range s.Hyperedges {
		if _, err := sess.CreateHyperedge(ctx, h.Participants, h.Processor); err != nil {
			r.t.Fatalf("simulation %q: create %s hyperedge %v: %v", s.Name, h.Processor, h.Participants, err)
		}
	}
}

func (r *Runner) runPhase(ctx context.Context, sess *session.Session, index int, p Phase) PhaseResult {
	r.t.Helper()
	e := sess.Engine()

	if p.Before != nil {
		p.Before(index, sess)
	}
	if len(p.Context) > 0 {
		e.SetContext(p.Context)
	}
	if len(p.Ops) > 0 {
		sess.Enqueue(ctx, p.Ops...)
	}
	for _, ev := range p.Evolve {
		if err := r.evolve(sess, ev); err != nil {
			r.t.Fatalf("phase %d: %v", index, err)
		}
	}

	stimulus := make(map[models.NodeID]float64, len(p.Stimulus))
	for label, a := range p.Stimulus {
		id, err := sess.Resolve(label)
		if err != nil {
			r.t.Fatalf("phase %d: stimulus: %v", index, err)
		}
		stimulus[id] = a
	}

	pr := PhaseResult{Index: index, Label: p.Label}
	collect := func(rep kernel.TickReport) { pr.Reports = append(pr.Reports, rep) }
	for tick := 0; tick < p.Ticks; tick++ {
		for id, a := range stimulus {
			if err := e.SetActivation(id, a); err != nil {
				r.t.Fatalf("phase %d tick %d: stimulate node %d: %v", index, tick, id, err)
			}
		}
		if err := sess.Tick(ctx, 1, collect); err != nil {
			r.t.Fatalf("phase %d tick %d: %v", index, tick, err)
		}
	}

	pr.Weights = make(map[string]float64)
	pr.Temporary = make(map[string]bool)
	for _, edge := range e.Edges() {
		key := EdgeKey(nodeName(e, edge.From), nodeName(e, edge.To))
		pr.Weights[key] = edge.Weight
		pr.Temporary[key] = edge.Temporary
	}
	pr.Activations = make(map[string]float64)
	for _, n := range e.Nodes() {
		pr.Activations[nodeName(e, n.ID)] = n.Activation
	}
	pr.Hyperedges = e.Hyperedges()
	pr.Snapshot = e.Snapshot()
	return pr
}

func (r *Runner) evolve(sess *session.Session, ev EvolveSpec) error {
	id, err := sess.Resolve(ev.Label)
	if err != nil {
		return fmt.Errorf("evolve: %w", err)
	}
	toward, err := sess.Resolve(ev.Toward)
	if err != nil {
		return fmt.Errorf("evolve toward: %w", err)
	}
	target, err := sess.Engine().Vector(toward)
	if err != nil {
		return err
	}
	return sess.Engine().EvolveToward(id, target, ev.Duration, ev.Curve, ev.Rate)
}

// nodeName returns the label of id, or "#id" for unlabelled processor nodes.
func nodeName(e *kernel.Engine, id models.NodeID) string {
	if label := e.Label(id); label != "" {
		return label
	}
	return fmt.Sprintf("#%d", id)
}
