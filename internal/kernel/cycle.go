package kernel

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/loom/internal/consolidation"
	"github.com/nvandessel/loom/internal/hebbian"
	"github.com/nvandessel/loom/internal/logging"
	"github.com/nvandessel/loom/internal/metrics"
	"github.com/nvandessel/loom/internal/models"
	"github.com/nvandessel/loom/internal/vecmath"
	"github.com/nvandessel/loom/internal/vecstore"
)

// minShard is the smallest number of nodes handed to one worker.
const minShard = 64

// TickReport summarizes one tick.
type TickReport struct {
	Tick           uint64                `json:"tick"`
	Time           float64               `json:"time"`
	OpsApplied     int                   `json:"ops_applied"`
	OpsSkipped     int                   `json:"ops_skipped"`
	ActiveNodes    int                   `json:"active_nodes"`
	EdgesUpdated   int                   `json:"edges_updated"`
	Fired          int                   `json:"hyperedges_fired"`
	Expired        int                   `json:"trajectories_expired"`
	Modulation     float64               `json:"modulation"`
	Emergence      float64               `json:"emergence"`
	Nodes          int                   `json:"nodes"`
	Edges          int                   `json:"edges"`
	TemporaryEdges int                   `json:"temporary_edges"`
	Hyperedges     int                   `json:"hyperedges"`
	Consolidation  *consolidation.Report `json:"consolidation,omitempty"`
	Duration       time.Duration         `json:"duration"`
}

// Tick advances the topology by one step. It never fails: malformed
// queued operations are skipped and logged.
func (e *Engine) Tick() TickReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()

	var rep TickReport
	// Phase 1.
	rep.OpsApplied, rep.OpsSkipped = e.drain()

	// Phase 2.
	e.accumulate()

	// Phase 3.
	hs := e.registry.ComputeAll()
	rep.Fired = hs.Fired

	// Phase 4. Context is sampled once for the whole pass.
	mod := hebbian.NewModulation(e.context)
	gs := e.learner.UpdateGlobal(e.graph, mod)
	rep.Modulation = float64(mod)
	rep.ActiveNodes = gs.Active
	rep.EdgesUpdated = gs.Updated

	// Phase 5.
	e.time += e.cfg.TimeStep
	e.tick++
	rep.Expired = e.expireTrajectories()

	// Phase 6.
	if e.scheduler.Due(e.tick) {
		cr := e.scheduler.Run(e.tick, e.graph, e.registry)
		e.lastReport = &cr
		rep.Consolidation = &cr
		e.metrics.ObserveConsolidation(cr.Flagged)
		e.logger.Debug("consolidated", "tick", e.tick, "flagged", cr.Flagged, "strengthened", len(cr.Strengthened), "compacted", cr.Compacted)
		e.decisions.Record("consolidation", "tick", e.tick, "flagged", cr.Flagged, "strengthened", cr.Strengthened, "compacted", cr.Compacted)
	}

	e.emergence = e.computeEmergence()
	rep.Tick = e.tick
	rep.Time = e.time
	rep.Emergence = e.emergence
	rep.Nodes = e.store.Len()
	rep.Edges = e.graph.Len()
	rep.TemporaryEdges = e.graph.CountTemporary()
	rep.Hyperedges = e.registry.Len()
	rep.Duration = time.Since(start)

	e.metrics.ObserveTick(metrics.TickSample{
		Duration:       rep.Duration,
		OpsApplied:     rep.OpsApplied,
		OpsSkipped:     rep.OpsSkipped,
		Nodes:          rep.Nodes,
		Edges:          rep.Edges,
		TemporaryEdges: rep.TemporaryEdges,
		Hyperedges:     rep.Hyperedges,
		Emergence:      rep.Emergence,
	})
	e.logger.Log(context.Background(), logging.LevelTrace, "tick",
		"tick", rep.Tick, "active", rep.ActiveNodes, "fired", rep.Fired, "emergence", rep.Emergence)
	return rep
}

// Run ticks until n ticks have run or ctx is done. n <= 0 runs until ctx
// is done. every, if non-nil, sees each report.
func (e *Engine) Run(ctx context.Context, n int, every func(TickReport)) error {
	for i := 0; n <= 0 || i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rep := e.Tick()
		if every != nil {
			every(rep)
		}
	}
	return nil
}

// accumulate is phase 2. Every node reads the arena as it stood at the
// start of the phase and writes its next value into the back buffer, so
// the result does not depend on the worker count or shard order.
func (e *Engine) accumulate() {
	count := e.store.Len()
	if count == 0 {
		return
	}
	layout := e.store.Layout()
	dim := layout.Dimension
	cur := e.store.Data()
	if len(e.back) != len(cur) {
		e.back = e.store.NewBuffer()
	}
	next := e.back
	traj := e.trajectoryIndex()

	workers := e.cfg.Workers
	shard := (count + workers - 1) / workers
	if shard < minShard {
		shard = minShard
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for lo := 0; lo < count; lo += shard {
		hi := min(lo+shard, count)
		g.Go(func() error {
			update := make([]float64, dim)
			for i := lo; i < hi; i++ {
				e.integrate(models.NodeID(i), layout, cur, next[i*dim:(i+1)*dim], update, traj)
			}
			return nil
		})
	}
	_ = g.Wait()

	old, err := e.store.Swap(next)
	if err != nil {
		e.logger.Error("force phase buffer mismatch", "error", err)
		return
	}
	e.back = old
}

// integrate computes one node's next vector into out.
func (e *Engine) integrate(id models.NodeID, layout vecstore.Layout, cur, out, update []float64, traj map[models.NodeID][]*Trajectory) {
	dim := layout.Dimension
	v := cur[int(id)*dim : (int(id)+1)*dim]
	copy(out, v)
	if v[layout.Metadata.Start+vecstore.MetaActive] <= 0 {
		return
	}
	clear(update)

	act := layout.Activation.Start
	ai := v[act]
	row := e.graph.Row(id)
	var inflow float64
	degree := 0
	for k, j := range row.Targets {
		if row.Flags[k].Has(models.FlagTemporary) {
			continue
		}
		vj := cur[int(j)*dim : (int(j)+1)*dim]
		if vj[layout.Metadata.Start+vecstore.MetaActive] <= 0 {
			continue
		}
		w := row.Weights[k]
		aj := vj[act]
		inflow += w * aj
		degree++

		if product := ai * aj; product > e.cfg.CouplingThreshold {
			pull := w * product
			for _, r := range []vecstore.Region{layout.Spatial, layout.Semantic, layout.Field} {
				for x := r.Start; x < r.End(); x++ {
					update[x] += pull * (vj[x] - v[x])
				}
			}
		}
	}
	if degree > 0 {
		update[act] += e.cfg.Diffusion * (inflow/float64(degree) - ai)
	}

	for _, t := range traj[id] {
		s := t.Rate * t.Curve.shape(t.progress(e.time))
		for x := 0; x < layout.Metadata.Start; x++ {
			update[x] += s * (t.Target[x] - v[x])
		}
	}

	dt := e.cfg.TimeStep
	for x := range out {
		out[x] += dt * update[x]
	}
	out[act] = vecmath.Clamp(out[act], 0, 1)
	vecstore.Constrain(out, layout)
}

// computeEmergence returns total processor state over total activation of
// data nodes, or 0 when no data node is active.
func (e *Engine) computeEmergence() float64 {
	var total float64
	for i := 0; i < e.store.Len(); i++ {
		id := models.NodeID(i)
		if e.store.IsProcessor(id) || !e.store.IsActive(id) {
			continue
		}
		total += e.store.Activation(id)
	}
	if total <= 0 {
		return 0
	}
	return e.registry.TotalState() / total
}
