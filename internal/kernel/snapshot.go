package kernel

import (
	"fmt"
	"maps"

	"github.com/nvandessel/loom/internal/consolidation"
	"github.com/nvandessel/loom/internal/hyperedge"
	"github.com/nvandessel/loom/internal/models"
)

// Snapshot is a point-in-time summary of an engine.
type Snapshot struct {
	Tick           uint64                `json:"tick" yaml:"tick"`
	Time           float64               `json:"time" yaml:"time"`
	Nodes          int                   `json:"nodes" yaml:"nodes"`
	ActiveNodes    int                   `json:"active_nodes" yaml:"active_nodes"`
	Processors     int                   `json:"processors" yaml:"processors"`
	Edges          int                   `json:"edges" yaml:"edges"`
	TemporaryEdges int                   `json:"temporary_edges" yaml:"temporary_edges"`
	Hyperedges     int                   `json:"hyperedges" yaml:"hyperedges"`
	Trajectories   int                   `json:"trajectories" yaml:"trajectories"`
	NodeCapacity   int                   `json:"node_capacity" yaml:"node_capacity"`
	EdgeCapacity   int                   `json:"edge_capacity" yaml:"edge_capacity"`
	Emergence      float64               `json:"emergence" yaml:"emergence"`
	MeanActivation float64               `json:"mean_activation" yaml:"mean_activation"`
	Context        map[string]float64    `json:"context,omitempty" yaml:"context,omitempty"`
	Consolidation  *consolidation.Report `json:"last_consolidation,omitempty" yaml:"last_consolidation,omitempty"`
}

// Snapshot returns counters and aggregates of the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Snapshot{
		Tick:           e.tick,
		Time:           e.time,
		Nodes:          e.store.Len(),
		Edges:          e.graph.Len(),
		TemporaryEdges: e.graph.CountTemporary(),
		Hyperedges:     e.registry.Len(),
		Trajectories:   len(e.trajectories),
		NodeCapacity:   e.store.Cap(),
		EdgeCapacity:   e.graph.Cap(),
		Emergence:      e.emergence,
		Context:        maps.Clone(e.context),
	}
	var sum float64
	for i := 0; i < s.Nodes; i++ {
		id := models.NodeID(i)
		if e.store.IsProcessor(id) {
			s.Processors++
			continue
		}
		if e.store.IsActive(id) {
			s.ActiveNodes++
			sum += e.store.Activation(id)
		}
	}
	if s.ActiveNodes > 0 {
		s.MeanActivation = sum / float64(s.ActiveNodes)
	}
	if e.lastReport != nil {
		r := *e.lastReport
		s.Consolidation = &r
	}
	return s
}

// TickCount returns the number of completed ticks.
func (e *Engine) TickCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick
}

// Emergence returns the emergence score of the last tick: total processor
// state over total activation of active data nodes.
func (e *Engine) Emergence() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.emergence
}

// NodeInfo describes one node.
type NodeInfo struct {
	ID          models.NodeID `json:"id"`
	Label       string        `json:"label"`
	Activation  float64       `json:"activation"`
	Active      bool          `json:"active"`
	Processor   bool          `json:"processor"`
	Connections uint32        `json:"connections"`
	Degree      int           `json:"degree"`
}

func (e *Engine) nodeInfo(id models.NodeID) NodeInfo {
	return NodeInfo{
		ID:          id,
		Label:       e.store.Label(id),
		Activation:  e.store.Activation(id),
		Active:      e.store.IsActive(id),
		Processor:   e.store.IsProcessor(id),
		Connections: e.store.Connections(id),
		Degree:      e.graph.Degree(id),
	}
}

// Node returns information about one node.
func (e *Engine) Node(id models.NodeID) (NodeInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if int(id) >= e.store.Len() {
		return NodeInfo{}, fmt.Errorf("node %d: %w", id, models.ErrInvalidIndex)
	}
	return e.nodeInfo(id), nil
}

// Nodes returns information about every node in id order.
func (e *Engine) Nodes() []NodeInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]NodeInfo, e.store.Len())
	for i := range out {
		out[i] = e.nodeInfo(models.NodeID(i))
	}
	return out
}

// Vector returns a copy of a node's vector.
func (e *Engine) Vector(id models.NodeID) ([]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Get(id)
}

// EdgeInfo describes one directed CSR entry.
type EdgeInfo struct {
	From          models.NodeID `json:"from"`
	To            models.NodeID `json:"to"`
	Weight        float64       `json:"weight"`
	Bidirectional bool          `json:"bidirectional,omitempty"`
	Temporary     bool          `json:"temporary,omitempty"`
	Hyperedge     bool          `json:"hyperedge,omitempty"`
}

func edgeInfo(from, to models.NodeID, w float64, f models.EdgeFlag) EdgeInfo {
	return EdgeInfo{
		From:          from,
		To:            to,
		Weight:        w,
		Bidirectional: f.Has(models.FlagBidirectional),
		Temporary:     f.Has(models.FlagTemporary),
		Hyperedge:     f.Has(models.FlagHyperedge),
	}
}

// Neighbors returns the outgoing edges of a node.
func (e *Engine) Neighbors(id models.NodeID) ([]EdgeInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if int(id) >= e.store.Len() {
		return nil, fmt.Errorf("node %d: %w", id, models.ErrInvalidIndex)
	}
	row := e.graph.Row(id)
	out := make([]EdgeInfo, len(row.Targets))
	for k, dst := range row.Targets {
		out[k] = edgeInfo(id, dst, row.Weights[k], row.Flags[k])
	}
	return out, nil
}

// Edges returns every CSR entry in row order.
func (e *Engine) Edges() []EdgeInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]EdgeInfo, 0, e.graph.Len())
	for i := 0; i < e.graph.Nodes(); i++ {
		src := models.NodeID(i)
		row := e.graph.Row(src)
		for k, dst := range row.Targets {
			out = append(out, edgeInfo(src, dst, row.Weights[k], row.Flags[k]))
		}
	}
	return out
}

// Hyperedges returns copies of every hyperedge in id order.
func (e *Engine) Hyperedges() []hyperedge.Hyperedge {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.All()
}

// Hyperedge returns a copy of one hyperedge.
func (e *Engine) Hyperedge(id models.HyperedgeID) (hyperedge.Hyperedge, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.registry.Get(id)
	if !ok {
		return hyperedge.Hyperedge{}, fmt.Errorf("hyperedge %d: %w", id, models.ErrInvalidIndex)
	}
	return h, nil
}

// Label returns the label of a node.
func (e *Engine) Label(id models.NodeID) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Label(id)
}
