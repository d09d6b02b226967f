// Package mcp provides an MCP (Model Context Protocol) server for loom.
package mcp

import (
	"github.com/nvandessel/loom/internal/kernel"
	"github.com/nvandessel/loom/internal/models"
)

// LoomNodeInput defines the input for loom_node tool.
type LoomNodeInput struct {
	Label string `json:"label" jsonschema:"Label of the new node"`
}

// LoomNodeOutput defines the output for loom_node tool.
type LoomNodeOutput struct {
	ID      models.NodeID `json:"id" jsonschema:"Index of the created node"`
	Label   string        `json:"label"`
	Message string        `json:"message"`
}

// LoomConnectInput defines the input for loom_connect tool.
type LoomConnectInput struct {
	From          string   `json:"from" jsonschema:"Label of the source node"`
	To            string   `json:"to" jsonschema:"Label of the target node"`
	Weight        *float64 `json:"weight,omitempty" jsonschema:"Edge weight in [-1, 1] (default: 0.5)"`
	Bidirectional bool     `json:"bidirectional,omitempty" jsonschema:"Create edges in both directions and nudge the pair together (default: false)"`
}

// LoomConnectOutput defines the output for loom_connect tool.
type LoomConnectOutput struct {
	From          string  `json:"from"`
	To            string  `json:"to"`
	Weight        float64 `json:"weight"`
	Bidirectional bool    `json:"bidirectional"`
	Message       string  `json:"message"`
}

// LoomHyperedgeInput defines the input for loom_hyperedge tool.
type LoomHyperedgeInput struct {
	Participants []string `json:"participants" jsonschema:"Labels of the participating nodes (2 to 6)"`
	Processor    string   `json:"processor" jsonschema:"Processor type: and, or, xor, threshold, resonance, inhibit, sequence, custom"`
}

// LoomHyperedgeOutput defines the output for loom_hyperedge tool.
type LoomHyperedgeOutput struct {
	ID        models.HyperedgeID `json:"id" jsonschema:"Index of the created hyperedge"`
	Processor models.NodeID      `json:"processor_node" jsonschema:"Index of the processor node that wires the hyperedge into the graph"`
	Type      string             `json:"type"`
	Arity     int                `json:"arity"`
	Message   string             `json:"message"`
}

// LoomActivateInput defines the input for loom_activate tool.
type LoomActivateInput struct {
	Label      string   `json:"label" jsonschema:"Label of the node to stimulate"`
	Activation *float64 `json:"activation,omitempty" jsonschema:"Activation in [0, 1] (default: 1)"`
	Deactivate bool     `json:"deactivate,omitempty" jsonschema:"Soft-delete the node instead of stimulating it"`
}

// LoomActivateOutput defines the output for loom_activate tool.
type LoomActivateOutput struct {
	Label      string  `json:"label"`
	Activation float64 `json:"activation"`
	Active     bool    `json:"active"`
	Message    string  `json:"message"`
}

// LoomContextInput defines the input for loom_context tool.
type LoomContextInput struct {
	Signals map[string]float64 `json:"signals" jsonschema:"Context signals to set, each clamped to [0, 1] (e.g. stress, curiosity)"`
}

// LoomContextOutput defines the output for loom_context tool.
type LoomContextOutput struct {
	Context    map[string]float64 `json:"context" jsonschema:"All context signals after the update"`
	Modulation float64            `json:"modulation" jsonschema:"Resulting learning-rate multiplier"`
}

// LoomEvolveInput defines the input for loom_evolve tool.
type LoomEvolveInput struct {
	Label    string    `json:"label" jsonschema:"Label of the node to evolve"`
	Target   []float64 `json:"target,omitempty" jsonschema:"Target vector; must have the engine dimension"`
	Toward   string    `json:"toward,omitempty" jsonschema:"Label of a node whose current vector is the target (alternative to target)"`
	Duration float64   `json:"duration" jsonschema:"Duration in engine time units"`
	Curve    string    `json:"curve,omitempty" jsonschema:"Progress curve: linear, exponential, sigmoid (default: linear)"`
	Rate     float64   `json:"rate,omitempty" jsonschema:"Pull strength per unit time (default: 1)"`
}

// LoomEvolveOutput defines the output for loom_evolve tool.
type LoomEvolveOutput struct {
	Label        string  `json:"label"`
	Duration     float64 `json:"duration"`
	Curve        string  `json:"curve"`
	Rate         float64 `json:"rate"`
	Trajectories int     `json:"trajectories" jsonschema:"Number of active trajectories"`
	Message      string  `json:"message"`
}

// LoomTickInput defines the input for loom_tick tool.
type LoomTickInput struct {
	Ticks int `json:"ticks,omitempty" jsonschema:"Number of ticks to run (default: 1)"`
}

// LoomTickOutput defines the output for loom_tick tool.
type LoomTickOutput struct {
	Ticks        int     `json:"ticks" jsonschema:"Ticks run by this call"`
	Tick         uint64  `json:"tick" jsonschema:"Project-wide tick after the call"`
	Time         float64 `json:"time" jsonschema:"Engine time after the call"`
	ActiveNodes  int     `json:"active_nodes"`
	Fired        int     `json:"fired" jsonschema:"Hyperedges fired on the last tick"`
	OpsApplied   int     `json:"ops_applied" jsonschema:"Queued ops applied across all ticks"`
	Expired      int     `json:"expired" jsonschema:"Trajectories that expired across all ticks"`
	Emergence    float64 `json:"emergence"`
	Modulation   float64 `json:"modulation"`
	Consolidated int     `json:"consolidated" jsonschema:"Consolidation passes that ran"`
}

// LoomStatsInput defines the input for loom_stats tool.
type LoomStatsInput struct{}

// LoomStatsOutput defines the output for loom_stats tool.
type LoomStatsOutput struct {
	ProjectTick  uint64              `json:"project_tick"`
	SessionTicks uint64              `json:"session_ticks"`
	Stats        kernel.Snapshot     `json:"stats"`
	Trajectories []kernel.Trajectory `json:"trajectories,omitempty"`
}

// LoomNeighborsInput defines the input for loom_neighbors tool.
type LoomNeighborsInput struct {
	Label string `json:"label" jsonschema:"Label of the node to inspect"`
}

// Neighbor is one outgoing edge with the target's label resolved.
type Neighbor struct {
	ID            models.NodeID `json:"id"`
	Label         string        `json:"label"`
	Weight        float64       `json:"weight"`
	Bidirectional bool          `json:"bidirectional,omitempty"`
	Temporary     bool          `json:"temporary,omitempty"`
	Hyperedge     bool          `json:"hyperedge,omitempty"`
}

// LoomNeighborsOutput defines the output for loom_neighbors tool.
type LoomNeighborsOutput struct {
	Node      kernel.NodeInfo `json:"node"`
	Neighbors []Neighbor      `json:"neighbors"`
	Count     int             `json:"count"`
}

// LoomHyperedgesInput defines the input for loom_hyperedges tool.
type LoomHyperedgesInput struct{}

// HyperedgeSummary is a hyperedge with participant labels resolved.
type HyperedgeSummary struct {
	ID           models.HyperedgeID `json:"id"`
	Type         string             `json:"type"`
	Participants []string           `json:"participants"`
	Processor    models.NodeID      `json:"processor_node"`
	State        float64            `json:"state"`
	Usage        uint32             `json:"usage"`
}

// LoomHyperedgesOutput defines the output for loom_hyperedges tool.
type LoomHyperedgesOutput struct {
	Hyperedges []HyperedgeSummary `json:"hyperedges"`
	Count      int                `json:"count"`
}

// LoomGraphInput defines the input for loom_graph tool.
type LoomGraphInput struct {
	Format string `json:"format,omitempty" jsonschema:"Output format: dot or json (default: dot)"`
}

// LoomGraphOutput defines the output for loom_graph tool.
type LoomGraphOutput struct {
	Format    string `json:"format"`
	Graph     any    `json:"graph" jsonschema:"DOT source string or JSON graph object"`
	NodeCount int    `json:"node_count"`
	EdgeCount int    `json:"edge_count"`
}

// LoomSaveInput defines the input for loom_save tool.
type LoomSaveInput struct {
	Checkpoint bool `json:"checkpoint,omitempty" jsonschema:"Also write a rotated checkpoint (default: false)"`
}

// LoomSaveOutput defines the output for loom_save tool.
type LoomSaveOutput struct {
	Path       string `json:"path"`
	Checkpoint string `json:"checkpoint,omitempty"`
	Tick       uint64 `json:"tick"`
	Message    string `json:"message"`
}

// LoomLoadInput defines the input for loom_load tool.
type LoomLoadInput struct {
	Source string `json:"source,omitempty" jsonschema:"What to load: topology, latest, or a checkpoint tick (default: topology)"`
}

// LoomLoadOutput defines the output for loom_load tool.
type LoomLoadOutput struct {
	Path       string `json:"path"`
	Nodes      int    `json:"nodes"`
	Edges      int    `json:"edges"`
	Hyperedges int    `json:"hyperedges"`
	Message    string `json:"message"`
}
