package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/loom/internal/hebbian"
	"github.com/nvandessel/loom/internal/kernel"
	"github.com/nvandessel/loom/internal/models"
	"github.com/nvandessel/loom/internal/visualization"
)

const (
	statsURI      = "loom://topology/stats"
	nodeURIPrefix = "loom://node/"
	defaultWeight = 0.5
)

// registerTools registers all loom MCP tools with the server.
func (s *Server) registerTools() error {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "loom_node",
		Description: "Create a node with the given label",
	}, s.handleLoomNode)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "loom_connect",
		Description: "Create a weighted edge between two nodes, optionally in both directions",
	}, s.handleLoomConnect)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "loom_hyperedge",
		Description: "Bind 2 to 6 nodes into a hyperedge computed by a processor (and, or, xor, threshold, resonance, inhibit, sequence, custom)",
	}, s.handleLoomHyperedge)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "loom_activate",
		Description: "Stimulate a node by pinning its activation, or deactivate it",
	}, s.handleLoomActivate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "loom_context",
		Description: "Set context signals such as stress and curiosity that modulate learning",
	}, s.handleLoomContext)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "loom_evolve",
		Description: "Pull a node toward a target vector or another node over a duration",
	}, s.handleLoomEvolve)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "loom_tick",
		Description: "Advance the topology by a number of ticks",
	}, s.handleLoomTick)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "loom_stats",
		Description: "Summarize the topology: counts, capacity, emergence, context and last consolidation",
	}, s.handleLoomStats)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "loom_neighbors",
		Description: "List the outgoing edges of a node",
	}, s.handleLoomNeighbors)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "loom_hyperedges",
		Description: "List hyperedges with their processor state and usage",
	}, s.handleLoomHyperedges)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "loom_graph",
		Description: "Render the topology in DOT (Graphviz) or JSON format",
	}, s.handleLoomGraph)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "loom_save",
		Description: "Save the topology file and optionally write a checkpoint",
	}, s.handleLoomSave)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "loom_load",
		Description: "Replace the live topology with the saved topology file or a checkpoint",
	}, s.handleLoomLoad)

	return nil
}

// registerResources registers MCP resources for auto-loading into context.
func (s *Server) registerResources() error {
	s.server.AddResource(&sdk.Resource{
		URI:         statsURI,
		Name:        "loom-topology-stats",
		Description: "Current shape of the loom topology: node, edge and hyperedge counts, emergence and context.",
		MIMEType:    "text/markdown",
	}, s.handleStatsResource)

	s.server.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: nodeURIPrefix + "{label}",
		Name:        "loom-node",
		Description: "Details and outgoing edges of one node, addressed by label.",
		MIMEType:    "text/markdown",
	}, s.handleNodeResource)

	return nil
}

// handleStatsResource renders the topology summary as markdown.
func (s *Server) handleStatsResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	snap := s.session.Engine().Snapshot()

	var b strings.Builder
	b.WriteString("# Loom Topology\n\n")
	fmt.Fprintf(&b, "- Tick: %d (engine time %.3f)\n", s.session.ProjectTick(), snap.Time)
	fmt.Fprintf(&b, "- Nodes: %d of %d (%d active, %d processors)\n", snap.Nodes, snap.NodeCapacity, snap.ActiveNodes, snap.Processors)
	fmt.Fprintf(&b, "- Edges: %d of %d (%d temporary)\n", snap.Edges, snap.EdgeCapacity, snap.TemporaryEdges)
	fmt.Fprintf(&b, "- Hyperedges: %d\n", snap.Hyperedges)
	fmt.Fprintf(&b, "- Trajectories: %d\n", snap.Trajectories)
	fmt.Fprintf(&b, "- Emergence: %.4f\n", snap.Emergence)
	fmt.Fprintf(&b, "- Mean activation: %.4f\n", snap.MeanActivation)

	if len(snap.Context) > 0 {
		b.WriteString("\n## Context\n\n")
		keys := make([]string, 0, len(snap.Context))
		for k := range snap.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %.2f\n", k, snap.Context[k])
		}
	}

	if c := snap.Consolidation; c != nil {
		b.WriteString("\n## Last Consolidation\n\n")
		fmt.Fprintf(&b, "- Tick %d (pass %d): %d flagged, %d temporary, %d strengthened\n",
			c.Tick, c.Pass, c.Flagged, c.Temporary, len(c.Strengthened))
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      statsURI,
				MIMEType: "text/markdown",
				Text:     b.String(),
			},
		},
	}, nil
}

// handleNodeResource renders one node and its outgoing edges.
func (s *Server) handleNodeResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	uri := req.Params.URI
	label := strings.TrimPrefix(uri, nodeURIPrefix)
	if label == "" || label == uri {
		return nil, fmt.Errorf("invalid node URI: %s", uri)
	}

	node, neighbors, err := s.neighbors(label)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", node.Label)
	fmt.Fprintf(&b, "- ID: %d\n", node.ID)
	fmt.Fprintf(&b, "- Active: %t\n", node.Active)
	fmt.Fprintf(&b, "- Activation: %.4f\n", node.Activation)
	if node.Processor {
		b.WriteString("- Processor node\n")
	}
	fmt.Fprintf(&b, "- Connections: %d\n", node.Connections)

	if len(neighbors) > 0 {
		b.WriteString("\n## Edges\n\n")
		for _, n := range neighbors {
			fmt.Fprintf(&b, "- -> %s (%.3f)%s\n", n.Label, n.Weight, edgeTags(n))
		}
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      uri,
				MIMEType: "text/markdown",
				Text:     b.String(),
			},
		},
	}, nil
}

func edgeTags(n Neighbor) string {
	var tags []string
	if n.Bidirectional {
		tags = append(tags, "bidirectional")
	}
	if n.Temporary {
		tags = append(tags, "temporary")
	}
	if n.Hyperedge {
		tags = append(tags, "hyperedge")
	}
	if len(tags) == 0 {
		return ""
	}
	return " [" + strings.Join(tags, ", ") + "]"
}

// handleLoomNode implements the loom_node tool.
func (s *Server) handleLoomNode(ctx context.Context, req *sdk.CallToolRequest, args LoomNodeInput) (_ *sdk.CallToolResult, _ LoomNodeOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("loom_node", start, retErr, sanitizeToolParams("loom_node", map[string]interface{}{
			"label": args.Label,
		}))
	}()

	if err := s.checkLimit("loom_node"); err != nil {
		return nil, LoomNodeOutput{}, err
	}

	if args.Label == "" {
		return nil, LoomNodeOutput{}, fmt.Errorf("'label' parameter is required")
	}

	id, err := s.session.CreateNode(ctx, args.Label)
	if err != nil {
		return nil, LoomNodeOutput{}, fmt.Errorf("failed to create node: %w", err)
	}

	return nil, LoomNodeOutput{
		ID:      id,
		Label:   args.Label,
		Message: fmt.Sprintf("Created node %q (id %d)", args.Label, id),
	}, nil
}

// handleLoomConnect implements the loom_connect tool.
func (s *Server) handleLoomConnect(ctx context.Context, req *sdk.CallToolRequest, args LoomConnectInput) (_ *sdk.CallToolResult, _ LoomConnectOutput, retErr error) {
	start := time.Now()
	weight := defaultWeight
	if args.Weight != nil {
		weight = *args.Weight
	}
	defer func() {
		s.auditTool("loom_connect", start, retErr, sanitizeToolParams("loom_connect", map[string]interface{}{
			"from": args.From, "to": args.To, "weight": weight, "bidirectional": args.Bidirectional,
		}))
	}()

	if err := s.checkLimit("loom_connect"); err != nil {
		return nil, LoomConnectOutput{}, err
	}

	if args.From == "" {
		return nil, LoomConnectOutput{}, fmt.Errorf("'from' parameter is required")
	}
	if args.To == "" {
		return nil, LoomConnectOutput{}, fmt.Errorf("'to' parameter is required")
	}
	if args.From == args.To {
		return nil, LoomConnectOutput{}, fmt.Errorf("self-edges are not allowed")
	}
	if weight < -1 || weight > 1 {
		return nil, LoomConnectOutput{}, fmt.Errorf("weight must be in [-1, 1], got %v", weight)
	}

	kind := kernel.OpEdge
	if args.Bidirectional {
		kind = kernel.OpBidirectional
	}
	if err := s.session.Apply(ctx, kernel.Op{Kind: kind, From: args.From, To: args.To, Weight: weight}); err != nil {
		return nil, LoomConnectOutput{}, fmt.Errorf("failed to connect: %w", err)
	}

	arrow := "->"
	if args.Bidirectional {
		arrow = "<->"
	}
	return nil, LoomConnectOutput{
		From:          args.From,
		To:            args.To,
		Weight:        weight,
		Bidirectional: args.Bidirectional,
		Message:       fmt.Sprintf("Connected %q %s %q (weight %.2f)", args.From, arrow, args.To, weight),
	}, nil
}

// handleLoomHyperedge implements the loom_hyperedge tool.
func (s *Server) handleLoomHyperedge(ctx context.Context, req *sdk.CallToolRequest, args LoomHyperedgeInput) (_ *sdk.CallToolResult, _ LoomHyperedgeOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("loom_hyperedge", start, retErr, sanitizeToolParams("loom_hyperedge", map[string]interface{}{
			"participants": args.Participants, "processor": args.Processor,
		}))
	}()

	if err := s.checkLimit("loom_hyperedge"); err != nil {
		return nil, LoomHyperedgeOutput{}, err
	}

	if len(args.Participants) == 0 {
		return nil, LoomHyperedgeOutput{}, fmt.Errorf("'participants' parameter is required")
	}
	typ, err := models.ParseProcessorType(args.Processor)
	if err != nil {
		return nil, LoomHyperedgeOutput{}, err
	}

	id, err := s.session.CreateHyperedge(ctx, args.Participants, typ)
	if err != nil {
		return nil, LoomHyperedgeOutput{}, fmt.Errorf("failed to create hyperedge: %w", err)
	}
	h, err := s.session.Engine().Hyperedge(id)
	if err != nil {
		return nil, LoomHyperedgeOutput{}, err
	}

	return nil, LoomHyperedgeOutput{
		ID:        id,
		Processor: h.Processor,
		Type:      typ.String(),
		Arity:     h.Arity(),
		Message:   fmt.Sprintf("Created %s hyperedge %d over %d nodes", typ, id, h.Arity()),
	}, nil
}

// handleLoomActivate implements the loom_activate tool.
func (s *Server) handleLoomActivate(ctx context.Context, req *sdk.CallToolRequest, args LoomActivateInput) (_ *sdk.CallToolResult, _ LoomActivateOutput, retErr error) {
	start := time.Now()
	activation := 1.0
	if args.Activation != nil {
		activation = *args.Activation
	}
	defer func() {
		s.auditTool("loom_activate", start, retErr, sanitizeToolParams("loom_activate", map[string]interface{}{
			"label": args.Label, "activation": activation, "deactivate": args.Deactivate,
		}))
	}()

	if err := s.checkLimit("loom_activate"); err != nil {
		return nil, LoomActivateOutput{}, err
	}

	if args.Label == "" {
		return nil, LoomActivateOutput{}, fmt.Errorf("'label' parameter is required")
	}
	if !args.Deactivate && (activation < 0 || activation > 1) {
		return nil, LoomActivateOutput{}, fmt.Errorf("activation must be in [0, 1], got %v", activation)
	}

	op := kernel.Op{Kind: kernel.OpActivate, Label: args.Label, Activation: activation}
	verb := "Activated"
	if args.Deactivate {
		op = kernel.Op{Kind: kernel.OpDeactivate, Label: args.Label}
		verb = "Deactivated"
	}
	if err := s.session.Apply(ctx, op); err != nil {
		return nil, LoomActivateOutput{}, fmt.Errorf("failed to update node: %w", err)
	}

	id, err := s.session.Resolve(args.Label)
	if err != nil {
		return nil, LoomActivateOutput{}, err
	}
	node, err := s.session.Engine().Node(id)
	if err != nil {
		return nil, LoomActivateOutput{}, err
	}

	return nil, LoomActivateOutput{
		Label:      args.Label,
		Activation: node.Activation,
		Active:     node.Active,
		Message:    fmt.Sprintf("%s %q (activation %.3f)", verb, args.Label, node.Activation),
	}, nil
}

// handleLoomContext implements the loom_context tool.
func (s *Server) handleLoomContext(ctx context.Context, req *sdk.CallToolRequest, args LoomContextInput) (_ *sdk.CallToolResult, _ LoomContextOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("loom_context", start, retErr, sanitizeToolParams("loom_context", map[string]interface{}{
			"signals": args.Signals,
		}))
	}()

	if err := s.checkLimit("loom_context"); err != nil {
		return nil, LoomContextOutput{}, err
	}

	if len(args.Signals) == 0 {
		return nil, LoomContextOutput{}, fmt.Errorf("'signals' parameter is required")
	}
	for name := range args.Signals {
		if strings.TrimSpace(name) == "" {
			return nil, LoomContextOutput{}, fmt.Errorf("signal names must not be empty")
		}
	}

	engine := s.session.Engine()
	engine.SetContext(args.Signals)
	current := engine.Context()

	return nil, LoomContextOutput{
		Context:    current,
		Modulation: float64(hebbian.NewModulation(current)),
	}, nil
}

// handleLoomEvolve implements the loom_evolve tool.
func (s *Server) handleLoomEvolve(ctx context.Context, req *sdk.CallToolRequest, args LoomEvolveInput) (_ *sdk.CallToolResult, _ LoomEvolveOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("loom_evolve", start, retErr, sanitizeToolParams("loom_evolve", map[string]interface{}{
			"label": args.Label, "target": len(args.Target) > 0, "toward": args.Toward,
			"duration": args.Duration, "curve": args.Curve, "rate": args.Rate,
		}))
	}()

	if err := s.checkLimit("loom_evolve"); err != nil {
		return nil, LoomEvolveOutput{}, err
	}

	if args.Label == "" {
		return nil, LoomEvolveOutput{}, fmt.Errorf("'label' parameter is required")
	}
	if (len(args.Target) == 0) == (args.Toward == "") {
		return nil, LoomEvolveOutput{}, fmt.Errorf("exactly one of 'target' or 'toward' is required")
	}
	curve, err := kernel.ParseCurve(args.Curve)
	if err != nil {
		return nil, LoomEvolveOutput{}, err
	}

	engine := s.session.Engine()
	id, err := s.session.Resolve(args.Label)
	if err != nil {
		return nil, LoomEvolveOutput{}, err
	}
	target := args.Target
	if args.Toward != "" {
		other, err := s.session.Resolve(args.Toward)
		if err != nil {
			return nil, LoomEvolveOutput{}, err
		}
		if target, err = engine.Vector(other); err != nil {
			return nil, LoomEvolveOutput{}, err
		}
	}

	if err := engine.EvolveToward(id, target, args.Duration, curve, args.Rate); err != nil {
		return nil, LoomEvolveOutput{}, fmt.Errorf("failed to start trajectory: %w", err)
	}

	rate := args.Rate
	if rate <= 0 {
		rate = 1
	}
	return nil, LoomEvolveOutput{
		Label:        args.Label,
		Duration:     args.Duration,
		Curve:        string(curve),
		Rate:         rate,
		Trajectories: len(engine.Trajectories()),
		Message:      fmt.Sprintf("Evolving %q over %.3f time units (%s)", args.Label, args.Duration, curve),
	}, nil
}

// handleLoomTick implements the loom_tick tool.
func (s *Server) handleLoomTick(ctx context.Context, req *sdk.CallToolRequest, args LoomTickInput) (_ *sdk.CallToolResult, _ LoomTickOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("loom_tick", start, retErr, sanitizeToolParams("loom_tick", map[string]interface{}{
			"ticks": args.Ticks,
		}))
	}()

	if err := s.checkLimit("loom_tick"); err != nil {
		return nil, LoomTickOutput{}, err
	}

	n := args.Ticks
	if n == 0 {
		n = 1
	}
	if n < 0 {
		return nil, LoomTickOutput{}, fmt.Errorf("ticks must be positive, got %d", n)
	}
	if n > s.ticksPerCall {
		return nil, LoomTickOutput{}, fmt.Errorf("ticks must be at most %d per call, got %d", s.ticksPerCall, n)
	}

	var out LoomTickOutput
	var last kernel.TickReport
	err := s.session.Tick(ctx, n, func(r kernel.TickReport) {
		out.Ticks++
		out.OpsApplied += r.OpsApplied
		out.Expired += r.Expired
		if r.Consolidation != nil {
			out.Consolidated++
		}
		last = r
	})
	if err != nil {
		return nil, LoomTickOutput{}, fmt.Errorf("tick failed after %d ticks: %w", out.Ticks, err)
	}

	out.Tick = s.session.ProjectTick()
	out.Time = last.Time
	out.ActiveNodes = last.ActiveNodes
	out.Fired = last.Fired
	out.Emergence = last.Emergence
	out.Modulation = last.Modulation
	return nil, out, nil
}

// handleLoomStats implements the loom_stats tool.
func (s *Server) handleLoomStats(ctx context.Context, req *sdk.CallToolRequest, args LoomStatsInput) (_ *sdk.CallToolResult, _ LoomStatsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("loom_stats", start, retErr, sanitizeToolParams("loom_stats", map[string]interface{}{}))
	}()

	if err := s.checkLimit("loom_stats"); err != nil {
		return nil, LoomStatsOutput{}, err
	}

	engine := s.session.Engine()
	return nil, LoomStatsOutput{
		ProjectTick:  s.session.ProjectTick(),
		SessionTicks: s.session.Ticks(),
		Stats:        engine.Snapshot(),
		Trajectories: engine.Trajectories(),
	}, nil
}

// neighbors resolves label and its outgoing edges.
func (s *Server) neighbors(label string) (kernel.NodeInfo, []Neighbor, error) {
	engine := s.session.Engine()
	id, err := s.session.Resolve(label)
	if err != nil {
		return kernel.NodeInfo{}, nil, err
	}
	node, err := engine.Node(id)
	if err != nil {
		return kernel.NodeInfo{}, nil, err
	}
	edges, err := engine.Neighbors(id)
	if err != nil {
		return kernel.NodeInfo{}, nil, err
	}

	out := make([]Neighbor, 0, len(edges))
	for _, e := range edges {
		out = append(out, Neighbor{
			ID:            e.To,
			Label:         engine.Label(e.To),
			Weight:        e.Weight,
			Bidirectional: e.Bidirectional,
			Temporary:     e.Temporary,
			Hyperedge:     e.Hyperedge,
		})
	}
	return node, out, nil
}

// handleLoomNeighbors implements the loom_neighbors tool.
func (s *Server) handleLoomNeighbors(ctx context.Context, req *sdk.CallToolRequest, args LoomNeighborsInput) (_ *sdk.CallToolResult, _ LoomNeighborsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("loom_neighbors", start, retErr, sanitizeToolParams("loom_neighbors", map[string]interface{}{
			"label": args.Label,
		}))
	}()

	if err := s.checkLimit("loom_neighbors"); err != nil {
		return nil, LoomNeighborsOutput{}, err
	}

	if args.Label == "" {
		return nil, LoomNeighborsOutput{}, fmt.Errorf("'label' parameter is required")
	}

	node, neighbors, err := s.neighbors(args.Label)
	if err != nil {
		return nil, LoomNeighborsOutput{}, err
	}
	return nil, LoomNeighborsOutput{
		Node:      node,
		Neighbors: neighbors,
		Count:     len(neighbors),
	}, nil
}

// handleLoomHyperedges implements the loom_hyperedges tool.
func (s *Server) handleLoomHyperedges(ctx context.Context, req *sdk.CallToolRequest, args LoomHyperedgesInput) (_ *sdk.CallToolResult, _ LoomHyperedgesOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("loom_hyperedges", start, retErr, sanitizeToolParams("loom_hyperedges", map[string]interface{}{}))
	}()

	if err := s.checkLimit("loom_hyperedges"); err != nil {
		return nil, LoomHyperedgesOutput{}, err
	}

	engine := s.session.Engine()
	all := engine.Hyperedges()
	out := make([]HyperedgeSummary, 0, len(all))
	for _, h := range all {
		labels := make([]string, len(h.Participants))
		for i, p := range h.Participants {
			labels[i] = engine.Label(p)
		}
		out = append(out, HyperedgeSummary{
			ID:           h.ID,
			Type:         h.Type.String(),
			Participants: labels,
			Processor:    h.Processor,
			State:        h.State,
			Usage:        h.Usage,
		})
	}
	return nil, LoomHyperedgesOutput{Hyperedges: out, Count: len(out)}, nil
}

// handleLoomGraph implements the loom_graph tool.
func (s *Server) handleLoomGraph(ctx context.Context, req *sdk.CallToolRequest, args LoomGraphInput) (_ *sdk.CallToolResult, _ LoomGraphOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("loom_graph", start, retErr, sanitizeToolParams("loom_graph", map[string]interface{}{
			"format": args.Format,
		}))
	}()

	if err := s.checkLimit("loom_graph"); err != nil {
		return nil, LoomGraphOutput{}, err
	}

	format, err := visualization.ParseFormat(args.Format)
	if err != nil {
		return nil, LoomGraphOutput{}, err
	}

	engine := s.session.Engine()
	switch format {
	case visualization.FormatJSON:
		g := visualization.RenderJSON(engine)
		return nil, LoomGraphOutput{
			Format:    string(format),
			Graph:     g,
			NodeCount: g.NodeCount,
			EdgeCount: g.EdgeCount,
		}, nil
	default:
		snap := engine.Snapshot()
		return nil, LoomGraphOutput{
			Format:    string(format),
			Graph:     visualization.RenderDOT(engine),
			NodeCount: snap.Nodes,
			EdgeCount: len(visualization.CollectEdges(engine.Edges())),
		}, nil
	}
}

// handleLoomSave implements the loom_save tool.
func (s *Server) handleLoomSave(ctx context.Context, req *sdk.CallToolRequest, args LoomSaveInput) (_ *sdk.CallToolResult, _ LoomSaveOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("loom_save", start, retErr, sanitizeToolParams("loom_save", map[string]interface{}{
			"checkpoint": args.Checkpoint,
		}))
	}()

	if err := s.checkLimit("loom_save"); err != nil {
		return nil, LoomSaveOutput{}, err
	}

	if err := s.session.Save(); err != nil {
		return nil, LoomSaveOutput{}, fmt.Errorf("failed to save topology: %w", err)
	}
	out := LoomSaveOutput{
		Path:    s.session.TopologyPath(),
		Tick:    s.session.ProjectTick(),
		Message: "Topology saved",
	}

	if args.Checkpoint {
		info, err := s.session.Checkpoint()
		if err != nil {
			return nil, LoomSaveOutput{}, fmt.Errorf("failed to write checkpoint: %w", err)
		}
		out.Checkpoint = info.Path
		out.Message = fmt.Sprintf("Topology saved, checkpoint written at tick %d", info.Tick)
	}
	return nil, out, nil
}

// handleLoomLoad implements the loom_load tool.
func (s *Server) handleLoomLoad(ctx context.Context, req *sdk.CallToolRequest, args LoomLoadInput) (_ *sdk.CallToolResult, _ LoomLoadOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("loom_load", start, retErr, sanitizeToolParams("loom_load", map[string]interface{}{
			"source": args.Source,
		}))
	}()

	if err := s.checkLimit("loom_load"); err != nil {
		return nil, LoomLoadOutput{}, err
	}

	path, err := s.session.Restore(args.Source)
	if err != nil {
		return nil, LoomLoadOutput{}, fmt.Errorf("failed to load: %w", err)
	}

	snap := s.session.Engine().Snapshot()
	return nil, LoomLoadOutput{
		Path:       path,
		Nodes:      snap.Nodes,
		Edges:      snap.Edges,
		Hyperedges: snap.Hyperedges,
		Message:    fmt.Sprintf("Loaded %d nodes, %d edges, %d hyperedges", snap.Nodes, snap.Edges, snap.Hyperedges),
	}, nil
}
