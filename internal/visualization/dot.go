// Package visualization renders loom topologies as Graphviz DOT or JSON.
package visualization

import (
	"fmt"
	"math"
	"strings"

	"github.com/nvandessel/loom/internal/hyperedge"
	"github.com/nvandessel/loom/internal/kernel"
	"github.com/nvandessel/loom/internal/models"
)

// Format specifies the output format for graph rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
)

// ParseFormat maps a flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatDOT, FormatJSON:
		return f, nil
	case "":
		return FormatDOT, nil
	}
	return "", fmt.Errorf("unknown format %q (valid: dot, json)", s)
}

// Source is the read-only view of a topology the renderers need.
// *kernel.Engine satisfies it.
type Source interface {
	Nodes() []kernel.NodeInfo
	Edges() []kernel.EdgeInfo
	Hyperedges() []hyperedge.Hyperedge
}

// activationColors shades active data nodes from cold to hot.
var activationColors = []string{"lightblue", "skyblue", "gold", "orange", "tomato"}

// processorColors maps processor types to DOT colors.
var processorColors = map[models.ProcessorType]string{
	models.ProcessorAnd:       "mediumseagreen",
	models.ProcessorOr:        "darkseagreen",
	models.ProcessorXor:       "khaki",
	models.ProcessorThreshold: "goldenrod",
	models.ProcessorResonance: "plum",
	models.ProcessorInhibit:   "indianred",
	models.ProcessorSequence:  "steelblue",
	models.ProcessorCustom:    "lightgray",
}

// nodeColor picks a fill color for a data node.
func nodeColor(n kernel.NodeInfo) string {
	if !n.Active {
		return "white"
	}
	i := int(n.Activation * float64(len(activationColors)))
	return activationColors[min(max(i, 0), len(activationColors)-1)]
}

// edgeStyle picks a DOT style from the CSR flags.
func edgeStyle(e kernel.EdgeInfo) string {
	switch {
	case e.Hyperedge:
		return "dotted"
	case e.Temporary:
		return "dashed"
	case e.Weight < 0:
		return "bold"
	}
	return "solid"
}

// Edge is one rendered connection. Mirrored pairs collapse into a single
// edge with Bidirectional set.
type Edge struct {
	Source        models.NodeID `json:"source"`
	Target        models.NodeID `json:"target"`
	Weight        float64       `json:"weight"`
	Bidirectional bool          `json:"bidirectional,omitempty"`
	Temporary     bool          `json:"temporary,omitempty"`
	Hyperedge     bool          `json:"hyperedge,omitempty"`
}

// CollectEdges deduplicates mirrored pairs. A bidirectional entry is kept
// once, from the lower id.
func CollectEdges(edges []kernel.EdgeInfo) []Edge {
	out := make([]Edge, 0, len(edges))
	for _, e := range edges {
		if e.Bidirectional && e.From > e.To {
			continue
		}
		out = append(out, Edge{
			Source:        e.From,
			Target:        e.To,
			Weight:        e.Weight,
			Bidirectional: e.Bidirectional,
			Temporary:     e.Temporary,
			Hyperedge:     e.Hyperedge,
		})
	}
	return out
}

// RenderDOT produces a Graphviz DOT representation of the topology.
func RenderDOT(src Source) string {
	nodes := src.Nodes()
	hyper := src.Hyperedges()
	byProcessor := make(map[models.NodeID]hyperedge.Hyperedge, len(hyper))
	for _, h := range hyper {
		byProcessor[h.Processor] = h
	}

	var b strings.Builder
	b.WriteString("digraph loom {\n")
	b.WriteString("  layout=neato;\n")
	b.WriteString("  overlap=false;\n")
	b.WriteString("  node [shape=ellipse, style=filled, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=9];\n\n")

	for _, n := range nodes {
		if n.Processor {
			h := byProcessor[n.ID]
			color := processorColors[h.Type]
			if color == "" {
				color = "lightgray"
			}
			fmt.Fprintf(&b, "  n%d [label=%q, shape=hexagon, fillcolor=%q, tooltip=\"state=%.3f usage=%d\"];\n",
				n.ID, h.Type.String(), color, h.State, h.Usage)
			continue
		}
		fmt.Fprintf(&b, "  n%d [label=%q, fillcolor=%q, tooltip=\"activation=%.3f\"];\n",
			n.ID, truncate(n.Label, 40), nodeColor(n), n.Activation)
	}
	b.WriteString("\n")

	for _, e := range src.Edges() {
		if e.Bidirectional && e.From > e.To {
			continue
		}
		dir := "forward"
		if e.Bidirectional {
			dir = "both"
		}
		if e.Hyperedge {
			fmt.Fprintf(&b, "  n%d -> n%d [style=dotted, dir=none, color=gray50];\n", e.From, e.To)
			continue
		}
		fmt.Fprintf(&b, "  n%d -> n%d [label=\"%.2f\", style=%s, dir=%s, penwidth=%.2f];\n",
			e.From, e.To, e.Weight, edgeStyle(e), dir, 0.5+2*min(math.Abs(e.Weight), 1))
	}

	b.WriteString("}\n")
	return b.String()
}

// Graph is the JSON form of a topology.
type Graph struct {
	Nodes          []kernel.NodeInfo     `json:"nodes"`
	Edges          []Edge                `json:"edges"`
	Hyperedges     []hyperedge.Hyperedge `json:"hyperedges"`
	NodeCount      int                   `json:"node_count"`
	EdgeCount      int                   `json:"edge_count"`
	HyperedgeCount int                   `json:"hyperedge_count"`
}

// RenderJSON builds the JSON graph. Labels longer than 80 bytes are truncated.
func RenderJSON(src Source) Graph {
	nodes := src.Nodes()
	for i := range nodes {
		nodes[i].Label = truncate(nodes[i].Label, 80)
	}
	edges := CollectEdges(src.Edges())
	hyper := src.Hyperedges()
	if hyper == nil {
		hyper = []hyperedge.Hyperedge{}
	}
	return Graph{
		Nodes:          nodes,
		Edges:          edges,
		Hyperedges:     hyper,
		NodeCount:      len(nodes),
		EdgeCount:      len(edges),
		HyperedgeCount: len(hyper),
	}
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
