package visualization

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/nvandessel/loom/internal/kernel"
	"github.com/nvandessel/loom/internal/models"
)

func newTestEngine(t *testing.T) *kernel.Engine {
	t.Helper()
	cfg := kernel.DefaultConfig()
	cfg.NodeCapacity = 32
	cfg.EdgeCapacity = 256
	cfg.Workers = 1
	e, err := kernel.New(cfg)
	if err != nil {
		t.Fatalf("kernel.New: %v", err)
	}
	return e
}

func bootstrapped(t *testing.T) *kernel.Engine {
	t.Helper()
	e := newTestEngine(t)
	if err := e.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return e
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"dot", FormatDOT, false},
		{"JSON", FormatJSON, false},
		{"", FormatDOT, false},
		{"html", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRenderDOT_Empty(t *testing.T) {
	dot := RenderDOT(newTestEngine(t))
	if !strings.Contains(dot, "digraph loom") {
		t.Error("expected digraph header")
	}
	if !strings.HasSuffix(strings.TrimSpace(dot), "}") {
		t.Error("expected closing brace")
	}
	if strings.Contains(dot, "->") {
		t.Error("empty topology should have no edges")
	}
}

func TestRenderDOT_Bootstrapped(t *testing.T) {
	dot := RenderDOT(bootstrapped(t))

	for _, want := range []string{
		`label="self"`,
		`label="surprise"`,
		`shape=hexagon`,
		`label="resonance"`,
		`dir=both`,
		`style=dotted`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %s", want)
		}
	}

	// 3 primordial pairs + 3 Levi pairs, each drawn once.
	if got := strings.Count(dot, "->"); got != 6 {
		t.Errorf("edge lines = %d, want 6", got)
	}
}

func TestRenderDOT_TemporaryAndNegative(t *testing.T) {
	e := newTestEngine(t)
	a, _ := e.CreateNode("a")
	b, _ := e.CreateNode("b")
	c, _ := e.CreateNode("c")
	if err := e.CreateEdge(a, b, -0.5); err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}
	if err := e.CreateEdge(b, c, 0.5); err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}

	dot := RenderDOT(e)
	if !strings.Contains(dot, "n0 -> n1") || !strings.Contains(dot, "style=bold") {
		t.Errorf("negative edge should be bold:\n%s", dot)
	}
	if !strings.Contains(dot, "dir=forward") {
		t.Error("directed edge should be forward")
	}
}

func TestNodeColor(t *testing.T) {
	tests := []struct {
		name string
		node kernel.NodeInfo
		want string
	}{
		{"inactive", kernel.NodeInfo{Active: false, Activation: 0.9}, "white"},
		{"cold", kernel.NodeInfo{Active: true, Activation: 0}, "lightblue"},
		{"hot", kernel.NodeInfo{Active: true, Activation: 1}, "tomato"},
		{"mid", kernel.NodeInfo{Active: true, Activation: 0.5}, "gold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nodeColor(tt.node); got != tt.want {
				t.Errorf("nodeColor = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCollectEdges_DedupsMirroredPairs(t *testing.T) {
	in := []kernel.EdgeInfo{
		{From: 0, To: 1, Weight: 0.9, Bidirectional: true},
		{From: 1, To: 0, Weight: 0.9, Bidirectional: true},
		{From: 1, To: 2, Weight: 0.2},
		{From: 2, To: 1, Weight: 0.4},
	}
	got := CollectEdges(in)
	if len(got) != 3 {
		t.Fatalf("CollectEdges returned %d edges, want 3", len(got))
	}
	if got[0].Source != 0 || got[0].Target != 1 || !got[0].Bidirectional {
		t.Errorf("first edge = %+v", got[0])
	}
}

func TestRenderJSON(t *testing.T) {
	e := bootstrapped(t)
	g := RenderJSON(e)

	if g.NodeCount != 8 {
		t.Errorf("NodeCount = %d, want 8", g.NodeCount)
	}
	if g.EdgeCount != 6 {
		t.Errorf("EdgeCount = %d, want 6", g.EdgeCount)
	}
	if g.HyperedgeCount != 1 || g.Hyperedges[0].Type != models.ProcessorResonance {
		t.Errorf("hyperedges = %+v", g.Hyperedges)
	}

	data, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"nodes", "edges", "hyperedges", "node_count"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("JSON missing %q", key)
		}
	}
}

func TestRenderJSON_EmptyHasArrays(t *testing.T) {
	data, err := json.Marshal(RenderJSON(newTestEngine(t)))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"hyperedges":[]`) {
		t.Errorf("expected empty hyperedges array, got %s", data)
	}
	if !strings.Contains(string(data), `"edges":[]`) {
		t.Errorf("expected empty edges array, got %s", data)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate(strings.Repeat("x", 20), 10); got != "xxxxxxx..." {
		t.Errorf("truncate = %q", got)
	}
}
