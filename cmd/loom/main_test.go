package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// isolateHome sets HOME to a temp directory to avoid touching real ~/.loom/
// and shrinks the topology so commands stay fast.
func isolateHome(t *testing.T, tmpDir string) {
	t.Helper()
	tmpHome := filepath.Join(tmpDir, "home")
	if err := os.MkdirAll(tmpHome, 0700); err != nil {
		t.Fatalf("Failed to create temp home: %v", err)
	}
	t.Setenv("HOME", tmpHome)
	t.Setenv("LOOM_NODE_CAPACITY", "128")
	t.Setenv("LOOM_WORKERS", "1")
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd := newRootCmd()
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// mustExecute runs the command and fails the test on error.
func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	if err != nil {
		t.Fatalf("loom %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

// decode unmarshals JSON command output into v.
func decode(t *testing.T, out string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
}

// initProject creates a bootstrapped project in a temp directory.
func initProject(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	mustExecute(t, "init", "--root", tmpDir)
	return tmpDir
}

func TestVersionCmd(t *testing.T) {
	out := mustExecute(t, "version", "--json")
	var v map[string]string
	decode(t, out, &v)
	if v["version"] != version {
		t.Errorf("version = %q, want %q", v["version"], version)
	}

	out = mustExecute(t, "version")
	if !strings.HasPrefix(out, "loom version ") {
		t.Errorf("output = %q", out)
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	want := []string{"version", "init", "node", "connect", "hyperedge", "context", "run",
		"stats", "graph", "history", "checkpoint", "config", "mcp-server"}
	rootCmd := newRootCmd()
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
	for _, flag := range []string{"json", "root"} {
		if rootCmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("missing --%s flag", flag)
		}
	}
}

func TestInitCmd(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	if _, err := execute(t, "stats", "--root", tmpDir); err == nil || !strings.Contains(err.Error(), "loom init") {
		t.Errorf("stats before init error = %v, want hint to run init", err)
	}

	out := mustExecute(t, "init", "--root", tmpDir, "--json")
	var res map[string]any
	decode(t, out, &res)
	if res["status"] != "initialized" || res["nodes"] != float64(8) || res["hyperedges"] != float64(1) {
		t.Errorf("init output = %v", res)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, ".loom", "config.yaml")); err != nil {
		t.Errorf("project config not written: %v", err)
	}

	if _, err := execute(t, "init", "--root", tmpDir); err == nil {
		t.Error("second init should fail")
	}

	empty := t.TempDir()
	out = mustExecute(t, "init", "--root", empty, "--empty", "--json")
	decode(t, out, &res)
	if res["nodes"] != float64(0) {
		t.Errorf("empty init nodes = %v, want 0", res["nodes"])
	}
}

func TestStructuralCommands(t *testing.T) {
	root := initProject(t)

	out := mustExecute(t, "node", "add", "coffee", "morning", "--root", root)
	if !strings.Contains(out, "Created node 8: coffee") || !strings.Contains(out, "Created node 9: morning") {
		t.Errorf("node add output = %q", out)
	}

	mustExecute(t, "connect", "coffee", "morning", "--weight", "0.7", "--bidirectional", "--root", root)

	out = mustExecute(t, "node", "show", "morning", "--json", "--root", root)
	var shown struct {
		Node struct {
			Label string `json:"label"`
		} `json:"node"`
		Edges []struct {
			To            uint32  `json:"to"`
			Weight        float64 `json:"weight"`
			Bidirectional bool    `json:"bidirectional"`
		} `json:"edges"`
	}
	decode(t, out, &shown)
	if shown.Node.Label != "morning" || len(shown.Edges) != 1 {
		t.Fatalf("node show = %+v", shown)
	}
	if e := shown.Edges[0]; e.To != 8 || math.Abs(e.Weight-0.7) > 1e-6 || !e.Bidirectional {
		t.Errorf("morning edge = %+v, want bidirectional 0.7 to coffee", e)
	}

	tests := []struct {
		name string
		args []string
	}{
		{"weight out of range", []string{"connect", "coffee", "morning", "--weight", "1.5"}},
		{"self edge", []string{"connect", "coffee", "coffee"}},
		{"unknown node", []string{"connect", "coffee", "tea"}},
		{"unknown processor", []string{"hyperedge", "add", "bogus", "coffee", "morning"}},
		{"unknown label", []string{"node", "show", "tea"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, append(tt.args, "--root", root)...); err == nil {
				t.Error("expected error")
			}
		})
	}

	out = mustExecute(t, "hyperedge", "add", "and", "coffee", "morning", "--root", root)
	if !strings.Contains(out, "Created and hyperedge 1") {
		t.Errorf("hyperedge add output = %q", out)
	}
	out = mustExecute(t, "hyperedge", "list", "--json", "--root", root)
	var list struct {
		Count int `json:"count"`
	}
	decode(t, out, &list)
	if list.Count != 2 {
		t.Errorf("hyperedge count = %d, want 2", list.Count)
	}

	out = mustExecute(t, "node", "list", "--root", root)
	if !strings.Contains(out, "coffee") || strings.Contains(out, "(processor)") {
		t.Errorf("node list output = %q", out)
	}
	out = mustExecute(t, "node", "list", "--all", "--root", root)
	if !strings.Contains(out, "(processor)") {
		t.Errorf("node list --all should include processors:\n%s", out)
	}
}

func TestRunAndHistory(t *testing.T) {
	root := initProject(t)

	opsPath := filepath.Join(root, "ops.yaml")
	ops := `ops:
  - {kind: node, label: tea}
  - {kind: edge, from: tea, to: self, weight: 0.4}
  - {kind: edge, from: tea, to: ghost, weight: 0.4}
`
	if err := os.WriteFile(opsPath, []byte(ops), 0644); err != nil {
		t.Fatal(err)
	}

	out := mustExecute(t, "run", "--ticks", "20", "--ops", opsPath, "--stimulate", "self=1", "--json", "--root", root)
	var sum runSummary
	decode(t, out, &sum)
	if sum.Ticks != 20 || sum.ProjectTick != 20 || !sum.Saved {
		t.Errorf("first run = %+v", sum)
	}
	// node, edge and the activation apply; the ghost edge is skipped.
	if sum.OpsApplied != 3 || sum.OpsSkipped != 1 {
		t.Errorf("ops applied/skipped = %d/%d, want 3/1", sum.OpsApplied, sum.OpsSkipped)
	}
	if sum.Stats.Nodes != 9 {
		t.Errorf("nodes = %d, want 9", sum.Stats.Nodes)
	}

	out = mustExecute(t, "run", "--ticks", "5", "--no-save", "--json", "--root", root)
	decode(t, out, &sum)
	if sum.ProjectTick != 25 || sum.Saved {
		t.Errorf("second run = %+v, want project tick 25 unsaved", sum)
	}

	if _, err := execute(t, "run", "--ticks", "-1", "--root", root); err == nil {
		t.Error("negative ticks should fail")
	}

	out = mustExecute(t, "history", "--json", "--root", root)
	var runs struct {
		Runs []struct {
			ID      string `json:"id"`
			Command string `json:"command"`
			Ticks   uint64 `json:"ticks"`
		} `json:"runs"`
	}
	decode(t, out, &runs)
	var runID string
	for _, r := range runs.Runs {
		if r.Ticks == 20 {
			runID = r.ID
		}
	}
	if runID == "" {
		t.Fatalf("no 20-tick run in history: %+v", runs.Runs)
	}

	out = mustExecute(t, "history", runID[:8], "--ops", "--json", "--root", root)
	var detail struct {
		Ticks []struct {
			Tick uint64 `json:"tick"`
		} `json:"ticks"`
		Ops []struct {
			Kind  string `json:"kind"`
			Error string `json:"error"`
		} `json:"ops"`
	}
	decode(t, out, &detail)
	if len(detail.Ticks) != 20 || detail.Ticks[0].Tick != 1 {
		t.Errorf("history ticks = %d (first %+v), want 20 from tick 1", len(detail.Ticks), detail.Ticks)
	}
	if len(detail.Ops) != 4 {
		t.Errorf("history ops = %d, want 4 queued", len(detail.Ops))
	}

	if _, err := execute(t, "history", "zzzzzzzz", "--root", root); err == nil {
		t.Error("unknown run prefix should fail")
	}

	out = mustExecute(t, "history", "--check", "--root", root)
	if !strings.Contains(out, ": ok") {
		t.Errorf("check output = %q", out)
	}

	mustExecute(t, "history", runID, "--delete", "--root", root)
	if _, err := execute(t, "history", runID, "--root", root); err == nil {
		t.Error("deleted run should no longer resolve")
	}
	if _, err := execute(t, "history", "--delete", "--root", root); err == nil {
		t.Error("--delete without a run id should fail")
	}
}

func TestContextCmd(t *testing.T) {
	root := initProject(t)

	out := mustExecute(t, "context", "set", "stress=2", "curiosity=0", "--json", "--root", root)
	var res struct {
		Context    map[string]float64 `json:"context"`
		Modulation float64            `json:"modulation"`
	}
	decode(t, out, &res)
	if res.Context["stress"] != 1 || res.Context["curiosity"] != 0 {
		t.Errorf("context = %v, want stress clamped to 1", res.Context)
	}
	// (0.5 + 0.5*0) * (1 - 0.3*1)
	if res.Modulation < 0.349 || res.Modulation > 0.351 {
		t.Errorf("modulation = %v, want 0.35", res.Modulation)
	}

	out = mustExecute(t, "stats", "--json", "--root", root)
	var stats statsOutput
	decode(t, out, &stats)
	if stats.Stats.Context["stress"] != 1 {
		t.Errorf("session context = %v, want configured stress", stats.Stats.Context)
	}

	out = mustExecute(t, "context", "unset", "stress", "--json", "--root", root)
	decode(t, out, &res)
	if _, ok := res.Context["stress"]; ok {
		t.Errorf("stress still set: %v", res.Context)
	}

	mustExecute(t, "context", "clear", "--root", root)
	out = mustExecute(t, "context", "--root", root)
	if !strings.Contains(out, "No context signals set.") {
		t.Errorf("context output = %q", out)
	}

	if _, err := execute(t, "context", "set", "stress", "--root", root); err == nil {
		t.Error("assignment without value should fail")
	}
}

func TestCheckpointCmds(t *testing.T) {
	root := initProject(t)
	mustExecute(t, "config", "set", "persistence.checkpoint_every", "5", "--root", root)
	mustExecute(t, "run", "--ticks", "15", "--root", root)

	listCount := func() int {
		out := mustExecute(t, "checkpoint", "list", "--json", "--root", root)
		var res struct {
			Count int `json:"count"`
		}
		decode(t, out, &res)
		return res.Count
	}
	if got := listCount(); got != 3 {
		t.Fatalf("checkpoints = %d, want 3", got)
	}

	out := mustExecute(t, "checkpoint", "prune", "--keep", "1", "--json", "--root", root)
	var pruned struct {
		Count int `json:"count"`
	}
	decode(t, out, &pruned)
	if pruned.Count != 2 || listCount() != 1 {
		t.Errorf("pruned %d, %d left; want 2 pruned, 1 left", pruned.Count, listCount())
	}

	mustExecute(t, "node", "add", "scratch", "--root", root)
	out = mustExecute(t, "checkpoint", "restore", "latest", "--root", root)
	if !strings.Contains(out, "Restored topology from") {
		t.Errorf("restore output = %q", out)
	}
	out = mustExecute(t, "stats", "--json", "--root", root)
	var stats statsOutput
	decode(t, out, &stats)
	if stats.Stats.Nodes != 8 {
		t.Errorf("nodes after restore = %d, want 8", stats.Stats.Nodes)
	}

	if _, err := execute(t, "checkpoint", "restore", "../topology.loom", "--root", root); err == nil {
		t.Error("restore outside the checkpoint directory should fail")
	}
	if _, err := execute(t, "checkpoint", "prune", "--older-than", "soon", "--root", root); err == nil {
		t.Error("invalid duration should fail")
	}
}

func TestPrunePolicy(t *testing.T) {
	root := initProject(t)

	tests := []struct {
		name     string
		keep     int
		age      string
		size     string
		any      bool
		wantType string
		wantErr  bool
	}{
		{"configured default", 0, "", "", false, "*checkpoint.CountPolicy", false},
		{"count only", 3, "", "", false, "*checkpoint.CountPolicy", false},
		{"size only", 0, "", "1MB", false, "*checkpoint.SizePolicy", false},
		{"all limits", 3, "7d", "", false, "checkpoint.AllPolicy", false},
		{"any limit", 3, "7d", "1GB", true, "checkpoint.AnyPolicy", false},
		{"negative keep", -1, "", "", false, "", true},
		{"bad size", 0, "", "lots", false, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := prunePolicy(root, tt.keep, tt.age, tt.size, tt.any)
			if (err != nil) != tt.wantErr {
				t.Fatalf("prunePolicy error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got := fmt.Sprintf("%T", p); got != tt.wantType {
				t.Errorf("policy type = %s, want %s", got, tt.wantType)
			}
		})
	}
}

func TestConfigCmds(t *testing.T) {
	root := initProject(t)

	mustExecute(t, "config", "set", "learning.rule", "oja", "--root", root)
	out := mustExecute(t, "config", "get", "learning.rule", "--root", root)
	if strings.TrimSpace(out) != "learning.rule = oja" {
		t.Errorf("get output = %q", out)
	}

	mustExecute(t, "config", "set", "logging.format", "json", "--global", "--root", root)
	data, err := os.ReadFile(filepath.Join(os.Getenv("HOME"), ".loom", "config.yaml"))
	if err != nil || !strings.Contains(string(data), "format: json") {
		t.Errorf("global config = %q, %v", data, err)
	}

	out = mustExecute(t, "config", "list", "--root", root)
	if !strings.Contains(out, "rule: oja") {
		t.Errorf("list should show the project rule:\n%s", out)
	}

	tests := []struct {
		name string
		args []string
	}{
		{"unknown key", []string{"config", "set", "llm.provider", "x"}},
		{"bad number", []string{"config", "set", "engine.diffusion", "fast"}},
		{"invalid rule", []string{"config", "set", "learning.rule", "hopfield"}},
		{"unknown get", []string{"config", "get", "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, append(tt.args, "--root", root)...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestGraphCmd(t *testing.T) {
	root := initProject(t)

	out := mustExecute(t, "graph", "--root", root)
	if !strings.Contains(out, "digraph loom") {
		t.Errorf("DOT output = %q", out)
	}

	outPath := filepath.Join(root, "graph.json")
	mustExecute(t, "graph", "--format", "json", "-o", outPath, "--root", root)
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	var g struct {
		NodeCount int `json:"node_count"`
	}
	decode(t, string(data), &g)
	if g.NodeCount != 8 {
		t.Errorf("node_count = %d, want 8", g.NodeCount)
	}

	if _, err := execute(t, "graph", "--format", "html", "--root", root); err == nil {
		t.Error("unsupported format should fail")
	}
}

func TestParseAssignments(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    map[string]float64
		wantErr bool
	}{
		{"empty", nil, map[string]float64{}, false},
		{"single", []string{"stress=0.5"}, map[string]float64{"stress": 0.5}, false},
		{"spaces", []string{" self = 1 "}, map[string]float64{"self": 1}, false},
		{"missing value", []string{"stress"}, nil, true},
		{"missing key", []string{"=1"}, nil, true},
		{"not a number", []string{"stress=high"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAssignments(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseAssignments(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseAssignments(%v) = %v, want %v", tt.args, got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}
