package session

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nvandessel/loom/internal/checkpoint"
	"github.com/nvandessel/loom/internal/config"
	"github.com/nvandessel/loom/internal/kernel"
	"github.com/nvandessel/loom/internal/models"
)

func testConfig() *config.LoomConfig {
	cfg := config.Default()
	cfg.Engine.NodeCapacity = 64
	cfg.Engine.EdgesPerNode = 8
	cfg.Engine.Workers = 1
	cfg.Persistence.CheckpointEvery = 5
	cfg.Persistence.MaxCheckpoints = 2
	return cfg
}

func create(t *testing.T, root string, bootstrap bool) *Session {
	t.Helper()
	s, err := Create(context.Background(), Options{Root: root, Config: testConfig(), Command: "test"}, bootstrap)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return s
}

func TestCreateAndOpen(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	if _, err := Open(ctx, Options{Root: root, Config: testConfig()}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Open before init error = %v, want ErrNotInitialized", err)
	}

	s := create(t, root, true)
	if !Exists(root) {
		t.Fatal("topology file not written")
	}
	if s.Run().ID == "" {
		t.Error("expected a journal run")
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := Create(ctx, Options{Root: root, Config: testConfig()}, false); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("second Create error = %v, want ErrAlreadyInitialized", err)
	}

	s, err := Open(ctx, Options{Root: root, Config: testConfig(), Command: "stats"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close(ctx)
	if got := s.Engine().Snapshot().Nodes; got != 8 {
		t.Errorf("reopened nodes = %d, want 8", got)
	}
}

func TestApply_JournalsOutcome(t *testing.T) {
	ctx := context.Background()
	s := create(t, t.TempDir(), false)
	defer s.Close(ctx)

	if err := s.Apply(ctx, kernel.Op{Kind: kernel.OpNode, Label: "a"}); err != nil {
		t.Fatalf("Apply node: %v", err)
	}
	err := s.Apply(ctx, kernel.Op{Kind: kernel.OpEdge, From: "a", To: "missing", Weight: 0.5})
	if !errors.Is(err, models.ErrInvalidIndex) {
		t.Fatalf("Apply bad edge error = %v", err)
	}
	s.Enqueue(ctx, kernel.Op{Kind: kernel.OpActivate, Label: "a", Activation: 0.7})

	ops, err := s.Journal().Ops(ctx, s.Run().ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 3 {
		t.Fatalf("journaled %d ops, want 3", len(ops))
	}
	if ops[0].Kind != "node" || ops[0].Error != "" {
		t.Errorf("ops[0] = %+v", ops[0])
	}
	if ops[1].Error == "" {
		t.Error("failed op should carry its error")
	}
	if s.Engine().Pending() != 1 {
		t.Errorf("Pending = %d, want 1", s.Engine().Pending())
	}
}

func TestTick_JournalsAndCheckpoints(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := create(t, root, true)

	var seen int
	if err := s.Tick(ctx, 12, func(kernel.TickReport) { seen++ }); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if seen != 12 || s.Ticks() != 12 {
		t.Errorf("seen=%d Ticks=%d, want 12", seen, s.Ticks())
	}

	records, err := s.Journal().Ticks(ctx, s.Run().ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 12 {
		t.Fatalf("journaled %d ticks, want 12", len(records))
	}
	if records[11].Tick != 12 || records[11].Nodes != 8 {
		t.Errorf("last record = %+v", records[11])
	}

	// Checkpoints at 5 and 10, both kept by MaxCheckpoints=2.
	cps, err := checkpoint.List(s.CheckpointDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(cps) != 2 || cps[0].Tick != 10 || cps[1].Tick != 5 {
		t.Errorf("checkpoints = %+v", cps)
	}

	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// The next session continues the project-wide tick count.
	s2, err := Open(ctx, Options{Root: root, Config: testConfig(), Command: "run"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s2.Close(ctx)
	if s2.Run().StartTick != 12 || s2.ProjectTick() != 12 {
		t.Errorf("StartTick=%d Tick=%d, want 12", s2.Run().StartTick, s2.ProjectTick())
	}
	if err := s2.Tick(ctx, 3, nil); err != nil {
		t.Fatal(err)
	}
	// Project tick 15 triggers a checkpoint; rotation keeps 15 and 10.
	cps, _ = checkpoint.List(s2.CheckpointDir())
	if len(cps) != 2 || cps[0].Tick != 15 || cps[1].Tick != 10 {
		t.Errorf("checkpoints after second run = %+v", cps)
	}
}

func TestTick_ContextCanceled(t *testing.T) {
	s := create(t, t.TempDir(), true)
	defer s.Close(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	err := s.Tick(ctx, 0, func(r kernel.TickReport) {
		if r.Tick == 3 {
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Tick error = %v, want context.Canceled", err)
	}
	// Ticks run before the cancel are still journaled.
	records, err := s.Journal().Ticks(context.Background(), s.Run().ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Errorf("journaled %d ticks, want 3", len(records))
	}
}

func TestNoJournal(t *testing.T) {
	ctx := context.Background()
	s, err := Create(ctx, Options{Root: t.TempDir(), Config: testConfig(), NoJournal: true}, true)
	if err != nil {
		t.Fatal(err)
	}
	if s.Journal() != nil || s.Run().ID != "" {
		t.Error("expected no journal")
	}
	if err := s.Apply(ctx, kernel.Op{Kind: kernel.OpNode, Label: "x"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Tick(ctx, 2, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestMetricsRegisterer(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	s, err := Create(ctx, Options{Root: t.TempDir(), Config: testConfig(), Registerer: reg, NoJournal: true}, true)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close(ctx)
	if err := s.Tick(ctx, 1, nil); err != nil {
		t.Fatal(err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range families {
		if f.GetName() == "loom_ticks_total" {
			if v := f.GetMetric()[0].GetCounter().GetValue(); v != 1 {
				t.Errorf("loom_ticks_total = %v, want 1", v)
			}
			return
		}
	}
	t.Error("loom_ticks_total not registered")
}

func TestRecord(t *testing.T) {
	r := kernel.TickReport{Tick: 7, Nodes: 3, Edges: 4, Hyperedges: 1, Emergence: 0.5, OpsSkipped: 2}
	rec := Record(r)
	if rec.Tick != 7 || rec.Nodes != 3 || rec.Edges != 4 || rec.Hyperedges != 1 || rec.Emergence != 0.5 || rec.OpsSkipped != 2 {
		t.Errorf("Record = %+v", rec)
	}
}

func TestDecisionLogAtDebug(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	cfg := testConfig()
	cfg.Logging.Level = "debug"
	s, err := Create(ctx, Options{Root: root, Config: cfg, NoJournal: true}, true)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	s.Close(ctx)

	data, err := os.ReadFile(root + "/.loom/decisions.jsonl")
	if err != nil {
		t.Fatalf("decision log not written: %v", err)
	}
	if len(data) == 0 {
		t.Error("decision log is empty")
	}
}

func TestCreateHelpers(t *testing.T) {
	ctx := context.Background()
	s := create(t, t.TempDir(), false)
	defer s.Close(ctx)

	for _, label := range []string{"a", "b", "c"} {
		if _, err := s.CreateNode(ctx, label); err != nil {
			t.Fatalf("CreateNode(%s): %v", label, err)
		}
	}
	id, err := s.Resolve("b")
	if err != nil || id != 1 {
		t.Errorf("Resolve(b) = %d, %v", id, err)
	}
	if _, err := s.Resolve("zzz"); !errors.Is(err, models.ErrInvalidIndex) {
		t.Errorf("Resolve(zzz) error = %v", err)
	}

	hid, err := s.CreateHyperedge(ctx, []string{"a", "b", "c"}, models.ProcessorAnd)
	if err != nil {
		t.Fatalf("CreateHyperedge: %v", err)
	}
	h, err := s.Engine().Hyperedge(hid)
	if err != nil || h.Arity() != 3 {
		t.Errorf("hyperedge = %+v, %v", h, err)
	}
	if _, err := s.CreateHyperedge(ctx, []string{"a", "nope"}, models.ProcessorOr); err == nil {
		t.Error("expected error for unknown participant")
	}

	ops, _ := s.Journal().Ops(ctx, s.Run().ID)
	if len(ops) != 5 {
		t.Errorf("journaled %d ops, want 5", len(ops))
	}
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	s := create(t, t.TempDir(), true)
	defer s.Close(ctx)

	if err := s.Tick(ctx, 5, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateNode(ctx, "extra"); err != nil {
		t.Fatal(err)
	}

	for _, source := range []string{"latest", "5", "topology", ""} {
		t.Run("source="+source, func(t *testing.T) {
			if _, err := s.CreateNode(ctx, "scratch"); err != nil {
				t.Fatal(err)
			}
			path, err := s.Restore(source)
			if err != nil {
				t.Fatalf("Restore(%q): %v", source, err)
			}
			if path == "" {
				t.Error("expected loaded path")
			}
			if got := s.Engine().Snapshot().Nodes; got != 8 {
				t.Errorf("nodes after restore = %d, want 8", got)
			}
		})
	}

	for _, source := range []string{"7", "../topology.loom", "newest"} {
		if _, err := s.Restore(source); err == nil {
			t.Errorf("Restore(%q) should fail", source)
		}
	}
}

func TestConfiguredContext(t *testing.T) {
	cfg := testConfig()
	cfg.Context = map[string]float64{"stress": 0.4, "novelty": 2}

	s, err := Create(context.Background(), Options{Root: t.TempDir(), Config: cfg, NoJournal: true}, false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer s.Close(context.Background())

	got := s.Engine().Context()
	if got["stress"] != 0.4 {
		t.Errorf("stress = %v, want 0.4", got["stress"])
	}
	if got["novelty"] != 1 {
		t.Errorf("novelty = %v, want clamped to 1", got["novelty"])
	}
}
