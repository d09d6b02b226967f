package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nvandessel/loom/internal/kernel"
	"github.com/nvandessel/loom/internal/persistence"
)

// fileSaver writes a fixed payload.
type fileSaver struct {
	tick uint64
	err  error
}

func (f *fileSaver) Save(path string) error {
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(path, []byte("not a topology"), 0644)
}

func (f *fileSaver) TickCount() uint64 { return f.tick }

func TestFileName(t *testing.T) {
	tests := []struct {
		tick     uint64
		compress bool
		want     string
	}{
		{0, false, "checkpoint-000000000000.loom"},
		{1500, false, "checkpoint-000000001500.loom"},
		{42, true, "checkpoint-000000000042.loom.zst"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := FileName(tt.tick, tt.compress)
			if got != tt.want {
				t.Errorf("FileName(%d, %v) = %q, want %q", tt.tick, tt.compress, got, tt.want)
			}
			tick, compressed, ok := parseName(got)
			if !ok || tick != tt.tick || compressed != tt.compress {
				t.Errorf("parseName(%q) = %d, %v, %v", got, tick, compressed, ok)
			}
		})
	}
}

func TestParseName_Rejects(t *testing.T) {
	for _, name := range []string{
		"topology.loom",
		"checkpoint-abc.loom",
		"checkpoint-12.json",
		"checkpoint-12.loom.gz",
	} {
		if _, _, ok := parseName(name); ok {
			t.Errorf("parseName(%q) accepted", name)
		}
	}
}

func TestWriteAndList(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "checkpoints")

	for _, tick := range []uint64{100, 300, 200} {
		if _, err := Write(dir, &fileSaver{tick: tick}, false); err != nil {
			t.Fatalf("Write(%d): %v", tick, err)
		}
	}
	// Unrelated files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	all, err := List(dir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List returned %d, want 3", len(all))
	}
	for i, want := range []uint64{300, 200, 100} {
		if all[i].Tick != want {
			t.Errorf("all[%d].Tick = %d, want %d", i, all[i].Tick, want)
		}
		if all[i].Header != nil {
			t.Errorf("all[%d] has a header for a non-topology file", i)
		}
	}

	latest, ok, err := Latest(dir)
	if err != nil || !ok || latest.Tick != 300 {
		t.Errorf("Latest = %+v, %v, %v", latest, ok, err)
	}
}

func TestList_MissingDir(t *testing.T) {
	all, err := List(filepath.Join(t.TempDir(), "nope"))
	if err != nil || all != nil {
		t.Errorf("List(missing) = %v, %v", all, err)
	}
	if _, ok, err := Latest(filepath.Join(t.TempDir(), "nope")); ok || err != nil {
		t.Errorf("Latest(missing) ok=%v err=%v", ok, err)
	}
}

func TestWrite_SaveError(t *testing.T) {
	_, err := Write(t.TempDir(), &fileSaver{err: os.ErrPermission}, false)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestWrite_Engine(t *testing.T) {
	cfg := kernel.DefaultConfig()
	cfg.NodeCapacity = 16
	cfg.EdgeCapacity = 128
	cfg.Workers = 1
	e, err := kernel.New(cfg)
	if err != nil {
		t.Fatalf("kernel.New: %v", err)
	}
	if err := e.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	for range 3 {
		e.Tick()
	}

	dir := t.TempDir()
	info, err := Write(dir, e, true)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if info.Tick != 3 || !info.Compressed {
		t.Errorf("info = %+v", info)
	}

	all, err := List(dir)
	if err != nil || len(all) != 1 {
		t.Fatalf("List = %v, %v", all, err)
	}
	h := all[0].Header
	if h == nil {
		t.Fatal("expected a readable header")
	}
	if h.NodeCapacity != 16 || h.Precision != persistence.Float32 {
		t.Errorf("header = %+v", *h)
	}
}
