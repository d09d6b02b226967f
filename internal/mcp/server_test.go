package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func isolateHome(t *testing.T, tmpDir string) {
	t.Helper()
	tmpHome := filepath.Join(tmpDir, "home")
	if err := os.MkdirAll(tmpHome, 0755); err != nil {
		t.Fatalf("Failed to create temp home: %v", err)
	}
	t.Setenv("HOME", tmpHome)
}

func TestNewServer(t *testing.T) {
	server, tmpDir := setupTestServer(t)
	defer server.Close()

	if server.server == nil {
		t.Error("Server.server is nil")
	}
	if server.session.Root() != tmpDir {
		t.Errorf("session root = %q, want %q", server.session.Root(), tmpDir)
	}
	if server.ticksPerCall != defaultTicksPerCall {
		t.Errorf("ticksPerCall = %d, want %d", server.ticksPerCall, defaultTicksPerCall)
	}
	if server.auditLogger == nil {
		t.Error("auditLogger should be initialized")
	}
}

func TestNewServer_RequiresSession(t *testing.T) {
	if _, err := NewServer(&Config{Name: "test-server"}); err == nil {
		t.Error("expected error without a session")
	}
}

func TestNewServer_HasRateLimiters(t *testing.T) {
	server, _ := setupTestServer(t)
	defer server.Close()

	if server.toolLimiters == nil {
		t.Fatal("toolLimiters should be initialized")
	}
	expectedTools := []string{
		"loom_node", "loom_connect", "loom_hyperedge", "loom_activate",
		"loom_tick", "loom_save", "loom_load", "loom_graph",
	}
	for _, tool := range expectedTools {
		if _, ok := server.toolLimiters[tool]; !ok {
			t.Errorf("missing rate limiter for %s", tool)
		}
	}
}

func TestClose(t *testing.T) {
	server, _ := setupTestServer(t)

	if err := server.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	// Multiple closes should be safe
	if err := server.Close(); err != nil {
		t.Errorf("Second Close() error = %v", err)
	}
}

func TestRun_CancelledContextAutoSaves(t *testing.T) {
	server, _ := setupTestServer(t)
	defer server.Close()
	server.autoSave = true

	ctx := context.Background()
	if _, err := server.session.CreateNode(ctx, "unsaved"); err != nil {
		t.Fatal(err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	// Stdio is not a real client here; only the shutdown path matters.
	_ = server.Run(cancelled)

	if err := server.session.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if _, err := server.session.Resolve("unsaved"); err != nil {
		t.Errorf("node created before Run should be saved on exit: %v", err)
	}
}
