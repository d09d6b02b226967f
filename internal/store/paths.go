package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dir is the name of the per-project and per-user loom directory.
const Dir = ".loom"

// GlobalLoomPath returns the path to the global .loom directory.
// On Unix: ~/.loom
// On Windows: %USERPROFILE%\.loom
func GlobalLoomPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, Dir), nil
}

// LocalLoomPath returns the path to the local .loom directory
// for the given project root.
func LocalLoomPath(projectRoot string) string {
	return filepath.Join(projectRoot, Dir)
}

// TopologyPath returns the default topology file of a project.
func TopologyPath(projectRoot string) string {
	return filepath.Join(LocalLoomPath(projectRoot), "topology.loom")
}

// CheckpointDir returns the checkpoint directory of a project.
func CheckpointDir(projectRoot string) string {
	return filepath.Join(LocalLoomPath(projectRoot), "checkpoints")
}

// EnsureGlobalLoomDir creates the global .loom directory if it doesn't exist.
// Returns nil if the directory already exists or was successfully created.
func EnsureGlobalLoomDir() error {
	globalPath, err := GlobalLoomPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(globalPath, 0755); err != nil {
		return fmt.Errorf("failed to create global .loom directory: %w", err)
	}

	return nil
}
