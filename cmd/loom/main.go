package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "loom",
		Short: "Loom - a topological learning engine",
		Long: `loom grows a graph of unit vectors that learns by co-activation.

Nodes bond through Hebbian learning, hyperedge processors detect patterns
among groups of nodes, and periodic consolidation flags weak bonds. The
topology lives in .loom/ under the project root.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")

	rootCmd.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newNodeCmd(),
		newConnectCmd(),
		newHyperedgeCmd(),
		newContextCmd(),
		newRunCmd(),
		newStatsCmd(),
		newGraphCmd(),
		newHistoryCmd(),
		newCheckpointCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)
	return rootCmd
}
