package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/loom/internal/config"
	"github.com/nvandessel/loom/internal/session"
	"github.com/nvandessel/loom/internal/store"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a topology in the project directory",
		Long: `Create .loom/ under the project root with a new topology.

By default the topology is seeded with the primordial nodes (self, now,
here, other, approach, avoid, surprise) and a resonance hyperedge that
binds self, now and here. The effective configuration is written to
.loom/config.yaml so later commands open the topology with the same
dimension and capacities.

Examples:
  loom init
  loom init --empty
  LOOM_NODE_CAPACITY=16384 loom init`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			empty, _ := cmd.Flags().GetBool("empty")

			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}

			sess, err := session.Create(cmd.Context(), session.Options{
				Root:    root,
				Config:  cfg,
				Command: "init",
				Logger:  newLogger(cfg),
			}, !empty)
			if errors.Is(err, session.ErrAlreadyInitialized) {
				return fmt.Errorf("topology already exists at %s", store.TopologyPath(root))
			}
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			defer closeProject(sess, &err)

			cfgPath := config.ProjectPath(root)
			if _, statErr := os.Stat(cfgPath); os.IsNotExist(statErr) {
				if err := cfg.Save(cfgPath); err != nil {
					return fmt.Errorf("failed to write project config: %w", err)
				}
			}

			snap := sess.Engine().Snapshot()
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"status":     "initialized",
					"path":       store.LocalLoomPath(root),
					"nodes":      snap.Nodes,
					"edges":      snap.Edges,
					"hyperedges": snap.Hyperedges,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized .loom/ in %s (%d nodes, %d edges, %d hyperedges)\n",
				root, snap.Nodes, snap.Edges, snap.Hyperedges)
			return nil
		},
	}

	cmd.Flags().Bool("empty", false, "Start without the primordial nodes")
	return cmd
}
