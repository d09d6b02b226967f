package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/loom/internal/checkpoint"
	"github.com/nvandessel/loom/internal/session"
	"github.com/nvandessel/loom/internal/store"
)

func newCheckpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage topology checkpoints",
		Long: `Checkpoints are full topology files written under .loom/checkpoints/
every persistence.checkpoint_every ticks of "loom run" and rotated by
persistence.max_checkpoints and persistence.max_checkpoint_age.`,
	}
	cmd.AddCommand(
		newCheckpointListCmd(),
		newCheckpointCreateCmd(),
		newCheckpointRestoreCmd(),
		newCheckpointPruneCmd(),
	)
	return cmd
}

func newCheckpointListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List checkpoints, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")

			all, err := checkpoint.List(store.CheckpointDir(root))
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]any{"checkpoints": all, "count": len(all)})
			}
			if len(all) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No checkpoints.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TICK\tSIZE\tCREATED\tCOMPRESSED")
			for _, c := range all {
				fmt.Fprintf(w, "%d\t%d\t%s\t%v\n", c.Tick, c.Size, c.CreatedAt.Local().Format(time.DateTime), c.Compressed)
			}
			return w.Flush()
		},
	}
}

func newCheckpointCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Write a checkpoint of the current topology",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			jsonOut, _ := cmd.Flags().GetBool("json")

			sess, err := openProject(cmd, projectOptions{})
			if err != nil {
				return err
			}
			defer closeProject(sess, &err)

			info, err := sess.Checkpoint()
			if err != nil {
				return fmt.Errorf("failed to write checkpoint: %w", err)
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), info)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Checkpoint written: %s (tick %d)\n", info.Path, info.Tick)
			return nil
		},
	}
}

func newCheckpointRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <latest|tick>",
		Short: "Replace the topology with a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			jsonOut, _ := cmd.Flags().GetBool("json")

			sess, err := openProject(cmd, projectOptions{})
			if err != nil {
				return err
			}
			defer closeProject(sess, &err)

			path, err := sess.Restore(args[0])
			if err != nil {
				return fmt.Errorf("failed to restore: %w", err)
			}
			if err := sess.Save(); err != nil {
				return fmt.Errorf("failed to save topology: %w", err)
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]string{"status": "restored", "path": path})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored topology from %s\n", path)
			return nil
		},
	}
}

func newCheckpointPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete checkpoints outside a retention policy",
		Long: `Delete checkpoints not kept by the given limits. By default a checkpoint
must satisfy every limit to survive; with --any satisfying one is enough.
Without flags the configured persistence policy is applied.

Examples:
  loom checkpoint prune --keep 3
  loom checkpoint prune --older-than 7d
  loom checkpoint prune --keep 10 --max-size 500MB --any`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			keep, _ := cmd.Flags().GetInt("keep")
			olderThan, _ := cmd.Flags().GetString("older-than")
			maxSize, _ := cmd.Flags().GetString("max-size")
			keepAny, _ := cmd.Flags().GetBool("any")

			if !session.Exists(root) {
				return fmt.Errorf(".loom not initialized. Run 'loom init' first")
			}
			policy, err := prunePolicy(root, keep, olderThan, maxSize, keepAny)
			if err != nil {
				return err
			}

			deleted, err := checkpoint.Prune(store.CheckpointDir(root), policy)
			if err != nil {
				return fmt.Errorf("failed to prune checkpoints: %w", err)
			}
			if jsonOut {
				if deleted == nil {
					deleted = []string{}
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"deleted": deleted, "count": len(deleted)})
			}
			for _, p := range deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", p)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d checkpoint(s)\n", len(deleted))
			return nil
		},
	}
	cmd.Flags().Int("keep", 0, "Keep at most N checkpoints")
	cmd.Flags().String("older-than", "", "Delete checkpoints older than this (e.g. 12h, 7d)")
	cmd.Flags().String("max-size", "", "Keep checkpoints up to this total size (e.g. 500MB)")
	cmd.Flags().Bool("any", false, "Keep a checkpoint when any limit keeps it")
	return cmd
}

// prunePolicy builds the policy of the prune flags, falling back to the
// configured rotation when no limit is given.
func prunePolicy(root string, keep int, olderThan, maxSize string, keepAny bool) (checkpoint.Policy, error) {
	if keep < 0 {
		return nil, fmt.Errorf("--keep must be non-negative, got %d", keep)
	}
	var policies []checkpoint.Policy
	if keep > 0 {
		policies = append(policies, &checkpoint.CountPolicy{MaxCount: keep})
	}
	if olderThan != "" {
		d, err := checkpoint.ParseDuration(olderThan)
		if err != nil {
			return nil, err
		}
		policies = append(policies, &checkpoint.AgePolicy{MaxAge: d})
	}
	if maxSize != "" {
		n, err := checkpoint.ParseSize(maxSize)
		if err != nil {
			return nil, err
		}
		policies = append(policies, &checkpoint.SizePolicy{MaxTotalBytes: n})
	}

	switch {
	case len(policies) == 0:
		cfg, err := loadConfig(root)
		if err != nil {
			return nil, err
		}
		return checkpoint.NewPolicy(cfg.Persistence.MaxCheckpoints, cfg.Persistence.MaxCheckpointAge), nil
	case len(policies) == 1:
		return policies[0], nil
	case keepAny:
		return checkpoint.AnyPolicy(policies), nil
	}
	return checkpoint.AllPolicy(policies), nil
}
