package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/loom/internal/session"
	"github.com/nvandessel/loom/internal/store"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show journaled runs, their ticks and operations",
		Long: `Without arguments, list recent runs. With a run id (or a unique
prefix of one), show that run's tick telemetry and, with --ops, its
structural operations. --delete removes the run with its ticks and ops;
--check verifies the journal database.

Examples:
  loom history
  loom history 3f2a --limit 20
  loom history 3f2a --ops
  loom history 3f2a --delete
  loom history --check`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")
			showOps, _ := cmd.Flags().GetBool("ops")
			deleteRun, _ := cmd.Flags().GetBool("delete")
			check, _ := cmd.Flags().GetBool("check")

			if !session.Exists(root) {
				return fmt.Errorf(".loom not initialized. Run 'loom init' first")
			}
			j, err := store.OpenJournal(root)
			if err != nil {
				return err
			}
			defer j.Close()

			ctx := cmd.Context()
			if check {
				if err := j.Check(ctx); err != nil {
					return fmt.Errorf("journal check failed: %w", err)
				}
				if jsonOut {
					return printJSON(cmd.OutOrStdout(), map[string]string{"status": "ok", "path": j.Path()})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Journal %s: ok\n", j.Path())
				return nil
			}
			if deleteRun && len(args) == 0 {
				return fmt.Errorf("--delete requires a run id")
			}
			if len(args) == 0 {
				runs, err := j.Runs(ctx, limit)
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(cmd.OutOrStdout(), map[string]any{"runs": runs, "count": len(runs)})
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "RUN\tCOMMAND\tSTARTED\tSTART TICK\tTICKS\tSTATUS")
				for _, r := range runs {
					status := "running"
					if r.EndedAt != nil {
						status = "ended"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n", shortID(r.ID), r.Command,
						r.StartedAt.Local().Format(time.DateTime), r.StartTick, r.Ticks, status)
				}
				return w.Flush()
			}

			run, err := findRun(cmd, j, args[0])
			if err != nil {
				return err
			}
			if deleteRun {
				if err := j.DeleteRun(ctx, run.ID); err != nil {
					return err
				}
				if jsonOut {
					return printJSON(cmd.OutOrStdout(), map[string]string{"status": "deleted", "id": run.ID})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", run.ID)
				return nil
			}
			ticks, err := j.Ticks(ctx, run.ID, limit)
			if err != nil {
				return err
			}
			var ops []store.OpRecord
			if showOps {
				if ops, err = j.Ops(ctx, run.ID); err != nil {
					return err
				}
			}

			if jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]any{"run": run, "ticks": ticks, "ops": ops})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s (%s), %d ticks from tick %d\n", run.ID, run.Command, run.Ticks, run.StartTick)
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TICK\tNODES\tEDGES\tTEMP\tHYPER\tACTIVE\tFIRED\tEMERGENCE\tOPS")
			for _, t := range ticks {
				fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%d\t%d\t%.4f\t%d/%d\n", t.Tick, t.Nodes, t.Edges,
					t.TemporaryEdges, t.Hyperedges, t.ActiveNodes, t.Fired, t.Emergence, t.OpsApplied, t.OpsSkipped)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if showOps {
				fmt.Fprintf(out, "\nOperations (%d):\n", len(ops))
				for _, op := range ops {
					line := fmt.Sprintf("  tick %d  %s  %s", op.Tick, op.Kind, op.Detail)
					if op.Error != "" {
						line += "  error: " + op.Error
					}
					fmt.Fprintln(out, line)
				}
			}
			return nil
		},
	}

	cmd.Flags().Int("limit", 50, "Maximum runs or ticks to show (0 = all)")
	cmd.Flags().Bool("ops", false, "Include structural operations of the run")
	cmd.Flags().Bool("delete", false, "Delete the run and its records")
	cmd.Flags().Bool("check", false, "Run integrity checks on the journal database")
	return cmd
}

// findRun resolves a run id or unique id prefix.
func findRun(cmd *cobra.Command, j *store.Journal, prefix string) (store.Run, error) {
	runs, err := j.Runs(cmd.Context(), 0)
	if err != nil {
		return store.Run{}, err
	}
	var match []store.Run
	for _, r := range runs {
		if strings.HasPrefix(r.ID, prefix) {
			match = append(match, r)
		}
	}
	switch len(match) {
	case 0:
		return store.Run{}, fmt.Errorf("no run matches %q", prefix)
	case 1:
		return match[0], nil
	}
	return store.Run{}, fmt.Errorf("run prefix %q is ambiguous (%d matches)", prefix, len(match))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
