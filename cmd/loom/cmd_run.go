package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nvandessel/loom/internal/kernel"
	"github.com/nvandessel/loom/internal/visualization"
)

// runSummary is the result of "loom run".
type runSummary struct {
	Ticks          uint64          `json:"ticks"`
	ProjectTick    uint64          `json:"project_tick"`
	Interrupted    bool            `json:"interrupted"`
	OpsApplied     int             `json:"ops_applied"`
	OpsSkipped     int             `json:"ops_skipped"`
	Consolidations int             `json:"consolidations"`
	Duration       time.Duration   `json:"duration"`
	Stats          kernel.Snapshot `json:"stats"`
	Saved          bool            `json:"saved"`
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Advance the topology by running ticks",
		Long: `Run the tick cycle on the project topology and save it afterwards.

Each tick applies queued operations, integrates forces, computes hyperedge
processors, updates edge weights and, on its interval, consolidates. Every
tick is recorded in .loom/journal.db and checkpoints are written every
persistence.checkpoint_every ticks.

With --ticks 0 the loop runs until interrupted (Ctrl-C).

Examples:
  loom run --ticks 5000
  loom run --ops ops.yaml --stimulate self=1 --ticks 200
  loom run --ticks 0 --context stress=0.4 --metrics`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			ticks, _ := cmd.Flags().GetInt("ticks")
			opsPath, _ := cmd.Flags().GetString("ops")
			stimuli, _ := cmd.Flags().GetStringSlice("stimulate")
			signals, _ := cmd.Flags().GetStringSlice("context")
			reportEvery, _ := cmd.Flags().GetInt("report-every")
			serveMetrics, _ := cmd.Flags().GetBool("metrics")
			noSave, _ := cmd.Flags().GetBool("no-save")

			if ticks < 0 {
				return fmt.Errorf("ticks must be non-negative, got %d", ticks)
			}

			var ops []kernel.Op
			if opsPath != "" {
				ops, err = readOpsFile(opsPath)
				if err != nil {
					return err
				}
			}
			activations, err := parseAssignments(stimuli)
			if err != nil {
				return fmt.Errorf("invalid --stimulate: %w", err)
			}
			for label, a := range activations {
				ops = append(ops, kernel.Op{Kind: kernel.OpActivate, Label: label, Activation: a})
			}
			overrides, err := parseAssignments(signals)
			if err != nil {
				return fmt.Errorf("invalid --context: %w", err)
			}

			registry := prometheus.NewRegistry()
			sess, err := openProject(cmd, projectOptions{registerer: registry})
			if err != nil {
				return err
			}
			defer closeProject(sess, &err)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			sigCh := make(chan os.Signal, 1)
			notifySignals(sigCh)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case <-sigCh:
					cancel()
				case <-ctx.Done():
				}
			}()

			cfg := sess.Config()
			if serveMetrics || cfg.Metrics.Enabled {
				srv := visualization.NewServer(sess.Engine(), cfg.Metrics.Addr, registry)
				go func() {
					if err := srv.ListenAndServe(ctx); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "metrics server: %v\n", err)
					}
				}()
				fmt.Fprintf(cmd.ErrOrStderr(), "Serving metrics on http://%s/metrics\n", cfg.Metrics.Addr)
			}

			if len(overrides) > 0 {
				sess.Engine().SetContext(overrides)
			}
			if len(ops) > 0 {
				sess.Enqueue(ctx, ops...)
			}

			var sum runSummary
			start := time.Now()
			runErr := sess.Tick(ctx, ticks, func(r kernel.TickReport) {
				sum.OpsApplied += r.OpsApplied
				sum.OpsSkipped += r.OpsSkipped
				if r.Consolidation != nil {
					sum.Consolidations++
				}
				if reportEvery > 0 && r.Tick%uint64(reportEvery) == 0 && !jsonOut {
					fmt.Fprintf(cmd.OutOrStdout(), "tick %d  active=%d fired=%d emergence=%.4f edges=%d\n",
						sess.ProjectTick(), r.ActiveNodes, r.Fired, r.Emergence, r.Edges)
				}
			})
			if errors.Is(runErr, context.Canceled) {
				sum.Interrupted = true
				runErr = nil
			}
			if runErr != nil {
				return fmt.Errorf("run failed: %w", runErr)
			}
			sum.Duration = time.Since(start)
			sum.Ticks = sess.Ticks()
			sum.ProjectTick = sess.ProjectTick()
			sum.Stats = sess.Engine().Snapshot()

			if !noSave {
				if err := sess.Save(); err != nil {
					return fmt.Errorf("failed to save topology: %w", err)
				}
				sum.Saved = true
			}

			if jsonOut {
				return printJSON(cmd.OutOrStdout(), sum)
			}
			out := cmd.OutOrStdout()
			verb := "Ran"
			if sum.Interrupted {
				verb = "Interrupted after"
			}
			fmt.Fprintf(out, "%s %d ticks in %s (project tick %d)\n", verb, sum.Ticks, sum.Duration.Round(time.Millisecond), sum.ProjectTick)
			fmt.Fprintf(out, "  Ops: %d applied, %d skipped\n", sum.OpsApplied, sum.OpsSkipped)
			fmt.Fprintf(out, "  Consolidations: %d\n", sum.Consolidations)
			fmt.Fprintf(out, "  Nodes: %d  Edges: %d (%d temporary)  Hyperedges: %d\n",
				sum.Stats.Nodes, sum.Stats.Edges, sum.Stats.TemporaryEdges, sum.Stats.Hyperedges)
			fmt.Fprintf(out, "  Emergence: %.4f\n", sum.Stats.Emergence)
			if !sum.Saved {
				fmt.Fprintln(out, "  Topology not saved (--no-save)")
			}
			return nil
		},
	}

	cmd.Flags().Int("ticks", 1000, "Number of ticks to run (0 = until interrupted)")
	cmd.Flags().String("ops", "", "YAML file of structural operations to queue before the first tick")
	cmd.Flags().StringSlice("stimulate", nil, "Activate nodes before the first tick (label=activation)")
	cmd.Flags().StringSlice("context", nil, "Override context signals for this run (signal=value)")
	cmd.Flags().Int("report-every", 0, "Print a progress line every N ticks")
	cmd.Flags().Bool("metrics", false, "Serve Prometheus metrics on metrics.addr while running")
	cmd.Flags().Bool("no-save", false, "Don't save the topology when the run ends")
	return cmd
}

// readOpsFile parses a YAML ops document.
func readOpsFile(path string) ([]kernel.Op, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ops file: %w", err)
	}
	defer f.Close()
	ops, err := kernel.ReadOps(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ops, nil
}
