package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/nvandessel/loom/internal/kernel"
)

// statsOutput is the result of "loom stats".
type statsOutput struct {
	ProjectTick uint64          `json:"project_tick"`
	Stats       kernel.Snapshot `json:"stats"`
	Topology    string          `json:"topology"`
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show topology statistics",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			jsonOut, _ := cmd.Flags().GetBool("json")

			sess, err := openProject(cmd, projectOptions{readOnly: true})
			if err != nil {
				return err
			}
			defer closeProject(sess, &err)

			out := statsOutput{
				ProjectTick: sess.ProjectTick(),
				Stats:       sess.Engine().Snapshot(),
				Topology:    sess.TopologyPath(),
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), out)
			}
			printStats(cmd, out)
			return nil
		},
	}
}

func printStats(cmd *cobra.Command, out statsOutput) {
	w := cmd.OutOrStdout()
	s := out.Stats
	fmt.Fprintf(w, "Topology: %s\n", out.Topology)
	fmt.Fprintf(w, "  Tick:            %d\n", out.ProjectTick)
	fmt.Fprintf(w, "  Nodes:           %d of %d (%d active, %d processors)\n", s.Nodes, s.NodeCapacity, s.ActiveNodes, s.Processors)
	fmt.Fprintf(w, "  Edges:           %d of %d (%d temporary)\n", s.Edges, s.EdgeCapacity, s.TemporaryEdges)
	fmt.Fprintf(w, "  Hyperedges:      %d\n", s.Hyperedges)
	fmt.Fprintf(w, "  Mean activation: %.4f\n", s.MeanActivation)
	fmt.Fprintf(w, "  Emergence:       %.4f\n", s.Emergence)
	if len(s.Context) > 0 {
		fmt.Fprintln(w, "  Context:")
		for _, k := range slices.Sorted(maps.Keys(s.Context)) {
			fmt.Fprintf(w, "    %s: %.2f\n", k, s.Context[k])
		}
	}
}
