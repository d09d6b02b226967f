package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/loom/internal/kernel"
)

func newConnectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect <from> <to>",
		Short: "Create a weighted edge between two nodes",
		Long: `Create a directed edge between two labelled nodes.

With --bidirectional both directions are created and the two vectors are
nudged toward each other.

Examples:
  loom connect coffee morning
  loom connect coffee morning --weight 0.9
  loom connect self other --weight -0.4 --bidirectional`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			from, to := args[0], args[1]
			jsonOut, _ := cmd.Flags().GetBool("json")
			weight, _ := cmd.Flags().GetFloat64("weight")
			bidirectional, _ := cmd.Flags().GetBool("bidirectional")

			if weight < -1 || weight > 1 {
				return fmt.Errorf("weight must be in [-1.0, 1.0], got %f", weight)
			}
			if from == to {
				return fmt.Errorf("self-edges are not allowed: from and to are both %s", from)
			}

			sess, err := openProject(cmd, projectOptions{})
			if err != nil {
				return err
			}
			defer closeProject(sess, &err)

			op := kernel.Op{Kind: kernel.OpEdge, From: from, To: to, Weight: weight}
			if bidirectional {
				op.Kind = kernel.OpBidirectional
			}
			if err := sess.Apply(cmd.Context(), op); err != nil {
				return fmt.Errorf("failed to connect: %w", err)
			}
			if err := sess.Save(); err != nil {
				return fmt.Errorf("failed to save topology: %w", err)
			}

			if jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"from":          from,
					"to":            to,
					"weight":        weight,
					"bidirectional": bidirectional,
				})
			}
			arrow := "->"
			if bidirectional {
				arrow = "<->"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Connected %s %s %s (weight: %.2f)\n", from, arrow, to, weight)
			return nil
		},
	}

	cmd.Flags().Float64("weight", 0.5, "Edge weight in [-1.0, 1.0]")
	cmd.Flags().Bool("bidirectional", false, "Create edges in both directions")
	return cmd
}
