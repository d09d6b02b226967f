package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvandessel/loom/internal/kernel"
)

func newNodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Create and inspect nodes",
	}
	cmd.AddCommand(
		newNodeAddCmd(),
		newNodeListCmd(),
		newNodeShowCmd(),
	)
	return cmd
}

func newNodeAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <label>...",
		Short: "Create nodes with the given labels",
		Long: `Create one node per label. The node vector is seeded from the label,
so the same label always starts at the same point.

Examples:
  loom node add coffee
  loom node add morning evening night`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			jsonOut, _ := cmd.Flags().GetBool("json")

			sess, err := openProject(cmd, projectOptions{})
			if err != nil {
				return err
			}
			defer closeProject(sess, &err)

			type created struct {
				ID    uint32 `json:"id"`
				Label string `json:"label"`
			}
			var out []created
			for _, label := range args {
				id, err := sess.CreateNode(cmd.Context(), label)
				if err != nil {
					return fmt.Errorf("failed to create node %q: %w", label, err)
				}
				out = append(out, created{ID: uint32(id), Label: label})
			}
			if err := sess.Save(); err != nil {
				return fmt.Errorf("failed to save topology: %w", err)
			}

			if jsonOut {
				return printJSON(cmd.OutOrStdout(), out)
			}
			for _, c := range out {
				fmt.Fprintf(cmd.OutOrStdout(), "Created node %d: %s\n", c.ID, c.Label)
			}
			return nil
		},
	}
}

func newNodeListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List nodes",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			all, _ := cmd.Flags().GetBool("all")

			sess, err := openProject(cmd, projectOptions{readOnly: true})
			if err != nil {
				return err
			}
			defer closeProject(sess, &err)

			var nodes []kernel.NodeInfo
			for _, n := range sess.Engine().Nodes() {
				if n.Processor && !all {
					continue
				}
				nodes = append(nodes, n)
			}

			if jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]any{"nodes": nodes, "count": len(nodes)})
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tLABEL\tACTIVATION\tDEGREE\tSTATUS")
			for _, n := range nodes {
				label := n.Label
				if n.Processor {
					label = "(processor)"
				}
				status := "active"
				if !n.Active {
					status = "inactive"
				}
				fmt.Fprintf(w, "%d\t%s\t%.3f\t%d\t%s\n", n.ID, label, n.Activation, n.Degree, status)
			}
			return w.Flush()
		},
	}
	cmd.Flags().Bool("all", false, "Include hyperedge processor nodes")
	return cmd
}

func newNodeShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <label>",
		Short: "Show a node and its outgoing edges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			jsonOut, _ := cmd.Flags().GetBool("json")

			sess, err := openProject(cmd, projectOptions{readOnly: true})
			if err != nil {
				return err
			}
			defer closeProject(sess, &err)

			e := sess.Engine()
			id, err := sess.Resolve(args[0])
			if err != nil {
				return err
			}
			info, err := e.Node(id)
			if err != nil {
				return err
			}
			edges, err := e.Neighbors(id)
			if err != nil {
				return err
			}

			if jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]any{"node": info, "edges": edges})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Node %d: %s\n", info.ID, info.Label)
			fmt.Fprintf(out, "  Active:      %v\n", info.Active)
			fmt.Fprintf(out, "  Activation:  %.4f\n", info.Activation)
			fmt.Fprintf(out, "  Connections: %d\n", info.Connections)
			fmt.Fprintf(out, "  Edges:       %d\n", len(edges))
			for _, edge := range edges {
				target := e.Label(edge.To)
				if target == "" {
					target = fmt.Sprintf("#%d", edge.To)
				}
				var tags string
				if edge.Bidirectional {
					tags += " [bidirectional]"
				}
				if edge.Temporary {
					tags += " [temporary]"
				}
				if edge.Hyperedge {
					tags += " [hyperedge]"
				}
				fmt.Fprintf(out, "    -> %s (%.4f)%s\n", target, edge.Weight, tags)
			}
			return nil
		},
	}
}
