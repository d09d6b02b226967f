package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvandessel/loom/internal/models"
)

func newHyperedgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hyperedge",
		Short: "Create and inspect hyperedge processors",
	}
	cmd.AddCommand(newHyperedgeAddCmd(), newHyperedgeListCmd())
	return cmd
}

func newHyperedgeAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <processor> <label> <label>...",
		Short: "Bind 2 to 6 nodes under a processor",
		Long: `Create a hyperedge over the labelled nodes.

Processors:
  and        - every participant must activate
  or         - any participant activates
  xor        - an odd number of participants is active
  threshold  - at least two participants are active
  resonance  - participants amplify each other
  inhibit    - the strongest participant suppresses the rest
  sequence   - participants fire in stored order
  custom     - plain average of the participants

Examples:
  loom hyperedge add resonance self now here
  loom hyperedge add and coffee morning`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			jsonOut, _ := cmd.Flags().GetBool("json")

			typ, err := models.ParseProcessorType(args[0])
			if err != nil {
				return err
			}
			labels := args[1:]

			sess, err := openProject(cmd, projectOptions{})
			if err != nil {
				return err
			}
			defer closeProject(sess, &err)

			id, err := sess.CreateHyperedge(cmd.Context(), labels, typ)
			if err != nil {
				return fmt.Errorf("failed to create hyperedge: %w", err)
			}
			if err := sess.Save(); err != nil {
				return fmt.Errorf("failed to save topology: %w", err)
			}

			if jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"id":           id,
					"type":         typ.String(),
					"participants": labels,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s hyperedge %d over %s\n", typ, id, strings.Join(labels, ", "))
			return nil
		},
	}
}

func newHyperedgeListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List hyperedges",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			jsonOut, _ := cmd.Flags().GetBool("json")

			sess, err := openProject(cmd, projectOptions{readOnly: true})
			if err != nil {
				return err
			}
			defer closeProject(sess, &err)

			e := sess.Engine()
			all := e.Hyperedges()
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]any{"hyperedges": all, "count": len(all)})
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tPARTICIPANTS\tSTATE\tUSAGE")
			for _, h := range all {
				names := make([]string, len(h.Participants))
				for i, p := range h.Participants {
					names[i] = e.Label(p)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%.4f\t%d\n", h.ID, h.Type, strings.Join(names, ","), h.State, h.Usage)
			}
			return w.Flush()
		},
	}
}
